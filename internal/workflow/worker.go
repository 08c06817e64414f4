package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/notifications"
	"mediaworker/internal/results"
	"mediaworker/internal/stage"
)

const defaultSinkTimeout = 30 * time.Second

// Completer hands a finished attempt to the result sink.
type Completer interface {
	Complete(ctx context.Context, job *jobs.Job, result *results.JobResult, decision jobs.Decision) error
}

// Timings holds the loop's waits and budgets.
type Timings struct {
	FetchWait          time.Duration
	ErrorRetryInterval time.Duration
	JobTimeout         time.Duration
	ShutdownGrace      time.Duration
	HeartbeatInterval  time.Duration
	LeaseTimeout       time.Duration
	SinkTimeout        time.Duration
}

// TimingsFromConfig converts the workflow section into durations.
func TimingsFromConfig(cfg *config.Config) Timings {
	return Timings{
		FetchWait:          cfg.FetchWait(),
		ErrorRetryInterval: cfg.ErrorRetryInterval(),
		JobTimeout:         cfg.JobTimeout(),
		ShutdownGrace:      cfg.ShutdownGrace(),
		HeartbeatInterval:  cfg.HeartbeatInterval(),
		LeaseTimeout:       cfg.LeaseTimeout(),
		SinkTimeout:        defaultSinkTimeout,
	}
}

// Worker runs the fetch, process, complete loop for one role.
type Worker struct {
	role     jobs.Role
	workerID string
	workRoot string
	source   jobs.Source
	handler  stage.Handler
	sink     Completer
	notifier notifications.Service
	logger   *slog.Logger
	policy   RetryPolicy
	timings  Timings

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	processed int
	failed    int
	retried   int
	lastErr   error
	lastJobID string
}

// Option configures optional Worker behavior.
type Option func(*Worker)

// WithNotifier sets the service used for lifecycle notifications.
func WithNotifier(n notifications.Service) Option {
	return func(w *Worker) { w.notifier = n }
}

// WithTimings overrides the durations read from configuration.
func WithTimings(t Timings) Option {
	return func(w *Worker) { w.timings = t }
}

// WithRetryPolicy overrides the policy read from configuration.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Worker) { w.policy = p }
}

// NewWorker constructs a worker loop bound to role. The handler must serve
// the same role.
func NewWorker(cfg *config.Config, role jobs.Role, source jobs.Source, handler stage.Handler, sink Completer, logger *slog.Logger, opts ...Option) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("workflow: config is required")
	}
	if !role.Valid() {
		return nil, errors.New("workflow: unsupported role " + string(role))
	}
	if source == nil || handler == nil || sink == nil {
		return nil, errors.New("workflow: source, handler, and sink are required")
	}
	if handler.Role() != role {
		return nil, errors.New("workflow: handler serves " + string(handler.Role()) + ", not " + string(role))
	}
	w := &Worker{
		role:     role,
		workerID: cfg.Worker.ID,
		workRoot: cfg.Paths.WorkDir,
		source:   source,
		handler:  handler,
		sink:     sink,
		logger: logging.NewComponentLogger(logger, "workflow").With(
			logging.String(logging.FieldRole, string(role)),
		),
		policy:  NewRetryPolicy(cfg),
		timings: TimingsFromConfig(cfg),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.timings.SinkTimeout <= 0 {
		w.timings.SinkTimeout = defaultSinkTimeout
	}
	return w, nil
}

// Role returns the role this worker serves.
func (w *Worker) Role() jobs.Role { return w.role }
