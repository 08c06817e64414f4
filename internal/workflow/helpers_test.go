package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/results"
	"mediaworker/internal/stage"
	"mediaworker/internal/testsupport"
)

// memorySource hands out queued jobs in order and waits out the fetch
// budget when empty.
type memorySource struct {
	mu       sync.Mutex
	pending  []*jobs.Job
	fetchErr []error
	extends  int
}

func newMemorySource(js ...*jobs.Job) *memorySource {
	return &memorySource{pending: js}
}

func (s *memorySource) FetchNext(ctx context.Context, _ jobs.Role, wait time.Duration) (*jobs.Job, error) {
	s.mu.Lock()
	if len(s.fetchErr) > 0 {
		err := s.fetchErr[0]
		s.fetchErr = s.fetchErr[1:]
		s.mu.Unlock()
		return nil, err
	}
	if len(s.pending) > 0 {
		job := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		return job, nil
	}
	s.mu.Unlock()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	}
}

func (s *memorySource) Ack(context.Context, *jobs.Job, jobs.Disposition, string) error { return nil }

func (s *memorySource) Nack(context.Context, *jobs.Job, bool, time.Duration, string) error {
	return nil
}

func (s *memorySource) Close() error { return nil }

func (s *memorySource) ExtendLease(_ context.Context, job *jobs.Job, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extends++
	job.LeaseUntil = time.Now().Add(lease)
	return nil
}

func (s *memorySource) extendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extends
}

type completion struct {
	job      *jobs.Job
	result   *results.JobResult
	decision jobs.Decision
}

// recordingSink captures completions and cancels the run once it has seen
// want of them.
type recordingSink struct {
	mu     sync.Mutex
	done   []completion
	want   int
	cancel context.CancelFunc
	next   Completer
}

func (s *recordingSink) Complete(ctx context.Context, job *jobs.Job, result *results.JobResult, decision jobs.Decision) error {
	if s.next != nil {
		if err := s.next.Complete(ctx, job, result, decision); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, completion{job: job, result: result, decision: decision})
	if len(s.done) >= s.want && s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *recordingSink) completions() []completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]completion(nil), s.done...)
}

type handlerFunc func(ctx context.Context, job *jobs.Job, workDir string) (stage.Output, error)

type fakeHandler struct {
	role jobs.Role
	fn   handlerFunc
}

func (h *fakeHandler) Role() jobs.Role { return h.role }

func (h *fakeHandler) Process(ctx context.Context, job *jobs.Job, workDir string) (stage.Output, error) {
	return h.fn(ctx, job, workDir)
}

func (h *fakeHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(string(h.role)) }

func (h *fakeHandler) Close() error { return nil }

func visionHandler(fn handlerFunc) *fakeHandler {
	return &fakeHandler{role: jobs.RoleVision, fn: fn}
}

func analysisOutput() stage.Output {
	return stage.Output{
		Media: &results.MediaInfo{Container: "mp4", DurationSeconds: 10},
		Analysis: &results.Analysis{
			Analyzer: "luma",
			Frames:   []results.FrameFinding{{Index: 0, Metrics: map[string]float64{"luma": 10}}},
			Summary:  results.AnalysisSummary{Frames: 1},
		},
	}
}

func fastTimings() Timings {
	return Timings{
		FetchWait:          10 * time.Millisecond,
		ErrorRetryInterval: 10 * time.Millisecond,
		JobTimeout:         5 * time.Second,
		ShutdownGrace:      50 * time.Millisecond,
		HeartbeatInterval:  10 * time.Millisecond,
		LeaseTimeout:       time.Minute,
		SinkTimeout:        time.Second,
	}
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg
}

// runWorker runs w until the sink has seen want completions or the test
// budget expires, and returns the completions.
func runWorker(t *testing.T, cfg *config.Config, source jobs.Source, handler stage.Handler, want int, timings Timings) ([]completion, *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{want: want, cancel: cancel}
	w, err := NewWorker(cfg, handler.Role(), source, handler, sink, nil, WithTimings(timings), WithRetryPolicy(testPolicy()))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not finish in time")
	}
	return sink.completions(), w
}
