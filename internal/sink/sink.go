package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/notifications"
	"mediaworker/internal/results"
	"mediaworker/internal/services"
)

const stageName = "sink"

// Sink persists results and acknowledges jobs on the source.
type Sink struct {
	source     jobs.Source
	store      Store
	publishers []Publisher
	notifier   notifications.Service
	logger     *slog.Logger
}

// New constructs a Sink. notifier may be nil.
func New(source jobs.Source, store Store, publishers []Publisher, notifier notifications.Service, logger *slog.Logger) *Sink {
	return &Sink{
		source:     source,
		store:      store,
		publishers: publishers,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

// Complete finishes a job attempt.
//
// Successes and permanent failures are stored before the job is acked; a
// store error returns without acking. Retryable failures are nacked with
// decision.Delay and nothing is stored.
func (s *Sink) Complete(ctx context.Context, job *jobs.Job, result *results.JobResult, decision jobs.Decision) error {
	if job == nil || result == nil {
		return errors.New("sink: job and result are required")
	}
	logger := logging.WithContext(ctx, s.logger)

	if !result.Succeeded() && decision.Retry {
		reason := failureReason(result)
		if err := s.source.Nack(ctx, job, true, decision.Delay, reason); err != nil {
			return services.Wrap(services.ErrInternal, stageName, "nack", "return job for retry", err)
		}
		logger.Info("job returned for retry",
			logging.String(logging.FieldEventType, "job_retry_scheduled"),
			logging.Int("attempts", job.Attempts),
			logging.Duration("delay", decision.Delay),
			logging.String("error_kind", result.ErrorKind()),
		)
		return nil
	}

	rec, err := NewRecord(result)
	if err != nil {
		return services.Wrap(services.ErrInternal, stageName, "validate", "result failed schema validation", err)
	}
	created, err := s.store.Save(ctx, rec)
	if err != nil {
		logging.ErrorWithContext(logger, "result not persisted; job left leased for redelivery", "result_persist_failed",
			logging.String(logging.FieldErrorHint, "check result store connectivity"),
			logging.Error(err),
		)
		return services.Wrap(services.ErrInternal, stageName, "save", "persist result", err)
	}
	if !created {
		logger.Info("result already stored; keeping existing record",
			logging.String(logging.FieldEventType, "result_duplicate"),
		)
	}

	if !result.Succeeded() {
		s.notifyFailure(ctx, logger, job, result)
	}
	s.publish(ctx, logger, rec)

	disposition, reason := jobs.DispositionDone, ""
	if !result.Succeeded() {
		disposition, reason = jobs.DispositionDead, failureReason(result)
	}
	if err := s.source.Ack(ctx, job, disposition, reason); err != nil {
		if errors.Is(err, jobs.ErrLeaseLost) {
			logging.WarnWithContext(logger, "lease lost before ack; result is stored and the redelivery will find it", "ack_lease_lost",
				logging.Error(err),
			)
		}
		return services.Wrap(services.ErrInternal, stageName, "ack", "acknowledge job", err)
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("status", string(result.Status)),
		logging.String("disposition", string(disposition)),
		logging.Bool("stored", created),
	)
	return nil
}

func (s *Sink) publish(ctx context.Context, logger *slog.Logger, rec Record) {
	for _, pub := range s.publishers {
		if err := pub.Publish(ctx, rec); err != nil {
			logging.WarnWithContext(logger, "result publish failed", "result_publish_failed",
				logging.String("publisher", pub.Name()),
				logging.String(logging.FieldImpact, "downstream consumers miss this result; it remains in the store"),
				logging.Error(err),
			)
		}
	}
}

func (s *Sink) notifyFailure(ctx context.Context, logger *slog.Logger, job *jobs.Job, result *results.JobResult) {
	if s.notifier == nil {
		return
	}
	detail := ""
	if result.Error != nil {
		detail = result.Error.Detail
	}
	err := s.notifier.Publish(ctx, notifications.EventJobFailed, notifications.Payload{
		"job_id":       job.ID,
		"role":         string(job.Role),
		"media_ref":    job.MediaRef,
		"error_kind":   result.ErrorKind(),
		"error_detail": detail,
		"attempts":     job.Attempts,
	})
	if err != nil {
		logger.Debug("failure notification not sent", logging.Error(err))
	}
}

func failureReason(result *results.JobResult) string {
	if result.Error == nil {
		return ""
	}
	if result.Error.Detail == "" {
		return result.Error.Kind
	}
	return fmt.Sprintf("%s: %s", result.Error.Kind, result.Error.Detail)
}
