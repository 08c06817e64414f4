package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
)

// startHeartbeat extends the job's lease every heartbeat interval until the
// returned stop function is called. Sources without LeaseExtender, or a
// zero interval, get a no-op.
func (w *Worker) startHeartbeat(ctx context.Context, logger *slog.Logger, job *jobs.Job) func() {
	extender, ok := w.source.(jobs.LeaseExtender)
	if !ok || w.timings.HeartbeatInterval <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		heartbeatLoop(hbCtx, logger, extender, job, w.timings.HeartbeatInterval, w.timings.LeaseTimeout)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func heartbeatLoop(ctx context.Context, logger *slog.Logger, extender jobs.LeaseExtender, job *jobs.Job, interval, lease time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger = logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := extender.ExtendLease(ctx, job, lease)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, jobs.ErrLeaseLost):
				logging.WarnWithContext(logger, "lease lost while job is in flight", "lease_lost",
					logging.String(logging.FieldImpact, "another worker may receive this job; the result store keeps the first result"),
					logging.Error(err),
				)
				return
			default:
				logger.Warn("lease extension failed", logging.Error(err))
			}
		}
	}
}
