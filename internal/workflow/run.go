package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
	"mediaworker/internal/stage"
	"mediaworker/internal/textutil"
)

const stageName = "workflow"

// Run processes jobs until ctx is cancelled. It returns nil after a clean
// shutdown; the job in flight when ctx ends is finished or aborted and
// completed before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.markRunning(); err != nil {
		return err
	}
	defer w.markStopped()

	w.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.String("worker_id", w.workerID),
		logging.Duration("job_timeout", w.timings.JobTimeout),
		logging.Int("max_attempts", w.policy.MaxAttempts),
	)
	w.notifyStarted(ctx)
	defer w.notifyStopped()

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping", logging.String(logging.FieldEventType, "worker_stopping"))
			return nil
		}
		job, err := w.source.FetchNext(ctx, w.role, w.timings.FetchWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.handleFetchError(ctx, err)
			continue
		}
		if job == nil {
			continue
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) handleFetchError(ctx context.Context, err error) {
	w.setLastError(err)
	w.logger.Error("failed to fetch next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check job source connectivity"),
	)
	timer := time.NewTimer(w.timings.ErrorRetryInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processJob runs one attempt and hands the outcome to the sink. The job's
// own context is detached from runCtx so shutdown cannot skip the sink.
func (w *Worker) processJob(runCtx context.Context, job *jobs.Job) {
	started := time.Now()
	base := context.WithoutCancel(runCtx)
	base = services.WithJobID(base, job.ID)
	base = services.WithRole(base, string(w.role))
	base = services.WithRequestID(base, uuid.NewString())
	logger := logging.WithContext(base, w.logger)
	w.setLastJob(job.ID)

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("media_ref", job.MediaRef),
		logging.Int("attempts", job.Attempts),
	)

	out, err := w.execute(runCtx, base, logger, job)
	result := w.buildResult(job, out, err)
	decision := w.policy.Decide(err, job.Attempts)
	if err != nil {
		w.logFailure(logger, job, err, decision)
	}

	sinkCtx, cancel := context.WithTimeout(base, w.timings.SinkTimeout)
	defer cancel()
	if sinkErr := w.sink.Complete(sinkCtx, job, result, decision); sinkErr != nil {
		w.setLastError(sinkErr)
		logging.ErrorWithContext(logger, "job completion failed; lease will lapse and the job will be redelivered", "job_complete_failed",
			logging.String(logging.FieldErrorHint, "check result store and job source connectivity"),
			logging.Error(sinkErr),
		)
		return
	}
	w.record(err, decision)
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("status", string(result.Status)),
		logging.Bool("retry", decision.Retry),
		logging.Duration("elapsed", time.Since(started)),
	)
}

type outcome struct {
	out stage.Output
	err error
}

// execute runs the handler under the job deadline. The pipeline runs in its
// own goroutine so a panic or a stage that ignores cancellation cannot stall
// the loop.
func (w *Worker) execute(runCtx, base context.Context, logger *slog.Logger, job *jobs.Job) (stage.Output, error) {
	if w.policy.MaxAttempts > 0 && job.Attempts > w.policy.MaxAttempts {
		return stage.Output{}, services.Wrap(services.ErrTimeout, stageName, "lease",
			fmt.Sprintf("previous attempt abandoned (delivery %d of %d)", job.Attempts, w.policy.MaxAttempts), nil)
	}

	workDir, err := os.MkdirTemp(w.workRoot, "job-"+textutil.SanitizeToken(job.ID)+"-")
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrInternal, stageName, "workdir", "create job directory", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("job directory cleanup failed", logging.String("path", workDir), logging.Error(err))
		}
	}()

	deadline := time.Now().Add(w.timings.JobTimeout)
	if job.HasDeadline() && job.Deadline.Before(deadline) {
		deadline = job.Deadline
	}
	jobCtx, cancel := context.WithDeadline(base, deadline)
	defer cancel()

	var shuttingDown bool
	var shutdownMu sync.Mutex
	go func() {
		select {
		case <-jobCtx.Done():
			return
		case <-runCtx.Done():
		}
		shutdownMu.Lock()
		shuttingDown = true
		shutdownMu.Unlock()
		logger.Info("shutdown requested; in-flight job has a grace period",
			logging.String(logging.FieldEventType, "job_shutdown_grace"),
			logging.Duration("grace", w.timings.ShutdownGrace),
		)
		timer := time.NewTimer(w.timings.ShutdownGrace)
		defer timer.Stop()
		select {
		case <-jobCtx.Done():
		case <-timer.C:
			cancel()
		}
	}()

	stopHeartbeat := w.startHeartbeat(jobCtx, logger, job)
	defer stopHeartbeat()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("pipeline panicked",
					logging.String(logging.FieldEventType, "job_panic"),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				done <- outcome{err: services.Wrap(services.ErrInternal, stageName, "process", fmt.Sprintf("panic: %v", r), nil)}
			}
		}()
		out, err := w.handler.Process(jobCtx, job, workDir)
		done <- outcome{out: out, err: err}
	}()

	abandon := time.NewTimer(time.Until(deadline) + w.timings.ShutdownGrace)
	defer abandon.Stop()

	select {
	case res := <-done:
		if res.err == nil {
			return res.out, w.checkPayload(res.out)
		}
		shutdownMu.Lock()
		interrupted := shuttingDown
		shutdownMu.Unlock()
		return res.out, classifyContext(jobCtx, interrupted, res.err)
	case <-abandon.C:
		logging.WarnWithContext(logger, "pipeline did not stop after its deadline; abandoning it", "job_abandoned",
			logging.String(logging.FieldImpact, "the pipeline goroutine may still hold resources until it returns"),
			logging.Duration("grace", w.timings.ShutdownGrace),
		)
		return stage.Output{}, services.Wrap(services.ErrTimeout, stageName, "process",
			fmt.Sprintf("pipeline abandoned %s after its deadline", w.timings.ShutdownGrace), nil)
	}
}

// classifyContext maps errors caused by the job context ending onto the
// timeout kind. Other errors keep their classification.
func classifyContext(jobCtx context.Context, interrupted bool, err error) error {
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		if services.KindOf(err) == services.KindTimeout {
			return err
		}
		return services.Wrap(services.ErrTimeout, stageName, "deadline", "job deadline exceeded", err)
	case interrupted && jobCtx.Err() != nil:
		return services.Wrap(services.ErrTimeout, stageName, "shutdown", "aborted after shutdown grace", err)
	default:
		return err
	}
}

func (w *Worker) checkPayload(out stage.Output) error {
	switch w.role {
	case jobs.RoleVision:
		if out.Analysis == nil {
			return services.Wrap(services.ErrInternal, stageName, "result", "vision pipeline returned no analysis", nil)
		}
	case jobs.RoleTranscribe:
		if out.Transcript == nil {
			return services.Wrap(services.ErrInternal, stageName, "result", "transcribe pipeline returned no transcript", nil)
		}
	}
	return nil
}
