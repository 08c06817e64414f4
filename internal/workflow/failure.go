package workflow

import (
	"log/slog"
	"strings"
	"time"

	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/results"
	"mediaworker/internal/services"
	"mediaworker/internal/stage"
)

// buildResult converts an attempt's outcome into a result document.
func (w *Worker) buildResult(job *jobs.Job, out stage.Output, err error) *results.JobResult {
	result := &results.JobResult{
		SchemaVersion: results.SchemaVersion,
		JobID:         job.ID,
		Role:          string(w.role),
		Attempts:      job.Attempts,
		MediaRef:      job.MediaRef,
		WorkerID:      w.workerID,
		CompletedAt:   time.Now().UTC(),
		Media:         out.Media,
	}
	if err == nil {
		result.Status = results.StatusSuccess
		result.Analysis = out.Analysis
		result.Transcript = out.Transcript
		return result
	}
	result.Status = results.StatusFailure
	result.Error = &results.ErrorInfo{
		Kind:   string(services.KindOf(err)),
		Detail: failureDetail(err),
	}
	return result
}

func failureDetail(err error) string {
	detail := strings.TrimSpace(err.Error())
	if detail == "" {
		return "failed without error detail"
	}
	return detail
}

func (w *Worker) logFailure(logger *slog.Logger, job *jobs.Job, err error, decision jobs.Decision) {
	attrs := []logging.Attr{
		logging.ErrorKind(err),
		logging.Int("attempts", job.Attempts),
		logging.Int("max_attempts", w.policy.MaxAttempts),
		logging.Error(err),
	}
	if decision.Retry {
		attrs = append(attrs,
			logging.Duration("retry_delay", decision.Delay),
			logging.String(logging.FieldImpact, "job will be redelivered"),
		)
		logging.WarnWithContext(logger, "job attempt failed", "job_attempt_failed", attrs...)
		return
	}
	attrs = append(attrs,
		logging.Alert("job_failed"),
		logging.String(logging.FieldImpact, "job is dead-lettered with a failure record"),
		logging.String(logging.FieldErrorHint, failureHint(services.KindOf(err))),
	)
	logging.ErrorWithContext(logger, "job failed permanently", "job_failed", attrs...)
}

func failureHint(kind services.Kind) string {
	switch kind {
	case services.KindFetch:
		return "check that the media reference is reachable"
	case services.KindDecode:
		return "the media container or codec is unreadable"
	case services.KindAudioFormat:
		return "the media has no usable audio stream"
	case services.KindQuality:
		return "too many frames failed analysis"
	case services.KindInference:
		return "check the inference engine and model"
	case services.KindTimeout:
		return "raise workflow.job_timeout or check for stuck stages"
	case services.KindConfiguration:
		return "fix the worker configuration and re-enqueue"
	default:
		return "see the error detail in the failure record"
	}
}
