package stage

import (
	"context"

	"mediaworker/internal/jobs"
	"mediaworker/internal/results"
)

// Output is what a role pipeline produces for one job. Exactly one of
// Analysis or Transcript is set, matching the handler's role.
type Output struct {
	Media      *results.MediaInfo
	Analysis   *results.Analysis
	Transcript *results.Transcript
}

// Handler describes the contract the worker loop needs from a role pipeline.
// Process owns every resource it opens and releases them before returning;
// workDir is a job-scoped scratch directory the caller removes. Job fields
// for logging travel on ctx; one handler may serve overlapping calls when an
// abandoned attempt is still unwinding.
type Handler interface {
	Role() jobs.Role
	Process(ctx context.Context, job *jobs.Job, workDir string) (Output, error)
	HealthCheck(ctx context.Context) Health
	Close() error
}
