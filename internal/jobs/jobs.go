package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role selects which pipeline a worker process runs.
type Role string

const (
	RoleVision     Role = "vision"
	RoleTranscribe Role = "transcribe"
)

// ParseRole normalizes and validates a role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q (expected %q or %q)", value, RoleVision, RoleTranscribe)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleVision || r == RoleTranscribe
}

func (r Role) String() string { return string(r) }

// Job is one unit of media work handed out by a Source under a lease.
type Job struct {
	ID       string
	MediaRef string
	Role     Role
	// Attempts counts deliveries including the current one.
	Attempts   int
	Deadline   time.Time
	EnqueuedAt time.Time
	LeaseToken string
	LeaseUntil time.Time
}

// HasDeadline reports whether the job carries its own absolute deadline.
func (j *Job) HasDeadline() bool {
	return j != nil && !j.Deadline.IsZero()
}

// Disposition is the terminal state a job is acknowledged with.
type Disposition string

const (
	// DispositionDone marks a job whose result was persisted.
	DispositionDone Disposition = "done"
	// DispositionDead marks a permanently failed job whose failure record was persisted.
	DispositionDead Disposition = "dead"
)

// ErrLeaseLost is returned when a job's lease expired and was reclaimed
// before the holder acknowledged it.
var ErrLeaseLost = errors.New("job lease lost")

// Source supplies jobs for a role and accepts their acknowledgments.
//
// FetchNext blocks for at most wait and returns nil, nil when no job is
// available. Ack removes the job from the active pool; Nack either returns
// it for redelivery after delay or, when retryable is false, dead-letters it.
type Source interface {
	FetchNext(ctx context.Context, role Role, wait time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job, disposition Disposition, reason string) error
	Nack(ctx context.Context, job *Job, retryable bool, delay time.Duration, reason string) error
	Close() error
}

// LeaseExtender is implemented by sources whose leases can be renewed while
// a job is still in flight.
type LeaseExtender interface {
	ExtendLease(ctx context.Context, job *Job, lease time.Duration) error
}

// Validate checks the fields required to enqueue a job.
func (j *Job) Validate() error {
	if j == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(j.MediaRef) == "" {
		return errors.New("job media reference is required")
	}
	if !j.Role.Valid() {
		return fmt.Errorf("job role %q is not supported", j.Role)
	}
	return nil
}

// Decision is the retry verdict for a failed attempt. Retry false means
// the failure is permanent and the job is dead-lettered.
type Decision struct {
	Retry bool
	Delay time.Duration
}
