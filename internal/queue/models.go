package queue

import (
	"strings"
	"time"

	"mediaworker/internal/jobs"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusPending Status = "pending"
	StatusLeased  Status = "leased"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

var allStatuses = []Status{
	StatusPending,
	StatusLeased,
	StatusDone,
	StatusDead,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a Status if recognised.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// AllStatuses returns a copy of all known queue statuses in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusDead
}

// Item is a row of the jobs table.
type Item struct {
	ID         string
	MediaRef   string
	Role       jobs.Role
	Status     Status
	Attempts   int
	Deadline   *time.Time
	NotBefore  *time.Time
	LeaseOwner string
	LeaseToken string
	LeaseUntil *time.Time
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Job converts the row into the leased job handed to the worker loop.
func (i *Item) Job() *jobs.Job {
	job := &jobs.Job{
		ID:         i.ID,
		MediaRef:   i.MediaRef,
		Role:       i.Role,
		Attempts:   i.Attempts,
		EnqueuedAt: i.CreatedAt,
		LeaseToken: i.LeaseToken,
	}
	if i.Deadline != nil {
		job.Deadline = *i.Deadline
	}
	if i.LeaseUntil != nil {
		job.LeaseUntil = *i.LeaseUntil
	}
	return job
}

// EnqueueRequest describes a new job.
type EnqueueRequest struct {
	// ID is optional; a UUID is generated when empty.
	ID       string
	MediaRef string
	Role     jobs.Role
	Deadline *time.Time
}

// ResultRecord is a persisted JobResult document.
type ResultRecord struct {
	JobID         string
	Role          jobs.Role
	Status        string
	SchemaVersion int
	ErrorKind     string
	Document      []byte
	CreatedAt     time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
