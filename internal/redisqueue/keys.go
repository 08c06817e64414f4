package redisqueue

import (
	"strconv"
	"strings"
	"time"

	"mediaworker/internal/jobs"
)

type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "mediaworker"
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) job(id string) string { return k.prefix + ":job:" + id }

func (k keyspace) pending(role jobs.Role) string { return k.prefix + ":" + string(role) + ":pending" }

func (k keyspace) delayed(role jobs.Role) string { return k.prefix + ":" + string(role) + ":delayed" }

func (k keyspace) leased(role jobs.Role) string { return k.prefix + ":" + string(role) + ":leased" }

func (k keyspace) dead(role jobs.Role) string { return k.prefix + ":" + string(role) + ":dead" }

const (
	fieldID         = "id"
	fieldMediaRef   = "media_ref"
	fieldRole       = "role"
	fieldStatus     = "status"
	fieldAttempts   = "attempts"
	fieldDeadline   = "deadline"
	fieldEnqueuedAt = "enqueued_at"
	fieldLeaseToken = "lease_token"
	fieldLeaseUntil = "lease_until"
	fieldLastError  = "last_error"
	fieldUpdatedAt  = "updated_at"
)

// Hash status values mirror the SQLite queue.
const (
	statusPending = "pending"
	statusLeased  = "leased"
	statusDone    = "done"
	statusDead    = "dead"
)

func encodeJob(job *jobs.Job, status string) map[string]any {
	fields := map[string]any{
		fieldID:         job.ID,
		fieldMediaRef:   job.MediaRef,
		fieldRole:       string(job.Role),
		fieldStatus:     status,
		fieldAttempts:   job.Attempts,
		fieldEnqueuedAt: formatTime(job.EnqueuedAt),
		fieldUpdatedAt:  formatTime(time.Now()),
		fieldLeaseToken: job.LeaseToken,
		fieldLeaseUntil: formatTime(job.LeaseUntil),
		fieldDeadline:   formatTime(job.Deadline),
	}
	return fields
}

func decodeJob(fields map[string]string) *jobs.Job {
	if len(fields) == 0 {
		return nil
	}
	attempts, _ := strconv.Atoi(fields[fieldAttempts])
	return &jobs.Job{
		ID:         fields[fieldID],
		MediaRef:   fields[fieldMediaRef],
		Role:       jobs.Role(fields[fieldRole]),
		Attempts:   attempts,
		Deadline:   parseTime(fields[fieldDeadline]),
		EnqueuedAt: parseTime(fields[fieldEnqueuedAt]),
		LeaseToken: fields[fieldLeaseToken],
		LeaseUntil: parseTime(fields[fieldLeaseUntil]),
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func score(value time.Time) float64 {
	return float64(value.UnixMilli())
}

func scoreString(value time.Time) string {
	return strconv.FormatInt(value.UnixMilli(), 10)
}
