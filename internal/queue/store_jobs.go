package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediaworker/internal/jobs"
)

var (
	_ jobs.Source        = (*Store)(nil)
	_ jobs.LeaseExtender = (*Store)(nil)
)

// ErrDuplicateJob is returned when enqueueing an id that already exists.
var ErrDuplicateJob = errors.New("job already exists")

const (
	defaultPollInterval = 500 * time.Millisecond
	leaseExpiredReason  = "lease expired before acknowledgment"
)

// Enqueue inserts a pending job.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Item, error) {
	candidate := jobs.Job{MediaRef: strings.TrimSpace(req.MediaRef), Role: req.Role}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, media_ref, role, status, attempts, deadline, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		id,
		candidate.MediaRef,
		string(candidate.Role),
		StatusPending,
		nullableTime(req.Deadline),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return item, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)
	ctx = ensureContext(ctx)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FetchNext leases the oldest eligible pending job for role. It polls until
// wait elapses and returns nil, nil when nothing became available.
func (s *Store) FetchNext(ctx context.Context, role jobs.Role, wait time.Duration) (*jobs.Job, error) {
	ctx = ensureContext(ctx)
	if !role.Valid() {
		return nil, fmt.Errorf("fetch next: unsupported role %q", role)
	}
	interval := s.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.Now().Add(wait)
	for {
		item, err := s.claim(ctx, role)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item.Job(), nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Store) claim(ctx context.Context, role jobs.Role) (*Item, error) {
	now := time.Now()
	if _, err := s.ReclaimExpiredLeases(ctx); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	timestamp := formatTime(now)
	leaseUntil := formatTime(now.Add(s.leaseTimeout))

	var claimed *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, lease_owner = ?, lease_token = ?,
                 lease_until = ?, not_before = NULL, updated_at = ?
             WHERE id = (
                 SELECT id FROM jobs
                 WHERE role = ? AND status = ? AND (not_before IS NULL OR not_before <= ?)
                 ORDER BY created_at, id
                 LIMIT 1
             ) AND status = ?
             RETURNING `+jobColumns,
			StatusLeased,
			nullableString(s.owner),
			token,
			leaseUntil,
			timestamp,
			string(role),
			StatusPending,
			timestamp,
			StatusPending,
		)
		item, scanErr := scanItem(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		claimed = item
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

// ReclaimExpiredLeases returns leased jobs whose lease lapsed to pending so
// another worker can pick them up. The attempt count is preserved.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	timestamp := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, lease_owner = NULL, lease_token = NULL, lease_until = NULL,
             last_error = ?, updated_at = ?
         WHERE status = ? AND lease_until IS NOT NULL AND lease_until < ?`,
		StatusPending,
		leaseExpiredReason,
		timestamp,
		StatusLeased,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// Ack marks a leased job terminal. Acknowledging a job that already holds
// the requested terminal status is a no-op.
func (s *Store) Ack(ctx context.Context, job *jobs.Job, disposition jobs.Disposition, reason string) error {
	if job == nil {
		return errors.New("ack: job is nil")
	}
	status := StatusDone
	if disposition == jobs.DispositionDead {
		status = StatusDead
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = ?, lease_owner = NULL, lease_token = NULL,
             lease_until = NULL, not_before = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		status,
		nullableString(reason),
		formatTime(time.Now()),
		job.ID,
		StatusLeased,
		job.LeaseToken,
	)
	if err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	item, err := s.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("ack job %s: not found", job.ID)
	}
	if item.Status == status {
		return nil
	}
	return fmt.Errorf("ack job %s: %w", job.ID, jobs.ErrLeaseLost)
}

// Nack releases a leased job. Retryable failures return it to pending and
// hide it for delay; non-retryable ones dead-letter it.
func (s *Store) Nack(ctx context.Context, job *jobs.Job, retryable bool, delay time.Duration, reason string) error {
	if job == nil {
		return errors.New("nack: job is nil")
	}
	if !retryable {
		return s.Ack(ctx, job, jobs.DispositionDead, reason)
	}
	now := time.Now()
	var notBefore any
	if delay > 0 {
		notBefore = formatTime(now.Add(delay))
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, not_before = ?, last_error = ?, lease_owner = NULL,
             lease_token = NULL, lease_until = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		StatusPending,
		notBefore,
		nullableString(reason),
		formatTime(now),
		job.ID,
		StatusLeased,
		job.LeaseToken,
	)
	if err != nil {
		return fmt.Errorf("nack job %s: %w", job.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("nack job %s: %w", job.ID, jobs.ErrLeaseLost)
	}
	return nil
}

// ExtendLease pushes the lease of an in-flight job forward by lease from now.
func (s *Store) ExtendLease(ctx context.Context, job *jobs.Job, lease time.Duration) error {
	if job == nil {
		return errors.New("extend lease: job is nil")
	}
	until := time.Now().Add(lease)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET lease_until = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_token = ?`,
		formatTime(until),
		formatTime(time.Now()),
		job.ID,
		StatusLeased,
		job.LeaseToken,
	)
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", job.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("extend lease %s: %w", job.ID, jobs.ErrLeaseLost)
	}
	job.LeaseUntil = until
	return nil
}
