package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
)

var (
	_ jobs.Source        = (*Queue)(nil)
	_ jobs.LeaseExtender = (*Queue)(nil)
)

// ErrDuplicateJob is returned when enqueueing an id that already exists.
var ErrDuplicateJob = errors.New("job already exists")

const (
	defaultPollInterval = 500 * time.Millisecond
	txRetries           = 5
	leaseExpiredReason  = "lease expired before acknowledgment"
)

// Options tunes a Queue.
type Options struct {
	Prefix       string
	LeaseTimeout time.Duration
	PollInterval time.Duration
}

// Queue is a Redis-backed job source. Each role has a pending list, a
// delayed sorted set scored by ready time, a leased sorted set scored by
// lease expiry, and a dead sorted set. Job fields live in one hash per job.
// State moves use WATCH plus MULTI/EXEC so they stay atomic without scripts.
type Queue struct {
	client       *redis.Client
	keys         keyspace
	leaseTimeout time.Duration
	pollInterval time.Duration
}

// New wraps an existing client.
func New(client *redis.Client, opts Options) *Queue {
	lease := opts.LeaseTimeout
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Queue{
		client:       client,
		keys:         newKeyspace(opts.Prefix),
		leaseTimeout: lease,
		pollInterval: poll,
	}
}

// Open connects using the source section of cfg.
func Open(ctx context.Context, cfg *config.Config) (*Queue, error) {
	client, err := Connect(ctx, cfg.Source.RedisURL)
	if err != nil {
		return nil, err
	}
	return New(client, Options{
		Prefix:       cfg.Source.RedisPrefix,
		LeaseTimeout: cfg.LeaseTimeout(),
		PollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
	}), nil
}

// Close releases the client.
func (q *Queue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

// Enqueue stores the job hash and appends it to the role's pending list.
func (q *Queue) Enqueue(ctx context.Context, mediaRef string, role jobs.Role, deadline time.Time) (*jobs.Job, error) {
	job := &jobs.Job{
		ID:         uuid.NewString(),
		MediaRef:   strings.TrimSpace(mediaRef),
		Role:       role,
		Deadline:   deadline,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, q.put(ctx, job)
}

func (q *Queue) put(ctx context.Context, job *jobs.Job) error {
	key := q.keys.job(job.ID)
	return q.withTx(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, encodeJob(job, statusPending))
			p.RPush(ctx, q.keys.pending(job.Role), job.ID)
			return nil
		})
		return err
	}, key)
}

// FetchNext leases the head of the role's pending list, polling until wait
// elapses. Due delayed jobs and expired leases are moved back to pending first.
func (q *Queue) FetchNext(ctx context.Context, role jobs.Role, wait time.Duration) (*jobs.Job, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("fetch next: unsupported role %q", role)
	}
	deadline := time.Now().Add(wait)
	for {
		job, err := q.claim(ctx, role)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(q.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context, role jobs.Role) (*jobs.Job, error) {
	now := time.Now()
	if err := q.promoteDelayed(ctx, role, now); err != nil {
		return nil, err
	}
	if err := q.reclaimExpired(ctx, role, now); err != nil {
		return nil, err
	}

	pending := q.keys.pending(role)
	var claimedID string
	token := uuid.NewString()
	leaseUntil := now.Add(q.leaseTimeout)
	err := q.withTx(ctx, func(tx *redis.Tx) error {
		id, err := tx.LIndex(ctx, pending, 0).Result()
		if errors.Is(err, redis.Nil) {
			claimedID = ""
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LPop(ctx, pending)
			p.ZAdd(ctx, q.keys.leased(role), redis.Z{Score: score(leaseUntil), Member: id})
			p.HSet(ctx, q.keys.job(id),
				fieldStatus, statusLeased,
				fieldLeaseToken, token,
				fieldLeaseUntil, formatTime(leaseUntil),
				fieldUpdatedAt, formatTime(now),
			)
			p.HIncrBy(ctx, q.keys.job(id), fieldAttempts, 1)
			return nil
		})
		if err == nil {
			claimedID = id
		}
		return err
	}, pending)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if claimedID == "" {
		return nil, nil
	}
	fields, err := q.client.HGetAll(ctx, q.keys.job(claimedID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", claimedID, err)
	}
	job := decodeJob(fields)
	if job == nil {
		return nil, fmt.Errorf("load job %s: hash missing", claimedID)
	}
	return job, nil
}

func (q *Queue) promoteDelayed(ctx context.Context, role jobs.Role, now time.Time) error {
	delayed := q.keys.delayed(role)
	return q.moveDue(ctx, delayed, now, func(p redis.Pipeliner, ids []any) {
		p.RPush(ctx, q.keys.pending(role), ids...)
	})
}

func (q *Queue) reclaimExpired(ctx context.Context, role jobs.Role, now time.Time) error {
	leased := q.keys.leased(role)
	return q.moveDue(ctx, leased, now, func(p redis.Pipeliner, ids []any) {
		for _, id := range ids {
			p.HSet(ctx, q.keys.job(id.(string)),
				fieldStatus, statusPending,
				fieldLeaseToken, "",
				fieldLeaseUntil, "",
				fieldLastError, leaseExpiredReason,
			)
		}
		p.RPush(ctx, q.keys.pending(role), ids...)
	})
}

// moveDue removes members of set scored at or before now and lets fn
// re-home them inside the same transaction.
func (q *Queue) moveDue(ctx context.Context, set string, now time.Time, fn func(redis.Pipeliner, []any)) error {
	err := q.withTx(ctx, func(tx *redis.Tx) error {
		due, err := tx.ZRangeByScore(ctx, set, &redis.ZRangeBy{Min: "-inf", Max: scoreString(now)}).Result()
		if err != nil || len(due) == 0 {
			return err
		}
		ids := make([]any, len(due))
		for i, id := range due {
			ids[i] = id
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, set, ids...)
			fn(p, ids)
			return nil
		})
		return err
	}, set)
	if err != nil {
		return fmt.Errorf("move due members of %s: %w", set, err)
	}
	return nil
}

// Ack marks a leased job terminal. Repeating an ack with the same
// disposition is a no-op.
func (q *Queue) Ack(ctx context.Context, job *jobs.Job, disposition jobs.Disposition, reason string) error {
	if job == nil {
		return errors.New("ack: job is nil")
	}
	status := statusDone
	if disposition == jobs.DispositionDead {
		status = statusDead
	}
	now := time.Now()
	return q.withLease(ctx, job, status, func(p redis.Pipeliner) {
		p.ZRem(ctx, q.keys.leased(job.Role), job.ID)
		if status == statusDead {
			p.ZAdd(ctx, q.keys.dead(job.Role), redis.Z{Score: score(now), Member: job.ID})
		}
		p.HSet(ctx, q.keys.job(job.ID),
			fieldStatus, status,
			fieldLeaseToken, "",
			fieldLeaseUntil, "",
			fieldLastError, reason,
			fieldUpdatedAt, formatTime(now),
		)
	})
}

// Nack releases a leased job for redelivery after delay, or dead-letters it
// when retryable is false.
func (q *Queue) Nack(ctx context.Context, job *jobs.Job, retryable bool, delay time.Duration, reason string) error {
	if job == nil {
		return errors.New("nack: job is nil")
	}
	if !retryable {
		return q.Ack(ctx, job, jobs.DispositionDead, reason)
	}
	now := time.Now()
	return q.withLease(ctx, job, "", func(p redis.Pipeliner) {
		p.ZRem(ctx, q.keys.leased(job.Role), job.ID)
		if delay > 0 {
			p.ZAdd(ctx, q.keys.delayed(job.Role), redis.Z{Score: score(now.Add(delay)), Member: job.ID})
		} else {
			p.RPush(ctx, q.keys.pending(job.Role), job.ID)
		}
		p.HSet(ctx, q.keys.job(job.ID),
			fieldStatus, statusPending,
			fieldLeaseToken, "",
			fieldLeaseUntil, "",
			fieldLastError, reason,
			fieldUpdatedAt, formatTime(now),
		)
	})
}

// ExtendLease pushes the lease expiry of an in-flight job forward.
func (q *Queue) ExtendLease(ctx context.Context, job *jobs.Job, lease time.Duration) error {
	if job == nil {
		return errors.New("extend lease: job is nil")
	}
	until := time.Now().Add(lease)
	if err := q.withLease(ctx, job, "", func(p redis.Pipeliner) {
		p.ZAdd(ctx, q.keys.leased(job.Role), redis.Z{Score: score(until), Member: job.ID})
		p.HSet(ctx, q.keys.job(job.ID), fieldLeaseUntil, formatTime(until))
	}); err != nil {
		return err
	}
	job.LeaseUntil = until
	return nil
}

// withLease runs fn transactionally when job still holds its lease. When the
// lease is gone but the hash already carries settledStatus, it returns nil.
func (q *Queue) withLease(ctx context.Context, job *jobs.Job, settledStatus string, fn func(redis.Pipeliner)) error {
	key := q.keys.job(job.ID)
	return q.withTx(ctx, func(tx *redis.Tx) error {
		values, err := tx.HMGet(ctx, key, fieldLeaseToken, fieldStatus).Result()
		if err != nil {
			return err
		}
		token, _ := values[0].(string)
		status, _ := values[1].(string)
		if values[1] == nil {
			return fmt.Errorf("job %s: not found", job.ID)
		}
		if status != statusLeased || token != job.LeaseToken {
			if settledStatus != "" && status == settledStatus {
				return nil
			}
			return fmt.Errorf("job %s: %w", job.ID, jobs.ErrLeaseLost)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			fn(p)
			return nil
		})
		return err
	}, key)
}

// withTx runs an optimistic transaction, retrying when a watched key changed.
func (q *Queue) withTx(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = q.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Stats reports queue depth per state for role.
func (q *Queue) Stats(ctx context.Context, role jobs.Role) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.keys.pending(role))
	delayed := pipe.ZCard(ctx, q.keys.delayed(role))
	leased := pipe.ZCard(ctx, q.keys.leased(role))
	dead := pipe.ZCard(ctx, q.keys.dead(role))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis queue stats: %w", err)
	}
	return map[string]int64{
		statusPending: pending.Val() + delayed.Val(),
		statusLeased:  leased.Val(),
		statusDead:    dead.Val(),
	}, nil
}
