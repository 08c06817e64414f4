package workflow

import (
	"context"
	"errors"
	"time"

	"mediaworker/internal/jobs"
	"mediaworker/internal/stage"
)

// StatusSummary is a snapshot of the worker's counters.
type StatusSummary struct {
	Role      jobs.Role
	WorkerID  string
	Running   bool
	Uptime    time.Duration
	Processed int
	Failed    int
	Retried   int
	LastJobID string
	LastError string
}

// Status returns the latest counters. Processed counts every completed
// attempt; Failed counts permanent failures and Retried counts nacks.
func (w *Worker) Status() StatusSummary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	summary := StatusSummary{
		Role:      w.role,
		WorkerID:  w.workerID,
		Running:   w.running,
		Processed: w.processed,
		Failed:    w.failed,
		Retried:   w.retried,
		LastJobID: w.lastJobID,
	}
	if !w.startedAt.IsZero() {
		summary.Uptime = time.Since(w.startedAt)
	}
	if w.lastErr != nil {
		summary.LastError = w.lastErr.Error()
	}
	return summary
}

// Health reports the handler's readiness.
func (w *Worker) Health(ctx context.Context) stage.Health {
	return w.handler.HealthCheck(ctx)
}

func (w *Worker) markRunning() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker already running")
	}
	w.running = true
	w.startedAt = time.Now()
	return nil
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Worker) record(err error, decision jobs.Decision) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processed++
	switch {
	case err == nil:
	case decision.Retry:
		w.retried++
		w.lastErr = err
	default:
		w.failed++
		w.lastErr = err
	}
}

func (w *Worker) setLastError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Worker) setLastJob(id string) {
	w.mu.Lock()
	w.lastJobID = id
	w.mu.Unlock()
}
