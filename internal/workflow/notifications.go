package workflow

import (
	"context"
	"errors"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/notifications"
)

const lifecycleNotifyTimeout = 10 * time.Second

func (w *Worker) notifyStarted(ctx context.Context) {
	w.publish(context.WithoutCancel(ctx), notifications.EventWorkerStarted, notifications.Payload{
		"role":      string(w.role),
		"worker_id": w.workerID,
	})
}

func (w *Worker) notifyStopped() {
	summary := w.Status()
	w.publish(context.Background(), notifications.EventWorkerStopped, notifications.Payload{
		"role":      string(w.role),
		"worker_id": w.workerID,
		"uptime":    summary.Uptime,
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})
}

func (w *Worker) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if w.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, lifecycleNotifyTimeout)
	defer cancel()
	if err := w.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			w.logger.Debug("worker shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		w.logger.Debug("lifecycle notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
