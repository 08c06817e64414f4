package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediaworker/internal/config"
)

const userAgent = "mediaworker/1.0"

// Event names a notification type.
type Event string

const (
	// EventJobFailed fires when a job is dead-lettered.
	EventJobFailed Event = "job_failed"
	// EventWorkerStarted fires once the worker loop begins fetching.
	EventWorkerStarted Event = "worker_started"
	// EventWorkerStopped fires after the worker loop drains.
	EventWorkerStopped Event = "worker_stopped"
	// EventTest is sent by `mediaworker notify test`.
	EventTest Event = "test"
)

// Payload carries event fields. Known keys per event:
//
//	job_failed:     job_id, role, media_ref, error_kind, error_detail, attempts
//	worker_started: worker_id, role
//	worker_stopped: worker_id, role, processed, failed, uptime
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyRequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		failures:  cfg.Notifications.PermanentFailures,
		lifecycle: cfg.Notifications.WorkerLifecycle,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	failures  bool
	lifecycle bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventJobFailed:
		if !n.failures {
			return nil
		}
	case EventWorkerStarted, EventWorkerStopped:
		if !n.lifecycle {
			return nil
		}
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unsupported notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobFailed:
		body := fmt.Sprintf("❌ %s job %s failed permanently (%s) after %s attempt(s)",
			str(payload, "role"), str(payload, "job_id"), str(payload, "error_kind"), str(payload, "attempts"))
		if ref := str(payload, "media_ref"); ref != "" {
			body += "\nMedia: " + ref
		}
		if detail := str(payload, "error_detail"); detail != "" {
			body += "\n" + detail
		}
		return message{
			title:    "mediaworker - Job Failed",
			body:     body,
			tags:     []string{"mediaworker", "job", "failed", str(payload, "error_kind")},
			priority: "high",
		}, true
	case EventWorkerStarted:
		return message{
			title: "mediaworker - Worker Started",
			body:  fmt.Sprintf("▶️ %s worker %s started", str(payload, "role"), str(payload, "worker_id")),
			tags:  []string{"mediaworker", "worker", "started"},
		}, true
	case EventWorkerStopped:
		return message{
			title: "mediaworker - Worker Stopped",
			body: fmt.Sprintf("⏹️ %s worker %s stopped after %s: %s processed, %s failed",
				str(payload, "role"), str(payload, "worker_id"), str(payload, "uptime"),
				str(payload, "processed"), str(payload, "failed")),
			tags: []string{"mediaworker", "worker", "stopped"},
		}, true
	case EventTest:
		return message{
			title:    "mediaworker - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"mediaworker", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func str(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case time.Duration:
		return v.Round(time.Second).String()
	default:
		return fmt.Sprint(v)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	tags := make([]string, 0, len(msg.tags))
	for _, tag := range msg.tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
