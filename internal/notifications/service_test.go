package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/notifications"
)

type captured struct {
	title, tags, priority, body string
}

func newNtfy(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"job_id": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, seen := newNtfy(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.WorkerLifecycle = true
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.Publish(ctx, notifications.EventJobFailed, notifications.Payload{
		"job_id":       "job-7",
		"role":         "vision",
		"media_ref":    "/media/clip.mp4",
		"error_kind":   "decode",
		"error_detail": "moov atom not found",
		"attempts":     1,
	}); err != nil {
		t.Fatalf("publish job failed: %v", err)
	}
	if err := svc.Publish(ctx, notifications.EventWorkerStopped, notifications.Payload{
		"worker_id": "w1", "role": "transcribe", "processed": 4, "failed": 1, "uptime": 90*time.Second + 400*time.Millisecond,
	}); err != nil {
		t.Fatalf("publish worker stopped: %v", err)
	}

	got := seen()
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	failed := got[0]
	if failed.title != "mediaworker - Job Failed" || failed.priority != "high" {
		t.Fatalf("unexpected headers %+v", failed)
	}
	if failed.tags != "mediaworker,job,failed,decode" {
		t.Fatalf("unexpected tags %q", failed.tags)
	}
	for _, want := range []string{"vision job job-7", "(decode)", "1 attempt", "/media/clip.mp4", "moov atom not found"} {
		if !strings.Contains(failed.body, want) {
			t.Fatalf("expected %q in body %q", want, failed.body)
		}
	}
	if !strings.Contains(got[1].body, "stopped after 1m30s: 4 processed, 1 failed") {
		t.Fatalf("unexpected stop body %q", got[1].body)
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	srv, seen := newNtfy(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.PermanentFailures = false
	cfg.Notifications.WorkerLifecycle = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	_ = svc.Publish(ctx, notifications.EventJobFailed, notifications.Payload{})
	_ = svc.Publish(ctx, notifications.EventWorkerStarted, notifications.Payload{})
	if err := svc.Publish(ctx, notifications.EventTest, nil); err != nil {
		t.Fatalf("test event: %v", err)
	}
	got := seen()
	if len(got) != 1 || got[0].title != "mediaworker - Test" {
		t.Fatalf("expected only the test event, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event("bogus"), nil); err == nil {
		t.Fatal("expected unsupported event error")
	}
}
