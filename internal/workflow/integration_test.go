package workflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/queue"
	"mediaworker/internal/results"
	"mediaworker/internal/sink"
	"mediaworker/internal/testsupport"
	"mediaworker/internal/vision"
)

func TestVisionWorkerAgainstSQLiteQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithResultStore(config.StoreSQLite),
		testsupport.WithFakeFFmpeg("exit 0"),
	)
	cfg.Decode.FFprobeBinary = testsupport.WriteScript(t, t.TempDir(), "ffprobe", "echo 'moov atom not found' >&2; exit 1")
	db := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	corrupt := filepath.Join(testsupport.BaseDir(cfg), "corrupt.mp4")
	testsupport.WriteFile(t, corrupt, 64)
	missing := testsupport.Enqueue(t, db, jobs.RoleVision, filepath.Join(testsupport.BaseDir(cfg), "missing.mp4"))
	bad := testsupport.Enqueue(t, db, jobs.RoleVision, corrupt)

	store, err := sink.OpenStore(ctx, cfg, db, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	pipeline, err := vision.NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer pipeline.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recorder := &recordingSink{want: 2, cancel: cancel, next: sink.New(db, store, nil, nil, logging.NewNop())}
	w, err := NewWorker(cfg, jobs.RoleVision, db, pipeline, recorder, logging.NewNop(), WithTimings(fastTimings()))
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(runCtx) }()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not finish")
	}

	// Unreachable reference: nacked for redelivery, no failure record.
	item, err := db.GetByID(ctx, missing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item.Status != queue.StatusPending || item.Attempts != 1 || item.NotBefore == nil {
		t.Fatalf("expected missing media to be pending with backoff, got %+v", item)
	}
	if !strings.HasPrefix(item.LastError, "fetch") {
		t.Fatalf("unexpected last error %q", item.LastError)
	}
	if doc, err := store.Load(ctx, missing.ID); err != nil || doc != nil {
		t.Fatalf("retryable failure must not be stored: %s %v", doc, err)
	}

	// Corrupt media: dead on the first attempt with a persisted failure.
	item, err = db.GetByID(ctx, bad.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item.Status != queue.StatusDead || item.Attempts != 1 {
		t.Fatalf("expected corrupt media dead after one attempt, got %+v", item)
	}
	doc, err := store.Load(ctx, bad.ID)
	if err != nil || doc == nil {
		t.Fatalf("expected stored failure record: %v", err)
	}
	res, err := results.Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if res.Status != results.StatusFailure || res.ErrorKind() != "decode" || res.WorkerID != cfg.Worker.ID {
		t.Fatalf("unexpected failure record %+v", res)
	}
	assertWorkDirEmpty(t, cfg.Paths.WorkDir)
}
