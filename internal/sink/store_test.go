package sink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"mediaworker/internal/results"
)

func transcriptSuccess(id string) *results.JobResult {
	return &results.JobResult{
		JobID:    id,
		Role:     "transcribe",
		Status:   results.StatusSuccess,
		Attempts: 1,
		MediaRef: "/media/" + id + ".wav",
		Transcript: &results.Transcript{
			Engine: "whisperx",
			Chunks: 1,
			Segments: []results.Segment{
				{Start: 0, End: 1.5, Text: "Hello.", Confidence: 0.9},
			},
		},
	}
}

func TestFileStoreWritesDocumentAndTranscript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	rec, err := NewRecord(transcriptSuccess("Job/42"))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	created, err := store.Save(context.Background(), rec)
	if err != nil || !created {
		t.Fatalf("Save: created=%v err=%v", created, err)
	}
	if base := filepath.Base(store.DocumentPath("Job/42")); !strings.HasPrefix(base, "job_42-") || !strings.HasSuffix(base, ".json") {
		t.Fatalf("unexpected document path %s", store.DocumentPath("Job/42"))
	}
	srt, err := os.ReadFile(store.TranscriptPath("Job/42"))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if !strings.Contains(string(srt), "00:00:00,000 --> 00:00:01,500\nHello.") {
		t.Fatalf("unexpected srt %q", srt)
	}
	doc, err := store.Load(context.Background(), "Job/42")
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := results.Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.JobID != "Job/42" || decoded.Transcript == nil {
		t.Fatalf("unexpected stored document %+v", decoded)
	}
	missing, err := store.Load(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing record, got %q (%v)", missing, err)
	}
}

func TestFileStoreKeepsExistingRecord(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	first, err := NewRecord(failure("dup", "decode", "first"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewRecord(failure("dup", "decode", "second"))
	if err != nil {
		t.Fatal(err)
	}
	if created, err := store.Save(ctx, first); err != nil || !created {
		t.Fatalf("first save: %v %v", created, err)
	}
	if created, err := store.Save(ctx, second); err != nil || created {
		t.Fatalf("second save should be a no-op: %v %v", created, err)
	}
	doc, _ := store.Load(ctx, "dup")
	if !strings.Contains(string(doc), `"first"`) {
		t.Fatalf("expected first record to be kept: %s", doc)
	}
}

func TestFileStoreSeparatesIDsThatSanitizeAlike(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	ids := []string{"Job-A", "job-a", "job.a", "job_a"}
	for _, id := range ids {
		rec, err := NewRecord(failure(id, "decode", "detail for "+id))
		if err != nil {
			t.Fatalf("NewRecord(%s): %v", id, err)
		}
		created, err := store.Save(ctx, rec)
		if err != nil || !created {
			t.Fatalf("Save(%s): created=%v err=%v", id, created, err)
		}
	}
	for _, id := range ids {
		doc, err := store.Load(ctx, id)
		if err != nil || doc == nil {
			t.Fatalf("Load(%s): %q %v", id, doc, err)
		}
		decoded, err := results.Decode(doc)
		if err != nil {
			t.Fatalf("Decode(%s): %v", id, err)
		}
		if decoded.JobID != id {
			t.Fatalf("Load(%s) returned the record for %s", id, decoded.JobID)
		}
	}
}

func TestFileStoreConcurrentSavesWriteOnce(t *testing.T) {
	dir := t.TempDir()
	stores := make([]*FileStore, 4)
	for i := range stores {
		s, err := NewFileStore(dir)
		if err != nil {
			t.Fatal(err)
		}
		stores[i] = s
	}
	rec, err := NewRecord(visionSuccess("race"))
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for _, s := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Save(context.Background(), rec)
			if err != nil {
				t.Errorf("Save: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one writer to create the record, got %d", created)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") && e.Name() != ".results.lock" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestNewRecordRendersSRTOnlyForTranscripts(t *testing.T) {
	rec, err := NewRecord(visionSuccess("v"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.SRT != "" || rec.SchemaVersion != results.SchemaVersion || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
	rec, err = NewRecord(transcriptSuccess("t"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.SRT == "" || rec.Role != "transcribe" {
		t.Fatalf("expected srt for transcript record: %+v", rec)
	}
}
