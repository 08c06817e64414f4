package sink

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"mediaworker/internal/logging"
	"mediaworker/internal/results"
)

func openTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("MEDIAWORKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEDIAWORKER_TEST_POSTGRES_DSN not set")
	}
	store, err := OpenPostgresStore(context.Background(), dsn, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenPostgresStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStoreKeepsFirstRecord(t *testing.T) {
	store := openTestPostgresStore(t)
	ctx := context.Background()
	id := "pgtest-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM job_results WHERE job_id = $1`, id)
	})

	first, err := NewRecord(transcriptSuccess(id))
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewRecord(failure(id, "decode", "second"))
	if err != nil {
		t.Fatal(err)
	}
	if created, err := store.Save(ctx, first); err != nil || !created {
		t.Fatalf("first save: %v %v", created, err)
	}
	if created, err := store.Save(ctx, second); err != nil || created {
		t.Fatalf("second save should be a no-op: %v %v", created, err)
	}

	doc, err := store.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	decoded, err := results.Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.JobID != id || decoded.Status != results.StatusSuccess || decoded.Transcript == nil {
		t.Fatalf("expected first record to be kept, got %+v", decoded)
	}

	var srt string
	if err := store.pool.QueryRow(ctx, `SELECT transcript_srt FROM job_results WHERE job_id = $1`, id).Scan(&srt); err != nil {
		t.Fatalf("select srt: %v", err)
	}
	if !strings.Contains(srt, "Hello.") {
		t.Fatalf("unexpected stored srt %q", srt)
	}

	missing, err := store.Load(ctx, "pgtest-missing-"+uuid.NewString())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing record, got %q (%v)", missing, err)
	}
}

func TestPostgresStoreRejectsBadDSN(t *testing.T) {
	_, err := OpenPostgresStore(context.Background(), "postgres://user@localhost:notaport/db", logging.NewNop())
	if err == nil || !strings.Contains(err.Error(), "parse dsn") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPostgresStoreRequiresJobID(t *testing.T) {
	store := &PostgresStore{}
	if _, err := store.Save(context.Background(), Record{}); err == nil {
		t.Fatal("expected missing job id to fail")
	}
}
