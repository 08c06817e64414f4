package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaworker/internal/logging"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS job_results (
    job_id TEXT PRIMARY KEY,
    role TEXT NOT NULL,
    status TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    error_kind TEXT,
    document JSONB NOT NULL,
    transcript_srt TEXT,
    created_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps results in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects and ensures the results table exists.
func OpenPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	logger = logging.NewComponentLogger(logger, "pgstore")
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pc.MaxConns = 4
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "mediaworker"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if _, err := pool.Exec(dialCtx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ensure schema: %w", err)
	}
	logger.Info("connected to result database", logging.String("host", pc.ConnConfig.Host))
	return &PostgresStore{pool: pool}, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, rec Record) (bool, error) {
	if rec.JobID == "" {
		return false, errors.New("postgres store: job id is required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO job_results (job_id, role, status, schema_version, error_kind, document, transcript_srt, created_at)
         VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::jsonb, NULLIF($7, ''), $8)
         ON CONFLICT (job_id) DO NOTHING`,
		rec.JobID, string(rec.Role), string(rec.Status), rec.SchemaVersion,
		rec.ErrorKind, string(rec.Document), rec.SRT, created,
	)
	if err != nil {
		return false, fmt.Errorf("postgres store: save %s: %w", rec.JobID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, jobID string) ([]byte, error) {
	var document string
	err := s.pool.QueryRow(ctx, `SELECT document::text FROM job_results WHERE job_id = $1`, jobID).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %s: %w", jobID, err)
	}
	return []byte(document), nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
