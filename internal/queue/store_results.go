package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mediaworker/internal/jobs"
)

// SaveResult stores a result document once per job id. It reports false
// when a document for the job already existed; the stored copy is kept.
func (s *Store) SaveResult(ctx context.Context, record ResultRecord) (bool, error) {
	if record.JobID == "" {
		return false, errors.New("save result: job id is required")
	}
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO results (job_id, role, status, schema_version, error_kind, document, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO NOTHING`,
		record.JobID,
		string(record.Role),
		record.Status,
		record.SchemaVersion,
		nullableString(record.ErrorKind),
		string(record.Document),
		formatTime(created),
	)
	if err != nil {
		return false, fmt.Errorf("save result %s: %w", record.JobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetResult loads the stored result for a job. It returns nil, nil when absent.
func (s *Store) GetResult(ctx context.Context, jobID string) (*ResultRecord, error) {
	var (
		role       string
		errorKind  sql.NullString
		document   string
		createdRaw string
	)
	record := &ResultRecord{JobID: jobID}
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT role, status, schema_version, error_kind, document, created_at FROM results WHERE job_id = ?`,
		jobID,
	).Scan(&role, &record.Status, &record.SchemaVersion, &errorKind, &document, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	record.Role = jobs.Role(role)
	record.ErrorKind = errorKind.String
	record.Document = []byte(document)
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}

// CountResults returns the number of stored result documents.
func (s *Store) CountResults(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM results`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return count, nil
}
