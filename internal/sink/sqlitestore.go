package sink

import (
	"context"

	"mediaworker/internal/queue"
)

// SQLiteStore keeps results in the queue database's results table.
type SQLiteStore struct {
	db   *queue.Store
	owns bool
}

// NewSQLiteStore wraps db. When owns is true Close closes the database.
func NewSQLiteStore(db *queue.Store, owns bool) *SQLiteStore {
	return &SQLiteStore{db: db, owns: owns}
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) (bool, error) {
	return s.db.SaveResult(ctx, queue.ResultRecord{
		JobID:         rec.JobID,
		Role:          rec.Role,
		Status:        string(rec.Status),
		SchemaVersion: rec.SchemaVersion,
		ErrorKind:     rec.ErrorKind,
		Document:      rec.Document,
		CreatedAt:     rec.CreatedAt,
	})
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, jobID string) ([]byte, error) {
	stored, err := s.db.GetResult(ctx, jobID)
	if err != nil || stored == nil {
		return nil, err
	}
	return stored.Document, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.owns {
		return s.db.Close()
	}
	return nil
}
