package sink

import (
	"context"
	"fmt"
	"log/slog"

	"mediaworker/internal/config"
	"mediaworker/internal/queue"
)

// Store persists result records idempotently by job id.
type Store interface {
	// Save stores rec unless a record for the job already exists. created
	// reports whether this call wrote it; an existing record is kept.
	Save(ctx context.Context, rec Record) (created bool, err error)
	// Load returns the stored document for a job, or nil when absent.
	Load(ctx context.Context, jobID string) ([]byte, error)
	Close() error
}

// OpenStore opens the store selected by sink.store. The sqlite store shares
// the queue database handle when one is passed.
func OpenStore(ctx context.Context, cfg *config.Config, db *queue.Store, logger *slog.Logger) (Store, error) {
	switch cfg.Sink.Store {
	case config.StoreSQLite:
		if db != nil {
			return NewSQLiteStore(db, false), nil
		}
		opened, err := queue.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open result database: %w", err)
		}
		return NewSQLiteStore(opened, true), nil
	case config.StorePostgres:
		return OpenPostgresStore(ctx, cfg.Sink.PostgresDSN, logger)
	default:
		return NewFileStore(cfg.Paths.ResultsDir)
	}
}
