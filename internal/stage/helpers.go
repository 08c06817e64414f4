package stage

import (
	"context"
	"log/slog"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

// Step runs one named pipeline step with the stage recorded on the context
// and logs its start, completion, or failure.
func Step(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	stepCtx := services.WithStage(ctx, name)
	stepLogger := logging.WithContext(stepCtx, logger)
	started := time.Now()

	stepLogger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := fn(stepCtx); err != nil {
		stepLogger.Debug("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("elapsed", time.Since(started)),
			logging.ErrorKind(err),
			logging.Error(err),
		)
		return err
	}
	stepLogger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}
