package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/notifications"
	"mediaworker/internal/preflight"
	"mediaworker/internal/sink"
	"mediaworker/internal/stage"
	"mediaworker/internal/textutil"
	"mediaworker/internal/transcribe"
	"mediaworker/internal/vision"
	"mediaworker/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var roleFlag string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if value := strings.TrimSpace(roleFlag); value != "" {
				cfg.Worker.Role = value
			}
			return runWorker(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&roleFlag, "role", "r", "", "Worker role (vision or transcribe); overrides worker.role")
	return cmd
}

func runWorker(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.ValidateRole(cfg.Worker.Role); err != nil {
		return err
	}
	role, err := jobs.ParseRole(cfg.Worker.Role)
	if err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logger, logPath, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: "mediaworker-*.log",
		Exclude: []string{logPath},
	})
	logger = logger.With(
		logging.String(logging.FieldRole, role.String()),
		logging.String("worker_id", cfg.Worker.ID),
	)

	lock, err := acquireWorkerLock(cfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	checks := preflight.RunAll(signalCtx, cfg, role.String())
	for _, check := range checks {
		if check.Passed {
			logger.Debug("preflight check passed", logging.String("check", check.Name), logging.String("detail", check.Detail))
		}
	}
	if err := preflight.Err(checks); err != nil {
		logging.ErrorWithContext(logger, "preflight failed", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `mediaworker deps` to see missing tools"),
		)
		return err
	}

	source, sqlite, err := openSource(signalCtx, cfg)
	if err != nil {
		return err
	}
	defer closeSource(logger, source)

	store, err := sink.OpenStore(signalCtx, cfg, sqlite, logger)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer store.Close()

	publishers, err := sink.OpenPublishers(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open publishers: %w", err)
	}
	defer func() {
		if err := sink.ClosePublishers(publishers); err != nil {
			logger.Warn("close publishers failed", logging.Error(err))
		}
	}()

	notifier := notifications.NewService(cfg)

	handler, err := newHandler(cfg, role, logger)
	if err != nil {
		return err
	}
	defer handler.Close()

	resultSink := sink.New(source, store, publishers, notifier, logger)
	worker, err := workflow.NewWorker(cfg, role, source, handler, resultSink, logger, workflow.WithNotifier(notifier))
	if err != nil {
		return err
	}

	runErr := worker.Run(signalCtx)

	summary := worker.Status()
	logger.Info("worker summary",
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Int("retried", summary.Retried),
		logging.Duration("uptime", summary.Uptime),
	)
	return runErr
}

func newHandler(cfg *config.Config, role jobs.Role, logger *slog.Logger) (stage.Handler, error) {
	switch role {
	case jobs.RoleVision:
		p, err := vision.NewPipeline(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("start vision pipeline: %w", err)
		}
		return p, nil
	case jobs.RoleTranscribe:
		p, err := transcribe.NewPipeline(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("start transcribe pipeline: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported role %q", role)
	}
}

func closeSource(logger *slog.Logger, source jobs.Source) {
	if err := source.Close(); err != nil {
		logger.Warn("close job source failed", logging.Error(err))
	}
}

// acquireWorkerLock prevents two processes sharing a worker id on one host,
// since lease ownership is keyed by that id.
func acquireWorkerLock(cfg *config.Config) (*flock.Flock, error) {
	lockPath := filepath.Join(cfg.Paths.StateDir, "worker-"+textutil.FileKey(cfg.Worker.ID)+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worker lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("worker %s is already running (lock %s)", cfg.Worker.ID, lockPath)
	}
	return lock, nil
}
