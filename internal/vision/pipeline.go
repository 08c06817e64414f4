package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mediaworker/internal/config"
	"mediaworker/internal/decode"
	"mediaworker/internal/deps"
	"mediaworker/internal/fetch"
	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/results"
	"mediaworker/internal/stage"
)

// Pipeline is the VISION role handler: fetch, probe, sample frames, analyze.
type Pipeline struct {
	cfg       *config.Config
	fetcher   *fetch.Fetcher
	decoder   *decode.Decoder
	worker    *Worker
	analyzer  Analyzer
	frameOpts decode.FrameOptions
	logger    *slog.Logger
}

// NewPipeline wires the configured analyzer. The python analyzer's model
// process is started here, once per worker process.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		return nil, err
	}
	worker, err := NewWorker(analyzer, WorkerOptions{
		Concurrency:       cfg.Vision.Concurrency,
		MaxFailedFraction: cfg.Vision.MaxFailedFraction,
	}, logger)
	if err != nil {
		_ = analyzer.Close()
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  fetch.New(fetch.OptionsFromConfig(cfg), logger),
		decoder:  decode.NewFromConfig(cfg, logger),
		worker:   worker,
		analyzer: analyzer,
		frameOpts: decode.FrameOptions{
			SampleFPS: cfg.Vision.SampleFPS,
			MaxWidth:  cfg.Vision.MaxWidth,
		},
		logger: logging.NewComponentLogger(logger, "vision"),
	}, nil
}

func newAnalyzer(cfg *config.Config, logger *slog.Logger) (Analyzer, error) {
	switch cfg.Vision.Analyzer {
	case config.AnalyzerPython:
		return StartPython(PythonOptions{
			Command:        cfg.Vision.PythonCommand,
			Script:         cfg.Vision.PythonScript,
			ModelPath:      cfg.Vision.ModelPath,
			RequestTimeout: cfg.VisionRequestTimeout(),
		}, logger)
	default:
		return NewLumaAnalyzer(cfg.Vision.BlankLumaMax), nil
	}
}

// Role implements stage.Handler.
func (p *Pipeline) Role() jobs.Role { return jobs.RoleVision }

// Process implements stage.Handler.
func (p *Pipeline) Process(ctx context.Context, job *jobs.Job, workDir string) (stage.Output, error) {
	var media *fetch.Media
	if err := stage.Step(ctx, p.logger, "fetch", func(ctx context.Context) error {
		var err error
		media, err = p.fetcher.Fetch(ctx, job.MediaRef, workDir)
		return err
	}); err != nil {
		return stage.Output{}, err
	}
	defer media.Close()

	var info decode.Probe
	if err := stage.Step(ctx, p.logger, "decode", func(ctx context.Context) error {
		var err error
		info, err = p.decoder.Probe(ctx, media.Path)
		return err
	}); err != nil {
		return stage.Output{}, err
	}

	var analysis *results.Analysis
	if err := stage.Step(ctx, p.logger, "analyze", func(ctx context.Context) error {
		frames, err := p.decoder.Frames(ctx, info, p.frameOpts)
		if err != nil {
			return err
		}
		defer frames.Close()
		analysis, err = p.worker.Analyze(ctx, frames)
		if err != nil {
			return err
		}
		analysis.Width, analysis.Height = frames.Size()
		return nil
	}); err != nil {
		return stage.Output{}, err
	}
	analysis.SampleFPS = p.frameOpts.SampleFPS

	logging.WithContext(ctx, p.logger).Info("frames analyzed",
		logging.String(logging.FieldEventType, "vision_complete"),
		logging.Int("frames", analysis.Summary.Frames),
		logging.Int("failed", analysis.Summary.Failed),
		logging.Int("blank", analysis.Summary.Blank),
	)
	return stage.Output{
		Media:    mediaInfo(info, media.Size),
		Analysis: analysis,
	}, nil
}

// HealthCheck implements stage.Handler.
func (p *Pipeline) HealthCheck(ctx context.Context) stage.Health {
	missing := deps.Missing(deps.CheckBinaries(deps.RoleRequirements(p.cfg, config.RoleVision)))
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Command)
		}
		return stage.Unhealthy("vision", fmt.Sprintf("missing binaries: %s", strings.Join(names, ", ")))
	}
	if py, ok := p.analyzer.(*PythonAnalyzer); ok && !py.Alive() {
		return stage.Unhealthy("vision", "model process is not running")
	}
	return stage.Healthy("vision")
}

// Close implements stage.Handler.
func (p *Pipeline) Close() error {
	return p.analyzer.Close()
}

func mediaInfo(info decode.Probe, size int64) *results.MediaInfo {
	return &results.MediaInfo{
		Container:       info.Container,
		DurationSeconds: info.Duration.Seconds(),
		SizeBytes:       size,
	}
}

var _ stage.Handler = (*Pipeline)(nil)
