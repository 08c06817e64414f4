package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/decode"
	"mediaworker/internal/deps"
	"mediaworker/internal/fetch"
	"mediaworker/internal/jobs"
	"mediaworker/internal/language"
	"mediaworker/internal/logging"
	"mediaworker/internal/results"
	"mediaworker/internal/services/whisperx"
	"mediaworker/internal/stage"
)

// Pipeline is the TRANSCRIBE role handler: fetch, probe, decode audio,
// transcribe in overlapping chunks, stitch.
type Pipeline struct {
	cfg     *config.Config
	fetcher *fetch.Fetcher
	decoder *decode.Decoder
	worker  *Worker
	logger  *slog.Logger
}

// NewPipeline wires the configured speech engine.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	return NewPipelineWithEngine(cfg, NewEngine(cfg), logger)
}

// NewPipelineWithEngine wires an explicit engine.
func NewPipelineWithEngine(cfg *config.Config, engine Engine, logger *slog.Logger) (*Pipeline, error) {
	worker, err := NewWorker(engine, WorkerOptions{
		Chunk:    time.Duration(cfg.Transcribe.ChunkSeconds) * time.Second,
		Overlap:  time.Duration(cfg.Transcribe.OverlapSeconds) * time.Second,
		Language: language.ForEngine(cfg.Transcribe.Language),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetch.New(fetch.OptionsFromConfig(cfg), logger),
		decoder: decode.NewFromConfig(cfg, logger),
		worker:  worker,
		logger:  logging.NewComponentLogger(logger, stageName),
	}, nil
}

// NewEngine builds the engine selected by transcribe.engine.
func NewEngine(cfg *config.Config) Engine {
	lang := language.ForEngine(cfg.Transcribe.Language)
	if cfg.Transcribe.Engine == config.EngineWhisperCPP {
		return NewWhisperCPPEngine(WhisperCPPOptions{
			Binary:   cfg.Transcribe.WhisperCPPBinary,
			Model:    cfg.Transcribe.WhisperCPPModel,
			Language: lang,
		})
	}
	return NewWhisperXEngine(whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcribe.Model,
		CUDAEnabled: cfg.Transcribe.CUDAEnabled,
		Language:    lang,
	}))
}

// Role implements stage.Handler.
func (p *Pipeline) Role() jobs.Role { return jobs.RoleTranscribe }

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
		if err != nil {
			return err
		}
		return decode.CheckAudioFormat(info)
	}); err != nil {
		return stage.Output{}, err
	}

	var transcript *results.Transcript
	if err := stage.Step(ctx, p.logger, "transcribe", func(ctx context.Context) error {
		audio, err := p.decoder.Audio(ctx, info, decode.AudioOptions{SampleRate: decode.DefaultSampleRate})
		if err != nil {
			return err
		}
		defer audio.Close()
		transcript, err = p.worker.Transcribe(ctx, audio, workDir)
		return err
	}); err != nil {
		return stage.Output{}, err
	}

	logging.WithContext(ctx, p.logger).Info("audio transcribed",
		logging.String(logging.FieldEventType, "transcribe_complete"),
		logging.String("engine", transcript.Engine),
		logging.Int("chunks", transcript.Chunks),
		logging.Int("segments", len(transcript.Segments)),
	)
	return stage.Output{
		Media: &results.MediaInfo{
			Container:       info.Container,
			DurationSeconds: info.Duration.Seconds(),
			SizeBytes:       media.Size,
		},
		Transcript: transcript,
	}, nil
}

// HealthCheck implements stage.Handler.
func (p *Pipeline) HealthCheck(ctx context.Context) stage.Health {
	missing := deps.Missing(deps.CheckBinaries(deps.RoleRequirements(p.cfg, config.RoleTranscribe)))
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, m := range missing {
			names = append(names, m.Command)
		}
		return stage.Unhealthy(stageName, fmt.Sprintf("missing binaries: %s", strings.Join(names, ", ")))
	}
	return stage.Healthy(stageName)
}

// Close implements stage.Handler.
func (p *Pipeline) Close() error { return nil }

var _ stage.Handler = (*Pipeline)(nil)
