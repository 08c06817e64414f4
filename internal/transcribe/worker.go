package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/results"
	"mediaworker/internal/services"
)

const stageName = "transcribe"

// WorkerOptions configures chunking.
type WorkerOptions struct {
	Chunk    time.Duration
	Overlap  time.Duration
	Language string
}

// Worker feeds chunked audio to an Engine and stitches the output.
type Worker struct {
	engine Engine
	opts   WorkerOptions
	logger *slog.Logger
}

// NewWorker validates chunking options and returns a Worker.
func NewWorker(engine Engine, opts WorkerOptions, logger *slog.Logger) (*Worker, error) {
	if engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "speech engine unavailable", nil)
	}
	if opts.Chunk <= 0 || opts.Overlap < 0 || opts.Overlap >= opts.Chunk {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init",
			"chunk overlap must satisfy 0 <= overlap < chunk", nil)
	}
	return &Worker{
		engine: engine,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, stageName),
	}, nil
}

// Transcribe reads audio to exhaustion and returns the stitched transcript.
func (w *Worker) Transcribe(ctx context.Context, audio AudioReader, workDir string) (*results.Transcript, error) {
	chunker, err := NewChunker(audio, w.opts.Chunk, w.opts.Overlap, workDir)
	if err != nil {
		return nil, services.Wrap(services.ErrAudioFormat, stageName, "chunk", err.Error(), nil)
	}
	var stitcher Stitcher
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, ok, err := chunker.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		started := time.Now()
		segments, err := w.engine.Transcribe(ctx, chunk)
		if err != nil {
			return nil, w.engineFailure(ctx, chunk, err)
		}
		logging.WithContext(ctx, w.logger).Debug("chunk transcribed",
			logging.Int("chunk", chunk.Index),
			logging.Duration("offset", chunk.Offset),
			logging.Duration("length", chunk.Duration()),
			logging.Int("segments", len(segments)),
			logging.Duration("elapsed", time.Since(started)),
		)
		stitcher.Add(chunk, segments)
	}
	if stitcher.Chunks() == 0 {
		return nil, services.Wrap(services.ErrDecode, stageName, "chunk", "no audio decoded", nil)
	}

	stitched := stitcher.Segments()
	out := make([]results.Segment, 0, len(stitched))
	for _, seg := range stitched {
		out = append(out, results.Segment{
			Start:      toSeconds(seg.Start),
			End:        toSeconds(seg.End),
			Text:       seg.Text,
			Confidence: math.Round(seg.Confidence*1000) / 1000,
		})
	}
	return &results.Transcript{
		Engine:   w.engine.Name(),
		Model:    w.engine.Model(),
		Language: w.opts.Language,
		Chunks:   stitcher.Chunks(),
		Segments: out,
	}, nil
}

func (w *Worker) engineFailure(ctx context.Context, chunk Chunk, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := services.KindOf(err)
	if kind != services.KindInternal {
		return err
	}
	logging.WarnWithContext(logging.WithContext(ctx, w.logger), "speech engine failed", "engine_failure",
		logging.Int("chunk", chunk.Index),
		logging.String(logging.FieldErrorHint, "check engine installation and model availability"),
		logging.Error(err),
	)
	return services.Wrap(services.ErrInference, stageName, w.engine.Name(), "chunk transcription failed", err)
}

func toSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
