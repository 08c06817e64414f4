package vision

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"mediaworker/internal/decode"
	"mediaworker/internal/logging"
	"mediaworker/internal/results"
	"mediaworker/internal/services"
)

// FrameIterator yields frames in decode order. decode.FrameSequence
// satisfies it.
type FrameIterator interface {
	Next() (decode.Frame, bool, error)
}

// WorkerOptions tunes frame analysis.
type WorkerOptions struct {
	// Concurrency caps frames in flight at once.
	Concurrency int
	// MaxFailedFraction is the tolerated share of frames with error markers.
	MaxFailedFraction float64
}

// Worker scatters frames over a bounded pool and gathers findings in index
// order.
type Worker struct {
	analyzer Analyzer
	opts     WorkerOptions
	logger   *slog.Logger
}

// NewWorker constructs a Worker.
func NewWorker(analyzer Analyzer, opts WorkerOptions, logger *slog.Logger) (*Worker, error) {
	if analyzer == nil {
		return nil, errAnalyzerUnavailable
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Worker{
		analyzer: analyzer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "vision"),
	}, nil
}

// Analyze consumes frames until exhausted and returns the ordered analysis.
func (w *Worker) Analyze(ctx context.Context, frames FrameIterator) (*results.Analysis, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.opts.Concurrency)

	var (
		mu       sync.Mutex
		findings []results.FrameFinding
		iterErr  error
	)

	for {
		if groupCtx.Err() != nil {
			break
		}
		frame, ok, err := frames.Next()
		if err != nil {
			iterErr = err
			break
		}
		if !ok {
			break
		}
		group.Go(func() error {
			finding, err := w.analyzeFrame(groupCtx, frame)
			if err != nil {
				return err
			}
			mu.Lock()
			findings = append(findings, finding)
			mu.Unlock()
			return nil
		})
	}

	groupErr := group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if groupErr != nil {
		return nil, groupErr
	}
	if iterErr != nil {
		return nil, iterErr
	}
	if len(findings) == 0 {
		return nil, services.Wrap(services.ErrDecode, "vision", "analyze", "no frames decoded", nil)
	}

	slices.SortFunc(findings, func(a, b results.FrameFinding) int { return a.Index - b.Index })
	analysis := &results.Analysis{
		Analyzer: w.analyzer.Name(),
		Frames:   findings,
		Summary:  summarize(findings),
	}

	failed := analysis.Summary.Failed
	total := analysis.Summary.Frames
	if float64(failed)/float64(total) > w.opts.MaxFailedFraction {
		return nil, services.Wrap(services.ErrQuality, "vision", "analyze",
			fmt.Sprintf("%d of %d frames failed analysis (limit %.0f%%)", failed, total, w.opts.MaxFailedFraction*100), nil)
	}
	if failed > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, w.logger), "some frames failed analysis", "frame_failures",
			logging.Int("failed", failed),
			logging.Int("frames", total),
			logging.String(logging.FieldImpact, "failed frames carry error markers in the result"),
		)
	}
	return analysis, nil
}

// analyzeFrame returns a finding, converting frame-local faults into error
// markers. Any other error aborts the job.
func (w *Worker) analyzeFrame(ctx context.Context, frame decode.Frame) (results.FrameFinding, error) {
	finding := results.FrameFinding{
		Index:       frame.Index,
		TimestampMS: frame.Timestamp.Milliseconds(),
	}
	out, err := w.analyzer.Analyze(ctx, frame)
	switch {
	case err == nil:
		finding.Metrics = out.Metrics
		finding.Labels = out.Labels
		return finding, nil
	case IsFrameFault(err):
		finding.Error = err.Error()
		logging.WithContext(ctx, w.logger).Debug("frame analysis failed", logging.Int("frame", frame.Index), logging.Error(err))
		return finding, nil
	case ctx.Err() != nil:
		return finding, ctx.Err()
	case services.KindOf(err) == services.KindInternal:
		return finding, services.Wrap(services.ErrInference, "vision", w.analyzer.Name(), fmt.Sprintf("frame %d", frame.Index), err)
	default:
		return finding, err
	}
}

func summarize(findings []results.FrameFinding) results.AnalysisSummary {
	summary := results.AnalysisSummary{Frames: len(findings)}
	var lumaSum float64
	var lumaCount int
	for _, f := range findings {
		if f.Failed() {
			summary.Failed++
			continue
		}
		if slices.Contains(f.Labels, LabelBlank) {
			summary.Blank++
		}
		if v, ok := f.Metrics[MetricLuma]; ok {
			lumaSum += v
			lumaCount++
		}
	}
	if lumaCount > 0 {
		summary.MeanLuma = round3(lumaSum / float64(lumaCount))
	}
	return summary
}
