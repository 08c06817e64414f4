package vision

import (
	"context"
	"math"

	"mediaworker/internal/decode"
)

// Metric and label names reported by the luma analyzer.
const (
	MetricLuma      = "luma"
	MetricContrast  = "contrast"
	MetricSharpness = "sharpness"
	LabelBlank      = "blank"
)

// LumaAnalyzer measures brightness, contrast and focus of a frame using
// BT.601 luminance. Frames at or below BlankMax mean luminance are labelled
// blank.
type LumaAnalyzer struct {
	BlankMax float64
}

// NewLumaAnalyzer constructs a LumaAnalyzer.
func NewLumaAnalyzer(blankMax float64) *LumaAnalyzer {
	return &LumaAnalyzer{BlankMax: blankMax}
}

// Name implements Analyzer.
func (a *LumaAnalyzer) Name() string { return "luma" }

// Close implements Analyzer.
func (a *LumaAnalyzer) Close() error { return nil }

// Analyze implements Analyzer.
func (a *LumaAnalyzer) Analyze(ctx context.Context, frame decode.Frame) (Finding, error) {
	if !frame.Valid() {
		return Finding{}, ErrMalformedFrame
	}
	if err := ctx.Err(); err != nil {
		return Finding{}, err
	}

	w, h := frame.Width, frame.Height
	luma := make([]float64, w*h)
	var sum float64
	for i := range luma {
		p := frame.Pixels[i*3 : i*3+3]
		y := 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		luma[i] = y
		sum += y
	}
	n := float64(len(luma))
	mean := sum / n

	var variance float64
	for _, y := range luma {
		d := y - mean
		variance += d * d
	}
	variance /= n

	finding := Finding{
		Metrics: map[string]float64{
			MetricLuma:      round3(mean),
			MetricContrast:  round3(math.Sqrt(variance)),
			MetricSharpness: round3(laplacianVariance(luma, w, h)),
		},
	}
	if mean <= a.BlankMax {
		finding.Labels = append(finding.Labels, LabelBlank)
	}
	return finding, nil
}

// laplacianVariance is the variance of the 4-neighbour Laplacian over the
// frame interior. Frames smaller than 3x3 report zero.
func laplacianVariance(luma []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	count := float64((w - 2) * (h - 2))
	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			lap := luma[i-w] + luma[i+w] + luma[i-1] + luma[i+1] - 4*luma[i]
			sum += lap
			sumSq += lap * lap
		}
	}
	mean := sum / count
	return sumSq/count - mean*mean
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
