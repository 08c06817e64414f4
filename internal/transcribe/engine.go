package transcribe

import (
	"context"
	"time"
)

// Chunk is one analysis window of mono PCM.
type Chunk struct {
	Index      int
	Offset     time.Duration
	SampleRate int
	Samples    []int16
	// WorkDir is job-scoped scratch space for engine input and output files.
	WorkDir string
}

// Duration returns the audio length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// End returns the absolute end time of the chunk.
func (c Chunk) End() time.Duration {
	return c.Offset + c.Duration()
}

// Segment is a recognized span of speech. Engines report times relative to
// the chunk; the stitcher converts them to absolute media time.
type Segment struct {
	Start      time.Duration
	End        time.Duration
	Text       string
	Confidence float64
}

// Engine turns a chunk of audio into segments.
type Engine interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, chunk Chunk) ([]Segment, error)
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func clampConfidence(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}

func millis(value int64) time.Duration {
	return time.Duration(value) * time.Millisecond
}
