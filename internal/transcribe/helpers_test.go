package transcribe

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"mediaworker/internal/decode"
)

// rampAudio yields total samples whose values equal their position modulo
// 30000, in reads of at most maxRead samples.
type rampAudio struct {
	rate    int
	total   int
	maxRead int
	pos     int
}

func (r *rampAudio) SampleRate() int { return r.rate }

func (r *rampAudio) ReadSegment(maxSamples int) (decode.AudioSegment, error) {
	if r.pos >= r.total {
		return decode.AudioSegment{}, io.EOF
	}
	n := min(maxSamples, r.total-r.pos)
	if r.maxRead > 0 {
		n = min(n, r.maxRead)
	}
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16((r.pos + i) % 30000)
	}
	r.pos += n
	return decode.AudioSegment{SampleRate: r.rate, Samples: samples}, nil
}

// blockEngine reports one segment per block of absolute time, so chunks
// that overlap repeat the blocks they share. Later chunks are more confident.
type blockEngine struct {
	block time.Duration

	mu     sync.Mutex
	offsets []time.Duration
}

func (e *blockEngine) Name() string  { return "block" }
func (e *blockEngine) Model() string { return "test" }

func (e *blockEngine) Transcribe(_ context.Context, chunk Chunk) ([]Segment, error) {
	e.mu.Lock()
	e.offsets = append(e.offsets, chunk.Offset)
	e.mu.Unlock()

	var out []Segment
	length := chunk.Duration()
	for rel := time.Duration(0); rel < length; rel += e.block {
		end := min(rel+e.block, length)
		n := int((chunk.Offset + rel) / e.block)
		out = append(out, Segment{
			Start:      rel,
			End:        end,
			Text:       fmt.Sprintf("Block %d.", n),
			Confidence: 0.5 + 0.1*float64(chunk.Index),
		})
	}
	return out, nil
}

type failingEngine struct{ err error }

func (e failingEngine) Name() string  { return "failing" }
func (e failingEngine) Model() string { return "none" }
func (e failingEngine) Transcribe(context.Context, Chunk) ([]Segment, error) {
	return nil, e.err
}
