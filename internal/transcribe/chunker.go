package transcribe

import (
	"errors"
	"fmt"
	"io"
	"time"

	"mediaworker/internal/decode"
)

// AudioReader yields consecutive PCM segments. decode.AudioStream
// satisfies it.
type AudioReader interface {
	ReadSegment(maxSamples int) (decode.AudioSegment, error)
	SampleRate() int
}

// Chunker cuts an AudioReader into windows of a fixed length that overlap
// their predecessor. Only the current window is held in memory.
type Chunker struct {
	reader  AudioReader
	rate    int
	window  int
	overlap int
	workDir string

	carry  []int16
	offset int64
	index  int
	eof    bool
}

// NewChunker validates 0 <= overlap < chunk and returns a Chunker.
func NewChunker(reader AudioReader, chunk, overlap time.Duration, workDir string) (*Chunker, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk length must be positive, got %s", chunk)
	}
	if overlap < 0 || overlap >= chunk {
		return nil, fmt.Errorf("overlap %s must be in [0, %s)", overlap, chunk)
	}
	rate := reader.SampleRate()
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	return &Chunker{
		reader:  reader,
		rate:    rate,
		window:  samplesFor(chunk, rate),
		overlap: samplesFor(overlap, rate),
		workDir: workDir,
	}, nil
}

func samplesFor(d time.Duration, rate int) int {
	return int(d * time.Duration(rate) / time.Second)
}

// Next returns the next window. ok is false once the audio is exhausted.
// A window that would hold nothing but the previous overlap is not emitted.
func (c *Chunker) Next() (Chunk, bool, error) {
	if c.eof {
		return Chunk{}, false, nil
	}
	buf := make([]int16, 0, c.window)
	buf = append(buf, c.carry...)
	carried := len(buf)

	for len(buf) < c.window {
		seg, err := c.reader.ReadSegment(c.window - len(buf))
		if errors.Is(err, io.EOF) {
			c.eof = true
			break
		}
		if err != nil {
			return Chunk{}, false, err
		}
		buf = append(buf, seg.Samples...)
	}
	if len(buf) == carried {
		c.eof = true
		c.carry = nil
		return Chunk{}, false, nil
	}

	chunk := Chunk{
		Index:      c.index,
		Offset:     time.Duration(c.offset) * time.Second / time.Duration(c.rate),
		SampleRate: c.rate,
		Samples:    buf,
		WorkDir:    c.workDir,
	}
	c.index++
	if c.eof {
		c.carry = nil
		return chunk, true, nil
	}
	step := len(buf) - c.overlap
	c.carry = append(c.carry[:0:0], buf[step:]...)
	c.offset += int64(step)
	return chunk, true, nil
}
