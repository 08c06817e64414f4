package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

// Frame is one decoded RGB24 image. Pixels is owned by the frame.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Width     int
	Height    int
	Pixels    []byte
}

// Valid reports whether the pixel buffer matches the frame dimensions.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pixels) == f.Width*f.Height*3
}

// FrameOptions controls frame sampling.
type FrameOptions struct {
	// SampleFPS is the number of frames emitted per second of media. Zero
	// keeps every frame at the source rate.
	SampleFPS float64
	// MaxWidth downscales wider frames, keeping aspect ratio. Zero keeps
	// source dimensions.
	MaxWidth int
}

// FrameSequence is a lazy, forward-only iterator over sampled frames.
type FrameSequence struct {
	ctx      context.Context
	proc     *process
	width    int
	height   int
	interval time.Duration
	next     int
	done     bool
	closed   bool
}

// Frames starts decoding the first video stream of info.Path. The returned
// sequence must be closed.
func (d *Decoder) Frames(ctx context.Context, info Probe, opts FrameOptions) (*FrameSequence, error) {
	if !info.HasVideo {
		return nil, services.Wrap(services.ErrDecode, stageName, "frames", "media has no video stream", nil)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, services.Wrap(services.ErrDecode, stageName, "frames", fmt.Sprintf("invalid video dimensions %dx%d", info.Width, info.Height), nil)
	}
	width, height := scaledSize(info.Width, info.Height, opts.MaxWidth)

	rate := opts.SampleFPS
	if rate <= 0 {
		rate = info.FrameRate
	}
	var interval time.Duration
	if rate > 0 {
		interval = time.Duration(float64(time.Second) / rate)
	}

	args := frameArgs(info.Path, opts.SampleFPS, width, height)
	proc, err := startProcess(ctx, d.ffmpeg, args)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, stageName, "frames", "start ffmpeg", err)
	}
	d.logger.Debug("frame decode started",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Float64("sample_fps", opts.SampleFPS),
	)
	return &FrameSequence{
		ctx:      ctx,
		proc:     proc,
		width:    width,
		height:   height,
		interval: interval,
	}, nil
}

func frameArgs(path string, sampleFPS float64, width, height int) []string {
	filter := fmt.Sprintf("scale=%d:%d", width, height)
	if sampleFPS > 0 {
		filter = fmt.Sprintf("fps=%s,%s", fmtFloat(sampleFPS), filter)
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-map", "0:v:0",
		"-an", "-sn", "-dn",
		"-vf", filter,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

// scaledSize bounds width to maxWidth and keeps both dimensions even.
func scaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth > 0 && width > maxWidth {
		height = int(float64(height) * float64(maxWidth) / float64(width))
		width = maxWidth
	}
	width -= width % 2
	height -= height % 2
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	return width, height
}

// Size returns the output frame dimensions.
func (s *FrameSequence) Size() (int, int) {
	return s.width, s.height
}

// Next returns the next frame. ok is false once the stream is exhausted.
// A decoder failure or truncated final frame with a failing ffmpeg exit is
// a decode error; cancellation returns the context error.
func (s *FrameSequence) Next() (Frame, bool, error) {
	if s.done || s.closed {
		return Frame{}, false, nil
	}
	if err := s.ctx.Err(); err != nil {
		s.done = true
		return Frame{}, false, err
	}
	buf := make([]byte, s.width*s.height*3)
	_, err := io.ReadFull(s.proc.stdout, buf)
	if err == nil {
		frame := Frame{
			Index:     s.next,
			Timestamp: time.Duration(s.next) * s.interval,
			Width:     s.width,
			Height:    s.height,
			Pixels:    buf,
		}
		s.next++
		return frame, true, nil
	}

	s.done = true
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.proc.kill()
		return Frame{}, false, ctxErr
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.proc.kill()
		return Frame{}, false, decodeFailure("frames", err, s.proc.stderr.String())
	}
	if waitErr := s.proc.wait(); waitErr != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return Frame{}, false, ctxErr
		}
		return Frame{}, false, decodeFailure("frames", waitErr, s.proc.stderr.String())
	}
	return Frame{}, false, nil
}

// Decoded returns the number of frames emitted so far.
func (s *FrameSequence) Decoded() int {
	return s.next
}

// Close stops ffmpeg and releases the pipe. Safe to call more than once.
func (s *FrameSequence) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.proc.kill()
	return nil
}
