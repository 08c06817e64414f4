package decode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

// DefaultSampleRate is the PCM rate delivered to speech models.
const DefaultSampleRate = 16000

// knownSampleFormats lists the ffmpeg sample formats the resampler accepts.
var knownSampleFormats = map[string]struct{}{
	"u8": {}, "u8p": {},
	"s16": {}, "s16p": {},
	"s32": {}, "s32p": {},
	"s64": {}, "s64p": {},
	"flt": {}, "fltp": {},
	"dbl": {}, "dblp": {},
}

// AudioSegment is a contiguous run of mono signed 16-bit samples.
type AudioSegment struct {
	Start      time.Duration
	End        time.Duration
	SampleRate int
	Samples    []int16
}

// Duration returns the segment length.
func (a AudioSegment) Duration() time.Duration {
	return a.End - a.Start
}

// AudioOptions controls audio extraction.
type AudioOptions struct {
	SampleRate int
}

// AudioStream is a lazy, forward-only PCM reader.
type AudioStream struct {
	ctx        context.Context
	proc       *process
	sampleRate int
	position   int64
	done       bool
	closed     bool
}

// Audio starts decoding the first audio stream of info.Path to mono PCM.
// The returned stream must be closed.
func (d *Decoder) Audio(ctx context.Context, info Probe, opts AudioOptions) (*AudioStream, error) {
	if err := CheckAudioFormat(info); err != nil {
		return nil, err
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", info.Path,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", rate),
		"-f", "s16le",
		"pipe:1",
	}
	proc, err := startProcess(ctx, d.ffmpeg, args)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, stageName, "audio", "start ffmpeg", err)
	}
	d.logger.Debug("audio decode started",
		logging.Int("source_rate", info.SampleRate),
		logging.Int("source_channels", info.Channels),
		logging.String("sample_fmt", info.SampleFmt),
	)
	return &AudioStream{ctx: ctx, proc: proc, sampleRate: rate}, nil
}

// CheckAudioFormat rejects audio streams the pipeline cannot interpret.
func CheckAudioFormat(info Probe) error {
	if !info.HasAudio {
		return services.Wrap(services.ErrAudioFormat, stageName, "audio", "media has no audio stream", nil)
	}
	if info.Channels <= 0 {
		return services.Wrap(services.ErrAudioFormat, stageName, "audio", "audio stream reports no channels", nil)
	}
	if info.SampleRate <= 0 {
		return services.Wrap(services.ErrAudioFormat, stageName, "audio", "audio stream reports no sample rate", nil)
	}
	if _, ok := knownSampleFormats[strings.ToLower(strings.TrimSpace(info.SampleFmt))]; !ok {
		return services.Wrap(services.ErrAudioFormat, stageName, "audio", fmt.Sprintf("unsupported sample format %q", info.SampleFmt), nil)
	}
	return nil
}

// SampleRate returns the output sample rate.
func (a *AudioStream) SampleRate() int {
	return a.sampleRate
}

// ReadSegment returns up to maxSamples samples. It returns io.EOF once the
// stream is exhausted and no samples remain.
func (a *AudioStream) ReadSegment(maxSamples int) (AudioSegment, error) {
	if maxSamples <= 0 {
		return AudioSegment{}, errors.New("read segment: maxSamples must be positive")
	}
	if a.closed || a.done {
		return AudioSegment{}, io.EOF
	}
	if err := a.ctx.Err(); err != nil {
		a.done = true
		return AudioSegment{}, err
	}

	buf := make([]byte, maxSamples*2)
	n, err := io.ReadFull(a.proc.stdout, buf)

	if err != nil {
		a.done = true
		if ctxErr := a.ctx.Err(); ctxErr != nil {
			a.proc.kill()
			return AudioSegment{}, ctxErr
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			a.proc.kill()
			return AudioSegment{}, decodeFailure("audio", err, a.proc.stderr.String())
		}
		if waitErr := a.proc.wait(); waitErr != nil {
			if ctxErr := a.ctx.Err(); ctxErr != nil {
				return AudioSegment{}, ctxErr
			}
			return AudioSegment{}, decodeFailure("audio", waitErr, a.proc.stderr.String())
		}
	}

	// An odd trailing byte can only appear at end of stream; drop it.
	n -= n % 2
	if n == 0 {
		return AudioSegment{}, io.EOF
	}
	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	start := a.offset(a.position)
	a.position += int64(len(samples))
	return AudioSegment{
		Start:      start,
		End:        a.offset(a.position),
		SampleRate: a.sampleRate,
		Samples:    samples,
	}, nil
}

// Position returns the number of samples read so far.
func (a *AudioStream) Position() int64 {
	return a.position
}

func (a *AudioStream) offset(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(a.sampleRate)
}

// Close stops ffmpeg and releases the pipe. Safe to call more than once.
func (a *AudioStream) Close() error {
	if a == nil || a.closed {
		return nil
	}
	a.closed = true
	a.proc.kill()
	return nil
}
