package decode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/logging"
	"mediaworker/internal/media/ffprobe"
	"mediaworker/internal/services"
)

const stageName = "decode"

// Decoder runs ffprobe and ffmpeg against local media files.
type Decoder struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// New constructs a Decoder for the given tool binaries.
func New(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *Decoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Decoder{
		ffmpeg:  ffmpegBinary,
		ffprobe: ffprobeBinary,
		logger:  logging.NewComponentLogger(logger, "decode"),
	}
}

// NewFromConfig constructs a Decoder using the configured binaries.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Decoder {
	return New(cfg.FFmpegBinary(), cfg.FFprobeBinary(), logger)
}

// Probe summarizes a media file.
type Probe struct {
	Path      string
	Container string
	Duration  time.Duration

	HasVideo  bool
	Width     int
	Height    int
	FrameRate float64

	HasAudio   bool
	SampleRate int
	Channels   int
	SampleFmt  string
}

// Probe inspects path. A file ffprobe cannot read, or one without any
// audio or video stream, is a decode error.
func (d *Decoder) Probe(ctx context.Context, path string) (Probe, error) {
	result, err := ffprobe.Inspect(ctx, d.ffprobe, path)
	if err != nil {
		if ctx.Err() != nil {
			return Probe{}, ctx.Err()
		}
		return Probe{}, services.Wrap(services.ErrDecode, stageName, "probe", "unreadable or corrupt container", err)
	}
	info := Probe{
		Path:      path,
		Container: result.Format.FormatName,
		Duration:  time.Duration(result.DurationSeconds() * float64(time.Second)),
	}
	if video, ok := result.FirstStream(ffprobe.KindVideo); ok {
		info.HasVideo = true
		info.Width = video.Width
		info.Height = video.Height
		info.FrameRate = video.FrameRate()
	}
	if audio, ok := result.FirstStream(ffprobe.KindAudio); ok {
		info.HasAudio = true
		info.SampleRate = audio.SampleRateHz()
		info.Channels = audio.Channels
		info.SampleFmt = audio.SampleFmt
	}
	if !info.HasVideo && !info.HasAudio {
		return Probe{}, services.Wrap(services.ErrDecode, stageName, "probe", "container has no audio or video streams", nil)
	}
	d.logger.Debug("media probed",
		logging.String("path", path),
		logging.String("container", info.Container),
		logging.Duration("duration", info.Duration),
		logging.Bool("video", info.HasVideo),
		logging.Bool("audio", info.HasAudio),
	)
	return info, nil
}

func decodeFailure(operation string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = "ffmpeg failed"
	}
	return services.Wrap(services.ErrDecode, stageName, operation, detail, err)
}

func fmtFloat(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}
