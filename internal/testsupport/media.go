package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// VideoProbeJSON describes a 10 second clip with a 4x2 video stream and a
// stereo audio stream.
const VideoProbeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 4, "height": 2, "avg_frame_rate": "25/1"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2, "sample_fmt": "fltp"}
  ],
  "format": {"duration": "10.000000", "format_name": "mov,mp4,m4a"}
}`

// AudioProbeJSON describes a 60 second mono audio file.
const AudioProbeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "pcm_s16le", "sample_rate": "16000", "channels": 1, "sample_fmt": "s16"}
  ],
  "format": {"duration": "60.000000", "format_name": "wav"}
}`

// WriteScript writes an executable shell script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// WithFakeFFprobe points decode.ffprobe_binary at a script printing json.
func WithFakeFFprobe(json string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Decode.FFprobeBinary = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "fake-ffprobe", "cat <<'JSON'\n"+json+"\nJSON")
	}
}

// WithFakeFFmpeg points decode.ffmpeg_binary at a script running body.
func WithFakeFFmpeg(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Decode.FFmpegBinary = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "fake-ffmpeg", body)
	}
}
