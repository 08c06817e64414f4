package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "pix_fmt": "yuv420p"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2, "sample_fmt": "fltp", "duration": "12.5"}
  ],
  "format": {"duration": "12.48", "size": "1000", "format_name": "mov,mp4"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 || result.AudioStreamCount() != 1 {
		t.Fatalf("unexpected stream counts: %d/%d", result.VideoStreamCount(), result.AudioStreamCount())
	}
	if result.DurationSeconds() != 12.48 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	video, ok := result.FirstStream(KindVideo)
	if !ok || video.Width != 1920 {
		t.Fatalf("unexpected video stream: %+v", video)
	}
	if rate := video.FrameRate(); rate < 29.96 || rate > 29.98 {
		t.Fatalf("unexpected frame rate: %v", rate)
	}
	audio, _ := result.FirstStream(KindAudio)
	if audio.SampleRateHz() != 48000 {
		t.Fatalf("unexpected sample rate: %d", audio.SampleRateHz())
	}
}

func TestHelpersHandleMissingValues(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "7.5", SampleRate: "bad", AvgFrameRate: "0/0"}},
		Format:  Format{Duration: "N/A", Size: "-1"},
	}
	if result.DurationSeconds() != 7.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if result.Streams[0].SampleRateHz() != 0 || result.Streams[0].FrameRate() != 0 {
		t.Fatal("expected zero for unparseable values")
	}
	if _, ok := result.FirstStream(KindVideo); ok {
		t.Fatal("expected no video stream")
	}
}

func TestInspectUsesBinaryOutput(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffprobe")
	body := "#!/bin/sh\ncat <<'JSON'\n" + sampleJSON + "\nJSON\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err := Inspect(context.Background(), script, "/media/input.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	failing := filepath.Join(dir, "broken-ffprobe")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err = Inspect(context.Background(), failing, "/media/input.mp4")
	if err == nil || !strings.Contains(err.Error(), "moov atom not found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
