package decode

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 4, "height": 2, "avg_frame_rate": "2/1"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2, "sample_fmt": "fltp"}
  ],
  "format": {"duration": "10.0", "format_name": "mov,mp4"}
}`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestDecoder(t *testing.T, ffmpegBody, ffprobeBody string) *Decoder {
	t.Helper()
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", ffmpegBody)
	ffprobe := writeScript(t, dir, "ffprobe", ffprobeBody)
	return New(ffmpeg, ffprobe, logging.NewNop())
}

func probeScript(json string) string {
	return "cat <<'JSON'\n" + json + "\nJSON"
}

func TestProbe(t *testing.T) {
	d := newTestDecoder(t, "exit 0", probeScript(probeJSON))
	info, err := d.Probe(context.Background(), "/media/clip.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Fatalf("expected both streams: %+v", info)
	}
	if info.Duration != 10*time.Second || info.FrameRate != 2 || info.SampleRate != 48000 {
		t.Fatalf("unexpected probe: %+v", info)
	}
}

func TestProbeCorruptContainerIsDecodeError(t *testing.T) {
	d := newTestDecoder(t, "exit 0", "echo 'Invalid data found when processing input' >&2\nexit 1")
	_, err := d.Probe(context.Background(), "/media/corrupt.mp4")
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("decode errors must not be retryable")
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected ffprobe diagnostics in error, got %v", err)
	}

	empty := newTestDecoder(t, "exit 0", probeScript(`{"streams": [], "format": {}}`))
	if _, err := empty.Probe(context.Background(), "/media/empty.mkv"); !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error for streamless media, got %v", err)
	}
}

func TestFramesYieldsOrderedOwnedFrames(t *testing.T) {
	// 5 frames of 4x2 RGB24 = 5 * 24 bytes.
	d := newTestDecoder(t, `case "$*" in *rgb24*) head -c 120 /dev/zero ;; *) exit 2 ;; esac`, probeScript(probeJSON))
	info, err := d.Probe(context.Background(), "/media/clip.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	seq, err := d.Frames(context.Background(), info, FrameOptions{SampleFPS: 0.5})
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	defer seq.Close()

	var frames []Frame
	for {
		frame, ok, err := seq.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i {
			t.Fatalf("frame %d has index %d", i, frame.Index)
		}
		if frame.Timestamp != time.Duration(i)*2*time.Second {
			t.Fatalf("frame %d has timestamp %v", i, frame.Timestamp)
		}
		if !frame.Valid() {
			t.Fatalf("frame %d invalid", i)
		}
	}
	frames[0].Pixels[0] = 255
	if frames[1].Pixels[0] != 0 {
		t.Fatal("frame buffers must not alias")
	}
	if _, ok, _ := seq.Next(); ok {
		t.Fatal("sequence must not restart")
	}
	if err := seq.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestFramesMidStreamFailureIsDecodeError(t *testing.T) {
	d := newTestDecoder(t, "head -c 30 /dev/zero\necho 'corrupt packet' >&2\nexit 1", probeScript(probeJSON))
	info, _ := d.Probe(context.Background(), "/media/clip.mp4")
	seq, err := d.Frames(context.Background(), info, FrameOptions{})
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	defer seq.Close()

	if _, ok, err := seq.Next(); !ok || err != nil {
		t.Fatalf("expected first frame, got ok=%v err=%v", ok, err)
	}
	_, ok, err := seq.Next()
	if ok || !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(err.Error(), "corrupt packet") {
		t.Fatalf("expected stderr detail, got %v", err)
	}
}

func TestFramesRequiresVideo(t *testing.T) {
	d := New("ffmpeg", "ffprobe", logging.NewNop())
	_, err := d.Frames(context.Background(), Probe{HasAudio: true}, FrameOptions{})
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestFramesCancellation(t *testing.T) {
	d := newTestDecoder(t, "exec sleep 5", probeScript(probeJSON))
	info, _ := d.Probe(context.Background(), "/media/clip.mp4")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	seq, err := d.Frames(ctx, info, FrameOptions{})
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	defer seq.Close()
	start := time.Now()
	_, ok, err := seq.Next()
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got ok=%v err=%v", ok, err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("cancellation did not stop ffmpeg promptly")
	}
}

func TestScaledSize(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{1920, 1080, 640, 640, 360},
		{640, 480, 0, 640, 480},
		{320, 241, 640, 320, 240},
		{1281, 721, 1280, 1280, 720},
	}
	for _, tc := range cases {
		w, h := scaledSize(tc.w, tc.h, tc.max)
		if w != tc.wantW || h != tc.wantH {
			t.Fatalf("scaledSize(%d,%d,%d) = %dx%d, want %dx%d", tc.w, tc.h, tc.max, w, h, tc.wantW, tc.wantH)
		}
	}
}

func TestAudioSegments(t *testing.T) {
	// 1.5 seconds of 16 kHz mono s16le.
	d := newTestDecoder(t, `case "$*" in *s16le*) head -c 48000 /dev/zero ;; *) exit 2 ;; esac`, probeScript(probeJSON))
	info, _ := d.Probe(context.Background(), "/media/clip.mp4")
	stream, err := d.Audio(context.Background(), info, AudioOptions{})
	if err != nil {
		t.Fatalf("Audio: %v", err)
	}
	defer stream.Close()

	first, err := stream.ReadSegment(DefaultSampleRate)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if first.Start != 0 || first.End != time.Second || len(first.Samples) != 16000 {
		t.Fatalf("unexpected first segment: %v-%v (%d)", first.Start, first.End, len(first.Samples))
	}
	second, err := stream.ReadSegment(DefaultSampleRate)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if second.Start != time.Second || second.End != 1500*time.Millisecond {
		t.Fatalf("unexpected second segment: %v-%v", second.Start, second.End)
	}
	if _, err := stream.ReadSegment(DefaultSampleRate); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestCheckAudioFormat(t *testing.T) {
	cases := []struct {
		name string
		info Probe
		ok   bool
	}{
		{"valid", Probe{HasAudio: true, Channels: 2, SampleRate: 44100, SampleFmt: "s16"}, true},
		{"no audio", Probe{HasVideo: true}, false},
		{"no channels", Probe{HasAudio: true, SampleRate: 44100, SampleFmt: "s16"}, false},
		{"no rate", Probe{HasAudio: true, Channels: 1, SampleFmt: "s16"}, false},
		{"unknown format", Probe{HasAudio: true, Channels: 1, SampleRate: 8000, SampleFmt: "s24be"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAudioFormat(tc.info)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, services.ErrAudioFormat) {
					t.Fatalf("expected audio format error, got %v", err)
				}
				if services.Retryable(err) {
					t.Fatal("audio format errors must not be retryable")
				}
			}
		})
	}
}
