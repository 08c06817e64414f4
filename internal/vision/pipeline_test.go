package vision

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
	"mediaworker/internal/testsupport"
)

func TestPipelineTenSecondClipWithFiveFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithFakeFFprobe(testsupport.VideoProbeJSON),
		testsupport.WithFakeFFmpeg(`case "$*" in *rgb24*) head -c 120 /dev/zero ;; *) exit 2 ;; esac`),
	)
	cfg.Vision.SampleFPS = 0.5

	clip := filepath.Join(testsupport.BaseDir(cfg), "clip.mp4")
	testsupport.WriteFile(t, clip, 2048)

	p, err := NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	job := &jobs.Job{ID: "job-1", MediaRef: clip, Role: jobs.RoleVision}
	out, err := p.Process(context.Background(), job, t.TempDir())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Analysis == nil || out.Transcript != nil {
		t.Fatalf("unexpected output: %+v", out)
	}
	frames := out.Analysis.Frames
	if len(frames) != 5 {
		t.Fatalf("expected 5 findings, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Index != i {
			t.Fatalf("finding %d has index %d", i, f.Index)
		}
		if want := (time.Duration(i) * 2 * time.Second).Milliseconds(); f.TimestampMS != want {
			t.Fatalf("finding %d timestamp %d, want %d", i, f.TimestampMS, want)
		}
	}
	if out.Analysis.Summary.Blank != 5 {
		t.Fatalf("expected black frames to be blank: %+v", out.Analysis.Summary)
	}
	if out.Media.DurationSeconds != 10 || out.Media.SizeBytes != 2048 {
		t.Fatalf("unexpected media info: %+v", out.Media)
	}
	if out.Analysis.Width != 4 || out.Analysis.Height != 2 {
		t.Fatalf("unexpected dimensions: %dx%d", out.Analysis.Width, out.Analysis.Height)
	}
}

func TestPipelineCorruptMediaIsDecodeError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFakeFFmpeg("exit 0"))
	cfg.Decode.FFprobeBinary = testsupport.WriteScript(t, t.TempDir(), "ffprobe", "echo 'moov atom not found' >&2; exit 1")

	clip := filepath.Join(testsupport.BaseDir(cfg), "corrupt.mp4")
	testsupport.WriteFile(t, clip, 64)

	p, err := NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	_, err = p.Process(context.Background(), &jobs.Job{ID: "j", MediaRef: clip, Role: jobs.RoleVision}, t.TempDir())
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestPipelineMissingMediaIsFetchError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	p, err := NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	_, err = p.Process(context.Background(), &jobs.Job{ID: "j", MediaRef: "/nonexistent/clip.mp4", Role: jobs.RoleVision}, t.TempDir())
	if services.KindOf(err) != services.KindFetch {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestPipelineHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithFakeFFprobe(testsupport.VideoProbeJSON),
		testsupport.WithFakeFFmpeg("exit 0"),
	)
	p, err := NewPipeline(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()
	if h := p.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy pipeline: %+v", h)
	}

	cfg.Decode.FFmpegBinary = "definitely-missing-ffmpeg"
	if h := p.HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected missing ffmpeg to be reported")
	}
}
