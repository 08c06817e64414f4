package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaworker/internal/config"
	"mediaworker/internal/jobs"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
	"mediaworker/internal/testsupport"
)

const videoOnlyProbe = `{
  "streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 4, "height": 2}],
  "format": {"duration": "5.0", "format_name": "matroska,webm"}
}`

func newTestPipeline(t *testing.T, probe string) (*Pipeline, *config.Config, *blockEngine) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithRole(config.RoleTranscribe),
		testsupport.WithFakeFFprobe(probe),
		testsupport.WithFakeFFmpeg(`case "$*" in *s16le*) head -c 1920000 /dev/zero ;; *) exit 2 ;; esac`),
	)
	engine := &blockEngine{block: 5 * time.Second}
	p, err := NewPipelineWithEngine(cfg, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipelineWithEngine: %v", err)
	}
	return p, cfg, engine
}

func TestPipelineTranscribesSixtySecondFile(t *testing.T) {
	p, cfg, _ := newTestPipeline(t, testsupport.AudioProbeJSON)
	defer p.Close()

	audioPath := filepath.Join(testsupport.BaseDir(cfg), "speech.wav")
	testsupport.WriteFile(t, audioPath, 4096)

	out, err := p.Process(context.Background(), &jobs.Job{ID: "t-1", MediaRef: audioPath, Role: jobs.RoleTranscribe}, t.TempDir())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Transcript == nil || out.Analysis != nil {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Transcript.Chunks != 3 || len(out.Transcript.Segments) != 12 {
		t.Fatalf("expected 3 chunks and 12 segments, got %d and %d", out.Transcript.Chunks, len(out.Transcript.Segments))
	}
	last := out.Transcript.Segments[11]
	if last.End != 60 {
		t.Fatalf("expected transcript to end at 60s, got %v", last.End)
	}
	if out.Media.DurationSeconds != 60 || out.Media.Container != "wav" {
		t.Fatalf("unexpected media info %+v", out.Media)
	}
}

func TestPipelineVideoOnlyIsAudioFormatError(t *testing.T) {
	p, cfg, engine := newTestPipeline(t, videoOnlyProbe)
	defer p.Close()

	clip := filepath.Join(testsupport.BaseDir(cfg), "silent.mkv")
	testsupport.WriteFile(t, clip, 512)

	_, err := p.Process(context.Background(), &jobs.Job{ID: "t-2", MediaRef: clip, Role: jobs.RoleTranscribe}, t.TempDir())
	if !errors.Is(err, services.ErrAudioFormat) {
		t.Fatalf("expected audio format error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("audio format errors must not be retryable")
	}
	if len(engine.offsets) != 0 {
		t.Fatal("engine must not run for unusable audio")
	}
}

func TestPipelineMissingMediaIsFetchError(t *testing.T) {
	p, cfg, _ := newTestPipeline(t, testsupport.AudioProbeJSON)
	defer p.Close()

	missing := filepath.Join(testsupport.BaseDir(cfg), "nope.wav")
	_, err := p.Process(context.Background(), &jobs.Job{ID: "t-3", MediaRef: missing, Role: jobs.RoleTranscribe}, t.TempDir())
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestNewEngineSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRole(config.RoleTranscribe))
	if _, ok := NewEngine(cfg).(*WhisperXEngine); !ok {
		t.Fatal("expected whisperx engine by default")
	}
	cfg.Transcribe.Engine = config.EngineWhisperCPP
	cfg.Transcribe.WhisperCPPModel = "/models/ggml-tiny.bin"
	engine, ok := NewEngine(cfg).(*WhisperCPPEngine)
	if !ok {
		t.Fatal("expected whisper.cpp engine")
	}
	if engine.Model() != "ggml-tiny" {
		t.Fatalf("unexpected model %q", engine.Model())
	}
}

func TestPipelineLogsCarryEachJobsContext(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithRole(config.RoleTranscribe),
		testsupport.WithFakeFFprobe(testsupport.AudioProbeJSON),
		testsupport.WithFakeFFmpeg(`case "$*" in *s16le*) head -c 1920000 /dev/zero ;; *) exit 2 ;; esac`),
	)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p, err := NewPipelineWithEngine(cfg, &blockEngine{block: 5 * time.Second}, logger)
	if err != nil {
		t.Fatalf("NewPipelineWithEngine: %v", err)
	}
	defer p.Close()

	ids := []string{"t-a", "t-b", "t-c"}
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		path := filepath.Join(testsupport.BaseDir(cfg), id+".wav")
		testsupport.WriteFile(t, path, 4096)
		workDir := t.TempDir()
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := services.WithJobID(context.Background(), id)
			_, errs[i] = p.Process(ctx, &jobs.Job{ID: id, MediaRef: path, Role: jobs.RoleTranscribe}, workDir)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Process(%s): %v", ids[i], err)
		}
	}

	finished := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "chunk transcribed" && entry[logging.FieldJobID] == nil {
			t.Fatalf("chunk log without job id: %s", line)
		}
		if entry["msg"] == "audio transcribed" {
			finished[fmt.Sprint(entry[logging.FieldJobID])]++
		}
	}
	if len(finished) != len(ids) {
		t.Fatalf("expected one completion log per job, got %v", finished)
	}
	for _, id := range ids {
		if finished[id] != 1 {
			t.Fatalf("expected one completion log for %s, got %v", id, finished)
		}
	}
}
