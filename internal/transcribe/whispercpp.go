package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// WhisperCPPOptions configures the whisper.cpp engine.
type WhisperCPPOptions struct {
	Binary   string
	Model    string
	Language string
}

// WhisperCPPEngine transcribes chunks with the whisper.cpp CLI.
type WhisperCPPEngine struct {
	opts   WhisperCPPOptions
	runner commandRunner
}

// NewWhisperCPPEngine constructs a whisper.cpp engine.
func NewWhisperCPPEngine(opts WhisperCPPOptions) *WhisperCPPEngine {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "whisper-cli"
	}
	return &WhisperCPPEngine{opts: opts, runner: execRunner{}}
}

// Name implements Engine.
func (e *WhisperCPPEngine) Name() string { return "whispercpp" }

// Model implements Engine.
func (e *WhisperCPPEngine) Model() string {
	return strings.TrimSuffix(filepath.Base(e.opts.Model), filepath.Ext(e.opts.Model))
}

// Transcribe implements Engine.
func (e *WhisperCPPEngine) Transcribe(ctx context.Context, chunk Chunk) ([]Segment, error) {
	base := filepath.Join(chunk.WorkDir, fmt.Sprintf("chunk-%04d", chunk.Index))
	wavPath := base + ".wav"
	jsonPath := base + ".json"
	if err := WriteWAV(wavPath, chunk.SampleRate, chunk.Samples); err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)
	defer os.Remove(jsonPath)

	output, err := e.runner.Run(ctx, e.opts.Binary, e.buildArgs(wavPath, base)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("whisper.cpp: %w: %s", err, strings.TrimSpace(string(output)))
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp: read output: %w", err)
	}
	return parseWhisperCPP(data)
}

func (e *WhisperCPPEngine) buildArgs(wavPath, outputBase string) []string {
	args := []string{
		"-m", e.opts.Model,
		"-f", wavPath,
		"-ojf",
		"-of", outputBase,
		"-np",
	}
	if lang := strings.TrimSpace(e.opts.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

type whisperCPPOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string `json:"text"`
		Tokens []struct {
			Text string  `json:"text"`
			P    float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// parseWhisperCPP converts whisper.cpp full JSON output (-ojf) into
// segments. Offsets are milliseconds; confidence is the mean probability of
// the text tokens, skipping special tokens such as [_BEG_].
func parseWhisperCPP(data []byte) ([]Segment, error) {
	var payload whisperCPPOutput
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("whisper.cpp: parse output: %w", err)
	}
	segments := make([]Segment, 0, len(payload.Transcription))
	for _, item := range payload.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		var sum float64
		var n int
		for _, token := range item.Tokens {
			if strings.HasPrefix(token.Text, "[_") {
				continue
			}
			sum += token.P
			n++
		}
		confidence := 0.0
		if n > 0 {
			confidence = sum / float64(n)
		}
		segments = append(segments, Segment{
			Start:      millis(item.Offsets.From),
			End:        millis(item.Offsets.To),
			Text:       text,
			Confidence: clampConfidence(confidence),
		})
	}
	return segments, nil
}
