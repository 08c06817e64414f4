package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediaworker/internal/services/whisperx"
)

// WhisperXEngine transcribes chunks with WhisperX.
type WhisperXEngine struct {
	service *whisperx.Service
}

// NewWhisperXEngine wraps a configured WhisperX service.
func NewWhisperXEngine(service *whisperx.Service) *WhisperXEngine {
	return &WhisperXEngine{service: service}
}

// Name implements Engine.
func (e *WhisperXEngine) Name() string { return "whisperx" }

// Model implements Engine.
func (e *WhisperXEngine) Model() string { return e.service.Model() }

// Transcribe implements Engine.
func (e *WhisperXEngine) Transcribe(ctx context.Context, chunk Chunk) ([]Segment, error) {
	base := fmt.Sprintf("chunk-%04d", chunk.Index)
	wavPath := filepath.Join(chunk.WorkDir, base+".wav")
	outDir := filepath.Join(chunk.WorkDir, base+"-whisperx")
	if err := WriteWAV(wavPath, chunk.SampleRate, chunk.Samples); err != nil {
		return nil, err
	}
	defer os.Remove(wavPath)
	defer os.RemoveAll(outDir)

	raw, err := e.service.TranscribeFile(ctx, wavPath, outDir)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(raw))
	for _, seg := range raw {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start:      seconds(seg.Start),
			End:        seconds(seg.End),
			Text:       text,
			Confidence: clampConfidence(seg.Confidence()),
		})
	}
	return segments, nil
}
