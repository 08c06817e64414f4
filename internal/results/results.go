package results

import (
	"encoding/json"
	"fmt"
	"time"
)

// SchemaVersion is the document version written by this build.
const SchemaVersion = 1

// Status is the terminal outcome recorded for a job.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// JobResult is the versioned result document.
type JobResult struct {
	SchemaVersion int         `json:"schema_version"`
	JobID         string      `json:"job_id"`
	Role          string      `json:"role"`
	Status        Status      `json:"status"`
	Attempts      int         `json:"attempts"`
	MediaRef      string      `json:"media_ref"`
	WorkerID      string      `json:"worker_id,omitempty"`
	CompletedAt   time.Time   `json:"completed_at"`
	Media         *MediaInfo  `json:"media,omitempty"`
	Analysis      *Analysis   `json:"analysis,omitempty"`
	Transcript    *Transcript `json:"transcript,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
}

// MediaInfo describes the processed media.
type MediaInfo struct {
	Container       string  `json:"container,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
}

// Analysis is the vision payload. Frames are ordered by index.
type Analysis struct {
	Analyzer  string          `json:"analyzer"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	SampleFPS float64         `json:"sample_fps,omitempty"`
	Frames    []FrameFinding  `json:"frames"`
	Summary   AnalysisSummary `json:"summary"`
}

// FrameFinding is the analysis of one frame. Error is set, and Metrics
// empty, when the frame could not be analyzed.
type FrameFinding struct {
	Index       int                `json:"index"`
	TimestampMS int64              `json:"timestamp_ms"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Labels      []string           `json:"labels,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Failed reports whether the frame carries an error marker.
func (f FrameFinding) Failed() bool {
	return f.Error != ""
}

// AnalysisSummary aggregates per-frame findings.
type AnalysisSummary struct {
	Frames   int     `json:"frames"`
	Failed   int     `json:"failed"`
	Blank    int     `json:"blank"`
	MeanLuma float64 `json:"mean_luma"`
}

// Transcript is the transcription payload.
type Transcript struct {
	Engine   string    `json:"engine"`
	Model    string    `json:"model,omitempty"`
	Language string    `json:"language,omitempty"`
	Chunks   int       `json:"chunks"`
	Segments []Segment `json:"segments"`
}

// Segment is one transcript entry, times in seconds from media start.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ErrorInfo records why a job failed.
type ErrorInfo struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Succeeded reports whether the result is a success.
func (r JobResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ErrorKind returns the failure kind, or "" for successes.
func (r JobResult) ErrorKind() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

// Encode stamps the schema version, validates, and serializes r.
func Encode(r JobResult) ([]byte, error) {
	r.SchemaVersion = SchemaVersion
	if r.CompletedAt.IsZero() {
		r.CompletedAt = time.Now().UTC()
	}
	r.CompletedAt = r.CompletedAt.UTC()
	if r.Analysis != nil && r.Analysis.Frames == nil {
		r.Analysis.Frames = []FrameFinding{}
	}
	if r.Transcript != nil && r.Transcript.Segments == nil {
		r.Transcript.Segments = []Segment{}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses a stored document, rejecting unknown schema versions.
func Decode(data []byte) (JobResult, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return JobResult{}, fmt.Errorf("decode result: %w", err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return JobResult{}, fmt.Errorf("decode result: unsupported schema_version %d (expected %d)", probe.SchemaVersion, SchemaVersion)
	}
	var r JobResult
	if err := json.Unmarshal(data, &r); err != nil {
		return JobResult{}, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}
