package sink

import (
	"time"

	"mediaworker/internal/jobs"
	"mediaworker/internal/results"
	"mediaworker/internal/transcribe"
)

// Record is an encoded, schema-valid JobResult ready for storage.
type Record struct {
	JobID         string
	Role          jobs.Role
	Status        results.Status
	SchemaVersion int
	ErrorKind     string
	Document      []byte
	// SRT is the rendered transcript for successful transcriptions.
	SRT       string
	CreatedAt time.Time
}

// NewRecord encodes and validates result.
func NewRecord(result *results.JobResult) (Record, error) {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}
	data, err := results.Encode(*result)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		JobID:         result.JobID,
		Role:          jobs.Role(result.Role),
		Status:        result.Status,
		SchemaVersion: results.SchemaVersion,
		ErrorKind:     result.ErrorKind(),
		Document:      data,
		CreatedAt:     result.CompletedAt,
	}
	if result.Succeeded() && result.Transcript != nil {
		rec.SRT = transcribe.SRT(result.Transcript.Segments)
	}
	return rec, nil
}
