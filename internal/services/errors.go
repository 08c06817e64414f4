package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error markers for every failure kind a job can end with. Stage code tags
// its errors through Wrap; the worker loop classifies them with KindOf.
var (
	ErrFetch         = errors.New("fetch error")
	ErrDecode        = errors.New("decode error")
	ErrQuality       = errors.New("quality error")
	ErrInference     = errors.New("inference error")
	ErrAudioFormat   = errors.New("audio format error")
	ErrTimeout       = errors.New("timeout")
	ErrInternal      = errors.New("internal error")
	ErrConfiguration = errors.New("configuration error")
)

// Kind is the stable, persisted name of a failure class.
type Kind string

const (
	KindNone          Kind = ""
	KindFetch         Kind = "fetch"
	KindDecode        Kind = "decode"
	KindQuality       Kind = "quality"
	KindInference     Kind = "inference"
	KindAudioFormat   Kind = "audio_format"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
	KindConfiguration Kind = "configuration"
)

var kindMarkers = []struct {
	marker error
	kind   Kind
}{
	{ErrTimeout, KindTimeout},
	{ErrFetch, KindFetch},
	{ErrDecode, KindDecode},
	{ErrAudioFormat, KindAudioFormat},
	{ErrQuality, KindQuality},
	{ErrInference, KindInference},
	{ErrConfiguration, KindConfiguration},
	{ErrInternal, KindInternal},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. Untagged errors are internal faults, except bare
// context deadlines which count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, candidate := range kindMarkers {
		if errors.Is(err, candidate.marker) {
			return candidate.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Retryable reports whether a job failing with this kind may be redelivered.
func (k Kind) Retryable() bool {
	switch k {
	case KindFetch, KindInference, KindTimeout, KindInternal:
		return true
	default:
		return false
	}
}

// Retryable reports whether err belongs to a retryable failure kind.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// ParseKind converts a persisted kind name back to a Kind.
func ParseKind(value string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case KindFetch, KindDecode, KindQuality, KindInference, KindAudioFormat, KindTimeout, KindInternal, KindConfiguration:
		return kind, true
	default:
		return KindNone, false
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
