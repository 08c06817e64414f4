package vision

import (
	"context"
	"errors"
	"fmt"

	"mediaworker/internal/decode"
)

// ErrFrameFault marks a recoverable, frame-local analysis failure.
var ErrFrameFault = errors.New("frame fault")

// ErrMalformedFrame is returned for frames whose buffer does not match
// their dimensions.
var ErrMalformedFrame = fmt.Errorf("%w: malformed frame data", ErrFrameFault)

// Finding is the analysis of one frame.
type Finding struct {
	Metrics map[string]float64
	Labels  []string
}

// Analyzer inspects a single frame. Implementations must be safe for
// concurrent use.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, frame decode.Frame) (Finding, error)
	Close() error
}

// IsFrameFault reports whether err only affects the frame it came from.
func IsFrameFault(err error) bool {
	return errors.Is(err, ErrFrameFault)
}
