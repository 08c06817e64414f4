package stage

import (
	"context"
	"errors"
	"testing"

	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

func TestStepAnnotatesContext(t *testing.T) {
	var seen string
	err := Step(context.Background(), logging.NewNop(), "decode", func(ctx context.Context) error {
		seen, _ = services.StageFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if seen != "decode" {
		t.Fatalf("expected stage on context, got %q", seen)
	}
}

func TestStepReturnsError(t *testing.T) {
	want := services.Wrap(services.ErrDecode, "decode", "probe", "bad", nil)
	err := Step(context.Background(), nil, "decode", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected step error, got %v", err)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("vision"); !h.Ready || h.Name != "vision" {
		t.Fatalf("unexpected healthy record: %+v", h)
	}
	if h := Unhealthy("transcribe", "ffmpeg missing"); h.Ready || h.Detail != "ffmpeg missing" {
		t.Fatalf("unexpected unhealthy record: %+v", h)
	}
}
