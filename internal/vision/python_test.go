package vision

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mediaworker/internal/decode"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

const helperEnv = "MEDIAWORKER_VISION_HELPER"

// TestHelperModelProcess is not a real test: it is the model process that
// the python analyzer tests spawn.
func TestHelperModelProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}
	in := bufio.NewReader(os.Stdin)
	for {
		var prefix [4]byte
		if _, err := io.ReadFull(in, prefix[:]); err != nil {
			os.Exit(0)
		}
		body := make([]byte, binary.BigEndian.Uint32(prefix[:]))
		if _, err := io.ReadFull(in, body); err != nil {
			os.Exit(1)
		}
		var req pythonRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			os.Exit(2)
		}
		resp := pythonResponse{Index: req.Index}
		switch req.Index {
		case 7:
			resp.Error = "no detections possible"
		case 99:
			time.Sleep(time.Minute)
		case 42:
			os.Exit(3)
		default:
			resp.Metrics = map[string]float64{"people": float64(len(req.FrameData))}
			resp.Labels = []string{"person"}
		}
		out, _ := msgpack.Marshal(resp)
		binary.BigEndian.PutUint32(prefix[:], uint32(len(out)))
		_, _ = os.Stdout.Write(prefix[:])
		_, _ = os.Stdout.Write(out)
		if req.Index == 43 {
			os.Exit(0)
		}
	}
}

func startHelper(t *testing.T, timeout time.Duration) *PythonAnalyzer {
	t.Helper()
	t.Setenv(helperEnv, "1")
	a, err := StartPython(PythonOptions{
		Command:        os.Args[0],
		Script:         "-test.run=^TestHelperModelProcess$",
		RequestTimeout: timeout,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("StartPython: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func frameAt(index int) decode.Frame {
	return decode.Frame{Index: index, Width: 2, Height: 2, Pixels: make([]byte, 12)}
}

func TestPythonAnalyzerRoundTrip(t *testing.T) {
	a := startHelper(t, 5*time.Second)
	finding, err := a.Analyze(context.Background(), frameAt(1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if finding.Metrics["people"] != 12 || len(finding.Labels) != 1 {
		t.Fatalf("unexpected finding: %+v", finding)
	}

	_, err = a.Analyze(context.Background(), frameAt(7))
	if !IsFrameFault(err) {
		t.Fatalf("expected frame fault, got %v", err)
	}
	if !a.Alive() {
		t.Fatal("frame faults must not kill the model process")
	}
}

func TestPythonAnalyzerTimeoutRestartsProcess(t *testing.T) {
	a := startHelper(t, 200*time.Millisecond)
	_, err := a.Analyze(context.Background(), frameAt(99))
	if !errors.Is(err, services.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
	if _, err := a.Analyze(context.Background(), frameAt(2)); err != nil {
		t.Fatalf("expected restarted process to answer, got %v", err)
	}
}

func TestPythonAnalyzerCrashIsInferenceError(t *testing.T) {
	a := startHelper(t, 5*time.Second)
	_, err := a.Analyze(context.Background(), frameAt(42))
	if !errors.Is(err, services.ErrInference) {
		t.Fatalf("expected inference error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("inference errors must be retryable")
	}
}

func TestStartPythonRequiresScript(t *testing.T) {
	if _, err := StartPython(PythonOptions{}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPythonAnalyzerReadsReplyWrittenBeforeExit(t *testing.T) {
	for round := 0; round < 5; round++ {
		a := startHelper(t, 5*time.Second)
		finding, err := a.Analyze(context.Background(), frameAt(43))
		if err != nil {
			t.Fatalf("round %d: reply written before exit was lost: %v", round, err)
		}
		if finding.Metrics["people"] != 12 {
			t.Fatalf("round %d: unexpected finding %+v", round, finding)
		}

		deadline := time.Now().Add(5 * time.Second)
		for a.Alive() {
			if time.Now().After(deadline) {
				t.Fatalf("round %d: model process did not exit", round)
			}
			time.Sleep(10 * time.Millisecond)
		}
		if _, err := a.Analyze(context.Background(), frameAt(2)); err != nil {
			t.Fatalf("round %d: expected restart after exit, got %v", round, err)
		}
		_ = a.Close()
	}
}
