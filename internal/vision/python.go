package vision

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mediaworker/internal/decode"
	"mediaworker/internal/logging"
	"mediaworker/internal/services"
)

// maxMessageBytes bounds a single response from the model process.
const maxMessageBytes = 64 << 20

// PythonOptions configures the model subprocess.
type PythonOptions struct {
	Command        string
	Script         string
	ModelPath      string
	RequestTimeout time.Duration
}

type pythonRequest struct {
	Index       int    `msgpack:"index"`
	TimestampMS int64  `msgpack:"timestamp_ms"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
	FrameData   []byte `msgpack:"frame_data"`
}

type pythonResponse struct {
	Index   int                `msgpack:"index"`
	Metrics map[string]float64 `msgpack:"metrics"`
	Labels  []string           `msgpack:"labels"`
	Error   string             `msgpack:"error"`
}

// PythonAnalyzer forwards frames to a long-lived model process. The process
// is started once and reused across jobs; requests are serialized because
// the wire protocol is strictly request/response. A process that times out
// or desynchronizes is killed and restarted on the next request.
type PythonAnalyzer struct {
	opts   PythonOptions
	logger *slog.Logger

	mu     sync.Mutex
	proc   *pythonProcess
	closed bool
}

// pythonProcess owns the read end of the child's stdout. exec.Cmd.Wait
// never touches it, so reaping the child cannot cut off a reply that is
// still buffered in the pipe.
type pythonProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdoutR *os.File
	stdout  *bufio.Reader
	exited  chan struct{}
}

// release closes the parent's read end once the process is discarded.
func (p *pythonProcess) release() {
	_ = p.stdoutR.Close()
}

// StartPython launches the model process.
func StartPython(opts PythonOptions, logger *slog.Logger) (*PythonAnalyzer, error) {
	if strings.TrimSpace(opts.Command) == "" {
		opts.Command = "python3"
	}
	if strings.TrimSpace(opts.Script) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "python", "script path is required", nil)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	a := &PythonAnalyzer{opts: opts, logger: logging.NewComponentLogger(logger, "vision-python")}
	proc, err := a.spawn()
	if err != nil {
		return nil, err
	}
	a.proc = proc
	return a, nil
}

// Name implements Analyzer.
func (a *PythonAnalyzer) Name() string { return "python" }

func (a *PythonAnalyzer) spawn() (*pythonProcess, error) {
	args := []string{a.opts.Script}
	if a.opts.ModelPath != "" {
		args = append(args, "--model", a.opts.ModelPath)
	}
	cmd := exec.Command(a.opts.Command, args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrInference, "vision", "python", "stdin pipe", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, services.Wrap(services.ErrInference, "vision", "python", "stdout pipe", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, services.Wrap(services.ErrInference, "vision", "python", "stderr pipe", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	startErr := cmd.Start()
	// The child holds its own copies of the write ends; EOF on the read ends
	// then means the child is gone.
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if startErr != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, services.Wrap(services.ErrInference, "vision", "python", "start model process", startErr)
	}
	proc := &pythonProcess{
		cmd:     cmd,
		stdin:   stdin,
		stdoutR: stdoutR,
		stdout:  bufio.NewReader(stdoutR),
		exited:  make(chan struct{}),
	}
	go a.logStderr(stderrR)
	go func() {
		err := cmd.Wait()
		close(proc.exited)
		if err != nil {
			a.logger.Debug("model process exited", logging.Error(err))
		}
	}()
	a.logger.Info("model process started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("script", a.opts.Script),
	)
	return proc, nil
}

func (a *PythonAnalyzer) logStderr(r io.ReadCloser) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			a.logger.Warn("model process error output", logging.String("line", line))
		default:
			a.logger.Debug("model process output", logging.String("line", line))
		}
	}
}

// Alive reports whether the model process is running.
func (a *PythonAnalyzer) Alive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.proc == nil {
		return false
	}
	select {
	case <-a.proc.exited:
		return false
	default:
		return true
	}
}

// Analyze implements Analyzer.
func (a *PythonAnalyzer) Analyze(ctx context.Context, frame decode.Frame) (Finding, error) {
	if !frame.Valid() {
		return Finding{}, ErrMalformedFrame
	}
	payload, err := msgpack.Marshal(pythonRequest{
		Index:       frame.Index,
		TimestampMS: frame.Timestamp.Milliseconds(),
		Width:       frame.Width,
		Height:      frame.Height,
		FrameData:   frame.Pixels,
	})
	if err != nil {
		return Finding{}, services.Wrap(services.ErrInference, "vision", "python", "encode request", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Finding{}, services.Wrap(services.ErrInference, "vision", "python", "analyzer closed", nil)
	}
	if err := a.ensureRunning(); err != nil {
		return Finding{}, err
	}

	type reply struct {
		resp pythonResponse
		err  error
	}
	proc := a.proc
	done := make(chan reply, 1)
	go func() {
		resp, err := roundTrip(proc, payload)
		done <- reply{resp, err}
	}()

	timer := time.NewTimer(a.opts.RequestTimeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		a.reset()
		return Finding{}, ctx.Err()
	case <-timer.C:
		a.reset()
		return Finding{}, services.Wrap(services.ErrInference, "vision", "python",
			fmt.Sprintf("no response for frame %d within %s", frame.Index, a.opts.RequestTimeout), nil)
	}
	if r.err != nil {
		a.reset()
		return Finding{}, services.Wrap(services.ErrInference, "vision", "python", "model process I/O", r.err)
	}
	if r.resp.Index != frame.Index {
		a.reset()
		return Finding{}, services.Wrap(services.ErrInference, "vision", "python",
			fmt.Sprintf("response for frame %d while waiting for %d", r.resp.Index, frame.Index), nil)
	}
	if r.resp.Error != "" {
		return Finding{}, fmt.Errorf("%w: %s", ErrFrameFault, r.resp.Error)
	}
	return Finding{Metrics: r.resp.Metrics, Labels: r.resp.Labels}, nil
}

func roundTrip(proc *pythonProcess, payload []byte) (pythonResponse, error) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := proc.stdin.Write(prefix[:]); err != nil {
		return pythonResponse{}, fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := proc.stdin.Write(payload); err != nil {
		return pythonResponse{}, fmt.Errorf("write frame: %w", err)
	}
	if _, err := io.ReadFull(proc.stdout, prefix[:]); err != nil {
		return pythonResponse{}, fmt.Errorf("read length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxMessageBytes {
		return pythonResponse{}, fmt.Errorf("response of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(proc.stdout, body); err != nil {
		return pythonResponse{}, fmt.Errorf("read response: %w", err)
	}
	var resp pythonResponse
	if err := msgpack.Unmarshal(body, &resp); err != nil {
		return pythonResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// ensureRunning restarts a dead process. Callers hold a.mu.
func (a *PythonAnalyzer) ensureRunning() error {
	if a.proc != nil {
		select {
		case <-a.proc.exited:
			a.proc.release()
		default:
			return nil
		}
	}
	a.logger.Warn("model process not running; restarting",
		logging.String(logging.FieldEventType, "model_restart"),
		logging.String(logging.FieldErrorHint, "check model process output above"),
		logging.String(logging.FieldImpact, "frame analysis resumes after restart"),
	)
	proc, err := a.spawn()
	if err != nil {
		return err
	}
	a.proc = proc
	return nil
}

// reset kills the current process. Callers hold a.mu.
func (a *PythonAnalyzer) reset() {
	if a.proc == nil {
		return
	}
	_ = a.proc.cmd.Process.Kill()
	<-a.proc.exited
	a.proc.release()
	a.proc = nil
}

// Close stops the model process, giving it a moment to exit after stdin
// closes.
func (a *PythonAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.proc == nil {
		return nil
	}
	_ = a.proc.stdin.Close()
	select {
	case <-a.proc.exited:
	case <-time.After(2 * time.Second):
		_ = a.proc.cmd.Process.Kill()
		<-a.proc.exited
	}
	a.proc.release()
	a.proc = nil
	return nil
}

var _ Analyzer = (*PythonAnalyzer)(nil)
var _ Analyzer = (*LumaAnalyzer)(nil)

// errAnalyzerUnavailable is returned when no analyzer is configured.
var errAnalyzerUnavailable = errors.New("vision analyzer unavailable")
