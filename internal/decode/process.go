package decode

import (
	"context"
	"io"
	"os/exec"
	"sync"
)

// stderrLimit bounds the diagnostic text retained from ffmpeg.
const stderrLimit = 4096

// tailBuffer keeps the last stderrLimit bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrLimit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// process is a running ffmpeg whose stdout is consumed incrementally.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	once    sync.Once
	waitErr error
}

func startProcess(ctx context.Context, binary string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// wait reaps the process once and returns its exit error.
func (p *process) wait() error {
	p.once.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

// kill terminates the process if it is still running and reaps it.
func (p *process) kill() {
	if p.cmd.Process != nil && p.cmd.ProcessState == nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.wait()
}
