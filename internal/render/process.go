package render

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"wildcut/internal/services"
)

var commandFactory = exec.Command

// Process is a managed transcoder run: started in its own process group so
// cancellation can signal every descendant, with the progress stream parsed
// as it arrives.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	tail []string
}

// StartProcess launches the transcoder with stdout and stderr merged into a
// single stream that feeds the progress parser.
func StartProcess(binary string, args []string, phase string, totalOutSeconds float64, onProgress func(Progress)) (*Process, error) {
	cmd := commandFactory(binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "render", "start transcoder", binary, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		tail := parseProgressStream(stdout, phase, totalOutSeconds, onProgress)
		p.mu.Lock()
		p.tail = tail
		p.mu.Unlock()
	}()
	return p, nil
}

// PID returns the process identifier of the running transcoder.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Supervise blocks until the transcoder exits. On a non-zero exit the
// captured output tail becomes part of the returned error.
func (p *Process) Supervise() error {
	<-p.done
	if err := p.cmd.Wait(); err != nil {
		tail := p.Tail(20)
		return services.Wrap(services.ErrExternalTool, "render", "transcoder",
			strings.Join(tail, "\n"), err)
	}
	return nil
}

// Tail returns up to n trailing diagnostic lines from the merged output.
func (p *Process) Tail(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tail) <= n {
		return append([]string(nil), p.tail...)
	}
	return append([]string(nil), p.tail[len(p.tail)-n:]...)
}

// Terminate signals the whole process group, escalating to SIGKILL after the
// grace period. It returns once the output stream has drained.
func (p *Process) Terminate(grace time.Duration) {
	pid := p.PID()
	if pid <= 0 {
		return
	}
	// Negative pid addresses the process group.
	_ = unix.Kill(-pid, unix.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(grace):
		_ = unix.Kill(-pid, unix.SIGKILL)
		<-p.done
	}
}
