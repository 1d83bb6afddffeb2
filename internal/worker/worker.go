package worker

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultMaxOutputBytes caps combined stdout+stderr captured from a worker.
	DefaultMaxOutputBytes = 1024 * 1024

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second

	// InputPlaceholder in an argument is replaced by the worker input.
	InputPlaceholder = "{input}"
)

// ErrTimedOut is returned by Wait when the worker hit its hard timeout.
var ErrTimedOut = errors.New("worker timed out")

// Output is what a worker left behind when it exited.
type Output struct {
	Text      string
	Truncated bool
	ExitCode  int
}

// Process is a running worker.
type Process interface {
	Pid() int
	// Wait blocks until the worker exits. A non-nil error means the worker
	// timed out (ErrTimedOut), exited non-zero, or could not be waited on;
	// Output is populated in every case.
	Wait() (Output, error)
	// Terminate asks the worker to stop and escalates to SIGKILL after the
	// grace period. It does not block.
	Terminate() error
}

// Launcher starts workers.
type Launcher interface {
	Launch(input string) (Process, error)
}

// ExecLauncher runs Command with Args, substituting the input for every
// InputPlaceholder. When no argument carries the placeholder the input is
// appended as the final argument.
type ExecLauncher struct {
	Command        string
	Args           []string
	Dir            string
	Env            []string
	Timeout        time.Duration
	GracePeriod    time.Duration
	MaxOutputBytes int
}

// Launch starts the worker. The worker is not tied to any request context: it
// runs until it exits, is terminated, or reaches the hard timeout.
func (l *ExecLauncher) Launch(input string) (Process, error) {
	if l.Command == "" {
		return nil, fmt.Errorf("worker command is empty")
	}

	cmd := exec.Command(l.Command, l.buildArgs(input)...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(cmd.Environ(), l.Env...)
	}
	setProcessGroup(cmd)

	max := l.MaxOutputBytes
	if max <= 0 {
		max = DefaultMaxOutputBytes
	}
	out := &cappedBuffer{max: max}
	cmd.Stdout = out
	cmd.Stderr = out

	grace := l.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	// Orphaned grandchildren holding the output pipe must not stall Wait.
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	p := &execProcess{
		cmd:   cmd,
		out:   out,
		grace: grace,
		done:  make(chan struct{}),
	}
	go p.wait()
	if l.Timeout > 0 {
		go p.enforceTimeout(l.Timeout)
	}
	return p, nil
}

func (l *ExecLauncher) buildArgs(input string) []string {
	args := make([]string, 0, len(l.Args)+1)
	substituted := false
	for _, a := range l.Args {
		if strings.Contains(a, InputPlaceholder) {
			a = strings.ReplaceAll(a, InputPlaceholder, input)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, input)
	}
	return args
}

type execProcess struct {
	cmd   *exec.Cmd
	out   *cappedBuffer
	grace time.Duration

	done     chan struct{}
	waitErr  error
	timedOut bool
	mu       sync.Mutex
	stopOnce sync.Once
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) enforceTimeout(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		p.mu.Lock()
		p.timedOut = true
		p.mu.Unlock()
		_ = p.Terminate()
	}
}

func (p *execProcess) Terminate() error {
	var err error
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		err = signalGroup(p.cmd, syscall.SIGTERM)
		go p.escalate()
	})
	return err
}

func (p *execProcess) escalate() {
	grace := time.NewTimer(p.grace)
	defer grace.Stop()

	select {
	case <-p.done:
	case <-grace.C:
		_ = signalGroup(p.cmd, syscall.SIGKILL)
	}
}

func (p *execProcess) Wait() (Output, error) {
	<-p.done

	text, truncated := p.out.Result()
	out := Output{
		Text:      text,
		Truncated: truncated,
		ExitCode:  p.cmd.ProcessState.ExitCode(),
	}

	p.mu.Lock()
	timedOut := p.timedOut
	p.mu.Unlock()
	if timedOut {
		return out, ErrTimedOut
	}
	if p.waitErr != nil {
		return out, fmt.Errorf("worker exited: %w", p.waitErr)
	}
	return out, nil
}

// cappedBuffer keeps the first max bytes written to it and discards the rest.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.max - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) Result() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf), b.truncated
}
