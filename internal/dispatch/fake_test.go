package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/holdline/internal/worker"
)

var errTerminated = errors.New("signal: terminated")

// fakeProcess is a worker whose exit is driven by the test.
type fakeProcess struct {
	pid        int
	done       chan struct{}
	once       sync.Once
	out        worker.Output
	err        error
	terminated atomic.Bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) exit(out worker.Output, err error) {
	p.once.Do(func() {
		p.out = out
		p.err = err
		close(p.done)
	})
}

func (p *fakeProcess) Wait() (worker.Output, error) {
	<-p.done
	return p.out, p.err
}

func (p *fakeProcess) Terminate() error {
	p.terminated.Store(true)
	p.exit(worker.Output{ExitCode: -1}, errTerminated)
	return nil
}

// fakeLauncher hands out processes in order and records the inputs.
type fakeLauncher struct {
	mu        sync.Mutex
	inputs    []string
	procs     []*fakeProcess
	err       error
	onLaunch  func(p *fakeProcess)
	nextPid   int
	launchedC chan *fakeProcess
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPid: 100, launchedC: make(chan *fakeProcess, 16)}
}

func (l *fakeLauncher) Launch(input string) (worker.Process, error) {
	l.mu.Lock()
	l.inputs = append(l.inputs, input)
	if l.err != nil {
		l.mu.Unlock()
		return nil, l.err
	}
	l.nextPid++
	p := newFakeProcess(l.nextPid)
	l.procs = append(l.procs, p)
	hook := l.onLaunch
	l.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	l.launchedC <- p
	return p, nil
}
