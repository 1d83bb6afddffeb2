package dispatch

import "sync/atomic"

// ResponseGate lets exactly one of several racing events produce the
// response for a submission.
type ResponseGate struct {
	fired atomic.Bool
	ch    chan Response
}

func NewResponseGate() *ResponseGate {
	return &ResponseGate{ch: make(chan Response, 1)}
}

// Fire delivers r if the gate is still open. It reports whether r won.
func (g *ResponseGate) Fire(r Response) bool {
	if !g.fired.CompareAndSwap(false, true) {
		return false
	}
	g.ch <- r
	return true
}

// Fired reports whether some response has already won.
func (g *ResponseGate) Fired() bool {
	return g.fired.Load()
}

// C yields the winning response exactly once.
func (g *ResponseGate) C() <-chan Response {
	return g.ch
}
