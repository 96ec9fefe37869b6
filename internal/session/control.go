package session

import "sync/atomic"

// Signals is polled by a running session between chunks.
type Signals interface {
	Paused() bool
	Cancelled() bool
}

// Control is the pause/cancel token of one session.
type Control struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

// NewControl returns a token with no request raised.
func NewControl() *Control {
	return &Control{}
}

func (c *Control) RequestPause() {
	c.paused.Store(true)
}

func (c *Control) RequestResume() {
	c.paused.Store(false)
}

// RequestCancel is sticky: a cancelled token cannot be resumed.
func (c *Control) RequestCancel() {
	c.cancelled.Store(true)
}

func (c *Control) Paused() bool {
	return c.paused.Load()
}

func (c *Control) Cancelled() bool {
	return c.cancelled.Load()
}

type anySignals []Signals

// AnySignals reports a request raised by any of sources. Nil sources are skipped.
func AnySignals(sources ...Signals) Signals {
	out := make(anySignals, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (a anySignals) Paused() bool {
	for _, s := range a {
		if s.Paused() {
			return true
		}
	}
	return false
}

func (a anySignals) Cancelled() bool {
	for _, s := range a {
		if s.Cancelled() {
			return true
		}
	}
	return false
}
