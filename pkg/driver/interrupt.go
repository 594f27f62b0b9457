package driver

import (
	"sync"
	"sync/atomic"
)

// Interrupt is an external stop request. It is polled by the loop once per
// iteration; in-flight reads and track calls are never aborted.
type Interrupt struct {
	once   sync.Once
	ch     chan struct{}
	reason atomic.Value
}

// NewInterrupt returns an untriggered interrupt
func NewInterrupt() *Interrupt {
	return &Interrupt{ch: make(chan struct{})}
}

// Trigger requests a stop. Only the first reason is kept. Safe from any goroutine.
func (i *Interrupt) Trigger(reason string) {
	i.once.Do(func() {
		i.reason.Store(reason)
		close(i.ch)
	})
}

// Requested reports whether Trigger was called
func (i *Interrupt) Requested() bool {
	select {
	case <-i.ch:
		return true
	default:
		return false
	}
}

// Done is closed once Trigger was called
func (i *Interrupt) Done() <-chan struct{} {
	return i.ch
}

// Reason returns the first trigger reason, or "" if not triggered
func (i *Interrupt) Reason() string {
	if r, ok := i.reason.Load().(string); ok {
		return r
	}
	return ""
}
