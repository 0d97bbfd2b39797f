package workpool

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is the cancellation cause for contexts bound to a stopped Signal.
var ErrStopped = errors.New("stop requested")

// Signal is a one-shot graceful stop request. Work already running carries
// on; work not yet started is not begun. A nil *Signal never fires.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unfired signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Stop fires the signal. Repeated calls are no-ops.
func (s *Signal) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.ch) })
}

// Stopped reports whether Stop has been called.
func (s *Signal) Stopped() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done is closed when the signal fires. It is nil for a nil Signal.
func (s *Signal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ch
}

// Bind derives a context that is cancelled with cause ErrStopped when the
// signal fires.
func (s *Signal) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	if s != nil {
		go func() {
			select {
			case <-s.ch:
				cancel(ErrStopped)
			case <-ctx.Done():
			}
		}()
	}
	return ctx, func() { cancel(context.Canceled) }
}
