package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEverything(t *testing.T) {
	p := New(3)
	var n atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { n.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int32(50), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2)
	var running, peak atomic.Int32
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(context.Background(), func() {
			cur := running.Add(1)
			mu.Lock()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	p.Close()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolDefaultSize(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.Greater(t, p.Size(), 0)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrClosed)
}

func TestSubmitHonoursContext(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	defer func() {
		close(block)
		p.Close()
	}()

	// One running plus a full queue of two.
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { <-block }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Stopped())

	s.Stop()
	s.Stop()
	assert.True(t, s.Stopped())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestNilSignal(t *testing.T) {
	var s *Signal
	s.Stop()
	assert.False(t, s.Stopped())
	assert.Nil(t, s.Done())

	ctx, cancel := s.Bind(context.Background())
	assert.NoError(t, ctx.Err())
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestBindCause(t *testing.T) {
	s := NewSignal()
	ctx, cancel := s.Bind(context.Background())
	defer cancel()

	s.Stop()
	<-ctx.Done()
	assert.True(t, errors.Is(context.Cause(ctx), ErrStopped))
}
