package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/kikiluvv/crestcut/internal/extract"
	"github.com/kikiluvv/crestcut/internal/workpool"
)

// ErrBusy is returned by Start while a run is in progress.
var ErrBusy = errors.New("a run is already in progress")

// Session is a start/stop handle around a single background run, for callers
// that drive the pipeline from another loop.
type Session struct {
	pipeline *Pipeline

	mu      sync.Mutex
	running bool
	stop    *workpool.Signal
	cancel  context.CancelFunc
	done    chan struct{}
	report  *Report
	err     error
}

// NewSession wraps p.
func NewSession(p *Pipeline) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{pipeline: p, done: done}
}

// Start launches a run in the background.
func (s *Session) Start(ctx context.Context, source, outputDir string, progress extract.ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.stop = workpool.NewSignal()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.report, s.err = nil, nil

	stop, done := s.stop, s.done
	go func() {
		report, err := s.pipeline.Run(runCtx, source, outputDir, stop, progress)
		cancel()

		s.mu.Lock()
		s.report, s.err = report, err
		s.running = false
		s.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop asks the current run to finish gracefully: no new clips start, running
// ones complete.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop.Stop()
}

// Abort cancels the current run, killing any running trim.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Running reports whether a run is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the current run ends and returns its outcome. With no run
// started it returns immediately.
func (s *Session) Wait() (*Report, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.err
}
