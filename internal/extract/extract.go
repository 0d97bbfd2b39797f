// Package extract cuts planned clips out of their source with a bounded pool
// of trim subprocesses.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/workpool"
	"github.com/kikiluvv/crestcut/pkg/util"
)

// Trimmer copies [start, end) seconds of input into output without
// re-encoding. *ffmpeg.Executor satisfies it.
type Trimmer interface {
	Trim(ctx context.Context, input string, start, end float64, output string) error
}

// Options bound the extraction of one video's clips.
type Options struct {
	Workers        int
	TaskTimeout    time.Duration
	BatchTimeout   time.Duration
	MinOutputBytes int64
}

// DefaultOptions returns 4 workers, 60s per clip, 600s overall and a 1 KiB
// output floor.
func DefaultOptions() Options {
	return Options{
		Workers:        4,
		TaskTimeout:    60 * time.Second,
		BatchTimeout:   600 * time.Second,
		MinOutputBytes: 1024,
	}
}

// ProgressFunc is called once per finished clip. Calls are serialised but may
// come from any worker goroutine, so it must return quickly.
type ProgressFunc func(done, total int, result clips.Result)

// Summary accounts for every spec handed to Extract. Failed includes TimedOut.
type Summary struct {
	Results   []clips.Result
	Succeeded int
	Failed    int
	TimedOut  int
}

// Extractor runs trims for a list of specs.
type Extractor struct {
	trimmer Trimmer
	opts    Options
	logger  zerolog.Logger
}

// New creates an Extractor. Zero fields in opts take their defaults.
func New(logger zerolog.Logger, trimmer Trimmer, opts Options) *Extractor {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = def.TaskTimeout
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = def.BatchTimeout
	}
	if opts.MinOutputBytes <= 0 {
		opts.MinOutputBytes = def.MinOutputBytes
	}
	return &Extractor{
		trimmer: trimmer,
		opts:    opts,
		logger:  logger.With().Str("component", "extract").Logger(),
	}
}

// Extract trims every spec and returns one result per spec, in spec order.
//
// A fired stop signal or the batch deadline keeps new clips from starting;
// clips already running finish or hit their own timeout. Cancelling ctx kills
// running trims.
func (e *Extractor) Extract(ctx context.Context, specs []clips.Spec, stop *workpool.Signal, progress ProgressFunc) Summary {
	total := len(specs)
	results := make([]clips.Result, total)
	if total == 0 {
		return Summary{Results: results}
	}

	batchCtx, cancel := context.WithTimeout(ctx, e.opts.BatchTimeout)
	defer cancel()
	gate, unbind := stop.Bind(batchCtx)
	defer unbind()

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, r clips.Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		done++
		if progress != nil {
			progress(done, total, r)
		}
	}

	// The signal is checked directly as well: Bind cancels asynchronously.
	closed := func() bool { return stop.Stopped() || gate.Err() != nil }

	pool := workpool.New(min(e.opts.Workers, total))
	for i, spec := range specs {
		if closed() {
			finish(i, e.unstarted(spec, stop, gate))
			continue
		}
		err := pool.Submit(gate, func() {
			if closed() {
				finish(i, e.unstarted(spec, stop, gate))
				return
			}
			finish(i, e.run(ctx, spec))
		})
		if err != nil {
			finish(i, e.unstarted(spec, stop, gate))
		}
	}
	pool.Close()

	sum := Summary{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case clips.Succeeded:
			sum.Succeeded++
		case clips.TimedOut:
			sum.TimedOut++
			sum.Failed++
		default:
			sum.Failed++
		}
	}

	e.logger.Info().
		Int("total", total).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("timed_out", sum.TimedOut).
		Msg("clip extraction finished")
	return sum
}

// unstarted records a spec that never reached the trimmer.
func (e *Extractor) unstarted(spec clips.Spec, stop *workpool.Signal, gate context.Context) clips.Result {
	r := clips.Result{Spec: spec, Outcome: clips.Failed}
	cause := context.Cause(gate)
	switch {
	case stop.Stopped() || errors.Is(cause, workpool.ErrStopped):
		r.Err = "stopped before start"
	case errors.Is(cause, context.DeadlineExceeded):
		r.Outcome = clips.TimedOut
		r.Err = "batch timeout reached before start"
	default:
		r.Err = "cancelled before start"
	}
	return r
}

// run trims one spec into a .part file and renames it into place only after
// the output passes the size check.
func (e *Extractor) run(ctx context.Context, spec clips.Spec) clips.Result {
	started := time.Now()
	r := clips.Result{Spec: spec, Outcome: clips.Failed}
	log := e.logger.With().Str("output", filepath.Base(spec.OutputPath)).Logger()

	defer func() {
		r.Elapsed = time.Since(started)
		if r.OK() {
			log.Debug().Int64("bytes", r.Bytes).Dur("elapsed", r.Elapsed).Msg("clip written")
		} else {
			log.Warn().Str("outcome", r.Outcome.String()).Str("error", r.Err).Msg("clip failed")
		}
	}()

	if err := util.EnsureDir(filepath.Dir(spec.OutputPath)); err != nil {
		r.Err = fmt.Sprintf("create output dir: %v", err)
		return r
	}

	taskCtx, cancel := context.WithTimeout(ctx, e.opts.TaskTimeout)
	defer cancel()

	tmp := util.PartialPath(spec.OutputPath)
	if err := e.trimmer.Trim(taskCtx, spec.SourcePath, spec.Start, spec.End, tmp); err != nil {
		util.CleanupFiles(tmp)
		if ctx.Err() == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			r.Outcome = clips.TimedOut
			r.Err = fmt.Sprintf("trim exceeded %s", e.opts.TaskTimeout)
			return r
		}
		r.Err = err.Error()
		return r
	}

	size := util.FileSize(tmp)
	if size < 0 {
		r.Err = "trim exited cleanly but wrote no output"
		return r
	}
	if size <= e.opts.MinOutputBytes {
		util.CleanupFiles(tmp)
		r.Err = fmt.Sprintf("output is %d bytes, not above the %d byte minimum", size, e.opts.MinOutputBytes)
		return r
	}

	if err := os.Rename(tmp, spec.OutputPath); err != nil {
		util.CleanupFiles(tmp)
		r.Err = fmt.Sprintf("move output into place: %v", err)
		return r
	}

	r.Outcome = clips.Succeeded
	r.Bytes = size
	return r
}
