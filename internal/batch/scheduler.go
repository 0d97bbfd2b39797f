package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/pipeline"
	"github.com/kikiluvv/crestcut/internal/workpool"
)

// DefaultWorkers is the number of videos processed at once.
const DefaultWorkers = 3

// Runner processes a single job.
type Runner interface {
	Run(ctx context.Context, job Job, stop *workpool.Signal) (*pipeline.Report, error)
}

// ProgressFunc is called after each job. Calls are serialised but may come
// from any worker goroutine.
type ProgressFunc func(completed, total int, jobID string, result JobResult)

// Scheduler fans jobs out across a fixed pool. One job's failure or panic
// never affects another.
type Scheduler struct {
	runner  Runner
	workers int
	logger  zerolog.Logger
}

// NewScheduler creates a scheduler; workers <= 0 means DefaultWorkers.
func NewScheduler(logger zerolog.Logger, runner Runner, workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		runner:  runner,
		workers: workers,
		logger:  logger.With().Str("component", "batch").Logger(),
	}
}

// Workers is the batch-level pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Run executes every job and returns a result per job ID. After stop fires no
// new job starts; jobs that never started are recorded as failed.
func (s *Scheduler) Run(ctx context.Context, jobs []Job, stop *workpool.Signal, progress ProgressFunc) map[string]JobResult {
	total := len(jobs)
	results := make(map[string]JobResult, total)
	if total == 0 {
		return results
	}

	gate, unbind := stop.Bind(ctx)
	defer unbind()
	closed := func() bool { return stop.Stopped() || gate.Err() != nil }

	var (
		mu        sync.Mutex
		completed int
	)
	finish := func(r JobResult) {
		mu.Lock()
		defer mu.Unlock()
		results[r.JobID] = r
		completed++
		s.logger.Info().
			Str("job", r.JobID).
			Str("source", r.SourcePath).
			Str("status", string(r.Status)).
			Int("completed", completed).
			Int("total", total).
			Msg("job finished")
		if progress != nil {
			progress(completed, total, r.JobID, r)
		}
	}

	s.logger.Info().Int("jobs", total).Int("workers", s.workers).Msg("starting batch")

	pool := workpool.New(min(s.workers, total))
	for _, job := range jobs {
		if closed() {
			finish(notStarted(job, stop))
			continue
		}
		err := pool.Submit(gate, func() {
			if closed() {
				finish(notStarted(job, stop))
				return
			}
			finish(s.runJob(ctx, job, stop))
		})
		if err != nil {
			finish(notStarted(job, stop))
		}
	}
	pool.Close()

	return results
}

// runJob runs one job and turns any error or panic into a failed result.
func (s *Scheduler) runJob(ctx context.Context, job Job, stop *workpool.Signal) (result JobResult) {
	started := time.Now()
	result = JobResult{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		OutputDir:  job.OutputDir,
		Status:     StatusFailed,
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().
				Str("job", job.ID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
			result.Status = StatusFailed
			result.Err = fmt.Sprintf("panic: %v", rec)
		}
		result.Elapsed = time.Since(started)
	}()

	report, err := s.runner.Run(ctx, job, stop)
	if err != nil {
		result.Err = err.Error()
		if errors.Is(err, pipeline.ErrDependency) {
			s.logger.Error().Err(err).Str("job", job.ID).Msg("media tools unavailable")
		}
		return result
	}

	return ResultFromReport(job, report)
}

func notStarted(job Job, stop *workpool.Signal) JobResult {
	reason := "cancelled before start"
	if stop.Stopped() {
		reason = "stopped before start"
	}
	return JobResult{
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		OutputDir:  job.OutputDir,
		Status:     StatusFailed,
		Err:        reason,
	}
}

// PipelineRunner runs jobs on a shared pipeline with each job's own
// overrides applied.
type PipelineRunner struct {
	Pipeline *pipeline.Pipeline

	// ClipProgress, if set, is called for every finished clip of every job.
	ClipProgress func(job Job, done, total int, result clips.Result)
}

// Run implements Runner.
func (r PipelineRunner) Run(ctx context.Context, job Job, stop *workpool.Signal) (*pipeline.Report, error) {
	settings := r.Pipeline.Settings().WithJob(job.Threshold, job.ClipLength, job.Streaming)
	p, err := r.Pipeline.WithSettings(settings)
	if err != nil {
		return nil, err
	}

	var progress func(done, total int, result clips.Result)
	if r.ClipProgress != nil {
		progress = func(done, total int, result clips.Result) {
			r.ClipProgress(job, done, total, result)
		}
	}
	return p.Run(ctx, job.SourcePath, job.OutputDir, stop, progress)
}
