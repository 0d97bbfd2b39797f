package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/extract"
	"github.com/kikiluvv/crestcut/internal/highlight"
	"github.com/kikiluvv/crestcut/internal/pipeline"
	"github.com/kikiluvv/crestcut/internal/workpool"
)

// fakeRunner returns canned reports keyed by source path.
type fakeRunner struct {
	highlights int
	failClips  int
	errs       map[string]error
	panics     map[string]bool
	delay      time.Duration
	hook       func(job Job)

	running, peak atomic.Int32
	calls         atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, job Job, stop *workpool.Signal) (*pipeline.Report, error) {
	f.calls.Add(1)
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	if f.hook != nil {
		f.hook(job)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics[job.SourcePath] {
		panic("decoder exploded")
	}
	if err := f.errs[job.SourcePath]; err != nil {
		return nil, err
	}

	report := &pipeline.Report{}
	for i := 0; i < f.highlights; i++ {
		report.Events = append(report.Events, highlight.Event{Position: i * 60})
	}
	results := make([]clips.Result, f.highlights)
	for i := range results {
		if i < f.failClips {
			results[i].Outcome = clips.Failed
			report.Clips.Failed++
		} else {
			report.Clips.Succeeded++
		}
	}
	report.Clips.Results = results
	return report, nil
}

func sources(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/videos/stream-%02d.mp4", i)
	}
	return out
}

func TestNewJobs(t *testing.T) {
	jobs := NewJobs([]string{"/a/match.mp4", "/b/match.mkv", "/a/other.mp4"}, "/out", -12, 40, true)

	require.Len(t, jobs, 3)
	assert.Equal(t, filepath.Join("/out", "match_highlights"), jobs[0].OutputDir)
	assert.Equal(t, filepath.Join("/out", "match_highlights-2"), jobs[1].OutputDir)
	assert.Equal(t, filepath.Join("/out", "other_highlights"), jobs[2].OutputDir)

	ids := map[string]bool{}
	for _, j := range jobs {
		assert.NotEmpty(t, j.ID)
		assert.False(t, ids[j.ID])
		ids[j.ID] = true
		assert.Equal(t, -12.0, j.Threshold)
		assert.Equal(t, 40, j.ClipLength)
		assert.True(t, j.Streaming)
	}
}

func TestSchedulerRunsAllJobs(t *testing.T) {
	runner := &fakeRunner{highlights: 3, failClips: 1, delay: 5 * time.Millisecond}
	jobs := NewJobs(sources(9), "/out", -10, 30, true)

	results := NewScheduler(zerolog.Nop(), runner, 3).Run(context.Background(), jobs, nil, nil)

	require.Len(t, results, 9)
	for _, j := range jobs {
		r := results[j.ID]
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, j.SourcePath, r.SourcePath)
		assert.Equal(t, 3, r.HighlightsFound)
		assert.Equal(t, 2, r.ClipsGenerated)
		assert.Equal(t, 1, r.ClipsFailed)
		assert.Equal(t, r.HighlightsFound, r.ClipsGenerated+r.ClipsFailed)
	}
	assert.LessOrEqual(t, runner.peak.Load(), int32(3))
}

func TestSchedulerIsolatesFailures(t *testing.T) {
	srcs := sources(5)
	runner := &fakeRunner{
		highlights: 1,
		errs:       map[string]error{srcs[1]: fmt.Errorf("%w: probe: corrupt", pipeline.ErrSource)},
		panics:     map[string]bool{srcs[3]: true},
	}
	jobs := NewJobs(srcs, "/out", -10, 30, true)

	results := NewScheduler(zerolog.Nop(), runner, 2).Run(context.Background(), jobs, nil, nil)

	require.Len(t, results, 5)
	assert.Equal(t, StatusFailed, results[jobs[1].ID].Status)
	assert.Contains(t, results[jobs[1].ID].Err, "corrupt")
	assert.Equal(t, StatusFailed, results[jobs[3].ID].Status)
	assert.Contains(t, results[jobs[3].ID].Err, "panic: decoder exploded")
	for _, i := range []int{0, 2, 4} {
		assert.Equal(t, StatusCompleted, results[jobs[i].ID].Status)
	}

	sum := Summarize(results)
	assert.Equal(t, 3, sum.Completed)
	assert.Equal(t, 2, sum.Failed)
}

func TestSchedulerProgress(t *testing.T) {
	jobs := NewJobs(sources(6), "/out", -10, 30, true)
	var (
		mu       sync.Mutex
		counts   []int
		reported = map[string]bool{}
	)

	NewScheduler(zerolog.Nop(), &fakeRunner{}, 3).Run(context.Background(), jobs, nil,
		func(completed, total int, jobID string, r JobResult) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 6, total)
			assert.Equal(t, jobID, r.JobID)
			counts = append(counts, completed)
			reported[jobID] = true
		})

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, counts)
	assert.Len(t, reported, 6)
}

func TestSchedulerStop(t *testing.T) {
	jobs := NewJobs(sources(6), "/out", -10, 30, true)
	stop := workpool.NewSignal()
	runner := &fakeRunner{
		highlights: 1,
		hook: func(job Job) {
			if job.ID == jobs[0].ID {
				stop.Stop()
				time.Sleep(10 * time.Millisecond)
			}
		},
	}

	results := NewScheduler(zerolog.Nop(), runner, 1).Run(context.Background(), jobs, stop, nil)

	require.Len(t, results, 6)
	assert.Equal(t, StatusCompleted, results[jobs[0].ID].Status)
	assert.Equal(t, int32(1), runner.calls.Load())
	for _, j := range jobs[1:] {
		assert.Equal(t, StatusFailed, results[j.ID].Status)
		assert.Equal(t, "stopped before start", results[j.ID].Err)
	}
}

func TestSchedulerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := NewJobs(sources(3), "/out", -10, 30, true)
	runner := &fakeRunner{}

	results := NewScheduler(zerolog.Nop(), runner, 2).Run(ctx, jobs, nil, nil)

	require.Len(t, results, 3)
	assert.Zero(t, runner.calls.Load())
	for _, r := range results {
		assert.Equal(t, "cancelled before start", r.Err)
	}
}

func TestSchedulerEmpty(t *testing.T) {
	s := NewScheduler(zerolog.Nop(), &fakeRunner{}, 0)
	assert.Equal(t, DefaultWorkers, s.Workers())
	assert.Empty(t, s.Run(context.Background(), nil, nil, nil))
}

func TestDiagnosis(t *testing.T) {
	tests := []struct {
		result JobResult
		want   Diagnosis
	}{
		{JobResult{Status: StatusCompleted, HighlightsFound: 3, ClipsGenerated: 2, ClipsFailed: 1}, DiagnosisOK},
		{JobResult{Status: StatusCompleted}, DiagnosisNoHighlights},
		{JobResult{Status: StatusCompleted, HighlightsFound: 4, ClipsFailed: 4}, DiagnosisNoClips},
		{JobResult{Status: StatusFailed, Err: "boom"}, DiagnosisFailed},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Diagnosis())
		})
	}

	assert.Contains(t, DiagnosisNoHighlights.Hint(), "reference")
	assert.Contains(t, DiagnosisNoClips.Hint(), "ffmpeg")
	assert.Empty(t, DiagnosisOK.Hint())
}

func TestReportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "batch.json")
	results := map[string]JobResult{
		"a": {JobID: "a", SourcePath: "/v/a.mp4", Status: StatusCompleted, HighlightsFound: 2, ClipsGenerated: 2},
		"b": {JobID: "b", SourcePath: "/v/b.mp4", Status: StatusFailed, Err: "source error"},
	}

	require.NoError(t, WriteReport(path, results))

	loaded, sum, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, results, loaded)
	assert.Equal(t, Summary{Jobs: 2, Completed: 1, Failed: 1, HighlightsFound: 2, ClipsGenerated: 2}, sum)

	sorted := Sorted(loaded)
	assert.Equal(t, "/v/a.mp4", sorted[0].SourcePath)
}

func TestPipelineRunnerAppliesJobSettings(t *testing.T) {
	p, err := pipeline.New(zerolog.Nop(), nopMedia{}, pipeline.DefaultSettings())
	require.NoError(t, err)

	runner := PipelineRunner{Pipeline: p}
	_, err = runner.Run(context.Background(), Job{SourcePath: "/missing.mp4", OutputDir: t.TempDir(), Threshold: 4, ClipLength: 30}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")

	_, err = runner.Run(context.Background(), Job{SourcePath: "/missing.mp4", OutputDir: t.TempDir(), Threshold: -10, ClipLength: 30}, nil)
	assert.True(t, errors.Is(err, pipeline.ErrSource))
}

type nopMedia struct{}

func (nopMedia) MediaDuration(context.Context, string) (float64, error)      { return 0, nil }
func (nopMedia) ExtractAnalysisAudio(context.Context, string, string) error { return nil }
func (nopMedia) Trim(context.Context, string, float64, float64, string) error {
	return nil
}

var _ extract.Trimmer = nopMedia{}
