// Package batch runs the pipeline over many videos with bounded concurrency.
package batch

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/crestcut/internal/pipeline"
	"github.com/kikiluvv/crestcut/pkg/util"
)

// Job is one video to process. It is not modified once scheduled.
type Job struct {
	ID         string  `json:"id"`
	SourcePath string  `json:"source"`
	OutputDir  string  `json:"output_dir"`
	Threshold  float64 `json:"threshold"`
	ClipLength int     `json:"clip_length"`
	Streaming  bool    `json:"streaming"`
}

// NewJobs builds one job per source. Each video gets its own
// <outputRoot>/<stem>_highlights directory; repeated stems get a numeric
// suffix.
func NewJobs(sources []string, outputRoot string, threshold float64, clipLength int, streaming bool) []Job {
	jobs := make([]Job, 0, len(sources))
	used := make(map[string]int)
	for _, src := range sources {
		name := util.Stem(src) + "_highlights"
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		jobs = append(jobs, Job{
			ID:         uuid.NewString(),
			SourcePath: src,
			OutputDir:  filepath.Join(outputRoot, name),
			Threshold:  threshold,
			ClipLength: clipLength,
			Streaming:  streaming,
		})
	}
	return jobs
}

// Status is the terminal state of a job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// JobResult is the record of one job kept in the final report.
type JobResult struct {
	JobID           string        `json:"job_id"`
	SourcePath      string        `json:"source"`
	OutputDir       string        `json:"output_dir"`
	Status          Status        `json:"status"`
	HighlightsFound int           `json:"highlights_found"`
	ClipsGenerated  int           `json:"clips_generated"`
	ClipsFailed     int           `json:"clips_failed"`
	Err             string        `json:"error,omitempty"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

// Diagnosis explains a completed job's numbers to a user.
type Diagnosis int

const (
	DiagnosisOK Diagnosis = iota
	// DiagnosisNoHighlights: nothing crossed the threshold. A content or
	// tuning matter, not an error.
	DiagnosisNoHighlights
	// DiagnosisNoClips: highlights were found but no clip was written, which
	// points at the environment rather than the content.
	DiagnosisNoClips
	DiagnosisFailed
)

func (d Diagnosis) String() string {
	switch d {
	case DiagnosisOK:
		return "ok"
	case DiagnosisNoHighlights:
		return "no_highlights"
	case DiagnosisNoClips:
		return "no_clips"
	default:
		return "failed"
	}
}

// Hint is a one-line suggestion for the user.
func (d Diagnosis) Hint() string {
	switch d {
	case DiagnosisNoHighlights:
		return "no highlights found; lower the threshold or run `crestcut reference` to pick one"
	case DiagnosisNoClips:
		return "highlights were found but no clips were written; check that ffmpeg works and the output dir is writable"
	case DiagnosisFailed:
		return "the job failed before clips were extracted"
	default:
		return ""
	}
}

// Diagnosis classifies the result.
func (r JobResult) Diagnosis() Diagnosis {
	switch {
	case r.Status != StatusCompleted:
		return DiagnosisFailed
	case r.HighlightsFound == 0:
		return DiagnosisNoHighlights
	case r.ClipsGenerated == 0:
		return DiagnosisNoClips
	default:
		return DiagnosisOK
	}
}

// ResultFromReport records a run that finished without error.
func ResultFromReport(job Job, report *pipeline.Report) JobResult {
	return JobResult{
		JobID:           job.ID,
		SourcePath:      job.SourcePath,
		OutputDir:       job.OutputDir,
		Status:          StatusCompleted,
		HighlightsFound: report.HighlightsFound(),
		ClipsGenerated:  report.ClipsGenerated(),
		ClipsFailed:     report.ClipsFailed(),
		Elapsed:         report.Elapsed,
	}
}
