package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/crestcut/internal/audio"
	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/extract"
	"github.com/kikiluvv/crestcut/internal/highlight"
	"github.com/kikiluvv/crestcut/internal/loudness"
)

// Prober reads the media duration from container metadata.
type Prober interface {
	MediaDuration(ctx context.Context, path string) (float64, error)
}

// AudioExtractor writes the analysis WAV for a media file.
type AudioExtractor interface {
	ExtractAnalysisAudio(ctx context.Context, input, output string) error
}

// Media is everything a run needs from the external tools. *ffmpeg.Executor
// implements it.
type Media interface {
	Prober
	AudioExtractor
	extract.Trimmer
}

// Settings is the validated, immutable configuration of a run.
type Settings struct {
	Strategy     highlight.Strategy
	Params       highlight.Params
	ClipLength   int
	Streaming    bool
	ChunkSeconds int
	Segments     int
	Extract      extract.Options

	// WorkDir holds temporary analysis audio; empty means the system temp dir.
	WorkDir string
}

// DefaultSettings mirrors the stock configuration at a -10 dB threshold.
func DefaultSettings() Settings {
	s := Settings{
		Strategy:     highlight.StrategyCrest,
		Params:       highlight.DefaultParams(-10),
		ClipLength:   clips.DefaultClipLength,
		Streaming:    true,
		ChunkSeconds: audio.DefaultChunkSeconds,
		Segments:     loudness.DefaultSegments,
		Extract:      extract.DefaultOptions(),
	}
	return s.normalize()
}

// WithJob overrides the per-job knobs and keeps the padding in sync with the
// clip length.
func (s Settings) WithJob(threshold float64, clipLength int, streaming bool) Settings {
	s.Params.Threshold = threshold
	s.ClipLength = clipLength
	s.Streaming = streaming
	return s.normalize()
}

func (s Settings) normalize() Settings {
	s.Params.PadBefore, s.Params.PadAfter = clips.SplitLength(s.ClipLength)
	return s
}

// Validate reports every problem at once.
func (s Settings) Validate() error {
	var errs []error
	if _, err := highlight.ParseStrategy(string(s.Strategy)); err != nil {
		errs = append(errs, err)
	}
	if err := s.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.ClipLength < 1 {
		errs = append(errs, fmt.Errorf("clip length must be >= 1s, got %d", s.ClipLength))
	}
	if s.ChunkSeconds < 1 {
		errs = append(errs, fmt.Errorf("chunk duration must be >= 1s, got %d", s.ChunkSeconds))
	}
	if s.Segments < 1 {
		errs = append(errs, fmt.Errorf("segments must be >= 1, got %d", s.Segments))
	}
	if s.Extract.Workers < 1 {
		errs = append(errs, fmt.Errorf("extract workers must be >= 1, got %d", s.Extract.Workers))
	}
	if s.Extract.TaskTimeout <= 0 || s.Extract.BatchTimeout <= 0 {
		errs = append(errs, errors.New("extract timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// Analysis is the outcome of the audio stages of one run.
type Analysis struct {
	SourcePath    string
	Duration      float64
	SampleRate    int
	Seconds       int
	SkippedChunks int
	Loudness      loudness.Reference
	Events        []highlight.Event
}

// Report is everything a finished run produced.
type Report struct {
	Analysis
	OutputDir string
	IndexPath string
	Unplanned []clips.Skipped
	Clips     extract.Summary
	Elapsed   time.Duration
}

// HighlightsFound is the number of detected events.
func (r *Report) HighlightsFound() int {
	return len(r.Events)
}

// ClipsGenerated is the number of clips written.
func (r *Report) ClipsGenerated() int {
	return r.Clips.Succeeded
}

// ClipsFailed counts failed extractions plus events that could not be
// planned, so generated plus failed always equals highlights found.
func (r *Report) ClipsFailed() int {
	return r.Clips.Failed + len(r.Unplanned)
}
