// Package pipeline runs one video from audio analysis to written clips.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/crestcut/internal/audio"
	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/extract"
	"github.com/kikiluvv/crestcut/internal/ffmpeg"
	"github.com/kikiluvv/crestcut/internal/highlight"
	"github.com/kikiluvv/crestcut/internal/loudness"
	"github.com/kikiluvv/crestcut/internal/workpool"
	"github.com/kikiluvv/crestcut/pkg/util"
)

var (
	// ErrSource marks an unreadable, corrupt or missing input. It is fatal
	// for that video only.
	ErrSource = errors.New("source error")

	// ErrDependency marks a missing or broken media tool. Every clip needs
	// it, so it is fatal for the whole run.
	ErrDependency = errors.New("dependency error")
)

// Pipeline orchestrates one video at a time. It holds no per-run state and
// is safe to share between goroutines.
type Pipeline struct {
	logger   zerolog.Logger
	media    Media
	open     audio.Opener
	settings Settings
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithOpener replaces the WAV decoder used for analysis audio.
func WithOpener(open audio.Opener) Option {
	return func(p *Pipeline) { p.open = open }
}

// New validates settings and builds a pipeline on top of media.
func New(logger zerolog.Logger, media Media, settings Settings, opts ...Option) (*Pipeline, error) {
	settings = settings.normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	p := &Pipeline{
		logger:   logger.With().Str("component", "pipeline").Logger(),
		media:    media,
		open:     audio.OpenWAVSource,
		settings: settings,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Settings returns the settings the pipeline was built with.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// WithSettings returns a copy of p running with different settings.
func (p *Pipeline) WithSettings(settings Settings) (*Pipeline, error) {
	settings = settings.normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	cp := *p
	cp.settings = settings
	return &cp, nil
}

// Run analyses source, writes index.json to outputDir and extracts a clip per
// highlight. Clip failures are reported in the Report, not as an error.
func (p *Pipeline) Run(ctx context.Context, source, outputDir string, stop *workpool.Signal, progress extract.ProgressFunc) (*Report, error) {
	started := time.Now()
	log := p.logger.With().Str("source", filepath.Base(source)).Logger()

	analysis, err := p.Analyze(ctx, source, stop)
	if err != nil {
		return nil, err
	}

	if err := util.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	report := &Report{
		Analysis:  *analysis,
		OutputDir: outputDir,
		IndexPath: filepath.Join(outputDir, highlight.IndexFileName),
	}
	if err := highlight.SaveIndex(report.IndexPath, analysis.Events); err != nil {
		return nil, err
	}

	if len(analysis.Events) == 0 {
		log.Info().
			Float64("threshold", p.settings.Params.Threshold).
			Float64("max_db", analysis.Loudness.MaxDb).
			Msg("no highlights found")
		report.Elapsed = time.Since(started)
		return report, nil
	}

	planner := clips.NewPlanner(p.settings.ClipLength, analysis.Duration, outputDir, source)
	specs, skipped := planner.PlanAll(analysis.Events)
	for _, s := range skipped {
		log.Warn().Err(s.Reason).Int("position", s.Event.Position).Msg("highlight not clipped")
	}
	report.Unplanned = skipped

	extractor := extract.New(p.logger, p.media, p.settings.Extract)
	report.Clips = extractor.Extract(ctx, specs, stop, progress)
	report.Elapsed = time.Since(started)

	log.Info().
		Int("highlights", report.HighlightsFound()).
		Int("clips", report.ClipsGenerated()).
		Int("failed", report.ClipsFailed()).
		Dur("elapsed", report.Elapsed).
		Msg("run complete")

	return report, nil
}

// Analyze runs the audio stages only: probe, decode, measure and detect.
// A fired stop signal ends analysis early with workpool.ErrStopped.
func (p *Pipeline) Analyze(ctx context.Context, source string, stop *workpool.Signal) (*Analysis, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: input path cannot be empty", ErrSource)
	}
	if !util.FileExists(source) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrSource, source)
	}

	duration, err := p.media.MediaDuration(ctx, source)
	if err != nil {
		return nil, classify(ctx, "probe", err)
	}

	p.logger.Info().
		Str("source", source).
		Float64("duration", duration).
		Float64("threshold", p.settings.Params.Threshold).
		Str("strategy", string(p.settings.Strategy)).
		Msg("analysing audio")

	src, cleanup, err := p.openAudio(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	detector, err := highlight.NewDetector(p.settings.Strategy, p.settings.Params)
	if err != nil {
		src.Close()
		return nil, err
	}

	analysis := &Analysis{
		SourcePath: source,
		Duration:   duration,
		SampleRate: src.Info().SampleRate,
	}
	agg, err := p.scan(ctx, src, stop, analysis, func(s loudness.Sample) {
		if e, ok := detector.Observe(s); ok {
			p.logger.Debug().Stringer("event", e).Msg("highlight")
		}
	})
	if err != nil {
		return nil, err
	}

	analysis.Seconds = agg.Count()
	analysis.Loudness = agg.Reference()
	analysis.Events = detector.Events()

	p.logger.Info().
		Int("seconds", analysis.Seconds).
		Int("skipped_chunks", analysis.SkippedChunks).
		Float64("avg_db", analysis.Loudness.AvgDb).
		Float64("max_db", analysis.Loudness.MaxDb).
		Int("highlights", len(analysis.Events)).
		Msg("analysis complete")

	return analysis, nil
}

// Reference measures the whole track and suggests thresholds.
func (p *Pipeline) Reference(ctx context.Context, source string) (loudness.Reference, error) {
	if !util.FileExists(source) {
		return loudness.Reference{}, fmt.Errorf("%w: %s does not exist", ErrSource, source)
	}

	src, cleanup, err := p.openAudio(ctx, source)
	if err != nil {
		return loudness.Reference{}, err
	}
	defer cleanup()

	agg, err := p.scan(ctx, src, nil, &Analysis{}, nil)
	if err != nil {
		return loudness.Reference{}, err
	}
	return agg.Reference(), nil
}

// scan feeds every decodable second of src to observe and closes src.
func (p *Pipeline) scan(ctx context.Context, src audio.Source, stop *workpool.Signal, analysis *Analysis, observe func(loudness.Sample)) (*loudness.Aggregate, error) {
	if !p.settings.Streaming {
		buf, err := audio.LoadBuffered(p.logger, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSource, err)
		}
		src = buf
	}
	defer src.Close()

	chunks := audio.Stream(p.logger, src, p.settings.ChunkSeconds)
	counted := func(yield func(audio.Chunk) bool) {
		for c := range chunks {
			if c.Skipped() {
				analysis.SkippedChunks++
			}
			if !yield(c) {
				return
			}
		}
	}

	windower := &loudness.Windower{SampleRate: src.Info().SampleRate, Segments: p.settings.Segments}
	agg := &loudness.Aggregate{}
	for s := range windower.Samples(counted) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stop.Stopped() {
			return nil, fmt.Errorf("analysis interrupted: %w", workpool.ErrStopped)
		}
		agg.Add(s)
		if observe != nil {
			observe(s)
		}
	}

	if agg.Count() == 0 {
		return nil, fmt.Errorf("%w: no decodable audio (%d chunks skipped)", ErrSource, analysis.SkippedChunks)
	}
	return agg, nil
}

// openAudio returns a decoder for source. WAV inputs are read in place when
// the decoder accepts them; anything else is converted to a temporary WAV.
func (p *Pipeline) openAudio(ctx context.Context, source string) (audio.Source, func(), error) {
	noop := func() {}

	if strings.EqualFold(filepath.Ext(source), ".wav") {
		src, err := p.open(source)
		if err == nil {
			return src, noop, nil
		}
		p.logger.Debug().Err(err).Msg("wav not directly decodable, converting")
	}

	dir, err := os.MkdirTemp(p.settings.WorkDir, "crestcut-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	wav := filepath.Join(dir, util.Stem(source)+".wav")
	if err := p.media.ExtractAnalysisAudio(ctx, source, wav); err != nil {
		cleanup()
		return nil, nil, classify(ctx, "extract audio", err)
	}

	src, err := p.open(wav)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: open analysis audio: %v", ErrSource, err)
	}
	return src, cleanup, nil
}

// classify maps a media tool failure onto the run's error taxonomy.
func classify(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w (install ffmpeg or set ffmpeg.binary_path)", ErrDependency, stage, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSource, stage, err)
}
