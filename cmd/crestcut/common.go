package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/crestcut/internal/batch"
	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/config"
	"github.com/kikiluvv/crestcut/internal/ffmpeg"
	"github.com/kikiluvv/crestcut/internal/pipeline"
)

// analysisFlags are the per-run overrides of every command that runs the pipeline.
type analysisFlags struct {
	threshold   float64
	clipLength  int
	strategy    string
	noStreaming bool
	clipWorkers int
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&f.threshold, "threshold", "t", 0, "loudness threshold in dBFS (default from config)")
	cmd.Flags().IntVarP(&f.clipLength, "clip-length", "l", 0, "total clip length in seconds")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "detection strategy: crest or range")
	cmd.Flags().BoolVar(&f.noStreaming, "no-streaming", false, "decode the whole audio track into memory")
	cmd.Flags().IntVar(&f.clipWorkers, "clip-workers", 0, "concurrent clip extractions per video")
}

// apply copies explicitly set flags over cfg.
func (f *analysisFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Analysis.Threshold = f.threshold
	}
	if flags.Changed("clip-length") {
		cfg.Analysis.ClipLength = f.clipLength
	}
	if flags.Changed("strategy") {
		cfg.Analysis.Strategy = f.strategy
	}
	if f.noStreaming {
		cfg.Analysis.Streaming = false
	}
	if flags.Changed("clip-workers") {
		cfg.Extract.Workers = f.clipWorkers
	}
}

// newPipeline resolves the media tools and builds a pipeline from cfg.
func newPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	exec, err := ffmpeg.New(log.Logger, cfg.FFmpegOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrDependency, err)
	}

	return pipeline.New(log.Logger, exec, settings)
}

// logClip reports one finished clip.
func logClip(logger zerolog.Logger, source string, done, total int, r clips.Result) {
	ev := logger.Info()
	if !r.OK() {
		ev = logger.Warn().Str("error", r.Err)
	}
	ev.Str("source", filepath.Base(source)).
		Str("clip", filepath.Base(r.Spec.OutputPath)).
		Str("outcome", r.Outcome.String()).
		Int("done", done).
		Int("total", total).
		Msg("clip finished")
}

// printResult writes a human summary of one job.
func printResult(cmd *cobra.Command, r batch.JobResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", r.SourcePath)
	if r.Status != batch.StatusCompleted {
		fmt.Fprintf(out, "  failed: %s\n", r.Err)
		return
	}
	fmt.Fprintf(out, "  highlights: %d  clips: %d  failed: %d  (%s)\n",
		r.HighlightsFound, r.ClipsGenerated, r.ClipsFailed, r.Elapsed.Round(10*time.Millisecond))
	fmt.Fprintf(out, "  output: %s\n", r.OutputDir)
	if hint := r.Diagnosis().Hint(); hint != "" {
		fmt.Fprintf(out, "  note: %s\n", hint)
	}
}

// expandSources turns files, directories and glob patterns into a sorted,
// de-duplicated list of videos. Directories contribute files with one of exts.
func expandSources(args []string, exts []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if !e.IsDir() && slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
					add(filepath.Join(arg, e.Name()))
				}
			}
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		for _, m := range matches {
			add(m)
		}
	}

	slices.Sort(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("no videos matched %s", strings.Join(args, " "))
	}
	return out, nil
}
