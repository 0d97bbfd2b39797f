package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/crestcut/internal/batch"
	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/config"
	"github.com/kikiluvv/crestcut/internal/highlight"
	"github.com/kikiluvv/crestcut/internal/logging"
	"github.com/kikiluvv/crestcut/internal/watch"
	"github.com/kikiluvv/crestcut/pkg/util"
)

var (
	analyzeFlags analysisFlags
	batchFlags   analysisFlags
	watchFlags   analysisFlags

	batchWorkers  int
	batchReport   string
	batchOutput   string
	refJSON       bool
	watchExisting bool
	configFormat  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video> [output dir]",
	Short: "Detect highlights in one video and cut a clip for each",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		analyzeFlags.apply(cmd, cfg)

		source := args[0]
		outDir := filepath.Join(cfg.OutputDir, util.Stem(source)+"_highlights")
		if len(args) == 2 {
			outDir = args[1]
		}

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		logger := logging.WithComponent("analyze")
		report, err := p.Run(cmd.Context(), source, outDir, stopSignal, func(done, total int, r clips.Result) {
			logClip(logger, source, done, total, r)
		})
		if err != nil {
			return err
		}

		job := batch.Job{ID: uuid.NewString(), SourcePath: source, OutputDir: outDir}
		printResult(cmd, batch.ResultFromReport(job, report))
		fmt.Fprintf(cmd.OutOrStdout(), "  index: %s\n", report.IndexPath)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <video|dir|glob>...",
	Short: "Process many videos concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		batchFlags.apply(cmd, cfg)
		if cmd.Flags().Changed("workers") {
			cfg.Batch.Workers = batchWorkers
		}
		if batchOutput != "" {
			cfg.OutputDir = batchOutput
		}

		sources, err := expandSources(args, cfg.Watch.Extensions)
		if err != nil {
			return err
		}

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		logger := logging.WithComponent("batch-cli")
		logger.Info().
			Int("videos", len(sources)).
			Int("batch_workers", cfg.Batch.Workers).
			Int("clip_workers", cfg.Extract.Workers).
			Int("max_subprocesses", cfg.Batch.Workers*cfg.Extract.Workers).
			Msg("starting batch")

		jobs := batch.NewJobs(sources, cfg.OutputDir, cfg.Analysis.Threshold, cfg.Analysis.ClipLength, cfg.Analysis.Streaming)
		runner := batch.PipelineRunner{
			Pipeline: p,
			ClipProgress: func(job batch.Job, done, total int, r clips.Result) {
				logClip(logger, job.SourcePath, done, total, r)
			},
		}

		scheduler := batch.NewScheduler(log.Logger, runner, cfg.Batch.Workers)
		results := scheduler.Run(cmd.Context(), jobs, stopSignal, func(completed, total int, jobID string, r batch.JobResult) {
			logger.Info().
				Int("completed", completed).
				Int("total", total).
				Str("source", filepath.Base(r.SourcePath)).
				Str("diagnosis", r.Diagnosis().String()).
				Msg("video finished")
		})

		for _, r := range batch.Sorted(results) {
			printResult(cmd, r)
		}
		sum := batch.Summarize(results)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d videos: %d completed, %d failed; %d highlights, %d clips, %d clip failures\n",
			sum.Jobs, sum.Completed, sum.Failed, sum.HighlightsFound, sum.ClipsGenerated, sum.ClipsFailed)

		reportPath := batchReport
		if reportPath == "" {
			reportPath = filepath.Join(cfg.OutputDir, "batch_report.json")
		}
		if err := batch.WriteReport(reportPath, results); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report: %s\n", reportPath)

		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d videos failed", sum.Failed, sum.Jobs)
		}
		return nil
	},
}

var referenceCmd = &cobra.Command{
	Use:   "reference <video>",
	Short: "Measure a video's loudness and suggest thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		ref, err := p.Reference(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if refJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ref)
		}

		fmt.Fprintf(out, "%s (%s analysed)\n", args[0], util.FormatClock(ref.Seconds))
		fmt.Fprintf(out, "  average:       %6.1f dB\n", ref.AvgDb)
		fmt.Fprintf(out, "  peak:          %6.1f dB\n", ref.MaxDb)
		fmt.Fprintf(out, "  dynamic range: %6.1f dB\n", ref.DynamicRange)
		fmt.Fprintf(out, "suggested thresholds:\n")
		fmt.Fprintf(out, "  conservative:  %6.1f dB\n", ref.Conservative)
		fmt.Fprintf(out, "  balanced:      %6.1f dB\n", ref.Balanced)
		fmt.Fprintf(out, "  aggressive:    %6.1f dB\n", ref.Aggressive)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect highlight index files",
}

var indexShowCmd = &cobra.Command{
	Use:   "show <index.json>",
	Short: "List the highlights recorded in an index file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := highlight.LoadIndex(args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "POSITION\tEND\tDECIBEL\tTIER")
		for _, e := range events {
			end := "-"
			if e.IsRange() {
				end = util.FormatClock(e.End)
			}
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\n", e.Clock(), end, e.Decibel, e.Tier)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d highlights\n", len(events))
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect batch reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <batch_report.json>",
	Short: "Print the per-video results of a finished batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, sum, err := batch.ReadReport(args[0])
		if err != nil {
			return err
		}

		for _, r := range batch.Sorted(results) {
			printResult(cmd, r)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d videos: %d completed, %d failed; %d highlights, %d clips, %d clip failures\n",
			sum.Jobs, sum.Completed, sum.Failed, sum.HighlightsFound, sum.ClipsGenerated, sum.ClipsFailed)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [output dir]",
	Short: "Process every video that lands in a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		watchFlags.apply(cmd, cfg)
		outRoot := cfg.OutputDir
		if len(args) == 2 {
			outRoot = args[1]
		}

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		// Watching ends on the first interrupt; a second one aborts the
		// current video.
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			select {
			case <-stopSignal.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		logger := logging.WithComponent("watch-cli")
		handle := func(_ context.Context, path string) {
			job := batch.NewJobs([]string{path}, outRoot, cfg.Analysis.Threshold, cfg.Analysis.ClipLength, cfg.Analysis.Streaming)[0]
			report, err := p.Run(cmd.Context(), path, job.OutputDir, stopSignal, func(done, total int, r clips.Result) {
				logClip(logger, path, done, total, r)
			})
			if err != nil {
				logger.Error().Err(err).Str("source", path).Msg("video failed")
				return
			}
			printResult(cmd, batch.ResultFromReport(job, report))
		}

		w := watch.New(log.Logger, cfg.WatchOptions(watchExisting), handle)
		return w.Run(ctx, args[0])
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := cfg.Marshal(configFormat == "toml")
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "crestcut.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("wrote default config")
		return nil
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	batchFlags.register(batchCmd)
	watchFlags.register(watchCmd)

	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "videos processed at once")
	batchCmd.Flags().StringVar(&batchReport, "report", "", "JSON report path (default: <output_dir>/batch_report.json)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output root (default from config)")
	referenceCmd.Flags().BoolVar(&refJSON, "json", false, "print JSON")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also process videos already in the directory")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format: yaml or toml")

	indexCmd.AddCommand(indexShowCmd)
	reportCmd.AddCommand(reportShowCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
