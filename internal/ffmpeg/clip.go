package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/crestcut/pkg/util"
)

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start        float64 // seconds
	End          float64 // seconds
	Output       string
	ProgressFunc ProgressFunc
}

// ExtractClip cuts a segment from a media file without re-encoding
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	if opts.End <= opts.Start {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", opts.Output).
		Float64("start", opts.Start).
		Float64("end", opts.End).
		Msg("extracting clip")

	started := time.Now()
	runOpts := RunOptions{
		Args:            clipArgs(input, opts),
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	e.logger.Debug().
		Str("output", opts.Output).
		Dur("took", time.Since(started)).
		Msg("clip extraction complete")
	return nil
}

// Trim stream-copies [start, end) of input into output
func (e *Executor) Trim(ctx context.Context, input string, start, end float64, output string) error {
	progress := func(p *Progress) {
		e.logger.Debug().
			Str("output", output).
			Str("time", p.Time).
			Str("speed", p.Speed).
			Bool("done", p.Done).
			Msg("trim progress")
	}
	return e.ExtractClip(ctx, input, ClipOptions{
		Start:        start,
		End:          end,
		Output:       output,
		ProgressFunc: progress,
	})
}

// clipArgs seeks after -i so the cut is frame-accurate against the input timeline
func clipArgs(input string, opts ClipOptions) []string {
	return []string{
		"-i", input,
		"-ss", util.FormatSeconds(opts.Start),
		"-to", util.FormatSeconds(opts.End),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		opts.Output,
	}
}
