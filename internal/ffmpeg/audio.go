package ffmpeg

import (
	"context"
	"fmt"
)

// AudioFormat defines audio extraction format options
type AudioFormat struct {
	Codec      string
	SampleRate int
	Channels   int
}

// DefaultAnalysisFormat is the PCM layout the loudness analysis expects:
// 16-bit little-endian mono at 48 kHz.
func DefaultAnalysisFormat() AudioFormat {
	return AudioFormat{
		Codec:      "pcm_s16le",
		SampleRate: 48000,
		Channels:   1,
	}
}

// ExtractAudio extracts audio stream to a separate file
func (e *Executor) ExtractAudio(ctx context.Context, input, output string, format AudioFormat) error {
	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Str("codec", format.Codec).
		Int("sample_rate", format.SampleRate).
		Msg("extracting audio")

	opts := RunOptions{
		Args: audioArgs(input, output, format),
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("audio extraction")
		},
	}

	if err := e.Run(ctx, opts); err != nil {
		return fmt.Errorf("audio extraction failed: %w", err)
	}
	return nil
}

// ExtractAnalysisAudio converts input to the analysis WAV layout
func (e *Executor) ExtractAnalysisAudio(ctx context.Context, input, output string) error {
	return e.ExtractAudio(ctx, input, output, DefaultAnalysisFormat())
}

func audioArgs(input, output string, format AudioFormat) []string {
	return []string{
		"-i", input,
		"-vn", // no video
		"-acodec", format.Codec,
		"-ar", fmt.Sprintf("%d", format.SampleRate),
		"-ac", fmt.Sprintf("%d", format.Channels),
		"-f", "wav",
		output,
	}
}
