package audio

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Buffer holds an entire decoded track in memory. It serves the same windows
// as a streaming Source and is meant for short inputs or offline analysis.
type Buffer struct {
	info    Info
	samples []float64
}

// NewBuffer wraps mono samples at the given rate.
func NewBuffer(samples []float64, sampleRate int) *Buffer {
	return &Buffer{
		info: Info{
			SampleRate: sampleRate,
			Channels:   1,
			BitDepth:   64,
			Frames:     int64(len(samples)),
		},
		samples: samples,
	}
}

// LoadBuffered decodes the whole of src in one read and closes it. Data that
// ends early is kept up to where it stops.
func LoadBuffered(logger zerolog.Logger, src Source) (*Buffer, error) {
	defer src.Close()

	info := src.Info()
	samples, err := src.ReadChunk(0, info.Duration()+1)
	if err != nil {
		return nil, fmt.Errorf("buffer audio: %w", err)
	}
	if got := int64(len(samples)); got < info.Frames {
		logger.Warn().
			Int64("header_frames", info.Frames).
			Int64("frames", got).
			Msg("audio data ends early, analysing what is present")
	}

	info.Channels = 1
	info.Frames = int64(len(samples))
	return &Buffer{info: info, samples: samples}, nil
}

// Info returns metadata for the buffered track.
func (b *Buffer) Info() Info {
	return b.info
}

// ReadChunk slices the buffer; it never fails.
func (b *Buffer) ReadChunk(offset, duration float64) ([]float64, error) {
	start, end := frameRange(offset, duration, b.info.SampleRate, b.info.Frames)
	return b.samples[start:end], nil
}

// Samples exposes the decoded track.
func (b *Buffer) Samples() []float64 {
	return b.samples
}

// Close is a no-op.
func (b *Buffer) Close() error {
	return nil
}
