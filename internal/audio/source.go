// Package audio decodes PCM audio into mono float samples, either one chunk at
// a time or fully buffered.
package audio

import (
	"errors"
	"math"
)

// ErrUnsupported is returned for containers or sample layouts the decoder
// cannot handle.
var ErrUnsupported = errors.New("unsupported audio format")

// Info is the container metadata known before any sample is decoded.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
}

// Duration returns the length of the audio in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate <= 0 {
		return 0
	}
	return float64(i.Frames) / float64(i.SampleRate)
}

// Source is a random-access provider of mono samples in [-1, 1].
//
// ReadChunk returns the frames in [offset, offset+duration) seconds, clamped to
// the end of the media. Offsets that move backwards are allowed but may cost a
// re-open for forward-only decoders.
type Source interface {
	Info() Info
	ReadChunk(offset, duration float64) ([]float64, error)
	Close() error
}

// Opener opens a Source for a file path.
type Opener func(path string) (Source, error)

// frameRange converts a seconds window to a frame window clamped to total.
func frameRange(offset, duration float64, sampleRate int, total int64) (start, end int64) {
	start = int64(math.Round(offset * float64(sampleRate)))
	end = start + int64(math.Round(duration*float64(sampleRate)))
	if start < 0 {
		start = 0
	}
	if end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}
