package audio

import (
	"iter"

	"github.com/rs/zerolog"
)

// DefaultChunkSeconds bounds how much audio is decoded at once.
const DefaultChunkSeconds = 30

// Chunk is one window of a stream. Exactly one of Samples or Err is meaningful:
// a chunk whose decode failed is Skipped and carries the reason.
type Chunk struct {
	Index    int
	Offset   float64
	Duration float64
	Samples  []float64
	Err      error
}

// Ok reports whether the chunk decoded.
func (c Chunk) Ok() bool { return c.Err == nil }

// Skipped reports whether the chunk failed to decode.
func (c Chunk) Skipped() bool { return c.Err != nil }

// Streamer walks a Source front to back in fixed windows.
type Streamer struct {
	src          Source
	chunkSeconds int
	logger       zerolog.Logger
}

// NewStreamer creates a Streamer. Chunks are whole seconds so per-second
// analysis frames never straddle a chunk boundary.
func NewStreamer(logger zerolog.Logger, src Source, chunkSeconds int) *Streamer {
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	return &Streamer{
		src:          src,
		chunkSeconds: chunkSeconds,
		logger:       logger.With().Str("component", "audio-stream").Logger(),
	}
}

// Duration is the media length in seconds.
func (s *Streamer) Duration() float64 {
	return s.src.Info().Duration()
}

// SampleRate is the source sample rate.
func (s *Streamer) SampleRate() int {
	return s.src.Info().SampleRate
}

// Chunks yields windows covering [0, Duration). The last one may be shorter.
// Failed windows are logged and yielded as skipped; the offset still advances.
// A source that turns out shorter than its header ends the stream early.
func (s *Streamer) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		frames := s.src.Info().Frames
		step := float64(s.chunkSeconds)

		for i := 0; float64(i)*step < s.Duration(); i++ {
			offset := float64(i) * step
			length := min(step, s.Duration()-offset)

			samples, err := s.src.ReadChunk(offset, length)
			chunk := Chunk{Index: i, Offset: offset, Duration: length}
			if err != nil {
				s.logger.Warn().
					Err(err).
					Int("chunk", i).
					Float64("offset", offset).
					Msg("skipping undecodable chunk")
				chunk.Err = err
			} else {
				chunk.Samples = samples
			}

			if got := s.src.Info().Frames; got < frames {
				s.logger.Warn().
					Int64("header_frames", frames).
					Int64("frames", got).
					Msg("audio data ends early, analysing what is present")
				frames = got
			}

			if !yield(chunk) {
				return
			}
		}
	}
}

// Stream is shorthand for NewStreamer(logger, src, chunkSeconds).Chunks().
func Stream(logger zerolog.Logger, src Source, chunkSeconds int) iter.Seq[Chunk] {
	return NewStreamer(logger, src, chunkSeconds).Chunks()
}
