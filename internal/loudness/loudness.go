// Package loudness turns decoded audio into per-second decibel readings.
package loudness

import (
	"iter"
	"math"

	"github.com/kikiluvv/crestcut/internal/audio"
)

const (
	// SilenceFloor is the level assigned to digitally silent segments.
	SilenceFloor = -60.0

	// DefaultSegments is how many RMS segments make up one second.
	DefaultSegments = 1000
)

// Sample is the loudness of one analysed second.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	MaxDb     float64 `json:"max_db"`
	AvgDb     float64 `json:"avg_db"`
}

// Windower cuts chunks into one-second frames and measures each frame as the
// max and mean of its segment levels.
type Windower struct {
	SampleRate int
	Segments   int
}

// NewWindower returns a Windower with the default segment count.
func NewWindower(sampleRate int) *Windower {
	return &Windower{SampleRate: sampleRate, Segments: DefaultSegments}
}

// Process measures one chunk of mono samples starting at offset seconds.
// A trailing partial second still yields a sample.
func (w *Windower) Process(offset float64, samples []float64) []Sample {
	if w.SampleRate <= 0 || len(samples) == 0 {
		return nil
	}

	out := make([]Sample, 0, (len(samples)+w.SampleRate-1)/w.SampleRate)
	for i := 0; i*w.SampleRate < len(samples); i++ {
		lo := i * w.SampleRate
		hi := min(lo+w.SampleRate, len(samples))
		maxDb, avgDb := w.measure(samples[lo:hi])
		out = append(out, Sample{
			Timestamp: offset + float64(i),
			MaxDb:     maxDb,
			AvgDb:     avgDb,
		})
	}
	return out
}

// Samples yields the readings for every decodable chunk in order. Skipped
// chunks leave a gap in the timeline.
func (w *Windower) Samples(chunks iter.Seq[audio.Chunk]) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		for chunk := range chunks {
			if chunk.Skipped() {
				continue
			}
			for _, s := range w.Process(chunk.Offset, chunk.Samples) {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// measure splits frame into near-equal segments, larger ones first, and
// returns the max and mean of their levels. Segments that would be empty
// (frames shorter than the segment count) are not measured.
func (w *Windower) measure(frame []float64) (maxDb, avgDb float64) {
	n := w.Segments
	if n <= 0 {
		n = DefaultSegments
	}
	if n > len(frame) {
		n = len(frame)
	}

	base, extra := len(frame)/n, len(frame)%n
	maxDb = math.Inf(-1)
	sum := 0.0
	pos := 0
	for seg := 0; seg < n; seg++ {
		size := base
		if seg < extra {
			size++
		}
		db := Decibels(frame[pos : pos+size])
		pos += size

		sum += db
		if db > maxDb {
			maxDb = db
		}
	}
	return maxDb, sum / float64(n)
}

// Decibels returns 20·log10(rms) of the samples, or SilenceFloor when the
// rms is zero.
func Decibels(samples []float64) float64 {
	if len(samples) == 0 {
		return SilenceFloor
	}
	var sq float64
	for _, s := range samples {
		sq += s * s
	}
	rms := math.Sqrt(sq / float64(len(samples)))
	if rms == 0 {
		return SilenceFloor
	}
	return 20 * math.Log10(rms)
}
