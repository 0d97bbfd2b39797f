// Package audiotest synthesizes PCM fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Span is a stretch of constant-level tone.
type Span struct {
	Start, End float64 // seconds
	Db         float64
}

// Amplitude returns the sine peak whose RMS equals the given dBFS.
func Amplitude(db float64) float64 {
	return math.Pow(10, db/20) * math.Sqrt2
}

// Tone renders seconds of a 440 Hz sine at the given RMS level.
func Tone(seconds float64, sampleRate int, db float64) []float64 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float64, n)
	amp := Amplitude(db)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	return out
}

// Render builds a track of the given length at a background level, overlaying
// each span at its own level. A background of math.Inf(-1) is digital silence.
func Render(seconds float64, sampleRate int, background float64, spans ...Span) []float64 {
	n := int(math.Round(seconds * float64(sampleRate)))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		db := background
		for _, s := range spans {
			if t >= s.Start && t < s.End {
				db = s.Db
			}
		}
		if math.IsInf(db, -1) {
			continue
		}
		out[i] = Amplitude(db) * math.Sin(2*math.Pi*440*t)
	}
	return out
}

// WriteWAV encodes mono samples as 16-bit PCM, duplicating them across
// channels. The file is closed before returning.
func WriteWAV(t testing.TB, path string, samples []float64, sampleRate, channels int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	data := make([]int, 0, len(samples)*channels)
	for _, s := range samples {
		v := int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
		for c := 0; c < channels; c++ {
			data = append(data, v)
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize wav: %v", err)
	}
}
