package loudness

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/crestcut/internal/audio"
	"github.com/kikiluvv/crestcut/internal/audio/audiotest"
)

const rate = 8000

func TestSilenceFloor(t *testing.T) {
	w := NewWindower(rate)
	samples := w.Process(0, make([]float64, rate*3))

	require.Len(t, samples, 3)
	for _, s := range samples {
		assert.Equal(t, SilenceFloor, s.MaxDb)
		assert.Equal(t, SilenceFloor, s.AvgDb)
		assert.False(t, math.IsNaN(s.AvgDb))
		assert.False(t, math.IsInf(s.MaxDb, 0))
	}
}

func TestDecibels(t *testing.T) {
	assert.Equal(t, SilenceFloor, Decibels(nil))
	assert.Equal(t, SilenceFloor, Decibels([]float64{0, 0, 0}))
	assert.InDelta(t, 0.0, Decibels([]float64{1, -1, 1, -1}), 1e-12)
	assert.InDelta(t, -6.0206, Decibels([]float64{0.5, -0.5}), 1e-4)
}

func TestProcessTimestampsAndPartialFrame(t *testing.T) {
	w := NewWindower(rate)
	samples := w.Process(30, audiotest.Tone(2.5, rate, -20))

	require.Len(t, samples, 3)
	assert.Equal(t, []float64{30, 31, 32}, []float64{samples[0].Timestamp, samples[1].Timestamp, samples[2].Timestamp})

	// Both 8000 and 4000 split evenly into 1000 segments.
	tone := audiotest.Tone(2.5, rate, -20)
	frames := [][]float64{tone[:rate], tone[rate : 2*rate], tone[2*rate:]}
	for i, s := range samples {
		maxDb, avgDb := evenSegments(frames[i], DefaultSegments)
		assert.InDelta(t, maxDb, s.MaxDb, 1e-9)
		assert.InDelta(t, avgDb, s.AvgDb, 1e-9)
		assert.GreaterOrEqual(t, s.MaxDb, s.AvgDb)
		assert.Less(t, s.AvgDb, -20.0, "short segments of a sine sit below its RMS level")
	}
}

// evenSegments measures a frame whose length is a multiple of segments.
func evenSegments(frame []float64, segments int) (maxDb, avgDb float64) {
	size := len(frame) / segments
	maxDb = math.Inf(-1)
	var sum float64
	for i := 0; i < segments; i++ {
		db := Decibels(frame[i*size : (i+1)*size])
		maxDb = math.Max(maxDb, db)
		sum += db
	}
	return maxDb, sum / float64(segments)
}

func TestMeasureUnevenSegments(t *testing.T) {
	// 7 samples into 3 segments: sizes 3, 2, 2.
	w := &Windower{SampleRate: 7, Segments: 3}
	frame := []float64{1, 1, 1, 0, 0, 0.5, 0.5}

	maxDb, avgDb := w.measure(frame)
	assert.InDelta(t, 0.0, maxDb, 1e-12)
	assert.InDelta(t, (0+SilenceFloor+Decibels([]float64{0.5}))/3, avgDb, 1e-9)
}

func TestMeasureShortFrame(t *testing.T) {
	w := &Windower{SampleRate: rate, Segments: 1000}
	maxDb, avgDb := w.measure([]float64{0.5, 0.5})
	assert.InDelta(t, Decibels([]float64{0.5}), maxDb, 1e-12)
	assert.InDelta(t, maxDb, avgDb, 1e-12)
}

func TestLoudSpanRaisesMax(t *testing.T) {
	w := NewWindower(rate)
	track := audiotest.Render(3, rate, -30, audiotest.Span{Start: 1, End: 2, Db: -5})

	samples := w.Process(0, track)
	require.Len(t, samples, 3)
	assert.Less(t, samples[0].MaxDb, -25.0)
	assert.Greater(t, samples[1].MaxDb, -7.0)
	assert.Less(t, samples[2].MaxDb, -25.0)
}

func TestStreamingMatchesBuffered(t *testing.T) {
	track := audiotest.Render(7.5, rate, -25, audiotest.Span{Start: 2, End: 4, Db: -6})
	path := filepath.Join(t.TempDir(), "track.wav")
	audiotest.WriteWAV(t, path, track, rate, 1)

	src, err := audio.OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	w := NewWindower(rate)
	var streamed []Sample
	for s := range w.Samples(audio.Stream(zerolog.Nop(), src, 2)) {
		streamed = append(streamed, s)
	}

	other, err := audio.OpenWAV(path)
	require.NoError(t, err)
	buf, err := audio.LoadBuffered(zerolog.Nop(), other)
	require.NoError(t, err)
	buffered := w.Process(0, buf.Samples())

	assert.Equal(t, buffered, streamed)
}

func TestAggregateAndReference(t *testing.T) {
	var agg Aggregate
	assert.Equal(t, SilenceFloor, agg.MaxDb())

	for _, s := range []Sample{
		{Timestamp: 0, MaxDb: -20, AvgDb: -30},
		{Timestamp: 1, MaxDb: -10, AvgDb: -20},
		{Timestamp: 2, MaxDb: -15, AvgDb: -25},
	} {
		agg.Add(s)
	}

	assert.Equal(t, 3, agg.Count())
	assert.Equal(t, -10.0, agg.MaxDb())
	assert.InDelta(t, -25.0, agg.AvgDb(), 1e-12)

	ref := agg.Reference()
	assert.Equal(t, 15.0, ref.DynamicRange)
	assert.Equal(t, -12.0, ref.Conservative)
	assert.Equal(t, -16.0, ref.Balanced)
	assert.Equal(t, -19.0, ref.Aggressive)
}
