package audio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/crestcut/internal/audio/audiotest"
)

const testRate = 8000

func writeFixture(t *testing.T, seconds float64, channels int) (string, []float64) {
	t.Helper()
	samples := audiotest.Tone(seconds, testRate, -12)
	path := filepath.Join(t.TempDir(), "fixture.wav")
	audiotest.WriteWAV(t, path, samples, testRate, channels)
	return path, samples
}

func TestOpenWAVInfo(t *testing.T) {
	path, samples := writeFixture(t, 3, 2)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, testRate, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, int64(len(samples)), info.Frames)
	assert.InDelta(t, 3.0, info.Duration(), 1e-9)
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF"), 0o644))

	_, err := OpenWAV(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestOpenWAVMissing(t *testing.T) {
	_, err := OpenWAV(filepath.Join(t.TempDir(), "absent.wav"))
	assert.Error(t, err)
}

func TestReadChunkMatchesSource(t *testing.T) {
	path, samples := writeFixture(t, 2, 1)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	got, err := src.ReadChunk(0.5, 0.25)
	require.NoError(t, err)
	require.Len(t, got, testRate/4)

	want := samples[testRate/2 : testRate/2+testRate/4]
	for i := range got {
		assert.InDelta(t, want[i], got[i], 1.0/32767*2, "sample %d", i)
	}
}

func TestReadChunkDownmixesStereo(t *testing.T) {
	monoPath, _ := writeFixture(t, 1, 1)
	stereoPath, _ := writeFixture(t, 1, 2)

	mono, err := OpenWAV(monoPath)
	require.NoError(t, err)
	defer mono.Close()
	stereo, err := OpenWAV(stereoPath)
	require.NoError(t, err)
	defer stereo.Close()

	a, err := mono.ReadChunk(0, 1)
	require.NoError(t, err)
	b, err := stereo.ReadChunk(0, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReadChunkBackwardsReopens(t *testing.T) {
	path, _ := writeFixture(t, 2, 1)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	first, err := src.ReadChunk(0, 1)
	require.NoError(t, err)
	_, err = src.ReadChunk(1, 1)
	require.NoError(t, err)
	again, err := src.ReadChunk(0, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestReadChunkClampsToEnd(t *testing.T) {
	path, _ := writeFixture(t, 1.5, 1)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	got, err := src.ReadChunk(1, 5)
	require.NoError(t, err)
	assert.Len(t, got, testRate/2)
}

func TestLoadBufferedEqualsStreamed(t *testing.T) {
	path, _ := writeFixture(t, 4, 2)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	var streamed []float64
	for chunk := range NewStreamer(zerolog.Nop(), src, 1).Chunks() {
		require.True(t, chunk.Ok())
		streamed = append(streamed, chunk.Samples...)
	}
	require.NoError(t, src.Close())

	src, err = OpenWAV(path)
	require.NoError(t, err)
	buf, err := LoadBuffered(zerolog.Nop(), src)
	require.NoError(t, err)

	assert.Equal(t, buf.Samples(), streamed)
	assert.Equal(t, 1, buf.Info().Channels)
}

func TestStreamerChunkLayout(t *testing.T) {
	buf := NewBuffer(make([]float64, testRate*5/2), testRate)

	var offsets, durations []float64
	for chunk := range NewStreamer(zerolog.Nop(), buf, 1).Chunks() {
		offsets = append(offsets, chunk.Offset)
		durations = append(durations, chunk.Duration)
	}

	assert.Equal(t, []float64{0, 1, 2}, offsets)
	assert.Equal(t, []float64{1, 1, 0.5}, durations)
}

func TestStreamerEarlyBreak(t *testing.T) {
	buf := NewBuffer(make([]float64, testRate*10), testRate)

	n := 0
	for range NewStreamer(zerolog.Nop(), buf, 2).Chunks() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

type flakySource struct {
	*Buffer
	failAt float64
}

func (f flakySource) ReadChunk(offset, duration float64) ([]float64, error) {
	if offset == f.failAt {
		return nil, io.ErrUnexpectedEOF
	}
	return f.Buffer.ReadChunk(offset, duration)
}

func TestStreamerSkipsFailedChunks(t *testing.T) {
	src := flakySource{Buffer: NewBuffer(make([]float64, testRate*3), testRate), failAt: 1}

	var skipped, ok []int
	for chunk := range NewStreamer(zerolog.Nop(), src, 1).Chunks() {
		if chunk.Skipped() {
			skipped = append(skipped, chunk.Index)
			assert.ErrorIs(t, chunk.Err, io.ErrUnexpectedEOF)
			continue
		}
		ok = append(ok, chunk.Index)
	}

	assert.Equal(t, []int{1}, skipped)
	assert.Equal(t, []int{0, 2}, ok)
}

// truncateWAV drops the last seconds of PCM data while leaving the header
// claiming the full length.
func truncateWAV(t *testing.T, path string, seconds float64, channels int) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	cut := int64(seconds*testRate) * int64(channels) * 2
	require.NoError(t, os.Truncate(path, info.Size()-cut))
}

func TestTruncatedWAVStreamingMatchesBuffered(t *testing.T) {
	path, samples := writeFixture(t, 4, 2)
	truncateWAV(t, path, 0.5, 2)
	present := len(samples) - testRate/2

	src, err := OpenWAV(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(samples)), src.Info().Frames, "header still claims the full length")

	var streamed []float64
	var chunks int
	for chunk := range NewStreamer(zerolog.Nop(), src, 3).Chunks() {
		require.True(t, chunk.Ok(), "a short tail is clamped, not skipped")
		streamed = append(streamed, chunk.Samples...)
		chunks++
	}
	assert.Equal(t, 2, chunks)
	assert.Len(t, streamed, present)
	assert.Equal(t, int64(present), src.Info().Frames)
	require.NoError(t, src.Close())

	src, err = OpenWAV(path)
	require.NoError(t, err)
	buf, err := LoadBuffered(zerolog.Nop(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(present), buf.Info().Frames)
	assert.Equal(t, streamed, buf.Samples())
}

func TestTruncatedWAVChunkPastEnd(t *testing.T) {
	path, samples := writeFixture(t, 4, 1)
	truncateWAV(t, path, 2, 1)

	src, err := OpenWAV(path)
	require.NoError(t, err)
	defer src.Close()

	got, err := src.ReadChunk(3, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int64(len(samples)/2), src.Info().Frames)

	// The clamp survives the reopen a backwards read triggers.
	head, err := src.ReadChunk(0, 1)
	require.NoError(t, err)
	assert.Len(t, head, testRate)
	assert.Equal(t, int64(len(samples)/2), src.Info().Frames)
}
