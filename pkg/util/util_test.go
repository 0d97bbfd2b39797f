package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatSeconds(0))
	assert.Equal(t, "00:01:30.000", FormatSeconds(90))
	assert.Equal(t, "01:01:01.500", FormatSeconds(3661.5))
	assert.Equal(t, "00:00:00.000", FormatSeconds(-4))
	assert.Equal(t, FormatSeconds(12.25), FormatDuration(12250*time.Millisecond))
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{
		0:     "0:00:00",
		10:    "0:00:10",
		70:    "0:01:10",
		3725:  "1:02:05",
		36000: "10:00:00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatClock(in), "FormatClock(%d)", in)

		back, err := ParseClock(want)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}
}

func TestParseTimestamp(t *testing.T) {
	d, err := ParseTimestamp("45.5")
	require.NoError(t, err)
	assert.Equal(t, 45500*time.Millisecond, d)

	d, err = ParseTimestamp("02:30")
	require.NoError(t, err)
	assert.Equal(t, 150*time.Second, d)

	_, err = ParseTimestamp("1:2:3:4")
	assert.Error(t, err)

	_, err = ParseTimestamp("aa:bb")
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 0.0, ParseFrameRate("30/0"))
	assert.Equal(t, 0.0, ParseFrameRate("30"))
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "clip.mp4")

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	assert.False(t, FileExists(path))
	assert.Equal(t, int64(-1), FileSize(path))

	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0644))
	assert.True(t, FileExists(path))
	assert.Equal(t, int64(2048), FileSize(path))
	assert.Equal(t, int64(-1), FileSize(dir))

	assert.Equal(t, "clip", Stem(path))
	assert.Equal(t, filepath.Join(dir, "nested", "clip.part.mp4"), PartialPath(path))

	CleanupFiles(path, filepath.Join(dir, "missing"))
	assert.False(t, FileExists(path))
}
