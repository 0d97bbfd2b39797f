package ffmpeg

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	FilePath   string
	Duration   float64 // seconds
	FormatName string
	Bitrate    int64

	HasVideo   bool
	VideoCodec string
	Width      int
	Height     int
	FPS        float64

	HasAudio     bool
	AudioCodec   string
	SampleRate   int
	Channels     int
	AudioBitrate int64
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
	Done    bool
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)
