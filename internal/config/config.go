package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/crestcut/internal/audio"
	"github.com/kikiluvv/crestcut/internal/batch"
	"github.com/kikiluvv/crestcut/internal/clips"
	"github.com/kikiluvv/crestcut/internal/extract"
	"github.com/kikiluvv/crestcut/internal/ffmpeg"
	"github.com/kikiluvv/crestcut/internal/highlight"
	"github.com/kikiluvv/crestcut/internal/loudness"
	"github.com/kikiluvv/crestcut/internal/pipeline"
	"github.com/kikiluvv/crestcut/internal/watch"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir   string `yaml:"work_dir" toml:"work_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`

	Analysis AnalysisConfig `yaml:"analysis" toml:"analysis"`
	Extract  ExtractConfig  `yaml:"extract" toml:"extract"`
	Batch    BatchConfig    `yaml:"batch" toml:"batch"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg" toml:"ffmpeg"`
	Watch    WatchConfig    `yaml:"watch" toml:"watch"`
}

type AnalysisConfig struct {
	Threshold         float64 `yaml:"threshold" toml:"threshold"`                   // dBFS
	Strategy          string  `yaml:"strategy" toml:"strategy"`                     // "crest" or "range"
	ClipLength        int     `yaml:"clip_length" toml:"clip_length"`               // seconds, split around each highlight
	Streaming         bool    `yaml:"streaming" toml:"streaming"`                   // decode chunk by chunk
	ChunkDuration     int     `yaml:"chunk_duration" toml:"chunk_duration"`         // seconds
	Segments          int     `yaml:"segments" toml:"segments"`                     // RMS segments per second
	SustainedDuration int     `yaml:"sustained_duration" toml:"sustained_duration"` // loud seconds in a row
	SpikeMargin       float64 `yaml:"spike_margin" toml:"spike_margin"`             // dB over threshold
	DynamicMargin     float64 `yaml:"dynamic_margin" toml:"dynamic_margin"`         // dB over rolling mean
	Window            int     `yaml:"window" toml:"window"`                         // rolling window, seconds
}

type ExtractConfig struct {
	Workers        int           `yaml:"workers" toml:"workers"`
	TaskTimeout    time.Duration `yaml:"task_timeout" toml:"task_timeout"`
	BatchTimeout   time.Duration `yaml:"batch_timeout" toml:"batch_timeout"`
	MinOutputBytes int64         `yaml:"min_output_bytes" toml:"min_output_bytes"`
}

type BatchConfig struct {
	Workers int `yaml:"workers" toml:"workers"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" toml:"binary_path"`
	ProbePath  string `yaml:"probe_path" toml:"probe_path"`
	Threads    int    `yaml:"threads" toml:"threads"`
}

type WatchConfig struct {
	Extensions []string      `yaml:"extensions" toml:"extensions"`
	Settle     time.Duration `yaml:"settle" toml:"settle"`
}

// Load reads configuration from file or returns defaults. An empty path
// searches the usual locations; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file, as TOML when the name ends in .toml.
func (c *Config) Save(path string) error {
	data, err := c.Marshal(isTOML(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal renders the configuration as YAML, or TOML when asTOML is set.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if asTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(c)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	ext := extract.DefaultOptions()
	return &Config{
		WorkDir:   "",
		OutputDir: "./highlights",
		Analysis: AnalysisConfig{
			Threshold:         -10,
			Strategy:          string(highlight.StrategyCrest),
			ClipLength:        clips.DefaultClipLength,
			Streaming:         true,
			ChunkDuration:     audio.DefaultChunkSeconds,
			Segments:          loudness.DefaultSegments,
			SustainedDuration: highlight.DefaultSustainedDuration,
			SpikeMargin:       highlight.DefaultSpikeMargin,
			DynamicMargin:     highlight.DefaultDynamicMargin,
			Window:            highlight.DefaultWindow,
		},
		Extract: ExtractConfig{
			Workers:        ext.Workers,
			TaskTimeout:    ext.TaskTimeout,
			BatchTimeout:   ext.BatchTimeout,
			MinOutputBytes: ext.MinOutputBytes,
		},
		Batch: BatchConfig{
			Workers: batch.DefaultWorkers,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "",
			ProbePath:  "",
			Threads:    0,
		},
		Watch: WatchConfig{
			Extensions: append([]string(nil), watch.DefaultExtensions...),
			Settle:     watch.DefaultSettle,
		},
	}
}

func findConfigFile() string {
	home := os.Getenv("HOME")
	candidates := []string{
		"./crestcut.yaml",
		"./crestcut.yml",
		"./crestcut.toml",
		filepath.Join(home, ".crestcut", "config.yaml"),
		filepath.Join(home, ".crestcut", "config.toml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate checks every field and reports all problems together.
func (c *Config) Validate() error {
	var errs []string

	a := c.Analysis
	if a.Threshold > 0 || a.Threshold < -120 {
		errs = append(errs, fmt.Sprintf("analysis.threshold %.1f must be within [-120, 0] dBFS", a.Threshold))
	}
	if _, err := highlight.ParseStrategy(a.Strategy); err != nil {
		errs = append(errs, "analysis.strategy: "+err.Error())
	}
	if a.ClipLength < 1 {
		errs = append(errs, "analysis.clip_length must be at least 1 second")
	}
	if a.ChunkDuration < 1 {
		errs = append(errs, "analysis.chunk_duration must be at least 1 second")
	}
	if a.Segments < 1 {
		errs = append(errs, "analysis.segments must be positive")
	}
	if a.Window < 1 {
		errs = append(errs, "analysis.window must be positive")
	}
	if a.SustainedDuration < 1 || a.SustainedDuration > a.Window {
		errs = append(errs, fmt.Sprintf("analysis.sustained_duration must be between 1 and window (%d)", a.Window))
	}
	if a.SpikeMargin < 0 || a.DynamicMargin < 0 {
		errs = append(errs, "analysis margins cannot be negative")
	}

	if c.Extract.Workers < 1 {
		errs = append(errs, "extract.workers must be positive")
	}
	if c.Extract.TaskTimeout <= 0 {
		errs = append(errs, "extract.task_timeout must be positive")
	}
	if c.Extract.BatchTimeout < c.Extract.TaskTimeout {
		errs = append(errs, "extract.batch_timeout cannot be shorter than extract.task_timeout")
	}
	if c.Extract.MinOutputBytes < 0 {
		errs = append(errs, "extract.min_output_bytes cannot be negative")
	}

	if c.Batch.Workers < 1 {
		errs = append(errs, "batch.workers must be positive")
	}
	if c.FFmpeg.Threads < 0 {
		errs = append(errs, "ffmpeg.threads cannot be negative (use 0 for auto)")
	}
	if c.Watch.Settle < 0 {
		errs = append(errs, "watch.settle cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Settings builds the immutable per-run settings.
func (c *Config) Settings() (pipeline.Settings, error) {
	if err := c.Validate(); err != nil {
		return pipeline.Settings{}, err
	}

	a := c.Analysis
	strategy, _ := highlight.ParseStrategy(a.Strategy)
	before, after := clips.SplitLength(a.ClipLength)

	s := pipeline.Settings{
		Strategy: strategy,
		Params: highlight.Params{
			Threshold:         a.Threshold,
			SustainedDuration: a.SustainedDuration,
			SpikeMargin:       a.SpikeMargin,
			DynamicMargin:     a.DynamicMargin,
			Window:            a.Window,
			PadBefore:         before,
			PadAfter:          after,
		},
		ClipLength:   a.ClipLength,
		Streaming:    a.Streaming,
		ChunkSeconds: a.ChunkDuration,
		Segments:     a.Segments,
		Extract: extract.Options{
			Workers:        c.Extract.Workers,
			TaskTimeout:    c.Extract.TaskTimeout,
			BatchTimeout:   c.Extract.BatchTimeout,
			MinOutputBytes: c.Extract.MinOutputBytes,
		},
		WorkDir: c.WorkDir,
	}
	if err := s.Validate(); err != nil {
		return pipeline.Settings{}, err
	}
	return s, nil
}

// FFmpegOptions selects the media tools.
func (c *Config) FFmpegOptions() ffmpeg.Options {
	return ffmpeg.Options{
		FFmpegPath:  c.FFmpeg.BinaryPath,
		FFprobePath: c.FFmpeg.ProbePath,
		Threads:     c.FFmpeg.Threads,
	}
}

// WatchOptions configures inbox watching.
func (c *Config) WatchOptions(existing bool) watch.Options {
	return watch.Options{
		Extensions: c.Watch.Extensions,
		Settle:     c.Watch.Settle,
		Existing:   existing,
	}
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
