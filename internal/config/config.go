// Package config loads timeline2video settings from a file, T2V_ environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/mediatime"
)

const (
	defaultWidth              = 1280
	defaultHeight             = 720
	defaultFPS                = 30
	defaultDPI                = 150
	defaultQuality            = 23
	defaultStillDuration      = 5 * time.Second
	defaultTransitionDuration = 500 * time.Millisecond
	defaultQRSize             = 512
)

// Config holds all configuration for the application.
type Config struct {
	Render     RenderConfig     `mapstructure:"render"`
	Transition TransitionConfig `mapstructure:"transition"`
	Stills     StillsConfig     `mapstructure:"stills"`
	Export     ExportConfig     `mapstructure:"export"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// RenderConfig is the output frame.
type RenderConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	FPS    int `mapstructure:"fps"`
	// Background is a #rrggbb colour painted behind every frame.
	Background string `mapstructure:"background"`
	// ContentMode is fit, fill or custom.
	ContentMode string `mapstructure:"content_mode"`
}

// TransitionConfig is the transition used between clips that do not name one.
type TransitionConfig struct {
	Effect   string        `mapstructure:"effect"`
	Duration time.Duration `mapstructure:"duration"`
	Easing   string        `mapstructure:"easing"`
}

// StillsConfig controls clips built from images, PDF pages and QR slates.
type StillsConfig struct {
	Duration time.Duration `mapstructure:"duration"`
	DPI      int           `mapstructure:"dpi"`
	QRSize   int           `mapstructure:"qr_size"`
}

// ExportConfig controls the render loop.
type ExportConfig struct {
	Output string `mapstructure:"output"`
	// Workers is the number of frames in flight. Zero picks one per CPU.
	Workers   int  `mapstructure:"workers"`
	ShowStats bool `mapstructure:"show_stats"`
}

// FFmpegConfig holds encoder settings.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ProbePath  string `mapstructure:"probe_path"`
	// Encoder is an ffmpeg video encoder name. Empty picks the best available.
	Encoder string `mapstructure:"encoder"`
	Quality int    `mapstructure:"quality"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and use the
// T2V_ prefix with underscores for nesting, e.g. T2V_RENDER_WIDTH=1920.
func Load(configPath string) (*Config, error) {
	v := New(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// New prepares a viper instance with defaults, search paths and environment
// binding. Command-line flags are bound onto it by the caller.
func New(configPath string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("timeline2video")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/timeline2video")
	}

	v.SetEnvPrefix("T2V")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper unmarshals and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("render.width", defaultWidth)
	v.SetDefault("render.height", defaultHeight)
	v.SetDefault("render.fps", defaultFPS)
	v.SetDefault("render.background", "#000000")
	v.SetDefault("render.content_mode", "fit")

	v.SetDefault("transition.effect", "fade")
	v.SetDefault("transition.duration", defaultTransitionDuration)
	v.SetDefault("transition.easing", "linear")

	v.SetDefault("stills.duration", defaultStillDuration)
	v.SetDefault("stills.dpi", defaultDPI)
	v.SetDefault("stills.qr_size", defaultQRSize)

	v.SetDefault("export.output", "output.mp4")
	v.SetDefault("export.workers", 0)
	v.SetDefault("export.show_stats", false)

	v.SetDefault("ffmpeg.binary_path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")
	v.SetDefault("ffmpeg.encoder", "")
	v.SetDefault("ffmpeg.quality", defaultQuality)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Render.Width < 2 || c.Render.Height < 2 {
		return fmt.Errorf("render size must be at least 2x2, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render size must be even for yuv420p, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.FPS < 1 || c.Render.FPS > 240 {
		return fmt.Errorf("render.fps must be between 1 and 240")
	}
	if _, err := ParseColor(c.Render.Background); err != nil {
		return fmt.Errorf("render.background: %w", err)
	}
	validModes := map[string]bool{"fit": true, "fill": true, "custom": true}
	if !validModes[c.Render.ContentMode] {
		return fmt.Errorf("render.content_mode must be one of: fit, fill, custom")
	}

	if _, err := effects.Lookup(c.Transition.Effect); err != nil {
		return fmt.Errorf("transition.effect: %w", err)
	}
	if c.Transition.Duration < 0 {
		return fmt.Errorf("transition.duration must not be negative")
	}
	if c.Stills.Duration <= 0 {
		return fmt.Errorf("stills.duration must be positive")
	}
	if c.Transition.Duration >= c.Stills.Duration {
		return fmt.Errorf("transition.duration %s must be shorter than stills.duration %s", c.Transition.Duration, c.Stills.Duration)
	}
	if c.Stills.DPI < 1 {
		return fmt.Errorf("stills.dpi must be at least 1")
	}

	if c.Export.Workers < 0 {
		return fmt.Errorf("export.workers must not be negative")
	}
	if c.FFmpeg.Quality < 0 {
		return fmt.Errorf("ffmpeg.quality must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}

// FrameDuration is one frame at the configured rate.
func (c *RenderConfig) FrameDuration() mediatime.Time {
	return mediatime.New(1, int32(c.FPS))
}
