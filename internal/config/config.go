// Package config loads tracker settings from defaults, an optional
// tracker.cfg.json and TRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tabletop-tracker/internal/brick"
)

const (
	FileName  = "tracker.cfg.json"
	EnvPrefix = "TRACKER"
)

type ServerConfig struct {
	Address string `json:"address" mapstructure:"address"`
}

type CameraConfig struct {
	Device    int `json:"device" mapstructure:"device"`
	Width     int `json:"width" mapstructure:"width"`
	Height    int `json:"height" mapstructure:"height"`
	Framerate int `json:"framerate" mapstructure:"framerate"`
}

type BoardConfig struct {
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
	// NotRecognizedNotifyDelay is how long the board must stay lost before
	// clients are told.
	NotRecognizedNotifyDelay time.Duration `json:"notRecognizedNotifyDelay" mapstructure:"notRecognizedNotifyDelay"`
}

type IntervalConfig struct {
	PollInterval time.Duration `json:"pollInterval" mapstructure:"pollInterval"`
}

type DebugConfig struct {
	ScreenshotDir string `json:"screenshotDir" mapstructure:"screenshotDir"`
}

type MetricsConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	File     string        `json:"file" mapstructure:"file"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

type Config struct {
	LogLevel  string         `json:"logLevel" mapstructure:"logLevel"`
	LogFormat string         `json:"logFormat" mapstructure:"logFormat"`
	Server    ServerConfig   `json:"server" mapstructure:"server"`
	Camera    CameraConfig   `json:"camera" mapstructure:"camera"`
	Board     BoardConfig    `json:"board" mapstructure:"board"`
	Lifecycle IntervalConfig `json:"lifecycle" mapstructure:"lifecycle"`
	Reporter  IntervalConfig `json:"reporter" mapstructure:"reporter"`
	Brick     brick.Config   `json:"brick" mapstructure:"brick"`
	Debug     DebugConfig    `json:"debug" mapstructure:"debug"`
	Metrics   MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "console")

	viper.SetDefault("server.address", ":9001")

	viper.SetDefault("camera.device", 0)
	viper.SetDefault("camera.width", 640)
	viper.SetDefault("camera.height", 480)
	viper.SetDefault("camera.framerate", 16)

	viper.SetDefault("board.width", 1280)
	viper.SetDefault("board.height", 800)
	viper.SetDefault("board.notRecognizedNotifyDelay", "3s")

	viper.SetDefault("lifecycle.pollInterval", "10ms")
	viper.SetDefault("reporter.pollInterval", "10ms")

	b := brick.DefaultConfig()
	viper.SetDefault("brick.minMedianDelta", b.MinMedianDelta)
	viper.SetDefault("brick.minProbability", b.MinProbability)
	viper.SetDefault("brick.maxDeviation", b.MaxDeviation)
	viper.SetDefault("brick.minProbabilityDelta", b.MinProbabilityDelta)

	viper.SetDefault("debug.screenshotDir", "debug")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.file", "tracker.metrics.json")
	viper.SetDefault("metrics.interval", "1m")
}

// Load reads configuration from configDir. A missing config file is not an
// error; defaults and environment still apply.
func Load(configDir string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	if configDir != "" {
		viper.AddConfigPath(configDir)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("logFormat must be console or json, got: %s", c.LogFormat)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive, got: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Board.Width <= 0 || c.Board.Height <= 0 {
		return fmt.Errorf("board size must be positive, got: %dx%d", c.Board.Width, c.Board.Height)
	}
	if c.Lifecycle.PollInterval <= 0 || c.Reporter.PollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.Metrics.Enabled && (c.Metrics.File == "" || c.Metrics.Interval <= 0) {
		return fmt.Errorf("metrics need a file and a positive interval, got: %q every %s", c.Metrics.File, c.Metrics.Interval)
	}
	return c.Brick.Validate()
}
