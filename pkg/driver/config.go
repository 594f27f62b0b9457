package driver

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all driver configuration
type Config struct {
	Capture    CaptureConfig    `yaml:"capture"`
	Engine     EngineConfig     `yaml:"engine"`
	Loop       LoopConfig       `yaml:"loop"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
	Display    DisplayConfig    `yaml:"display"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
}

// CaptureConfig configures the video input source
type CaptureConfig struct {
	Spec        string `yaml:"spec"`         // "" or "0".."N" for devices, else path/URI
	Backend     string `yaml:"backend"`      // ffmpeg, opencv
	Width       int    `yaml:"width"`        // 0 = source
	Height      int    `yaml:"height"`       // 0 = source
	Framerate   int    `yaml:"framerate"`    // 0 = source
	Format      string `yaml:"format"`       // bgr24, rgb24, gray
	InputFormat string `yaml:"input_format"` // ffmpeg demuxer override
}

// EngineConfig configures the tracking engine
type EngineConfig struct {
	Kind            string        `yaml:"kind"`       // null, exec
	Vocabulary      string        `yaml:"vocabulary"` // feature vocabulary resource
	Settings        string        `yaml:"settings"`   // camera calibration/settings resource
	Mode            string        `yaml:"mode"`       // monocular
	Viewer          bool          `yaml:"viewer"`
	Command         string        `yaml:"command"` // exec engine binary
	Args            []string      `yaml:"args"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoopConfig configures the acquisition loop
type LoopConfig struct {
	MaxFrames int64 `yaml:"max_frames"` // 0 = until exhausted or interrupted
}

// TrajectoryConfig configures the pose trajectory file
type TrajectoryConfig struct {
	Path string `yaml:"path"` // empty = disabled
}

// DisplayConfig configures the frame window (opencv builds only)
type DisplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

// APIConfig configures the status/control API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig configures logging
type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used without a config file
func DefaultConfig() *Config {
	cfg := baseConfig()
	cfg.applyDefaults()
	return &cfg
}

// baseConfig holds defaults whose zero value is meaningful, so they are set
// before decoding and only an absent key keeps them. An explicit empty
// capture spec means device 0 without path fallback, unlike "0".
func baseConfig() Config {
	return Config{
		Capture: CaptureConfig{Spec: "0"},
		Engine:  EngineConfig{Viewer: true},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := baseConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capture.Backend == "" {
		c.Capture.Backend = "ffmpeg"
	}
	if c.Capture.Format == "" {
		c.Capture.Format = "bgr24"
	}
	if c.Engine.Kind == "" {
		c.Engine.Kind = "null"
	}
	if c.Engine.Vocabulary == "" {
		c.Engine.Vocabulary = "ORBvoc.txt"
	}
	if c.Engine.Settings == "" {
		c.Engine.Settings = "webcam.yaml"
	}
	if c.Engine.Mode == "" {
		c.Engine.Mode = "monocular"
	}
	if c.Engine.StartTimeout == 0 {
		c.Engine.StartTimeout = 2 * time.Minute
	}
	if c.Engine.ShutdownTimeout == 0 {
		c.Engine.ShutdownTimeout = 10 * time.Second
	}
	if c.Display.Title == "" {
		c.Display.Title = "input"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that defaults cannot fix
func (c *Config) Validate() error {
	if c.Capture.Width < 0 || c.Capture.Height < 0 || c.Capture.Framerate < 0 {
		return fmt.Errorf("%w: capture geometry must not be negative", ErrConfiguration)
	}
	if (c.Capture.Width == 0) != (c.Capture.Height == 0) {
		return fmt.Errorf("%w: capture width and height must be set together", ErrConfiguration)
	}
	if c.Loop.MaxFrames < 0 {
		return fmt.Errorf("%w: max_frames must not be negative", ErrConfiguration)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: invalid api port %d", ErrConfiguration, c.API.Port)
	}
	return nil
}
