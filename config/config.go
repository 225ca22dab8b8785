// Package config loads SDK configuration from a YAML file with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vay-org/motionsdk-go/frame"
	"github.com/vay-org/motionsdk-go/session"
)

// Environment variable overrides. Each one, when set, replaces the
// corresponding file value so deployments can inject credentials and
// endpoints without editing the file.
const (
	EnvEndpoint    = "MOTION_ENDPOINT"
	EnvAPIKey      = "MOTION_API_KEY"
	EnvExercise    = "MOTION_EXERCISE"
	EnvSessionName = "MOTION_SESSION_NAME"
	EnvFPS         = "MOTION_FPS"
)

// Config is the file representation of the SDK settings.
type Config struct {
	// Endpoint is the WebSocket URL of the analysis service.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates the client. Prefer the MOTION_API_KEY
	// environment variable over committing keys to files.
	APIKey string `yaml:"apiKey"`

	// Exercise selects the exercise to analyze.
	Exercise string `yaml:"exercise"`

	// SessionName names the session. Empty means a generated name.
	SessionName string `yaml:"sessionName"`

	// DialTimeoutSeconds bounds the connection handshake.
	DialTimeoutSeconds int `yaml:"dialTimeoutSeconds"`

	// HeartbeatSeconds paces keepalive pings.
	HeartbeatSeconds int `yaml:"heartbeatSeconds"`

	// Capture configures the camera loop and frame encoding.
	Capture CaptureConfig `yaml:"capture"`
}

// CaptureConfig is the capture/encoding section of the file.
type CaptureConfig struct {
	FPS       float64 `yaml:"fps"`
	MaxWidth  int     `yaml:"maxWidth"`
	MaxHeight int     `yaml:"maxHeight"`
	Quality   int     `yaml:"quality"`
	MaxBytes  int64   `yaml:"maxBytes"`
}

// Load reads the YAML file at path and applies environment overrides. A
// missing file is an error; use FromEnv when configuration is entirely
// environment-driven.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is provided by the caller
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	var cfg Config
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvExercise); v != "" {
		c.Exercise = v
	}
	if v := os.Getenv(EnvSessionName); v != "" {
		c.SessionName = v
	}
	if v := os.Getenv(EnvFPS); v != "" {
		if fps, err := strconv.ParseFloat(v, 64); err == nil {
			c.Capture.FPS = fps
		}
	}
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required (file or %s)", EnvEndpoint)
	}
	if c.APIKey == "" {
		return fmt.Errorf("apiKey is required (file or %s)", EnvAPIKey)
	}
	if c.Exercise == "" {
		return fmt.Errorf("exercise is required (file or %s)", EnvExercise)
	}
	if c.Capture.FPS < 0 {
		return fmt.Errorf("capture.fps must not be negative")
	}
	return nil
}

// SessionConfig converts the file settings into a session client config.
// Handlers and Collector are left for the caller to fill in.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Endpoint:          c.Endpoint,
		APIKey:            c.APIKey,
		ExerciseKey:       c.Exercise,
		SessionName:       c.SessionName,
		DialTimeout:       time.Duration(c.DialTimeoutSeconds) * time.Second,
		HeartbeatInterval: time.Duration(c.HeartbeatSeconds) * time.Second,
	}
}

// SourceConfig converts the capture section into a frame source config.
func (c *Config) SourceConfig() frame.SourceConfig {
	return frame.SourceConfig{
		FPS: c.Capture.FPS,
		Encoder: frame.NewEncoder(frame.EncoderConfig{
			MaxWidth:  c.Capture.MaxWidth,
			MaxHeight: c.Capture.MaxHeight,
			Quality:   c.Capture.Quality,
			MaxBytes:  c.Capture.MaxBytes,
		}),
	}
}
