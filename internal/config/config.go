// Package config loads camapp configuration with the precedence
// env vars > config file > built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Defaults for a local OpenAI-compatible server (LM Studio, Ollama, vLLM).
const (
	DefaultListenAddr = ":8088"
	DefaultBaseURL    = "http://localhost:1234"
	DefaultModel      = "qwen/qwen2.5-vl-7b"
	DefaultInterval   = 1000 * time.Millisecond
)

// DefaultInstruction is sent with every frame unless overridden.
const DefaultInstruction = "Describe what you see in one short sentence."

// Config is the full camapp configuration.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	LogLevel   string `toml:"log_level"`

	Camera    CameraConfig    `toml:"camera"`
	Inference InferenceConfig `toml:"inference"`
	Poll      PollConfig      `toml:"poll"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	// Device is the OpenCV device index (0 = first webcam).
	Device int `toml:"device"`
}

// InferenceConfig points at the vision-language-model endpoint.
type InferenceConfig struct {
	// BaseURL is the server root; /v1/chat/completions is appended.
	BaseURL string `toml:"base_url"`

	// APIKey is optional for local servers.
	APIKey string `toml:"api_key"`

	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`

	// TimeoutMS bounds a single request, milliseconds.
	TimeoutMS int `toml:"timeout_ms"`
}

// PollConfig controls the capture-and-dispatch loop.
type PollConfig struct {
	IntervalMS  int    `toml:"interval_ms"`
	Instruction string `toml:"instruction"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		LogLevel:   "info",
		Camera:     CameraConfig{Device: 0},
		Inference: InferenceConfig{
			BaseURL:   DefaultBaseURL,
			Model:     DefaultModel,
			MaxTokens: 200,
			TimeoutMS: 30000,
		},
		Poll: PollConfig{
			IntervalMS:  int(DefaultInterval.Milliseconds()),
			Instruction: DefaultInstruction,
		},
	}
}

// Load reads the config file at path (if it exists), applies CAMAPP_*
// environment overrides, and validates the result. An empty path skips
// the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "CAMAPP_LISTEN_ADDR")
	setString(&cfg.LogLevel, "CAMAPP_LOG_LEVEL")
	setInt(&cfg.Camera.Device, "CAMAPP_CAMERA_DEVICE")
	setString(&cfg.Inference.BaseURL, "CAMAPP_BASE_URL")
	setString(&cfg.Inference.APIKey, "CAMAPP_API_KEY")
	setString(&cfg.Inference.Model, "CAMAPP_MODEL")
	setInt(&cfg.Inference.MaxTokens, "CAMAPP_MAX_TOKENS")
	setInt(&cfg.Inference.TimeoutMS, "CAMAPP_TIMEOUT_MS")
	setInt(&cfg.Poll.IntervalMS, "CAMAPP_INTERVAL_MS")
	setString(&cfg.Poll.Instruction, "CAMAPP_INSTRUCTION")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Inference.BaseURL == "" {
		return fmt.Errorf("config: inference base_url is required")
	}
	if c.Inference.Model == "" {
		return fmt.Errorf("config: inference model is required")
	}
	if c.Poll.IntervalMS < 100 {
		return fmt.Errorf("config: poll interval_ms must be at least 100, got %d", c.Poll.IntervalMS)
	}
	if c.Camera.Device < 0 {
		return fmt.Errorf("config: camera device must not be negative")
	}
	return nil
}

// Interval returns the poll interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// Timeout returns the inference request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Inference.TimeoutMS) * time.Millisecond
}
