package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultMaxTokens bounds the reply length for every request unless
// overridden per call.
const DefaultMaxTokens = 200

// Config holds client configuration.
type Config struct {
	// BaseURL is the server root; /v1/chat/completions is appended.
	BaseURL string

	// APIKey is optional for local servers.
	APIKey string

	// Model is the default model identifier.
	Model string

	// MaxTokens is the default reply token limit.
	MaxTokens int

	// Timeout bounds a single request.
	Timeout time.Duration

	// HTTPClient overrides the transport (tests inject one here).
	HTTPClient *http.Client

	// Logger for request diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL sets the server root URL.
// Examples: "http://localhost:1234", "http://localhost:11434"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the default reply token limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for a local server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:1234",
		Model:     "qwen/qwen2.5-vl-7b",
		MaxTokens: DefaultMaxTokens,
		Timeout:   30 * time.Second,
		Logger:    slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
