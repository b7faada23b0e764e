package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != ":8088" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.Inference.BaseURL != "http://localhost:1234" {
		t.Errorf("unexpected base url %q", cfg.Inference.BaseURL)
	}
	if cfg.Poll.IntervalMS != 1000 {
		t.Errorf("unexpected interval %d", cfg.Poll.IntervalMS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camapp.toml")
	data := `
listen_addr = ":9000"
log_level = "debug"

[camera]
device = 2

[inference]
base_url = "http://10.0.0.5:8000"
model = "llava"
timeout_ms = 5000

[poll]
interval_ms = 250
instruction = "What changed?"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen addr: %q", cfg.ListenAddr)
	}
	if cfg.Camera.Device != 2 {
		t.Errorf("device: %d", cfg.Camera.Device)
	}
	if cfg.Inference.BaseURL != "http://10.0.0.5:8000" {
		t.Errorf("base url: %q", cfg.Inference.BaseURL)
	}
	if cfg.Inference.Model != "llava" {
		t.Errorf("model: %q", cfg.Inference.Model)
	}
	if cfg.Poll.Instruction != "What changed?" {
		t.Errorf("instruction: %q", cfg.Poll.Instruction)
	}
	// File omits max_tokens; the default survives partial files.
	if cfg.Inference.MaxTokens != 200 {
		t.Errorf("max_tokens default lost: %d", cfg.Inference.MaxTokens)
	}

	if cfg.Interval() != 250*time.Millisecond {
		t.Errorf("interval: %v", cfg.Interval())
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("timeout: %v", cfg.Timeout())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.Inference.Model != DefaultModel {
		t.Errorf("expected default model, got %q", cfg.Inference.Model)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camapp.toml")
	if err := os.WriteFile(path, []byte("listen_addr = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camapp.toml")
	data := `
[inference]
model = "from-file"

[poll]
interval_ms = 500
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CAMAPP_MODEL", "from-env")
	t.Setenv("CAMAPP_INTERVAL_MS", "2000")
	t.Setenv("CAMAPP_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Inference.Model != "from-env" {
		t.Errorf("env should beat file, got %q", cfg.Inference.Model)
	}
	if cfg.Poll.IntervalMS != 2000 {
		t.Errorf("interval: %d", cfg.Poll.IntervalMS)
	}
	if cfg.Inference.APIKey != "sk-test" {
		t.Errorf("api key: %q", cfg.Inference.APIKey)
	}
}

func TestEnvIgnoresUnparsableInt(t *testing.T) {
	t.Setenv("CAMAPP_INTERVAL_MS", "fast")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Poll.IntervalMS != 1000 {
		t.Errorf("garbage env value should be ignored, got %d", cfg.Poll.IntervalMS)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.Inference.BaseURL = "" }, "base_url"},
		{"missing model", func(c *Config) { c.Inference.Model = "" }, "model"},
		{"interval too small", func(c *Config) { c.Poll.IntervalMS = 50 }, "interval_ms"},
		{"negative device", func(c *Config) { c.Camera.Device = -1 }, "device"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}
}
