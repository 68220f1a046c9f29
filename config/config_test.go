package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PORT", "")
	t.Setenv(EnvPrefix+"_SERVER_PORT", "")
	os.Unsetenv("PORT")
	os.Unsetenv(EnvPrefix + "_SERVER_PORT")
	t.Setenv(EnvPrefix+"_IMAGES_TEMP_DIR", filepath.Join(dir, "tmp"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unexpected listen address %s", cfg.Server.Addr())
	}
	if cfg.Engine.Timeout != 120*time.Second || !cfg.Engine.Align {
		t.Errorf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Journal.Enabled || cfg.MQTT.Enabled {
		t.Error("journal and MQTT must be disabled by default")
	}
	if _, err := os.Stat(filepath.Join(dir, "tmp")); err != nil {
		t.Errorf("temp image directory was not created: %v", err)
	}
}

func TestPortFromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
}

func TestPortFlagOverridesEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 5000, "")
	if err := flags.Parse([]string{"--port", "9090"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithFlags("", flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadFileAndPrefixedEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
engine:
  url: http://engine:5005/
  detector_backend: retinaface
log:
  level: DEBUG
inference:
  max_concurrent: 4
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPrefix+"_ENGINE_TIMEOUT", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.URL != "http://engine:5005" {
		t.Errorf("engine url = %s, trailing slash should be trimmed", cfg.Engine.URL)
	}
	if cfg.Engine.DetectorBackend != "retinaface" || cfg.Inference.MaxConcurrent != 4 {
		t.Errorf("file values not applied: %+v / %+v", cfg.Engine, cfg.Inference)
	}
	if cfg.Engine.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s from environment", cfg.Engine.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s, want lower case", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 5000},
			Engine: EngineConfig{URL: "http://localhost:5005"},
			Images: ImagesConfig{MaxBytes: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty engine url", func(c *Config) { c.Engine.URL = "" }},
		{"zero max bytes", func(c *Config) { c.Images.MaxBytes = 0 }},
		{"negative concurrency", func(c *Config) { c.Inference.MaxConcurrent = -1 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown server mode", func(c *Config) { c.Server.Mode = "production" }},
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
