package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qutlas/cadmium/pkg/cache"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cadmium.yaml", `
listen: 127.0.0.1:9000
log_level: debug
cache_max_bytes: 1048576
cache_ttl: 90s
worker_timeout: 2m
backend: sdfx
sdf_cells: 64
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" || cfg.LogLevel != "debug" || cfg.Backend != "sdfx" {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.CacheMaxBytes != 1<<20 || cfg.SDFCells != 64 {
		t.Errorf("CacheMaxBytes = %d, SDFCells = %d", cfg.CacheMaxBytes, cfg.SDFCells)
	}
	if cfg.CacheTTL.Std() != 90*time.Second || cfg.WorkerTimeout.Std() != 2*time.Minute {
		t.Errorf("CacheTTL = %v, WorkerTimeout = %v", cfg.CacheTTL, cfg.WorkerTimeout)
	}
	if cfg.Epsilon != 0 {
		t.Errorf("Epsilon = %v, want unset before Resolve", cfg.Epsilon)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "cadmium.json", `{"epsilon": 1e-6, "cache_ttl": "-1s", "script_timeout": 3000000000, "arc_segments": 12}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Epsilon != 1e-6 || cfg.ArcSegments != 12 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.ScriptTimeout.Std() != 3*time.Second {
		t.Errorf("ScriptTimeout = %v, want 3s", cfg.ScriptTimeout)
	}
	cfg.Resolve(Flags{})
	if cfg.CacheTTL.Std() != -time.Second {
		t.Errorf("CacheTTL = %v, want negative TTL kept", cfg.CacheTTL)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != (Config{}) {
		t.Errorf("Load() = %+v, want zero config", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{"unknown yaml key", "a.yaml", "colour: red\n", "colour"},
		{"unknown json key", "a.json", `{"colour": "red"}`, "colour"},
		{"bad duration", "a.yaml", "cache_ttl: soon\n", "duration"},
		{"bad json duration", "a.json", `{"cache_ttl": true}`, "duration"},
		{"unsupported extension", "a.toml", "listen = ':1'", "unsupported extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}

func TestResolve(t *testing.T) {
	cfg := Config{Listen: ":1", Backend: "sdfx", CacheMaxBytes: 10}
	cfg.Resolve(Flags{Backend: "cadmium", WorkerTimeout: 5 * time.Second})

	if cfg.Listen != ":1" {
		t.Errorf("Listen = %q, want file value kept", cfg.Listen)
	}
	if cfg.Backend != BackendCadmium {
		t.Errorf("Backend = %q, want flag override", cfg.Backend)
	}
	if cfg.CacheMaxBytes != 10 {
		t.Errorf("CacheMaxBytes = %d, want 10", cfg.CacheMaxBytes)
	}
	if cfg.WorkerTimeout.Std() != 5*time.Second {
		t.Errorf("WorkerTimeout = %v, want 5s", cfg.WorkerTimeout)
	}
	if cfg.Epsilon != csg.DefaultEpsilon || cfg.LogLevel != "info" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.CacheMaxBytes != cache.DefaultMaxBytes || cfg.CacheTTL.Std() != cache.DefaultTTL {
		t.Errorf("cache defaults = %d %v", cfg.CacheMaxBytes, cfg.CacheTTL)
	}
	if cfg.Listen != DefaultListen || cfg.SweepInterval.Std() != DefaultSweepInterval {
		t.Errorf("Listen = %q, SweepInterval = %v", cfg.Listen, cfg.SweepInterval)
	}
	if cfg.ArcSegments <= 0 || cfg.SharpAngle <= 0 || cfg.SDFCells <= 0 || cfg.ScriptTimeout <= 0 {
		t.Errorf("kernel defaults missing: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "opencascade" }, "unknown backend"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"flat sharp angle", func(c *Config) { c.SharpAngle = 180 }, "sharp_angle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDurationEncoding(t *testing.T) {
	d := Duration(90 * time.Second)

	b, err := json.Marshal(d)
	if err != nil || string(b) != `"1m30s"` {
		t.Errorf("json.Marshal() = %s, %v, want \"1m30s\"", b, err)
	}
	y, err := yaml.Marshal(struct {
		TTL Duration `yaml:"ttl"`
	}{d})
	if err != nil || string(y) != "ttl: 1m30s\n" {
		t.Errorf("yaml.Marshal() = %q, %v", y, err)
	}

	var back Duration
	if err := json.Unmarshal(b, &back); err != nil || back != d {
		t.Errorf("json.Unmarshal() = %v, %v, want %v", back, err, d)
	}
}
