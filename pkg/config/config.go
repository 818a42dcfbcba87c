// Package config holds the host settings: cache limits, timeouts, kernel
// tuning and the server address. Geometry packages never read it; the
// host passes the resolved values down.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qutlas/cadmium/pkg/cache"
	"github.com/qutlas/cadmium/pkg/engine"
	"github.com/qutlas/cadmium/pkg/kernel/csg"
	"github.com/qutlas/cadmium/pkg/kernel/feature"
	"github.com/qutlas/cadmium/pkg/kernel/sdfx"
	"github.com/qutlas/cadmium/pkg/logging"
	"github.com/qutlas/cadmium/pkg/worker"
)

// Kernel backends for script and log replay.
const (
	BackendCadmium  = "cadmium"
	BackendSdfx     = "sdfx"
	BackendManifold = "manifold"
)

const (
	DefaultListen        = ":8080"
	DefaultSweepInterval = time.Minute
)

// Config holds all host settings.
type Config struct {
	// Server
	Listen   string `json:"listen" yaml:"listen"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Cache. A negative TTL disables expiry.
	CacheMaxBytes int64    `json:"cache_max_bytes" yaml:"cache_max_bytes"`
	CacheTTL      Duration `json:"cache_ttl" yaml:"cache_ttl"`
	SweepInterval Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// Execution
	WorkerTimeout Duration `json:"worker_timeout" yaml:"worker_timeout"`
	ScriptTimeout Duration `json:"script_timeout" yaml:"script_timeout"`

	// Kernel
	Backend     string  `json:"backend" yaml:"backend"`
	Epsilon     float64 `json:"epsilon" yaml:"epsilon"`
	ArcSegments int     `json:"arc_segments" yaml:"arc_segments"`
	SharpAngle  float64 `json:"sharp_angle" yaml:"sharp_angle"`
	SDFCells    int     `json:"sdf_cells" yaml:"sdf_cells"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	Listen        string
	LogLevel      string
	Backend       string
	CacheMaxBytes int64
	WorkerTimeout time.Duration
}

// Load reads a JSON or YAML config file, chosen by extension. Unknown keys
// are rejected. Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return Config{}, fmt.Errorf("config: %s: unsupported extension %q (want .json, .yaml or .yml)", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config with every field at its default.
func Default() Config {
	var c Config
	c.Resolve(Flags{})
	return c
}

// Resolve applies flag overrides and then fills empty fields with
// defaults.
func (c *Config) Resolve(flags Flags) {
	// CLI flags override config file
	if flags.Listen != "" {
		c.Listen = flags.Listen
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.Backend != "" {
		c.Backend = flags.Backend
	}
	if flags.CacheMaxBytes > 0 {
		c.CacheMaxBytes = flags.CacheMaxBytes
	}
	if flags.WorkerTimeout > 0 {
		c.WorkerTimeout = Duration(flags.WorkerTimeout)
	}

	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheMaxBytes <= 0 {
		c.CacheMaxBytes = cache.DefaultMaxBytes
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = Duration(cache.DefaultTTL)
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = Duration(DefaultSweepInterval)
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = Duration(worker.DefaultTimeout)
	}
	if c.ScriptTimeout <= 0 {
		c.ScriptTimeout = Duration(engine.EvalTimeout)
	}
	if c.Backend == "" {
		c.Backend = BackendCadmium
	}
	if c.Epsilon <= 0 {
		c.Epsilon = csg.DefaultEpsilon
	}
	if c.ArcSegments <= 0 {
		c.ArcSegments = feature.DefaultArcSegments
	}
	if c.SharpAngle <= 0 {
		c.SharpAngle = feature.DefaultSharpAngle
	}
	if c.SDFCells <= 0 {
		c.SDFCells = sdfx.DefaultMeshCells
	}
}

// Validate reports settings that Resolve cannot repair.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCadmium, BackendSdfx, BackendManifold:
	default:
		return fmt.Errorf("config: unknown backend %q (want %s, %s or %s)",
			c.Backend, BackendCadmium, BackendSdfx, BackendManifold)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.SharpAngle >= 180 {
		return fmt.Errorf("config: sharp_angle must be below 180 degrees, got %v", c.SharpAngle)
	}
	return nil
}
