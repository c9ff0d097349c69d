package lite3

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// FileConfig is the YAML shape of a router configuration:
//
//	seed:
//	  host: 10.0.0.1
//	  port: 8080
//	timeout: 5s
//	placement: ring
//	replicas: 160
//	refresh:
//	  max_retries: 3
//	  initial_interval: 100ms
//	  backoff: 10s
//	  timeout: 30s
//	  after_failures: 5
//	concurrency: 4
//	probe_timeout: 2s
//	logger:
//	  level: info
//	  json: false
type FileConfig struct {
	Seed         SeedConfig    `yaml:"seed"`
	Timeout      string        `yaml:"timeout"`
	Placement    string        `yaml:"placement"`
	Replicas     int           `yaml:"replicas"`
	Refresh      RefreshConfig `yaml:"refresh"`
	Concurrency  int           `yaml:"concurrency"`
	ProbeTimeout string        `yaml:"probe_timeout"`
	Logger       LoggerConfig  `yaml:"logger"`
}

type SeedConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RefreshConfig struct {
	MaxRetries      int    `yaml:"max_retries"`
	InitialInterval string `yaml:"initial_interval"`
	Backoff         string `yaml:"backoff"`
	Timeout         string `yaml:"timeout"`
	AfterFailures   int    `yaml:"after_failures"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultFileConfig mirrors NewOptions with a local seed
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Seed:         SeedConfig{Host: "127.0.0.1", Port: defaultPeerPort},
		Timeout:      "5s",
		Placement:    string(PlacementRing),
		Replicas:     160,
		Refresh:      RefreshConfig{InitialInterval: "100ms", Backoff: "10s", Timeout: "30s"},
		Concurrency:  4,
		ProbeTimeout: "2s",
		Logger:       LoggerConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file yields
// the defaults.
func LoadConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

// Options converts the file config. Unset fields keep NewOptions defaults.
func (c FileConfig) Options() (*Options, error) {
	opts := NewOptions()

	timeout, err := parseDuration("timeout", c.Timeout)
	if err != nil {
		return nil, err
	}
	if c.Timeout != "" {
		opts.WithTimeout(timeout)
	}

	if c.Placement != "" {
		opts.WithPlacement(Placement(strings.ToLower(c.Placement)))
	}
	if c.Replicas != 0 {
		opts.WithReplicas(c.Replicas)
	}
	if c.Concurrency != 0 {
		opts.WithConcurrency(c.Concurrency)
	}

	probe, err := parseDuration("probe_timeout", c.ProbeTimeout)
	if err != nil {
		return nil, err
	}
	if probe != 0 {
		opts.WithProbeTimeout(probe)
	}

	initial, err := parseDuration("refresh.initial_interval", c.Refresh.InitialInterval)
	if err != nil {
		return nil, err
	}
	if initial != 0 {
		opts.WithRefreshInitialInterval(initial)
	}

	limit, err := parseDuration("refresh.backoff", c.Refresh.Backoff)
	if err != nil {
		return nil, err
	}
	if limit != 0 {
		opts.WithRefreshBackoff(limit)
	}

	refreshTimeout, err := parseDuration("refresh.timeout", c.Refresh.Timeout)
	if err != nil {
		return nil, err
	}
	if refreshTimeout != 0 {
		opts.WithRefreshTimeout(refreshTimeout)
	}

	opts.WithRefreshMaxRetries(c.Refresh.MaxRetries).
		WithRefreshAfterFailures(c.Refresh.AfterFailures).
		WithLogger(c.Logger.New())

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// New builds a text or JSON slog logger at the configured level
func (c LoggerConfig) New() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

// NewFromConfig loads path and builds a router for its seed
func NewFromConfig(path string) (*Router, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return New(cfg.Seed.Host, cfg.Seed.Port, opts)
}
