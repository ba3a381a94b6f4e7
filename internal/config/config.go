// Package config loads the YAML configuration file, expands
// environment references, and applies defaults and bounds.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/halcyon-ai/halcyon/internal/orchestrator"
	"github.com/halcyon-ai/halcyon/internal/sessions"
	"github.com/halcyon-ai/halcyon/internal/tools"
)

// Config is the full process configuration.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Audit        AuditConfig        `yaml:"audit"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Tools        ToolsConfig        `yaml:"tools"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Providers    []ProviderConfig   `yaml:"providers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type AuditConfig struct {
	Enabled        bool `yaml:"enabled"`
	BufferSize     int  `yaml:"buffer_size"`
	IncludeDetails bool `yaml:"include_details"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type OrchestratorConfig struct {
	// RequestTimeout is clamped to 1s..300s.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxHistoryTurns caps how many turns are replayed per request.
	MaxHistoryTurns int `yaml:"max_history_turns"`
	// MaxConcurrentRequests is advisory; enforcement belongs to the
	// caller or gateway in front of this process.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

type ToolsConfig struct {
	// DefaultTimeout is clamped to 1s..60s.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type ProviderConfig struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Default returns a configuration with every knob at its default.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
		Audit:   AuditConfig{Enabled: true, BufferSize: 1024, IncludeDetails: true},
		Tracing: TracingConfig{ServiceName: "halcyon", SampleRate: 1.0},
		Orchestrator: OrchestratorConfig{
			RequestTimeout:        orchestrator.DefaultRequestTimeout,
			MaxHistoryTurns:       orchestrator.DefaultMaxHistoryTurns,
			MaxConcurrentRequests: 32,
		},
		Tools: ToolsConfig{DefaultTimeout: tools.DefaultToolTimeout},
		Sessions: SessionsConfig{
			TTL:           sessions.DefaultSessionTTL,
			SweepInterval: sessions.DefaultSweepInterval,
		},
	}
}

// Load reads a YAML file, expands ${ENV} references, and normalizes
// the result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize clamps out-of-range values back into their documented
// bounds instead of rejecting the file.
func (c *Config) normalize() {
	if c.Orchestrator.RequestTimeout <= 0 {
		c.Orchestrator.RequestTimeout = orchestrator.DefaultRequestTimeout
	}
	if c.Orchestrator.RequestTimeout < orchestrator.MinRequestTimeout {
		c.Orchestrator.RequestTimeout = orchestrator.MinRequestTimeout
	}
	if c.Orchestrator.RequestTimeout > orchestrator.MaxRequestTimeout {
		c.Orchestrator.RequestTimeout = orchestrator.MaxRequestTimeout
	}

	if c.Orchestrator.MaxHistoryTurns <= 0 {
		c.Orchestrator.MaxHistoryTurns = orchestrator.DefaultMaxHistoryTurns
	}
	if c.Orchestrator.MaxConcurrentRequests <= 0 {
		c.Orchestrator.MaxConcurrentRequests = 32
	}

	if c.Tools.DefaultTimeout <= 0 {
		c.Tools.DefaultTimeout = tools.DefaultToolTimeout
	}
	if c.Tools.DefaultTimeout < tools.MinToolTimeout {
		c.Tools.DefaultTimeout = tools.MinToolTimeout
	}
	if c.Tools.DefaultTimeout > tools.MaxToolTimeout {
		c.Tools.DefaultTimeout = tools.MaxToolTimeout
	}

	if c.Sessions.TTL <= 0 {
		c.Sessions.TTL = sessions.DefaultSessionTTL
	}
	if c.Sessions.SweepInterval <= 0 {
		c.Sessions.SweepInterval = sessions.DefaultSweepInterval
	}

	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 1024
	}
	if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "halcyon"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

func (c *Config) validate() error {
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider entries require a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
