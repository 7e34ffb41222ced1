package config

import (
	"fmt"
	"time"
)

// CurrentSchemaVersion is the schema version written by Render.
const CurrentSchemaVersion = "1.0"

// Config is the top-level structure of an nftctl config file.
type Config struct {
	// Empty means "1.0".
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`

	Session *SessionConfig `hcl:"session,block" json:"session,omitempty" yaml:"session,omitempty"`
	Log     *LogConfig     `hcl:"log,block" json:"log,omitempty" yaml:"log,omitempty"`
	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty" yaml:"metrics,omitempty"`

	Tables []TableConfig `hcl:"table,block" json:"tables,omitempty" yaml:"tables,omitempty"`
}

// SessionConfig configures the interactive nft process.
type SessionConfig struct {
	Binary      string   `hcl:"binary,optional" json:"binary,omitempty" yaml:"binary,omitempty"`
	Args        []string `hcl:"args,optional" json:"args,omitempty" yaml:"args,omitempty"`
	Namespace   string   `hcl:"namespace,optional" json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Prompt      string   `hcl:"prompt,optional" json:"prompt,omitempty" yaml:"prompt,omitempty"`
	ErrorMarker string   `hcl:"error_marker,optional" json:"error_marker,omitempty" yaml:"error_marker,omitempty"`

	// Durations use Go syntax ("15s", "1m30s").
	Timeout      string `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ReadyTimeout string `hcl:"ready_timeout,optional" json:"ready_timeout,omitempty" yaml:"ready_timeout,omitempty"`

	Retry *RetryConfig `hcl:"retry,block" json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryConfig bounds how often a hung session is restarted for one command.
// MaxAttempts of 1 disables restarts.
type RetryConfig struct {
	MaxAttempts  int    `hcl:"max_attempts,optional" json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelay string `hcl:"initial_delay,optional" json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	MaxDelay     string `hcl:"max_delay,optional" json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
}

// TableConfig is one table of a plan.
type TableConfig struct {
	Name          string `hcl:"name,label" json:"name" yaml:"name"`
	Family        string `hcl:"family,optional" json:"family,omitempty" yaml:"family,omitempty"`
	FlushExisting bool   `hcl:"flush_existing,optional" json:"flush_existing,omitempty" yaml:"flush_existing,omitempty"`
	Reuse         bool   `hcl:"reuse,optional" json:"reuse,omitempty" yaml:"reuse,omitempty"`

	Sets     []SetConfig     `hcl:"set,block" json:"sets,omitempty" yaml:"sets,omitempty"`
	Counters []CounterConfig `hcl:"counter,block" json:"counters,omitempty" yaml:"counters,omitempty"`
	Chains   []ChainConfig   `hcl:"chain,block" json:"chains,omitempty" yaml:"chains,omitempty"`
}

// ChainConfig is a regular chain, or a base chain when Hook is set.
type ChainConfig struct {
	Name     string   `hcl:"name,label" json:"name" yaml:"name"`
	Type     string   `hcl:"type,optional" json:"type,omitempty" yaml:"type,omitempty"`
	Hook     string   `hcl:"hook,optional" json:"hook,omitempty" yaml:"hook,omitempty"`
	Device   string   `hcl:"device,optional" json:"device,omitempty" yaml:"device,omitempty"`
	Priority string   `hcl:"priority,optional" json:"priority,omitempty" yaml:"priority,omitempty"`
	Policy   string   `hcl:"policy,optional" json:"policy,omitempty" yaml:"policy,omitempty"`
	Rules    []string `hcl:"rules,optional" json:"rules,omitempty" yaml:"rules,omitempty"`
}

// IsBase reports whether the chain attaches to a netfilter hook.
func (c ChainConfig) IsBase() bool {
	return c.Hook != ""
}

// SetConfig is a named set.
type SetConfig struct {
	Name       string   `hcl:"name,label" json:"name" yaml:"name"`
	Type       string   `hcl:"type" json:"type" yaml:"type"`
	Flags      []string `hcl:"flags,optional" json:"flags,omitempty" yaml:"flags,omitempty"`
	Timeout    string   `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
	GCInterval string   `hcl:"gc_interval,optional" json:"gc_interval,omitempty" yaml:"gc_interval,omitempty"`
	Size       int      `hcl:"size,optional" json:"size,omitempty" yaml:"size,omitempty"`
	Policy     string   `hcl:"policy,optional" json:"policy,omitempty" yaml:"policy,omitempty"`
	AutoMerge  bool     `hcl:"auto_merge,optional" json:"auto_merge,omitempty" yaml:"auto_merge,omitempty"`
	Elements   []string `hcl:"elements,optional" json:"elements,omitempty" yaml:"elements,omitempty"`
}

// CounterConfig is a named counter.
type CounterConfig struct {
	Name string `hcl:"name,label" json:"name" yaml:"name"`
}

// Default returns a config with an empty plan and stock session settings.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Session: &SessionConfig{
			Timeout:      "15s",
			ReadyTimeout: "10s",
			Retry: &RetryConfig{
				MaxAttempts:  3,
				InitialDelay: "250ms",
				MaxDelay:     "5s",
			},
		},
		Log: &LogConfig{Level: "info"},
	}
}

// ParseDuration parses an optional duration; empty yields def.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative", s)
	}
	return d, nil
}

// SessionOrDefault never returns nil.
func (c *Config) SessionOrDefault() *SessionConfig {
	if c == nil || c.Session == nil {
		return &SessionConfig{}
	}
	return c.Session
}
