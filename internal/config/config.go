// Package config holds the application configuration: game parameters,
// search tuning, cache sizing, scheduling topology and the ambient
// logging/metrics settings. Values come from defaults, an optional
// YAML file and BINSTRETCH_* environment variables, merged by viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bohm/binstretch/pkg/game"
)

// Config is the root configuration.
type Config struct {
	Game      GameConfig      `json:"game" yaml:"game" mapstructure:"game"`
	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler" mapstructure:"scheduler"`
	Net       NetConfig       `json:"net" yaml:"net" mapstructure:"net"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Servers maps hostnames to machine-specific resources, with a
	// "default" row for unlisted hosts.
	Servers map[string]ServerProperties `json:"servers" yaml:"servers" mapstructure:"servers"`
}

// GameConfig fixes the three game parameters.
type GameConfig struct {
	Bins int `json:"bins" yaml:"bins" mapstructure:"bins"`
	R    int `json:"r" yaml:"r" mapstructure:"r"`
	S    int `json:"s" yaml:"s" mapstructure:"s"`
}

// Params converts to the engine's parameter value.
func (g GameConfig) Params() game.Params {
	return game.Params{Bins: g.Bins, R: g.R, S: g.S}
}

// SearchConfig tunes the minimax engine.
type SearchConfig struct {
	// TaskLoad and TaskDepth are the tau/delta thresholds of the task
	// boundary predicate.
	TaskLoad  int    `json:"task_load" yaml:"task_load" mapstructure:"task_load"`
	TaskDepth int    `json:"task_depth" yaml:"task_depth" mapstructure:"task_depth"`
	Boundary  string `json:"boundary" yaml:"boundary" mapstructure:"boundary"`

	// StartMonotonicity is the first monotonicity tried; rounds
	// relax it step by step up to S-1.
	StartMonotonicity int `json:"start_monotonicity" yaml:"start_monotonicity" mapstructure:"start_monotonicity"`

	// RegrowLimit re-expands solved task vertices into deeper
	// searches this many times. Zero disables regrowing.
	RegrowLimit int `json:"regrow_limit" yaml:"regrow_limit" mapstructure:"regrow_limit"`

	// CandidateOrder is "descending" or "frequency" (the latter only
	// meaningful for the 19/14 game).
	CandidateOrder string `json:"candidate_order" yaml:"candidate_order" mapstructure:"candidate_order"`

	// InitialSequence forces the adversary's first moves before the
	// parallel phase begins.
	InitialSequence []int `json:"initial_sequence" yaml:"initial_sequence" mapstructure:"initial_sequence"`
}

// CacheConfig sizes the two transposition caches in log2 bytes.
type CacheConfig struct {
	StateLogBytes     int  `json:"state_log_bytes" yaml:"state_log_bytes" mapstructure:"state_log_bytes"`
	GuaranteeLogBytes int  `json:"guarantee_log_bytes" yaml:"guarantee_log_bytes" mapstructure:"guarantee_log_bytes"`
	LockedGuarantee   bool `json:"locked_guarantee" yaml:"locked_guarantee" mapstructure:"locked_guarantee"`
}

// SchedulerConfig shapes the queen/overseer/worker topology.
type SchedulerConfig struct {
	Overseers      int `json:"overseers" yaml:"overseers" mapstructure:"overseers"`
	Workers        int `json:"workers" yaml:"workers" mapstructure:"workers"`
	BatchSize      int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	BatchThreshold int `json:"batch_threshold" yaml:"batch_threshold" mapstructure:"batch_threshold"`
	TickMillis     int `json:"tick_millis" yaml:"tick_millis" mapstructure:"tick_millis"`
	// TickTasks is how many collected solutions trigger an update
	// pass between ticks.
	TickTasks int `json:"tick_tasks" yaml:"tick_tasks" mapstructure:"tick_tasks"`
}

// NetConfig selects the messaging backend.
type NetConfig struct {
	// Mode is "local" (single process) or "ws" (queen listens,
	// overseers dial).
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode"`
	Listen   string `json:"listen" yaml:"listen" mapstructure:"listen"`
	QueenURL string `json:"queen_url" yaml:"queen_url" mapstructure:"queen_url"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // "console" or "json"
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" yaml:"listen" mapstructure:"listen"`
}

// ServerProperties are the per-host resources: cache sizes and worker
// count, looked up by hostname with a "default" fallback.
type ServerProperties struct {
	StateLogBytes     int `json:"state_log_bytes" yaml:"state_log_bytes" mapstructure:"state_log_bytes"`
	GuaranteeLogBytes int `json:"guarantee_log_bytes" yaml:"guarantee_log_bytes" mapstructure:"guarantee_log_bytes"`
	Workers           int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the configuration used when no file is given:
// the 19/14 game on three bins, modest caches, one local overseer.
func DefaultConfig() *Config {
	return &Config{
		Game: GameConfig{Bins: 3, R: 19, S: 14},
		Search: SearchConfig{
			TaskLoad:          8,
			TaskDepth:         4,
			Boundary:          "mixed",
			StartMonotonicity: 0,
			RegrowLimit:       0,
			CandidateOrder:    "descending",
		},
		Cache: CacheConfig{
			StateLogBytes:     26,
			GuaranteeLogBytes: 26,
		},
		Scheduler: SchedulerConfig{
			Overseers:      1,
			Workers:        4,
			BatchSize:      250,
			BatchThreshold: 100,
			TickMillis:     20,
			TickTasks:      200,
		},
		Net: NetConfig{
			Mode:   "local",
			Listen: ":18276",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enabled: false, Listen: ":9090"},
		Servers: map[string]ServerProperties{},
	}
}

// Load reads the configuration: defaults, then the YAML file (if path
// is non-empty), then BINSTRETCH_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("binstretch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	defaults, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshalling defaults: %w", err)
	}
	if err := v.ReadConfig(strings.NewReader(string(defaults))); err != nil {
		return nil, fmt.Errorf("config: seeding defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Game.Params().Validate(); err != nil {
		return err
	}
	if c.Scheduler.Overseers < 1 && c.Net.Mode == "local" {
		return fmt.Errorf("config: local mode needs at least one overseer, got %d", c.Scheduler.Overseers)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Scheduler.Workers)
	}
	switch c.Net.Mode {
	case "local", "ws":
	default:
		return fmt.Errorf("config: unknown net mode %q", c.Net.Mode)
	}
	switch c.Search.CandidateOrder {
	case "descending", "frequency":
	default:
		return fmt.Errorf("config: unknown candidate order %q", c.Search.CandidateOrder)
	}
	if c.Search.StartMonotonicity < 0 || c.Search.StartMonotonicity > c.Game.S {
		return fmt.Errorf("config: start monotonicity %d outside [0,%d]", c.Search.StartMonotonicity, c.Game.S)
	}
	for _, it := range c.Search.InitialSequence {
		if it < 1 || it > c.Game.S {
			return fmt.Errorf("config: initial sequence item %d outside [1,%d]", it, c.Game.S)
		}
	}
	return nil
}

// PropertiesForHost returns the machine-specific resources for this
// host, the "default" row, or values derived from the global sections.
func (c *Config) PropertiesForHost() ServerProperties {
	host, err := os.Hostname()
	if err == nil {
		if props, ok := c.Servers[host]; ok {
			return props
		}
	}
	if props, ok := c.Servers["default"]; ok {
		return props
	}
	return ServerProperties{
		StateLogBytes:     c.Cache.StateLogBytes,
		GuaranteeLogBytes: c.Cache.GuaranteeLogBytes,
		Workers:           c.Scheduler.Workers,
	}
}
