// Package config loads simulation parameters from embedded YAML defaults, an
// optional user file, a .env file, and PDSIM_* environment variables.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds everything a command needs.
type Config struct {
	World   WorldConfig   `yaml:"world"`
	Run     RunConfig     `yaml:"run"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Batch   BatchConfig   `yaml:"batch"`
}

// WorldConfig holds the parameters fixed at World construction.
type WorldConfig struct {
	Population       int     `yaml:"population" json:"population"`
	NumGroups        int     `yaml:"num_groups" json:"num_groups"`
	ProbErr          float64 `yaml:"prob_err" json:"prob_err"`
	ProbPoint        float64 `yaml:"prob_point" json:"prob_point"`
	ProbSplit        float64 `yaml:"prob_split" json:"prob_split"`
	ProbDupli        float64 `yaml:"prob_dupli" json:"prob_dupli"`
	NumRounds        int     `yaml:"num_rounds" json:"num_rounds"`
	PartnersPerRound int     `yaml:"partners_per_round" json:"partners_per_round"`
	TurnoverRate     float64 `yaml:"turnover_rate" json:"turnover_rate"`

	// DistinctPartners forbids drawing the same partner twice within one
	// agent's turn. Off by default: rematching is allowed.
	DistinctPartners bool `yaml:"distinct_partners" json:"distinct_partners"`
}

// RunConfig controls a single run.
type RunConfig struct {
	Seed        int64  `yaml:"seed"` // 0 = draw from crypto/rand
	Ticks       int    `yaml:"ticks"`
	ReportEvery int    `yaml:"report_every"` // ticks between info-level summaries; 0 disables
	LogLevel    string `yaml:"log_level"`
}

// StorageConfig selects the statistics store. Driver "none" disables it.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres | none
	DSN    string `yaml:"dsn"`
}

// APIConfig controls the observation server used in serve mode.
type APIConfig struct {
	Port           int    `yaml:"port"`
	AdminKey       string `yaml:"-"` // env only
	TickIntervalMS int    `yaml:"tick_interval_ms"`
}

// BatchConfig is the parameter grid for batch runs.
type BatchConfig struct {
	NumGroups   []int `yaml:"num_groups"`
	Populations []int `yaml:"populations"`
	Iterations  int   `yaml:"iterations"`
	MaxSteps    int   `yaml:"max_steps"`
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return cfg, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.World.Validate(); err != nil {
		return err
	}
	if c.Run.Ticks < 0 {
		return fmt.Errorf("%w: run.ticks must be >= 0, got %d", ErrInvalid, c.Run.Ticks)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "none", "":
	default:
		return fmt.Errorf("%w: storage.driver %q (want sqlite, postgres or none)", ErrInvalid, c.Storage.Driver)
	}
	if c.Batch.Iterations < 0 || c.Batch.MaxSteps < 0 {
		return fmt.Errorf("%w: batch iterations and max_steps must be >= 0", ErrInvalid)
	}
	for _, g := range c.Batch.NumGroups {
		if g < 1 {
			return fmt.Errorf("%w: batch.num_groups entries must be >= 1, got %d", ErrInvalid, g)
		}
	}
	for _, p := range c.Batch.Populations {
		if p < 2 {
			return fmt.Errorf("%w: batch.populations entries must be >= 2, got %d", ErrInvalid, p)
		}
	}
	return nil
}

// Validate checks the world parameters.
func (w WorldConfig) Validate() error {
	if w.Population < 2 {
		return fmt.Errorf("%w: population must be >= 2, got %d", ErrInvalid, w.Population)
	}
	if w.NumGroups < 1 {
		return fmt.Errorf("%w: num_groups must be >= 1, got %d", ErrInvalid, w.NumGroups)
	}
	if w.NumRounds < 1 {
		return fmt.Errorf("%w: num_rounds must be >= 1, got %d", ErrInvalid, w.NumRounds)
	}
	if w.PartnersPerRound < 0 {
		return fmt.Errorf("%w: partners_per_round must be >= 0, got %d", ErrInvalid, w.PartnersPerRound)
	}
	probs := []struct {
		name string
		v    float64
	}{
		{"prob_err", w.ProbErr},
		{"prob_point", w.ProbPoint},
		{"prob_split", w.ProbSplit},
		{"prob_dupli", w.ProbDupli},
		{"turnover_rate", w.TurnoverRate},
	}
	for _, p := range probs {
		if p.v < 0 || p.v > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %g", ErrInvalid, p.name, p.v)
		}
	}
	return nil
}

// TickInterval returns the real-time interval between ticks in serve mode.
func (a APIConfig) TickInterval() time.Duration {
	if a.TickIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(a.TickIntervalMS) * time.Millisecond
}

// SlogLevel maps log_level to a slog level. Unknown values mean info.
func (r RunConfig) SlogLevel() slog.Level {
	switch strings.ToLower(r.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
