// Package config handles runtime configuration: engine binary location,
// opening book path, cloud evaluation settings. Configuration is a YAML
// file; a missing file means pure defaults so the tool works out of the
// box when a book and an engine sit in the data directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EngineConfig configures the external UCI analysis process.
type EngineConfig struct {
	Path         string   `yaml:"path"`
	Args         []string `yaml:"args,omitempty"`
	DefaultDepth int      `yaml:"default_depth"`
	TimeoutMS    int      `yaml:"timeout_ms"`
}

// BookConfig configures the opening book lookup.
type BookConfig struct {
	Path      string `yaml:"path,omitempty"`
	CacheSize int    `yaml:"cache_size"`
	MinWeight int    `yaml:"min_weight"`
}

// CloudEvalConfig configures Lichess cloud evaluation lookups.
type CloudEvalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	CacheDir  string `yaml:"cache_dir,omitempty"`
	CacheSize int    `yaml:"cache_size"`
}

// Config is the root configuration document.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Book      BookConfig      `yaml:"book"`
	CloudEval CloudEvalConfig `yaml:"cloud_eval"`
	LogFile   string          `yaml:"log_file,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Path:         "stockfish",
			DefaultDepth: 18,
			TimeoutMS:    30000,
		},
		Book: BookConfig{
			CacheSize: 1000,
			MinWeight: 1,
		},
		CloudEval: CloudEvalConfig{
			Enabled:   false,
			CacheSize: 100000,
		},
	}
}

// Load reads the configuration file at path, layering it over the
// defaults. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	c.Engine.Path = strings.TrimSpace(c.Engine.Path)
	if c.Engine.Path == "" {
		c.Engine.Path = def.Engine.Path
	}
	if c.Engine.DefaultDepth == 0 {
		c.Engine.DefaultDepth = def.Engine.DefaultDepth
	}
	if c.Engine.TimeoutMS == 0 {
		c.Engine.TimeoutMS = def.Engine.TimeoutMS
	}
	if c.Book.CacheSize == 0 {
		c.Book.CacheSize = def.Book.CacheSize
	}
	if c.Book.MinWeight == 0 {
		c.Book.MinWeight = def.Book.MinWeight
	}
	if c.CloudEval.CacheSize == 0 {
		c.CloudEval.CacheSize = def.CloudEval.CacheSize
	}
}

func (c *Config) validate() error {
	if c.Engine.DefaultDepth < 1 {
		return fmt.Errorf("engine.default_depth must be >= 1")
	}
	if c.Engine.TimeoutMS < 0 {
		return fmt.Errorf("engine.timeout_ms must not be negative")
	}
	if c.Book.CacheSize < 1 {
		return fmt.Errorf("book.cache_size must be >= 1")
	}
	if c.Book.MinWeight < 0 {
		return fmt.Errorf("book.min_weight must not be negative")
	}
	if c.CloudEval.CacheSize < 1 {
		return fmt.Errorf("cloud_eval.cache_size must be >= 1")
	}
	return nil
}
