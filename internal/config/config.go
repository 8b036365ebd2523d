// Package config provides configuration loading for recalld: defaults,
// overridden by a YAML file, overridden by RECALLD_* environment
// variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Embedding ProviderConfig  `koanf:"embedding"`
	LLM       ProviderConfig  `koanf:"llm"`
	Compiler  CompilerConfig  `koanf:"compiler"`
	Queue     QueueConfig     `koanf:"queue"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `koanf:"addr"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ProviderConfig configures one external model provider. An empty
// APIKey disables the provider; the feature it backs degrades to its
// documented fallback.
type ProviderConfig struct {
	APIKey  Secret `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// Enabled reports whether the provider is configured.
func (p ProviderConfig) Enabled() bool { return p.APIKey.IsSet() }

// CompilerConfig configures background cache compilation.
type CompilerConfig struct {
	RecompileTimeout Duration `koanf:"recompile_timeout"`
}

// QueueConfig configures learning-queue draining.
type QueueConfig struct {
	DrainInterval Duration `koanf:"drain_interval"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8420"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(15 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "recalld.db"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.Compiler.RecompileTimeout == 0 {
		cfg.Compiler.RecompileTimeout = Duration(2 * time.Minute)
	}
	if cfg.Queue.DrainInterval == 0 {
		cfg.Queue.DrainInterval = Duration(time.Minute)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Server.ShutdownTimeout.Duration() < 0 {
		return fmt.Errorf("server.shutdown_timeout cannot be negative")
	}
	if c.Queue.DrainInterval.Duration() < time.Second {
		return fmt.Errorf("queue.drain_interval must be at least 1s")
	}
	return nil
}
