// Package main implements the recalld daemon and its operational
// subcommands.
//
// recalld serves relevance-gated project memory over HTTP: it scores
// and injects learnings into prompts, extracts new learnings from
// conversation transcripts in the background, and maintains
// pre-compiled context caches per project.
//
// Usage:
//
//	# Start the daemon with defaults
//	recalld serve
//
//	# Start with a config file
//	recalld serve --config /etc/recalld/config.yaml
//
//	# Force a cache recompile for one project
//	recalld compile my-project
//
//	# Run one learning-queue drain pass
//	recalld drain
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/store"

	"go.uber.org/zap"
)

// version information (set via ldflags during build)
var version = "dev"

// configPath is an optional YAML config file; environment variables
// override it either way.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recalld",
	Short: "Relevance-gated project memory daemon",
	Long: `recalld injects scored project learnings into prompts, extracts new
learnings from conversation transcripts, and keeps per-project compiled
context caches warm.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(drainCmd)
}

// bootstrap loads config, builds the logger and opens the store. The
// caller owns the returned store and must Close it.
func bootstrap() (*config.Config, *zap.Logger, *store.SQLite, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, logger, st, nil
}

// buildProviders constructs the embedding and completion providers, or
// their no-op stand-ins when no API key is configured. Every consumer
// degrades gracefully around the no-ops.
func buildProviders(cfg *config.Config, logger *zap.Logger) (embeddings.Provider, llm.Completer) {
	var embedder embeddings.Provider = embeddings.Nop{}
	if cfg.Embedding.Enabled() {
		embedder = embeddings.NewOpenAI(cfg.Embedding.APIKey.Value(), cfg.Embedding.Model, cfg.Embedding.BaseURL)
	} else {
		logger.Warn("no embedding provider configured, similarity scoring disabled")
	}

	var completer llm.Completer = llm.Nop{}
	if cfg.LLM.Enabled() {
		completer = llm.NewOpenAI(cfg.LLM.APIKey.Value(), cfg.LLM.Model, cfg.LLM.BaseURL)
	} else {
		logger.Warn("no llm provider configured, using rule-based fallbacks")
	}
	return embedder, completer
}
