package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/compiler"
	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/linkgraph"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
	"github.com/fyrsmithlabs/recalld/internal/queue"
	"github.com/fyrsmithlabs/recalld/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recalld HTTP daemon",
	Long: `Start the recalld HTTP daemon.

Serves the injection, feedback, validation and learning-queue API,
drains the learning queue on a timer, and recompiles stale context
caches in the background.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, st, err := bootstrap()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logging.Sync(logger)

	embedder, completer := buildProviders(cfg, logger)

	comp := compiler.New(st, completer, logger)
	recompiler := compiler.NewRecompiler(comp, cfg.Compiler.RecompileTimeout.Duration(), logger)
	recompiler.Start()
	defer recompiler.Stop()

	links := linkgraph.NewService(st, completer, logger)
	orch := orchestrator.New(st, embedder, links, recompiler, logger)
	drainer := queue.NewDrainer(st,
		extraction.NewExtractor(completer, logger),
		dedup.New(st, embedder, logger),
		logger)

	srv, err := server.New(cfg.Server, orch, links, drainer, st, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go drainLoop(ctx, drainer, links, cfg.Queue.DrainInterval.Duration(), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// drainLoop periodically drains the learning queue and, after each
// pass that landed new learnings, runs link inference so co-occurring
// items grow typed edges.
func drainLoop(ctx context.Context, drainer *queue.Drainer, links *linkgraph.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats, err := drainer.Drain(ctx, "")
		if err != nil {
			logger.Warn("queue drain failed", zap.Error(err))
			continue
		}
		if stats.Inserted == 0 && stats.Merged == 0 {
			continue
		}
		for _, projectID := range stats.Projects {
			if _, err := links.InferLinks(ctx, projectID); err != nil {
				logger.Warn("link inference failed",
					zap.String("project_id", projectID), zap.Error(err))
			}
		}
	}
}
