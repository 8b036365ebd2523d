package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/queue"
)

// drainProject limits a manual drain pass to one project.
var drainProject string

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Run one learning-queue drain pass",
	Long: `Claim pending learning-queue items, extract and store their learnings,
and print the pass statistics as JSON.

Examples:
  # Drain every project's queue
  recalld drain

  # Drain a single project
  recalld drain --project my-project`,
	RunE: runDrain,
}

func init() {
	drainCmd.Flags().StringVar(&drainProject, "project", "", "drain only this project's queue")
}

func runDrain(cmd *cobra.Command, args []string) error {
	cfg, logger, st, err := bootstrap()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logging.Sync(logger)

	embedder, completer := buildProviders(cfg, logger)
	drainer := queue.NewDrainer(st,
		extraction.NewExtractor(completer, logger),
		dedup.New(st, embedder, logger),
		logger)

	stats, err := drainer.Drain(cmd.Context(), drainProject)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
