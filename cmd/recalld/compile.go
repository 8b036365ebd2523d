package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/recalld/internal/compiler"
	"github.com/fyrsmithlabs/recalld/internal/logging"
)

var compileCmd = &cobra.Command{
	Use:   "compile <project-id>",
	Short: "Recompile a project's context caches",
	Long: `Recompile a project's pre-compiled context caches.

The daemon recompiles caches in the background after feedback and queue
drains; this command forces an immediate recompile, for example after
bulk-importing learnings.

Examples:
  recalld compile my-project
  recalld compile --config /etc/recalld/config.yaml my-project`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func runCompile(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	cfg, logger, st, err := bootstrap()
	if err != nil {
		return err
	}
	defer st.Close()
	defer logging.Sync(logger)

	_, completer := buildProviders(cfg, logger)
	comp := compiler.New(st, completer, logger)

	if err := comp.CompileProject(cmd.Context(), projectID); err != nil {
		return fmt.Errorf("compile project %s: %w", projectID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "compiled caches for %s\n", projectID)
	return nil
}
