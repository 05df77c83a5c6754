package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stressor/internal/performance/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a run configuration file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid\n", args[0])
			fmt.Fprintf(out, "  Target:      %s\n", cfg.Target)
			fmt.Fprintf(out, "  Endpoints:   %d\n", len(cfg.Endpoints))
			fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "  Duration:    %s\n", cfg.Duration)
			if !cfg.Thresholds.Empty() {
				fmt.Fprintf(out, "  Thresholds:  %d\n", len(cfg.Thresholds.Parsed()))
			}
			return nil
		},
	}
}
