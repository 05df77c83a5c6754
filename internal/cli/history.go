package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/stressor/internal/history"
	"github.com/wesleyorama2/stressor/internal/performance/output"
	"github.com/wesleyorama2/stressor/internal/performance/report"
)

const defaultHistoryDB = "stressor-history.db"

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with "stressor run --history-db", most recent first.

  stressor history --db runs.db --limit 20
  stressor history show <id> --db runs.db
  stressor history delete <id> --db runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), v.GetString("target"), v.GetInt("limit"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tTARGET\tWORKERS\tREQUESTS\tSUCCESS\tRPS\tP95\tRATING\tRESULT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.2f%%\t%.1f\t%s\t%s\t%s\n",
					e.ID,
					e.StartedAt.Local().Format("2006-01-02 15:04:05"),
					e.Target,
					e.Concurrency,
					report.FormatNumber(e.Total),
					e.SuccessRate,
					e.Throughput,
					report.FormatMs(e.P95),
					report.Stars(e.Stars),
					verdict(e),
				)
			}
			return w.Flush()
		},
	}
	cmd.PersistentFlags().String("db", defaultHistoryDB, "SQLite history database")
	cmd.Flags().String("target", "", "Only list runs against this target")
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0: all)")

	cmd.AddCommand(newHistoryShowCmd(), newHistoryDeleteCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				return report.WriteJSON(out, r)
			}
			if path := v.GetString("html"); path != "" {
				return writeHTML(out, r, path)
			}
			output.NewConsole(output.ConsoleConfig{Writer: out, NoColor: v.GetBool("no-color")}).PrintSummary(r)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().String("html", "", "Write the report as HTML to this file")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func openHistory(cmd *cobra.Command) (*viper.Viper, *history.Store, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(v.GetString("db"))
	if err != nil {
		return nil, nil, err
	}
	return v, store, nil
}

func verdict(e history.Entry) string {
	switch {
	case e.Aborted:
		return "ABORTED"
	case e.Passed:
		return "PASSED"
	default:
		return "FAILED"
	}
}
