package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/oakfield-research/qex-cli/internal/model"
	"github.com/oakfield-research/qex-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List extraction runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		status, _ := cmd.Flags().GetString("status")
		key, _ := cmd.Flags().GetString("key")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Key:    key,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEY\tSTATUS\tTABLES\tOUTCOMES\tCOST\tCREATED")
	for _, r := range runs {
		tables, outcomes, cost := "-", "-", "-"
		if r.Summary != nil {
			tables = fmt.Sprintf("%d", r.Summary.TablesDiscovered)
			outcomes = fmt.Sprintf("%d", r.Summary.OutcomesExtracted)
			cost = fmt.Sprintf("$%.4f", r.Summary.EstimatedCostUSD)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Key, r.Status, tables, outcomes, cost,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsCmd.Flags().String("status", "", "filter by run status")
	runsCmd.Flags().String("key", "", "filter by document key")
	runsCmd.Flags().Int("limit", 50, "maximum runs to list")

	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
