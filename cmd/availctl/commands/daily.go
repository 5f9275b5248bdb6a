package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alex-user-go/hutavail/internal/report"
)

func newDailyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Fetch availability for every hut and append it to a report",
		Long: `Fetch availability for every hut in the roster and append one row
per hut and night to a report. Files ending in .xlsx are written as
Excel workbooks, everything else as CSV.

Example:
  availctl daily --start 2025-07-01 --end 2025-09-30 --out data/daily.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dateRange(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			bookingTypes, _ := cmd.Flags().GetStringSlice("types")

			a, err := e.app()
			if err != nil {
				return err
			}
			defer a.Close()

			huts := a.Roster.Filter(bookingTypes...).Huts()
			summary, err := a.Runner().Run(cmd.Context(), huts, start, end)
			if err != nil && len(summary.Rows) == 0 {
				return err
			}
			if writeErr := report.Write(out, summary.Rows); writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d rows for %d huts written to %s (%d failed)\n",
				summary.RunID, len(summary.Rows), len(huts)-len(summary.Failed), out, len(summary.Failed))
			return err
		},
	}

	addRangeFlags(cmd)
	cmd.Flags().String("out", "data/daily.csv", "report file (.csv or .xlsx)")
	cmd.Flags().StringSlice("types", nil, "only huts with these booking types")
	return cmd
}
