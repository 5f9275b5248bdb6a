package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alex-user-go/hutavail/internal/availability/types"
)

func newCheckCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Print the availability of one hut",
		Example: `  availctl check --hut rifugio-fanes --start 2025-08-01 --end 2025-08-07
  availctl check --hut rifugio-fanes --start 2025-08-01 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dateRange(cmd)
			if err != nil {
				return err
			}
			slug, _ := cmd.Flags().GetString("hut")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := e.app()
			if err != nil {
				return err
			}
			defer a.Close()

			got, err := a.Service.Availability(cmd.Context(), slug, start, end)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(got.Dates)
			}
			return printTable(cmd, got.Hut.Name, got.Dates)
		},
	}

	addRangeFlags(cmd)
	cmd.Flags().String("hut", "", "hut slug")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("hut")
	return cmd
}

func printTable(cmd *cobra.Command, hut string, dates map[types.Date]types.Result) error {
	days := make([]types.Date, 0, len(dates))
	for d := range dates {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	fmt.Fprintln(cmd.OutOrStdout(), hut)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tBEDS\tROOMS")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", d, dates[d].NumAvailable, formatRooms(dates[d].Rooms))
	}
	return tw.Flush()
}

// formatRooms renders rooms as "2x2 1x4" (count x size), smallest rooms first.
func formatRooms(rooms types.RoomAvailability) string {
	if len(rooms) == 0 {
		return "-"
	}
	sizes := make([]int, 0, len(rooms))
	for size := range rooms {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	out := ""
	for i, size := range sizes {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%dx%d", rooms[size], size)
	}
	return out
}
