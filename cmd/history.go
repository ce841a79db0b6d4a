package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transfer history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application
		if a.journal == nil {
			return fmt.Errorf("transfer journal is unavailable")
		}

		events, err := a.journal.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No transfers recorded yet.")
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"Finished", "Volume", "Format", "Status", "Size", "Error"})
		for _, ev := range events {
			title := ev.Title
			if title == "" {
				title = ev.VolID
			}
			t.AppendRow(table.Row{
				ev.FinishedAt.Local().Format("2006-01-02 15:04:05"),
				title,
				ev.Format,
				ev.Status,
				formatBytes(ev.SizeBytes),
				ev.Error,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "maximum number of transfers to show")
	rootCmd.AddCommand(historyCmd)
}
