package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var libraryRebuildIndex bool

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List the local library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application
		root := a.cfg.DownloadDir

		entries, err := a.store.ListEntries(root)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Library is empty.")
			return nil
		}

		t := newTable()
		t.AppendHeader(table.Row{"Title", "Comic ID", "Volumes", "Complete", "Last Checked"})
		for _, le := range entries {
			complete := ""
			if le.Entry.IsComplete {
				complete = "yes"
			}
			checked := "-"
			if !le.Entry.LastChecked.IsZero() {
				checked = le.Entry.LastChecked.Local().Format("2006-01-02 15:04")
			}
			t.AppendRow(table.Row{
				le.Entry.Title,
				le.Entry.ComicID,
				fmt.Sprintf("%d/%d", len(le.Entry.DownloadedVolumes), le.Entry.TotalVolumes),
				complete,
				checked,
			})
		}
		t.Render()

		if libraryRebuildIndex {
			if _, err := a.store.RebuildIndex(root, time.Now()); err != nil {
				return err
			}
			fmt.Println("Library index rebuilt.")
		}
		return nil
	},
}

func init() {
	libraryCmd.Flags().BoolVar(&libraryRebuildIndex, "rebuild-index", false, "rewrite the root library.json index after listing")
	rootCmd.AddCommand(libraryCmd)
}
