package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/library"
)

var showCmd = &cobra.Command{
	Use:     "show <comic-id-or-url>",
	Aliases: []string{"info"},
	Short:   "Show a comic's volumes and their local download state",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := application

		comicID, err := parseComicRef(args[0])
		if err != nil {
			return err
		}

		remote := catalog.NewRemote(a.router)
		detail, err := remote.Detail(ctx, comicID)
		if err != nil {
			return err
		}

		dir := filepath.Join(a.cfg.DownloadDir, library.EntryDirName(detail.Meta.Title, comicID))
		entry, err := a.store.Load(dir)
		if err != nil {
			return err
		}
		recorded := map[string]struct{}{}
		if entry != nil {
			recorded = entry.RecordedIDs()
		}

		fmt.Printf("%s (book %s", detail.Meta.Title, detail.Meta.BookID)
		if detail.Meta.Status != "" {
			fmt.Printf(", status %s", detail.Meta.Status)
		}
		fmt.Println(")")

		t := newTable()
		t.AppendHeader(table.Row{"#", "Volume", "Pages", "EPUB", "MOBI", "Local"})
		for i, v := range detail.Volumes {
			local := ""
			if _, ok := recorded[v.VolID]; ok {
				local = "yes"
			}
			t.AppendRow(table.Row{
				i + 1,
				v.Title,
				v.FileCount,
				formatBytes(v.ExpectedBytes(catalog.FormatEpub)),
				formatBytes(v.ExpectedBytes(catalog.FormatMobi)),
				local,
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
