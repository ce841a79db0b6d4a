package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/library"
)

var linkCmd = &cobra.Command{
	Use:   "link <dir> <comic-id-or-url>",
	Short: "Attach a directory to a comic and rebuild its record",
	Long: `Match the book files in a directory against the given comic and rewrite
its library record. Use this for directories whose name does not encode a
comic id, where scan cannot work out which comic they belong to.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := application

		dir := args[0]
		comicID, err := parseComicRef(args[1])
		if err != nil {
			return err
		}

		remote := catalog.NewRemote(a.router)
		entry, unmatched, err := linkDirectory(cmd.Context(), remote, a.store, a.log, dir, comicID)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d/%d volumes on disk\n", entry.Title, len(entry.DownloadedVolumes), entry.TotalVolumes)
		for _, f := range unmatched {
			fmt.Printf("  unmatched: %s\n", f.RecordName())
		}

		if _, err := a.store.RebuildIndex(filepath.Dir(dir), time.Now()); err != nil {
			a.log.Warn("rebuilding library index failed", "error", err)
		}
		return nil
	},
}

// linkDirectory rebuilds the library record of dir from its files and the
// catalog record of comicID.
func linkDirectory(ctx context.Context, remote catalog.Client, store *library.Store, log *slog.Logger, dir, comicID string) (library.Entry, []library.ScannedFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return library.Entry{}, nil, fmt.Errorf("link %s: %w", dir, err)
	}
	if !info.IsDir() {
		return library.Entry{}, nil, fmt.Errorf("link %s: not a directory", dir)
	}

	detail, err := remote.Detail(ctx, comicID)
	if err != nil {
		return library.Entry{}, nil, err
	}
	files, err := library.ScanBookFiles(dir, log)
	if err != nil {
		return library.Entry{}, nil, err
	}

	entry, unmatched := library.Rebuild(files, detail, comicID, time.Now())
	if err := store.Save(dir, &entry); err != nil {
		return library.Entry{}, nil, err
	}
	return entry, unmatched, nil
}

func init() {
	rootCmd.AddCommand(linkCmd)
}
