package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/library"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Rebuild library records from the files on disk",
	Long: `Walk the library root (or the given directory), match the book files
found in each comic directory against the remote catalog, and rewrite the
library records from what is actually on disk. Files below half their
expected size are treated as corrupt and dropped from the record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := application

		root := a.cfg.DownloadDir
		if len(args) == 1 {
			root = args[0]
		}

		dirents, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("scan %s: %w", root, err)
		}

		remote := catalog.NewRemote(a.router)
		var rebuilt, skipped int

		for _, de := range dirents {
			if !de.IsDir() {
				continue
			}
			dir := filepath.Join(root, de.Name())

			comicID, err := scanComicID(dir, de.Name())
			if err != nil {
				if title, ok := library.DetectTitle(dir, a.log); ok {
					a.log.Warn("directory has book files but no comic id; cannot rebuild",
						"dir", de.Name(), "detected_title", title)
				}
				skipped++
				continue
			}

			detail, err := remote.Detail(ctx, comicID)
			if err != nil {
				a.log.Warn("catalog lookup failed", "dir", de.Name(), "comic_id", comicID, "error", err)
				skipped++
				continue
			}

			files, err := library.ScanBookFiles(dir, a.log)
			if err != nil {
				a.log.Warn("directory unreadable", "dir", de.Name(), "error", err)
				skipped++
				continue
			}

			entry, unmatched := library.Rebuild(files, detail, comicID, time.Now())
			if err := a.store.Save(dir, &entry); err != nil {
				return err
			}
			rebuilt++

			fmt.Printf("%s: %d/%d volumes on disk\n", entry.Title, len(entry.DownloadedVolumes), entry.TotalVolumes)
			for _, f := range unmatched {
				fmt.Printf("  unmatched: %s\n", f.RecordName())
			}
		}

		if _, err := a.store.RebuildIndex(root, time.Now()); err != nil {
			a.log.Warn("rebuilding library index failed", "error", err)
		}

		fmt.Printf("Scan finished: %d record(s) rebuilt, %d director(ies) skipped\n", rebuilt, skipped)
		return nil
	},
}

// scanComicID determines the comic ID for a directory: the existing record
// wins, then the "{title}_{id}" directory name convention.
func scanComicID(dir, base string) (string, error) {
	entry, err := application.store.Load(dir)
	if err == nil && entry != nil && entry.ComicID != "" {
		return entry.ComicID, nil
	}
	if _, id, ok := library.SplitEntryDirName(base); ok {
		return id, nil
	}
	return "", fmt.Errorf("no comic id for %s", base)
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
