package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/download"
	"github.com/kmoe-dl/kmoe/internal/library"
)

var updateDryRun bool

var updateCmd = &cobra.Command{
	Use:   "update [comic-id...]",
	Short: "Fetch new volumes for library entries",
	Long: `Check library entries against the remote catalog and download any
volumes published since the last check. Without arguments every entry in
the library is updated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := application
		root := a.cfg.DownloadDir

		entries, err := a.store.ListEntries(root)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			wanted := make(map[string]struct{}, len(args))
			for _, ref := range args {
				id, err := parseComicRef(ref)
				if err != nil {
					return err
				}
				wanted[id] = struct{}{}
			}
			var filtered []library.LocatedEntry
			for _, le := range entries {
				if _, ok := wanted[le.Entry.ComicID]; ok {
					filtered = append(filtered, le)
					continue
				}
				if _, ok := wanted[le.Entry.BookID]; ok {
					filtered = append(filtered, le)
				}
			}
			entries = filtered
		}
		if len(entries) == 0 {
			fmt.Println("No library entries to update.")
			return nil
		}

		if err := requireSession(ctx); err != nil {
			return err
		}

		format, err := catalog.ParseFormat(a.cfg.DefaultFormat)
		if err != nil {
			return err
		}
		remote := catalog.NewRemote(a.router)

		var updatedEntries, newVolumes, failures int
		for _, le := range entries {
			comicID := le.Entry.ComicID
			if comicID == "" {
				a.log.Warn("entry has no comic id, skipping", "dir", le.DirName)
				continue
			}

			detail, err := remote.Detail(ctx, comicID)
			if err != nil {
				a.log.Warn("catalog check failed", "title", le.Entry.Title, "error", err)
				failures++
				continue
			}

			missing := library.DiffMissing(*le.Entry, detail.VolumeIDs())
			stale := staleVolumes(le)
			if len(missing) == 0 && len(stale) == 0 {
				// Refresh derived fields even when nothing is missing, so
				// completeness and last-checked stay honest.
				refreshed := library.RecordDownload(*le.Entry, nil, detail, time.Now())
				if err := a.store.Save(le.Dir, &refreshed); err != nil {
					return err
				}
				continue
			}
			newCount := len(missing)
			missing = mergeVolumeIDs(detail.VolumeIDs(), missing, stale)

			if len(stale) > 0 {
				fmt.Printf("%s: %d new volume(s), %d missing from disk\n",
					detail.Meta.Title, newCount, len(stale))
			} else {
				fmt.Printf("%s: %d new volume(s)\n", detail.Meta.Title, newCount)
			}
			if updateDryRun {
				newVolumes += len(missing)
				continue
			}

			dir := le.Dir
			mgr := download.NewManager(download.Options{
				Router:  a.router,
				Journal: a.journal,
				Logger:  a.log,
				Workers: a.cfg.MaxDownloadWorkers,
				Retries: a.cfg.MaxRetries,
				Persist: func(e library.Entry) error {
					return a.store.Save(dir, &e)
				},
			})

			updated, batch := mgr.DownloadBatch(ctx, dir, *le.Entry, detail, missing, format)
			if err := a.store.Save(dir, &updated); err != nil {
				return err
			}

			succeeded, failed, _, quota := batch.Counts()
			newVolumes += succeeded
			failures += failed
			if succeeded > 0 {
				updatedEntries++
			}
			if quota > 0 {
				fmt.Println("Download quota exhausted; stopping the update run.")
				break
			}
		}

		if _, err := a.store.RebuildIndex(root, time.Now()); err != nil {
			a.log.Warn("rebuilding library index failed", "error", err)
		}

		fmt.Printf("Update finished: %d entr(ies) gained %d volume(s), %d failure(s)\n",
			updatedEntries, newVolumes, failures)
		if failures > 0 {
			return fmt.Errorf("%d volume(s) could not be downloaded", failures)
		}
		return nil
	},
}

// staleVolumes returns recorded volume IDs whose files have vanished from
// disk. Records pointing into an archive are checked against the archive
// itself.
func staleVolumes(le library.LocatedEntry) []string {
	var stale []string
	for _, rec := range le.Entry.DownloadedVolumes {
		name := rec.Filename
		if i := strings.Index(name, "/"); i > 0 {
			name = name[:i]
		}
		if name == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(le.Dir, name)); err != nil {
			stale = append(stale, rec.VolID)
		}
	}
	return stale
}

// mergeVolumeIDs unions the given ID sets, ordered by the remote catalog.
// IDs no longer present in the catalog are dropped.
func mergeVolumeIDs(remote []string, sets ...[]string) []string {
	want := make(map[string]struct{})
	for _, set := range sets {
		for _, id := range set {
			want[id] = struct{}{}
		}
	}
	var out []string
	for _, id := range remote {
		if _, ok := want[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func init() {
	updateCmd.Flags().BoolVarP(&updateDryRun, "dry-run", "n", false, "report new volumes without downloading them")
	rootCmd.AddCommand(updateCmd)
}
