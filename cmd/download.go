package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/download"
	"github.com/kmoe-dl/kmoe/internal/library"
)

var (
	downloadVolumes string
	downloadAll     bool
	downloadFormat  string
	downloadOutput  string
)

var downloadCmd = &cobra.Command{
	Use:   "download <comic-id-or-url>",
	Short: "Download volumes of a comic into the library",
	Long: `Download volumes of a comic into the library.

Without --volumes or --all, only the volumes missing from the local
library entry are downloaded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := application

		comicID, err := parseComicRef(args[0])
		if err != nil {
			return err
		}

		formatName := downloadFormat
		if formatName == "" {
			formatName = a.cfg.DefaultFormat
		}
		format, err := catalog.ParseFormat(formatName)
		if err != nil {
			return err
		}

		if err := requireSession(ctx); err != nil {
			return err
		}

		remote := catalog.NewRemote(a.router)
		detail, err := remote.Detail(ctx, comicID)
		if err != nil {
			return err
		}
		if len(detail.Volumes) == 0 {
			return fmt.Errorf("comic %s (%s) lists no downloadable volumes", detail.Meta.Title, comicID)
		}

		root := downloadOutput
		if root == "" {
			root = a.cfg.DownloadDir
		}
		dir := filepath.Join(root, library.EntryDirName(detail.Meta.Title, comicID))

		entry, err := a.store.Load(dir)
		if err != nil {
			return err
		}
		if entry == nil {
			entry = &library.Entry{ComicID: comicID}
		}

		var volIDs []string
		switch {
		case downloadVolumes != "":
			volIDs, err = parseSelection(downloadVolumes, detail.Volumes)
			if err != nil {
				return err
			}
		case downloadAll:
			volIDs = detail.VolumeIDs()
		default:
			volIDs = library.DiffMissing(*entry, detail.VolumeIDs())
			if len(volIDs) == 0 {
				fmt.Printf("%s: all %d volumes already downloaded\n", detail.Meta.Title, len(detail.Volumes))
				return nil
			}
		}

		pw := progress.NewWriter()
		pw.SetAutoStop(true)
		tracker := &progress.Tracker{Message: "downloading volumes", Total: int64(len(volIDs))}
		pw.AppendTracker(tracker)

		mgr := download.NewManager(download.Options{
			Router:  a.router,
			Journal: a.journal,
			Logger:  a.log,
			Workers: a.cfg.MaxDownloadWorkers,
			Retries: a.cfg.MaxRetries,
			Persist: func(e library.Entry) error {
				return a.store.Save(dir, &e)
			},
			OnResult: func(download.TaskResult) { tracker.Increment(1) },
		})

		fmt.Printf("Downloading %d volume(s) of %s (%s)\n", len(volIDs), detail.Meta.Title, format)
		go pw.Render()
		updated, batch := mgr.DownloadBatch(ctx, dir, *entry, detail, volIDs, format)
		tracker.MarkAsDone()
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(10 * time.Millisecond)
		}

		if err := a.store.Save(dir, &updated); err != nil {
			return err
		}
		if _, err := a.store.RebuildIndex(root, time.Now()); err != nil {
			a.log.Warn("rebuilding library index failed", "error", err)
		}

		printBatch(detail, batch)

		succeeded, failed, _, quota := batch.Counts()
		if quota > 0 {
			fmt.Println("Download quota exhausted; remaining volumes were not attempted against other mirrors.")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d volume(s) failed", failed, len(batch.Results))
		}
		fmt.Printf("Done: %d downloaded, %d/%d volumes in library\n",
			succeeded, len(updated.DownloadedVolumes), updated.TotalVolumes)
		return nil
	},
}

func printBatch(detail *catalog.Detail, batch download.BatchResult) {
	t := newTable()
	t.AppendHeader(table.Row{"Volume", "Status", "Size", "Detail"})
	for _, r := range batch.Results {
		title := r.Title
		if title == "" {
			title = r.VolID
		}
		detailCol := ""
		if r.Err != nil {
			detailCol = r.Err.Error()
		}
		t.AppendRow(table.Row{title, string(r.Status), formatBytes(r.Bytes), detailCol})
	}
	t.Render()
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadVolumes, "volumes", "v", "", "volume selection, e.g. 1,3-5 (1-based catalog order)")
	downloadCmd.Flags().BoolVarP(&downloadAll, "all", "a", false, "download every volume, re-fetching nothing already on disk")
	downloadCmd.Flags().StringVarP(&downloadFormat, "format", "f", "", "file format: epub or mobi (default from config)")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "library root directory (default from config)")
	rootCmd.AddCommand(downloadCmd)
}
