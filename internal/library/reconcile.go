package library

import (
	"sort"
	"time"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

// Reconciliation entry points. All three are pure functions of
// (local state, remote truth): they return new Entry values and never touch
// the network or the file system themselves.

// corruptThreshold: a file below this fraction of its expected size is
// treated as a truncated download.
const corruptThreshold = 0.5

// RecordDownload merges newly completed download records into entry,
// overwriting any existing record with the same volume ID, and refreshes
// the derived fields from remote truth.
func RecordDownload(entry Entry, records []DownloadRecord, detail *catalog.Detail, now time.Time) Entry {
	merged := append([]DownloadRecord(nil), entry.DownloadedVolumes...)
	for _, rec := range records {
		replaced := false
		for i := range merged {
			if merged[i].VolID == rec.VolID {
				merged[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, rec)
		}
	}
	entry.DownloadedVolumes = merged
	return refresh(entry, detail, now)
}

// Rebuild derives a brand-new Entry from a directory listing and remote
// truth, replacing whatever record existed before. Files whose size is
// below half the expected size for their format are excluded as corrupt.
// The second return value lists files that could not be matched to any
// remote volume.
func Rebuild(files []ScannedFile, detail *catalog.Detail, comicID string, now time.Time) (Entry, []ScannedFile) {
	match := MatchFilesToVolumes(files, detail.Volumes)

	var records []DownloadRecord
	for _, m := range match.Matched {
		f, err := catalog.ParseFormat(m.File.Format())
		if err != nil {
			continue
		}
		if expected := m.Volume.ExpectedBytes(f); expected > 0 {
			if float64(m.File.SizeBytes) < float64(expected)*corruptThreshold {
				continue
			}
		}
		records = append(records, DownloadRecord{
			VolID:        m.Volume.VolID,
			Title:        m.Volume.Title,
			Format:       f.Ext(),
			Filename:     m.File.RecordName(),
			DownloadedAt: m.File.ModTime.UTC(),
			SizeBytes:    m.File.SizeBytes,
		})
	}

	// Deterministic output: catalog order, which MatchFilesToVolumes does
	// not guarantee.
	order := make(map[string]int, len(detail.Volumes))
	for i, v := range detail.Volumes {
		order[v.VolID] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		return order[records[i].VolID] < order[records[j].VolID]
	})

	entry := Entry{
		BookID:            detail.Meta.BookID,
		ComicID:           comicID,
		Title:             detail.Meta.Title,
		Meta:              detail.Meta,
		DownloadedVolumes: records,
	}
	return refresh(entry, detail, now), match.Unmatched
}

// DiffMissing returns the remote volume IDs with no download record, in
// remote order. It performs no disk inspection; integrity checking is
// Rebuild's job.
func DiffMissing(entry Entry, remoteIDs []string) []string {
	recorded := entry.RecordedIDs()
	var missing []string
	for _, id := range remoteIDs {
		if _, ok := recorded[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// refresh recomputes every derived field from remote truth: metadata,
// total count, completeness, and the last-checked timestamp. Records for
// volume IDs the remote no longer lists are dropped, keeping the record
// set a subset of the last observed remote ID set.
func refresh(entry Entry, detail *catalog.Detail, now time.Time) Entry {
	remote := make(map[string]struct{}, len(detail.Volumes))
	for _, v := range detail.Volumes {
		remote[v.VolID] = struct{}{}
	}

	kept := entry.DownloadedVolumes[:0:0]
	for _, rec := range entry.DownloadedVolumes {
		if _, ok := remote[rec.VolID]; ok {
			kept = append(kept, rec)
		}
	}

	total := len(detail.Volumes)
	complete := total > 0 && len(kept) == total

	entry.BookID = detail.Meta.BookID
	if entry.ComicID == "" {
		entry.ComicID = detail.Meta.ComicID
	}
	entry.Title = detail.Meta.Title
	entry.Meta = detail.Meta
	entry.DownloadedVolumes = kept
	entry.TotalVolumes = total
	entry.LastChecked = now.UTC()
	entry.IsComplete = complete
	return entry
}
