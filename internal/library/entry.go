// Package library maintains the authoritative local state of the comic
// library: one metadata record per comic directory, reconciliation of that
// record against disk contents and remote catalog truth, and atomic
// persistence.
package library

import (
	"time"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

// DownloadRecord describes one successfully transferred volume. Filename is
// relative to the entry directory and may reference a file inside an
// archive as "archive.zip/inner.epub".
type DownloadRecord struct {
	VolID        string    `json:"vol_id"`
	Title        string    `json:"title"`
	Format       string    `json:"format"`
	Filename     string    `json:"filename"`
	DownloadedAt time.Time `json:"downloaded_at"`
	SizeBytes    int64     `json:"size_bytes"`
}

// Entry is the persisted per-comic state. DownloadedVolumes is keyed by
// VolID (unique); IsComplete is always recomputed during reconciliation,
// never trusted from stale state.
type Entry struct {
	BookID            string           `json:"book_id"`
	ComicID           string           `json:"comic_id,omitempty"`
	Title             string           `json:"title"`
	Meta              catalog.Meta     `json:"meta"`
	DownloadedVolumes []DownloadRecord `json:"downloaded_volumes"`
	TotalVolumes      int              `json:"total_volumes"`
	LastChecked       time.Time        `json:"last_checked"`
	IsComplete        bool             `json:"is_complete"`
}

// Record returns the download record for volID, if present.
func (e *Entry) Record(volID string) (DownloadRecord, bool) {
	for _, r := range e.DownloadedVolumes {
		if r.VolID == volID {
			return r, true
		}
	}
	return DownloadRecord{}, false
}

// RecordedIDs returns the set of volume IDs present in the record list.
func (e *Entry) RecordedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(e.DownloadedVolumes))
	for _, r := range e.DownloadedVolumes {
		ids[r.VolID] = struct{}{}
	}
	return ids
}
