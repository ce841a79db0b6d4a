package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Index is the root-level aggregate of all entries, kept as library.json in
// the download directory. It is purely derived data: the per-entry records
// remain authoritative and the index is rebuilt by enumerating them.
type Index struct {
	Version   string       `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Comics    []IndexEntry `json:"comics"`
}

// IndexEntry summarizes one library entry.
type IndexEntry struct {
	BookID            string   `json:"book_id"`
	Title             string   `json:"title"`
	DirName           string   `json:"dir_name"`
	Authors           []string `json:"authors,omitempty"`
	Status            string   `json:"status,omitempty"`
	TotalVolumes      int      `json:"total_volumes"`
	DownloadedVolumes int      `json:"downloaded_volumes"`
	IsComplete        bool     `json:"is_complete"`
}

const indexVersion = "1.0"

// BuildIndex derives an Index from loaded entries.
func BuildIndex(entries []LocatedEntry, now time.Time) Index {
	idx := Index{Version: indexVersion, UpdatedAt: now.UTC()}
	for _, le := range entries {
		idx.Comics = append(idx.Comics, IndexEntry{
			BookID:            le.Entry.BookID,
			Title:             le.Entry.Title,
			DirName:           le.DirName,
			Authors:           le.Entry.Meta.Authors,
			Status:            le.Entry.Meta.Status,
			TotalVolumes:      le.Entry.TotalVolumes,
			DownloadedVolumes: len(le.Entry.DownloadedVolumes),
			IsComplete:        le.Entry.IsComplete,
		})
	}
	return idx
}

// RebuildIndex re-scans root and rewrites the root index file.
func (s *Store) RebuildIndex(root string, now time.Time) (Index, error) {
	entries, err := s.ListEntries(root)
	if err != nil {
		return Index{}, err
	}
	idx := BuildIndex(entries, now)

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return Index{}, fmt.Errorf("encode index: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(root, 0o755); err != nil {
		return Index{}, err
	}
	path := filepath.Join(root, EntryFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Index{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Index{}, err
	}
	return idx, nil
}

// LoadIndex reads the root index, returning (nil, nil) when absent.
func LoadIndex(root string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(root, EntryFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode library index: %w", err)
	}
	return &idx, nil
}
