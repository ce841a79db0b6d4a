package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
)

// EntryFileName is the metadata file kept in every entry directory.
const EntryFileName = "library.json"

// Store persists Entry records, one JSON file per entry directory. Writes
// are atomic (temp file + rename) and serialized per directory with a lock
// file, so a crash mid-write can never corrupt the previous valid record
// and concurrent writers cannot interleave.
type Store struct {
	log *slog.Logger
}

// NewStore returns a Store logging through log (which may be nil).
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log}
}

// Load reads the entry record from dir. Returns (nil, nil) when the
// directory has no record.
func (s *Store) Load(dir string) (*Entry, error) {
	path := filepath.Join(dir, EntryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &entry, nil
}

// Save writes the entry record into dir, creating the directory as needed.
func (s *Store) Save(dir string, entry *Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(dir, "."+EntryFileName+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", dir, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.BookID, err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, EntryFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ListEntries loads every valid entry under root, sorted by directory
// name. Directories without a readable record are skipped.
func (s *Store) ListEntries(root string) ([]LocatedEntry, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list library %s: %w", root, err)
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	var entries []LocatedEntry
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())
		entry, err := s.Load(dir)
		if err != nil {
			s.log.Warn("skipping corrupt library entry", "dir", de.Name(), "error", err)
			continue
		}
		if entry == nil {
			continue
		}
		entries = append(entries, LocatedEntry{Dir: dir, DirName: de.Name(), Entry: entry})
	}
	return entries, nil
}

// LocatedEntry pairs a loaded entry with the directory holding it.
type LocatedEntry struct {
	Dir     string
	DirName string
	Entry   *Entry
}
