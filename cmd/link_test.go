package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/library"
)

type fakeCatalog struct {
	detail   *catalog.Detail
	err      error
	askedFor string
}

func (f *fakeCatalog) Detail(ctx context.Context, comicID string) (*catalog.Detail, error) {
	f.askedFor = comicID
	return f.detail, f.err
}

func TestLinkDirectoryRebuildsRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "some random folder")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "[Kmoe][Sample Comic]Vol 01.epub"), []byte("book"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	remote := &fakeCatalog{detail: &catalog.Detail{
		Meta: catalog.Meta{BookID: "15042", ComicID: "abc123", Title: "Sample Comic"},
		Volumes: []catalog.Volume{
			{VolID: "v1", Title: "Vol 01"},
			{VolID: "v2", Title: "Vol 02"},
		},
	}}
	store := library.NewStore(nil)

	entry, unmatched, err := linkDirectory(context.Background(), remote, store, nil, dir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", remote.askedFor)
	assert.Empty(t, unmatched)

	require.Len(t, entry.DownloadedVolumes, 1)
	assert.Equal(t, "v1", entry.DownloadedVolumes[0].VolID)
	assert.Equal(t, 2, entry.TotalVolumes)
	assert.False(t, entry.IsComplete)

	// The record lands on disk where scan and update will find it.
	saved, err := store.Load(dir)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "abc123", saved.ComicID)
	assert.Equal(t, "Sample Comic", saved.Title)
}

func TestLinkDirectoryRejectsMissingDir(t *testing.T) {
	remote := &fakeCatalog{detail: &catalog.Detail{}}
	store := library.NewStore(nil)

	_, _, err := linkDirectory(context.Background(), remote, store, nil,
		filepath.Join(t.TempDir(), "nope"), "abc123")
	assert.Error(t, err)
	assert.Empty(t, remote.askedFor, "missing directories must not trigger a catalog lookup")
}
