package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

func twoVolumeDetail() *catalog.Detail {
	return &catalog.Detail{
		Meta: catalog.Meta{BookID: "15042", ComicID: "abc123", Title: "Sample Comic"},
		Volumes: []catalog.Volume{
			{VolID: "v1", Title: "Vol 01", SizeEpubMB: 1},
			{VolID: "v2", Title: "Vol 02", SizeEpubMB: 1},
		},
	}
}

func TestRecordDownloadAddsAndRefreshes(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	entry := RecordDownload(Entry{ComicID: "abc123"}, []DownloadRecord{
		{VolID: "v1", Title: "Vol 01", Format: "epub", Filename: "a.epub"},
	}, detail, now)

	assert.Equal(t, "15042", entry.BookID)
	assert.Equal(t, "Sample Comic", entry.Title)
	assert.Equal(t, 2, entry.TotalVolumes)
	assert.False(t, entry.IsComplete)
	assert.Equal(t, now, entry.LastChecked)
	require.Len(t, entry.DownloadedVolumes, 1)

	entry = RecordDownload(entry, []DownloadRecord{
		{VolID: "v2", Title: "Vol 02", Format: "epub", Filename: "b.epub"},
	}, detail, now.Add(time.Hour))

	assert.True(t, entry.IsComplete)
	assert.Len(t, entry.DownloadedVolumes, 2)
}

func TestRecordDownloadOverwritesSameVolume(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Now()

	entry := RecordDownload(Entry{}, []DownloadRecord{
		{VolID: "v1", Filename: "old.epub", SizeBytes: 10},
	}, detail, now)
	entry = RecordDownload(entry, []DownloadRecord{
		{VolID: "v1", Filename: "new.epub", SizeBytes: 20},
	}, detail, now)

	require.Len(t, entry.DownloadedVolumes, 1, "re-download must overwrite, not duplicate")
	assert.Equal(t, "new.epub", entry.DownloadedVolumes[0].Filename)
	assert.Equal(t, int64(20), entry.DownloadedVolumes[0].SizeBytes)
}

func TestRefreshDropsVanishedRemoteVolumes(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Now()

	entry := RecordDownload(Entry{}, []DownloadRecord{
		{VolID: "v1"}, {VolID: "v2"}, {VolID: "gone"},
	}, detail, now)

	assert.Len(t, entry.DownloadedVolumes, 2)
	_, hasGone := entry.Record("gone")
	assert.False(t, hasGone, "records must stay a subset of the remote volume set")
	assert.True(t, entry.IsComplete)
}

func TestIsCompleteFalseForEmptyCatalog(t *testing.T) {
	detail := &catalog.Detail{Meta: catalog.Meta{BookID: "1"}}
	entry := RecordDownload(Entry{}, nil, detail, time.Now())
	assert.Zero(t, entry.TotalVolumes)
	assert.False(t, entry.IsComplete)
}

func TestDiffMissingPreservesRemoteOrder(t *testing.T) {
	entry := Entry{DownloadedVolumes: []DownloadRecord{{VolID: "v2"}}}

	missing := DiffMissing(entry, []string{"v1", "v2", "v3"})
	assert.Equal(t, []string{"v1", "v3"}, missing)

	entry.DownloadedVolumes = append(entry.DownloadedVolumes,
		DownloadRecord{VolID: "v1"}, DownloadRecord{VolID: "v3"})
	assert.Empty(t, DiffMissing(entry, []string{"v1", "v2", "v3"}))
}

func TestRebuildFromScannedFiles(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Now()

	files := []ScannedFile{
		{Name: "[Kmoe][Sample Comic]Vol 02.epub", SizeBytes: 1024 * 1024, ModTime: now},
		{Name: "[Kmoe][Sample Comic]Vol 01.epub", SizeBytes: 1024 * 1024, ModTime: now},
		{Name: "notes.epub", SizeBytes: 5},
	}

	entry, unmatched := Rebuild(files, detail, "abc123", now)

	require.Len(t, entry.DownloadedVolumes, 2)
	// Catalog order, not scan order.
	assert.Equal(t, "v1", entry.DownloadedVolumes[0].VolID)
	assert.Equal(t, "v2", entry.DownloadedVolumes[1].VolID)
	assert.True(t, entry.IsComplete)
	assert.Equal(t, "abc123", entry.ComicID)

	require.Len(t, unmatched, 1)
	assert.Equal(t, "notes.epub", unmatched[0].Name)
}

func TestRebuildExcludesCorruptFiles(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Now()

	files := []ScannedFile{
		// Just under half of the expected 1 MB.
		{Name: "[Kmoe][Sample Comic]Vol 01.epub", SizeBytes: 512*1024 - 1, ModTime: now},
		{Name: "[Kmoe][Sample Comic]Vol 02.epub", SizeBytes: 512 * 1024, ModTime: now},
	}

	entry, _ := Rebuild(files, detail, "abc123", now)

	require.Len(t, entry.DownloadedVolumes, 1)
	assert.Equal(t, "v2", entry.DownloadedVolumes[0].VolID)
	assert.False(t, entry.IsComplete)
}

func TestRebuildIsIdempotent(t *testing.T) {
	detail := twoVolumeDetail()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	files := []ScannedFile{
		{Name: "[Kmoe][Sample Comic]Vol 01.epub", SizeBytes: 1024 * 1024, ModTime: now},
	}

	first, _ := Rebuild(files, detail, "abc123", now)
	second, _ := Rebuild(files, detail, "abc123", now)
	assert.Equal(t, first, second)
}
