package library

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

func writeZip(t *testing.T, path string, names map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeTgz(t *testing.T, path string, names map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range names {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestScanBookFilesLooseAndArchived(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.epub"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mobi"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644))

	writeZip(t, filepath.Join(dir, "backup.zip"), map[string][]byte{
		"inner/c.epub": []byte("cccccc"),
		"skip.txt":     []byte("x"),
	})
	writeTgz(t, filepath.Join(dir, "old.tgz"), map[string][]byte{
		"d.mobi": []byte("dddd"),
	})

	files, err := ScanBookFiles(dir, nil)
	require.NoError(t, err)

	byName := make(map[string]ScannedFile, len(files))
	for _, f := range files {
		byName[f.RecordName()] = f
	}

	require.Len(t, files, 4)
	assert.Equal(t, int64(4), byName["a.epub"].SizeBytes)
	assert.Equal(t, int64(2), byName["b.mobi"].SizeBytes)
	assert.Equal(t, int64(6), byName["backup.zip/c.epub"].SizeBytes)
	assert.Equal(t, "backup.zip", byName["backup.zip/c.epub"].Archive)
	assert.Equal(t, int64(4), byName["old.tgz/d.mobi"].SizeBytes)
	assert.Equal(t, "epub", byName["a.epub"].Format())
}

func TestScanBookFilesSkipsUnreadableArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.epub"), []byte("aaaa"), 0o644))

	files, err := ScanBookFiles(dir, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.epub", files[0].Name)
}

func TestScanBookFilesDecodesCP437ZipNames(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// 0x82 is 'é' in CP437.
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:    "Caf\x82 Vol 01.epub",
		NonUTF8: true,
		Method:  zip.Deflate,
	})
	require.NoError(t, err)
	_, err = w.Write([]byte("book"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "books.zip"), buf.Bytes(), 0o644))

	files, err := ScanBookFiles(dir, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Café Vol 01.epub", files[0].Name)
}

func TestExtractBracketTitle(t *testing.T) {
	title, vol, ok := ExtractBracketTitle("[Kmoe][Sample Comic]Vol 01.epub")
	assert.True(t, ok)
	assert.Equal(t, "Sample Comic", title)
	assert.Equal(t, "Vol 01", vol)

	title, vol, ok = ExtractBracketTitle("[Mox][Old Comic]卷02.kepub.epub")
	assert.True(t, ok)
	assert.Equal(t, "Old Comic", title)
	assert.Equal(t, "卷02", vol)

	_, _, ok = ExtractBracketTitle("plain.epub")
	assert.False(t, ok)
}

func TestMatchFilesToVolumes(t *testing.T) {
	volumes := []catalog.Volume{
		{VolID: "v1", Title: "卷 01"},
		{VolID: "v2", Title: "卷 02"},
		{VolID: "v3", Title: "番外篇"},
	}
	files := []ScannedFile{
		{Name: "[Kmoe][Comic]卷01.epub"},        // exact after normalization
		{Name: "Comic - 卷 02.epub"},            // separator form
		{Name: "Comic - 番外篇完全版.epub"},           // containment fuzzy
		{Name: "unrelated.epub"},               // no volume title
		{Name: "[Kmoe][Comic]卷01 copy 2.epub"}, // volume already claimed
	}

	result := MatchFilesToVolumes(files, volumes)

	require.Len(t, result.Matched, 3)
	got := map[string]string{}
	for _, m := range result.Matched {
		got[m.Volume.VolID] = m.File.Name
	}
	assert.Equal(t, "[Kmoe][Comic]卷01.epub", got["v1"])
	assert.Equal(t, "Comic - 卷 02.epub", got["v2"])
	assert.Equal(t, "Comic - 番外篇完全版.epub", got["v3"])

	require.Len(t, result.Unmatched, 2)
}

func TestDetectTitle(t *testing.T) {
	base := t.TempDir()

	canonical := filepath.Join(base, "Sample Comic_abc123")
	require.NoError(t, os.MkdirAll(canonical, 0o755))
	title, ok := DetectTitle(canonical, nil)
	assert.True(t, ok)
	assert.Equal(t, "Sample Comic", title)

	bracketed := filepath.Join(base, "[Kmoe]Other Comic")
	require.NoError(t, os.MkdirAll(bracketed, 0o755))
	title, ok = DetectTitle(bracketed, nil)
	assert.True(t, ok)
	assert.Equal(t, "Other Comic", title)

	loose := filepath.Join(base, "random dir")
	require.NoError(t, os.MkdirAll(loose, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(loose, "[Kmoe][Third Comic]Vol 01.epub"), []byte("x"), 0o644))
	title, ok = DetectTitle(loose, nil)
	assert.True(t, ok)
	assert.Equal(t, "Third Comic", title)

	empty := filepath.Join(base, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	_, ok = DetectTitle(empty, nil)
	assert.False(t, ok)
}
