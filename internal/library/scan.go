package library

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

// ScannedFile is a book file found during a directory scan. Archive is the
// name of the containing archive when the file lives inside one, otherwise
// empty.
type ScannedFile struct {
	Name      string
	SizeBytes int64
	Path      string // on-disk path of the file, or of its archive
	Archive   string // archive file name, "" for loose files
	ModTime   time.Time
}

// RecordName returns the filename to store in a DownloadRecord:
// "archive.zip/inner.epub" for archived files, the plain name otherwise.
func (f ScannedFile) RecordName() string {
	if f.Archive != "" {
		return f.Archive + "/" + f.Name
	}
	return f.Name
}

// Format returns the lowercase extension without the dot.
func (f ScannedFile) Format() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

var bookExtensions = map[string]struct{}{".epub": {}, ".mobi": {}}

func isArchiveName(name string) bool {
	lower := strings.ToLower(name)
	switch filepath.Ext(lower) {
	case ".zip", ".tar", ".tgz":
		return true
	}
	return strings.HasSuffix(lower, ".tar.gz")
}

// ScanBookFiles lists all epub/mobi files directly inside dir, including
// files inside zip and tar archives (without extracting them). Unreadable
// archives are logged and skipped.
func ScanBookFiles(dir string, log *slog.Logger) ([]ScannedFile, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	var files []ScannedFile
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))

		if _, ok := bookExtensions[ext]; ok {
			files = append(files, ScannedFile{
				Name:      name,
				SizeBytes: info.Size(),
				Path:      filepath.Join(dir, name),
				ModTime:   info.ModTime(),
			})
			continue
		}

		if isArchiveName(name) {
			inner, err := listArchive(filepath.Join(dir, name), info.ModTime())
			if err != nil {
				if log != nil {
					log.Warn("skipping unreadable archive", "path", name, "error", err)
				}
				continue
			}
			files = append(files, inner...)
		}
	}
	return files, nil
}

func listArchive(path string, mtime time.Time) ([]ScannedFile, error) {
	if strings.ToLower(filepath.Ext(path)) == ".zip" {
		return listZip(path, mtime)
	}
	return listTar(path, mtime)
}

func listZip(path string, mtime time.Time) ([]ScannedFile, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var files []ScannedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if f.NonUTF8 {
			// Zip entries without the UTF-8 flag carry CP437 names.
			if decoded, err := charmap.CodePage437.NewDecoder().String(name); err == nil {
				name = decoded
			}
		}
		name = filepath.Base(name)
		if _, ok := bookExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		files = append(files, ScannedFile{
			Name:      name,
			SizeBytes: int64(f.UncompressedSize64),
			Path:      path,
			Archive:   filepath.Base(path),
			ModTime:   mtime,
		})
	}
	return files, nil
}

func listTar(path string, mtime time.Time) ([]ScannedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar.gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	var files []ScannedFile
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if _, ok := bookExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		files = append(files, ScannedFile{
			Name:      name,
			SizeBytes: hdr.Size,
			Path:      path,
			Archive:   filepath.Base(path),
			ModTime:   mtime,
		})
	}
	return files, nil
}

// ---------------------------------------------------------------------------
// Filename matching
// ---------------------------------------------------------------------------

// Matches "[Kmoe][Title]Vol 01.epub" and the legacy "[Mox]..." prefix,
// including ".kepub.epub" and archive extensions.
var bracketNameRe = regexp.MustCompile(
	`^\[(?:Mox|Kmoe)\]\[([^\]]+)\](.+?)(?:\.kepub)?\.(?:epub|mobi|zip|tar(?:\.gz)?|tgz)$`)

var (
	stripExtRe      = regexp.MustCompile(`(?i)(?:\.kepub)?\.(?:epub|mobi|zip|tar(?:\.gz)?|tgz)$`)
	bracketPrefixRe = regexp.MustCompile(`^\[(?:Mox|Kmoe)\]\[[^\]]+\](.+)$`)
	volSuffixRe     = regexp.MustCompile(`(?i)((?:卷|第|Vol\.?|Chapter|Ch\.?)\s*\d+(?:\s*-\s*\d+)?(?:\s*\(.+?\))?)$`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// ExtractBracketTitle parses a "[Kmoe][Title]VolTitle.ext" filename into
// its comic and volume titles.
func ExtractBracketTitle(filename string) (comicTitle, volTitle string, ok bool) {
	m := bracketNameRe.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// normalizeVolTitle collapses whitespace so "卷01" matches "卷 01".
func normalizeVolTitle(title string) string {
	return spaceRe.ReplaceAllString(title, "")
}

// extractVolTitle pulls a volume title from the supported filename shapes:
// bracketed prefixes, "Title - Vol 01", and trailing volume-number patterns.
func extractVolTitle(filename string) string {
	name := stripExtRe.ReplaceAllString(filename, "")

	if m := bracketPrefixRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	for _, sep := range []string{" - ", " _ ", " — "} {
		if i := strings.LastIndex(name, sep); i >= 0 {
			return name[i+len(sep):]
		}
	}
	if m := volSuffixRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// FileMatch pairs a scanned file with the remote volume it represents.
type FileMatch struct {
	File   ScannedFile
	Volume catalog.Volume
}

// MatchResult is the outcome of matching a file listing against a volume
// list.
type MatchResult struct {
	Matched   []FileMatch
	Unmatched []ScannedFile
}

// MatchFilesToVolumes pairs local files with remote volumes by title:
// exact normalized match first, then a containment-based fuzzy match. Each
// volume is matched at most once.
func MatchFilesToVolumes(files []ScannedFile, volumes []catalog.Volume) MatchResult {
	lookup := make(map[string]catalog.Volume, len(volumes))
	var order []string
	for _, v := range volumes {
		norm := normalizeVolTitle(v.Title)
		if _, dup := lookup[norm]; !dup {
			lookup[norm] = v
			order = append(order, norm)
		}
	}

	taken := make(map[string]struct{})
	var result MatchResult

	for _, sf := range files {
		if _, volTitle, ok := ExtractBracketTitle(sf.Name); ok {
			if v, ok := claim(lookup, taken, normalizeVolTitle(volTitle)); ok {
				result.Matched = append(result.Matched, FileMatch{File: sf, Volume: v})
				continue
			}
		}

		volTitle := extractVolTitle(sf.Name)
		if volTitle == "" {
			result.Unmatched = append(result.Unmatched, sf)
			continue
		}
		norm := normalizeVolTitle(volTitle)

		if v, ok := claim(lookup, taken, norm); ok {
			result.Matched = append(result.Matched, FileMatch{File: sf, Volume: v})
			continue
		}

		matched := false
		for _, volNorm := range order {
			v := lookup[volNorm]
			if _, used := taken[v.VolID]; used {
				continue
			}
			if strings.Contains(volNorm, norm) || strings.Contains(norm, volNorm) {
				taken[v.VolID] = struct{}{}
				result.Matched = append(result.Matched, FileMatch{File: sf, Volume: v})
				matched = true
				break
			}
		}
		if !matched {
			result.Unmatched = append(result.Unmatched, sf)
		}
	}

	return result
}

func claim(lookup map[string]catalog.Volume, taken map[string]struct{}, norm string) (catalog.Volume, bool) {
	v, ok := lookup[norm]
	if !ok {
		return catalog.Volume{}, false
	}
	if _, used := taken[v.VolID]; used {
		return catalog.Volume{}, false
	}
	taken[v.VolID] = struct{}{}
	return v, true
}

// ---------------------------------------------------------------------------
// Title detection for scan
// ---------------------------------------------------------------------------

var dirIDSuffixRe = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// DetectTitle guesses the comic title for a directory that is not yet part
// of the library, trying the canonical "{title}_{id}" name, bracketed
// prefixes, loose file names, archived file names, and finally the bare
// directory name when it contains book files at all.
func DetectTitle(dir string, log *slog.Logger) (string, bool) {
	base := filepath.Base(dir)

	if i := strings.LastIndex(base, "_"); i > 0 {
		if dirIDSuffixRe.MatchString(base[i+1:]) {
			return base[:i], true
		}
	}

	for _, prefix := range []string{"[Kmoe]", "[Mox]"} {
		if rest := strings.TrimPrefix(base, prefix); rest != base && rest != "" {
			return rest, true
		}
	}

	files, err := ScanBookFiles(dir, log)
	if err != nil {
		return "", false
	}
	for _, sf := range files {
		if title, _, ok := ExtractBracketTitle(sf.Name); ok {
			return title, true
		}
	}
	if len(files) > 0 {
		return base, true
	}
	return "", false
}
