package library

import (
	"fmt"
	"regexp"
	"strings"
)

// FilePrefix tags files downloaded by this tool.
const FilePrefix = "[Kmoe]"

var invalidNameChars = regexp.MustCompile(`[/\\:*?"<>|]`)

// SanitizeName cleans a string for use as a file or directory name:
// forbidden characters become underscores, surrounding whitespace and dots
// are trimmed, and the result is capped at 200 runes.
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "_")
	s = strings.Trim(strings.TrimSpace(s), ".")
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > 200 {
		s = string(runes[:200])
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// EntryDirName returns the canonical directory name for a comic:
// "{sanitized-title}_{id}".
func EntryDirName(title, id string) string {
	return fmt.Sprintf("%s_%s", SanitizeName(title), id)
}

// SplitEntryDirName splits a canonical "{title}_{id}" directory name. The
// id may be the numeric book ID or the hex URL-form comic ID.
func SplitEntryDirName(base string) (title, id string, ok bool) {
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return "", "", false
	}
	title, id = base[:i], base[i+1:]
	if title == "" || !dirIDSuffixRe.MatchString(id) {
		return "", "", false
	}
	return title, id, true
}

// VolumeFilename returns the canonical name for a downloaded volume file:
// "[Kmoe][{title}]{volume-title}.{ext}".
func VolumeFilename(title, volTitle, ext string) string {
	return fmt.Sprintf("%s[%s]%s.%s", FilePrefix, SanitizeName(title), SanitizeName(volTitle), ext)
}
