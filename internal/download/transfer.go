package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"

	"github.com/kmoe-dl/kmoe/internal/catalog"
)

// partSuffix marks in-flight transfers. The final name only exists once the
// file is complete and verified, so a crash can never leave a bare partial
// file behind.
const partSuffix = ".part"

const sniffLen = 512

var mobiType = filetype.NewType("mobi", "application/x-mobipocket-ebook")

func init() {
	// The MOBI magic sits at offset 60 in the PalmDB header, which the
	// stock matchers do not cover.
	filetype.AddMatcher(mobiType, func(buf []byte) bool {
		return len(buf) >= 68 && string(buf[60:68]) == "BOOKMOBI"
	})
}

// transfer streams rawurl into destPath. The body is written to a ".part"
// working file which is renamed into place only after the payload passes the
// size and content checks. Returns the byte count and the server-suggested
// filename, if any.
func (m *Manager) transfer(ctx context.Context, rawurl, destPath string, expected int64, f catalog.Format) (int64, string, error) {
	resp, err := m.router.Fetch(ctx, rawurl)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	_, serverName, _ := httpheader.ContentDisposition(resp.Header)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, "", err
	}

	workingPath := destPath + partSuffix
	file, err := os.Create(workingPath)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", workingPath, err)
	}

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		os.Remove(workingPath)
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", fmt.Errorf("download %s: %w", filepath.Base(destPath), err)
	}
	if err := file.Close(); err != nil {
		os.Remove(workingPath)
		return 0, "", err
	}

	if expected > 0 && written*2 < expected {
		os.Remove(workingPath)
		return 0, "", &CorruptFileError{Name: filepath.Base(destPath), Got: written, Expected: expected}
	}
	if err := m.checkPayload(workingPath, f); err != nil {
		os.Remove(workingPath)
		return 0, "", err
	}

	if err := os.Rename(workingPath, destPath); err != nil {
		os.Remove(workingPath)
		return 0, "", fmt.Errorf("finalize %s: %w", destPath, err)
	}
	return written, serverName, nil
}

// checkPayload sniffs the leading bytes of a finished working file. An HTML
// payload means the CDN answered with an error page; a recognized type that
// contradicts the requested format is logged but tolerated, since epub files
// sniff as plain zip archives.
func (m *Manager) checkPayload(path string, f catalog.Format) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	buf = buf[:n]

	head := strings.ToLower(strings.TrimSpace(string(buf)))
	if strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html") {
		return fmt.Errorf("payload check %s: server returned an error page instead of a file", filepath.Base(path))
	}

	kind, _ := filetype.Match(buf)
	if kind == filetype.Unknown {
		return nil
	}
	switch f {
	case catalog.FormatEpub:
		if kind.Extension != "epub" && kind.Extension != "zip" {
			m.log.Warn("unexpected payload type", "path", filepath.Base(path), "detected", kind.Extension)
		}
	case catalog.FormatMobi:
		if kind.Extension != "mobi" {
			m.log.Warn("unexpected payload type", "path", filepath.Base(path), "detected", kind.Extension)
		}
	}
	return nil
}
