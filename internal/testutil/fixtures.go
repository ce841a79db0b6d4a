package testutil

import (
	"fmt"
	"strings"
)

// FixtureVolume describes one volume in a generated detail page.
type FixtureVolume struct {
	VolID      string
	Title      string
	FileCount  int
	SizeMobiMB float64
	SizeEpubMB float64
}

// DetailPage renders a minimal comic detail page: the title tag plus the JS
// variables and the book_data iframe redirect the catalog client reads.
func DetailPage(comicID, bookID, title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s : author [Kmoe]</title></head>
<body>
<script>
var bookid = "%s";
var bookstatus = "0";
window.iframe_action2.location.href = "/book_data.php?h=%s";
</script>
</body>
</html>`, title, bookID, comicID)
}

// VolinfoFeed renders the book_data.php response: one postMessage line per
// volume in the comma-separated volinfo format.
func VolinfoFeed(vols ...FixtureVolume) string {
	var b strings.Builder
	b.WriteString("<script>\n")
	for i, v := range vols {
		fileCount := v.FileCount
		if fileCount == 0 {
			fileCount = 1
		}
		fmt.Fprintf(&b,
			`parent.postMessage("volinfo=%s,0,0,vol,%d,%s,%d,0,0,%.1f,0,%.1f,0", "*");`,
			v.VolID, i+1, v.Title, fileCount, v.SizeMobiMB, v.SizeEpubMB)
		b.WriteString("\n")
	}
	b.WriteString("</script>\n")
	return b.String()
}

// DownURLJSON renders a successful getdownurl.php JSON response pointing at
// url.
func DownURLJSON(url string) string {
	return fmt.Sprintf(`{"code":200,"msg":"ok","url":"%s"}`, url)
}

// QuotaExhaustedJSON renders the quota-exhausted getdownurl.php response.
func QuotaExhaustedJSON() string {
	return `{"code":403,"msg":"本月下載額度不足","url":""}`
}

// EpubPayload returns bytes that sniff as an epub (a zip local file header
// followed by the epub mimetype entry), padded to size.
func EpubPayload(size int) []byte {
	// The mimetype filename must sit at offset 30 and its content at 38
	// for the payload to sniff as epub rather than plain zip.
	header := make([]byte, 30, 58)
	copy(header, "PK\x03\x04")
	header = append(header, []byte("mimetypeapplication/epub+zip")...)
	return padPayload(header, size)
}

// MobiPayload returns bytes with the MOBI magic at its PalmDB offset,
// padded to size.
func MobiPayload(size int) []byte {
	header := make([]byte, 68)
	copy(header, "fixture book")
	copy(header[60:], "BOOKMOBI")
	return padPayload(header, size)
}

func padPayload(header []byte, size int) []byte {
	if size < len(header) {
		size = len(header)
	}
	out := make([]byte, size)
	copy(out, header)
	for i := len(header); i < size; i++ {
		out[i] = byte(i % 251)
	}
	return out
}
