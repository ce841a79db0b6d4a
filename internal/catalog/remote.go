package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/kmoe-dl/kmoe/internal/mirror"
)

// Remote implements Client against the live site using only the
// machine-readable data embedded in its pages: the JS variables on the
// detail page and the volinfo feed served by book_data.php. Presentation
// fields that require real HTML parsing (authors, description, cover) are
// left empty; a richer scraper can be layered behind the Client interface
// without touching anything here.
type Remote struct {
	router *mirror.Router
}

// NewRemote builds a catalog client on top of the given mirror router.
func NewRemote(router *mirror.Router) *Remote {
	return &Remote{router: router}
}

var (
	bookIDRe   = regexp.MustCompile(`var\s+bookid\s*=\s*["']([^"']+)["']`)
	statusRe   = regexp.MustCompile(`var\s+bookstatus\s*=\s*["']([^"']*)["']`)
	titleTagRe = regexp.MustCompile(`<title>([^<]*)</title>`)
	bookDataRe = regexp.MustCompile(`window\.iframe_action2\.location\.href\s*=\s*"(/book_data\.php\?h=[^"]+)"`)
	volinfoRe  = regexp.MustCompile(`parent\.postMessage\s*\(\s*"volinfo=([^"]+)"`)
)

// Detail implements Client.
func (c *Remote) Detail(ctx context.Context, comicID string) (*Detail, error) {
	page, err := c.fetch(ctx, fmt.Sprintf("/c/%s.htm", comicID))
	if err != nil {
		var ex *mirror.ExhaustedError
		if errors.As(err, &ex) {
			// Every mirror 404ed (or was down); either way the comic is
			// unreachable under this ID.
			return nil, &NotFoundError{ComicID: comicID}
		}
		return nil, err
	}

	meta := Meta{
		ComicID: comicID,
		BookID:  firstGroup(bookIDRe, page),
		Status:  firstGroup(statusRe, page),
		Title:   titleFromPage(page),
	}
	if meta.BookID == "" {
		return nil, &ParseError{URL: "/c/" + comicID + ".htm", Msg: "no book id in page"}
	}

	detail := &Detail{Meta: meta}

	if dataPath := firstGroup(bookDataRe, page); dataPath != "" {
		feed, err := c.fetch(ctx, dataPath)
		if err != nil {
			return nil, err
		}
		detail.Volumes = decodeVolinfo(feed)
	}

	return detail, nil
}

func (c *Remote) fetch(ctx context.Context, path string) (string, error) {
	rawPath, query := splitPath(path)
	resp, err := c.router.Execute(ctx, mirror.Request{Method: "GET", Path: rawPath, Query: query})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(body), nil
}

// decodeVolinfo parses the volinfo lines posted by book_data.php. Each line
// is a comma-separated record:
//
//	vol_id,?,?,type,order,title,pages,?,?,size_mobi_mb,?,size_epub_mb,...
func decodeVolinfo(feed string) []Volume {
	var volumes []Volume
	for _, m := range volinfoRe.FindAllStringSubmatch(feed, -1) {
		parts := strings.Split(m[1], ",")
		if len(parts) < 7 {
			continue
		}
		v := Volume{
			VolID:     parts[0],
			Title:     parts[5],
			FileCount: 1,
		}
		if n, err := strconv.Atoi(parts[6]); err == nil {
			v.FileCount = n
		}
		if len(parts) >= 12 {
			if f, err := strconv.ParseFloat(parts[9], 64); err == nil {
				v.SizeMobiMB = f
			}
			if f, err := strconv.ParseFloat(parts[11], 64); err == nil {
				v.SizeEpubMB = f
			}
		}
		volumes = append(volumes, v)
	}
	return volumes
}

// titleFromPage pulls the comic title out of the <title> tag, trimming the
// site suffix and the author segment.
func titleFromPage(page string) string {
	raw := firstGroup(titleTagRe, page)
	if raw == "" {
		return ""
	}
	// Drop trailing "[...]" site branding.
	if i := strings.Index(raw, "["); i >= 0 {
		raw = raw[:i]
	}
	if title, _, found := strings.Cut(raw, " : "); found {
		raw = title
	}
	return strings.TrimSpace(raw)
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func splitPath(path string) (string, url.Values) {
	raw, query, found := strings.Cut(path, "?")
	if !found {
		return path, nil
	}
	vals, err := url.ParseQuery(query)
	if err != nil {
		return raw, nil
	}
	return raw, vals
}
