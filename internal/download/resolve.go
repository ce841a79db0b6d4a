package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/mirror"
)

// quotaMarker appears in the API's error message when the account's download
// quota is used up.
const quotaMarker = "額度不足"

// serverLines are the download-server lines to try, in order. Line 0 is the
// default CDN; line 1 is the alternate offered on the site.
var serverLines = []int{0, 1}

// downURLResponse is the JSON shape of /getdownurl.php. The endpoint also
// answers with a bare URL string, so callers must sniff before decoding.
type downURLResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	URL  string `json:"url"`
}

// resolveURL asks one server line for the signed download URL of a volume.
func (m *Manager) resolveURL(ctx context.Context, bookID, volID string, f catalog.Format, line int) (string, error) {
	query := url.Values{}
	query.Set("b", bookID)
	query.Set("v", volID)
	query.Set("mobi", strconv.Itoa(int(f)))
	query.Set("vip", strconv.Itoa(line))
	query.Set("json", "1")

	resp, err := m.router.Execute(ctx, mirror.Request{
		Method: http.MethodGet,
		Path:   "/getdownurl.php",
		Query:  query,
		Header: http.Header{"Accept": []string{"application/json, text/plain"}},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read download api response: %w", err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", &ResolveError{VolID: volID, Msg: "empty response"}
	}

	if strings.HasPrefix(body, "{") {
		var dr downURLResponse
		if err := json.Unmarshal([]byte(body), &dr); err != nil {
			return "", &ResolveError{VolID: volID, Msg: "malformed JSON response"}
		}
		if strings.Contains(dr.Msg, quotaMarker) {
			return "", &QuotaExhaustedError{VolID: volID, Msg: dr.Msg}
		}
		if dr.Code != 200 || dr.URL == "" {
			return "", &ResolveError{VolID: volID, Msg: fmt.Sprintf("api code %d: %s", dr.Code, dr.Msg)}
		}
		return m.absolute(dr.URL), nil
	}

	if strings.Contains(body, quotaMarker) {
		return "", &QuotaExhaustedError{VolID: volID, Msg: body}
	}
	if strings.HasPrefix(body, "http://") || strings.HasPrefix(body, "https://") {
		return body, nil
	}
	if strings.HasPrefix(body, "/") {
		return m.absolute(body), nil
	}
	return "", &ResolveError{VolID: volID, Msg: "unrecognized response"}
}

// resolveURLs collects the candidate URLs for a volume across all server
// lines, in line order. Quota exhaustion aborts immediately; other per-line
// failures are logged and the next line is tried.
func (m *Manager) resolveURLs(ctx context.Context, bookID, volID string, f catalog.Format) ([]string, error) {
	var urls []string
	var lastErr error

	for _, line := range serverLines {
		u, err := m.resolveURL(ctx, bookID, volID, f, line)
		if err != nil {
			var quota *QuotaExhaustedError
			if errors.As(err, &quota) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warn("download url resolution failed", "vol_id", volID, "line", line, "error", err)
			lastErr = err
			continue
		}
		urls = append(urls, u)
	}

	if len(urls) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &ResolveError{VolID: volID, Msg: "no server line answered"}
	}
	return urls, nil
}

// absolute resolves a path returned by the API against the active mirror.
func (m *Manager) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return "https://" + m.router.Active().Host + path
}
