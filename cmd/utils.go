package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kmoe-dl/kmoe/internal/auth"
	"github.com/kmoe-dl/kmoe/internal/catalog"
)

var comicIDRe = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// parseComicRef accepts either a bare comic ID or a detail-page URL like
// https://kxx.moe/c/15042.htm and returns the ID.
func parseComicRef(ref string) (string, error) {
	if comicIDRe.MatchString(ref) {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("invalid comic reference %q", ref)
	}
	path := strings.Trim(u.Path, "/")
	if rest, ok := strings.CutPrefix(path, "c/"); ok {
		id := strings.TrimSuffix(rest, ".htm")
		if comicIDRe.MatchString(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no comic id in %q", ref)
}

// parseSelection expands a 1-based volume selection like "1,3-5" into
// volume IDs from the catalog-ordered volume list.
func parseSelection(sel string, volumes []catalog.Volume) ([]string, error) {
	picked := make(map[int]struct{})
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid volume selection %q", part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid volume selection %q", part)
			}
		}
		if start < 1 || end > len(volumes) || start > end {
			return nil, fmt.Errorf("volume selection %q out of range (1-%d)", part, len(volumes))
		}
		for i := start; i <= end; i++ {
			picked[i-1] = struct{}{}
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("empty volume selection")
	}

	idxs := make([]int, 0, len(picked))
	for i := range picked {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	ids := make([]string, len(idxs))
	for i, idx := range idxs {
		ids[i] = volumes[idx].VolID
	}
	return ids, nil
}

// requireSession restores the persisted session onto the router, telling
// the user what to do when there is none or it expired.
func requireSession(ctx context.Context) error {
	_, err := application.auth.Restore(ctx)
	if err != nil {
		var need *auth.LoginRequiredError
		var expired *auth.SessionExpiredError
		switch {
		case errors.As(err, &need):
			return fmt.Errorf("not logged in: run 'kmoe login <email>' first")
		case errors.As(err, &expired):
			return fmt.Errorf("session expired: run 'kmoe login <email>' again")
		}
		return err
	}
	return nil
}

// formatBytes renders a byte count for table output.
func formatBytes(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
	return fmt.Sprintf("%.2f GB", float64(n)/(1024*1024*1024))
}

// newTable returns a table writer with the house style applied.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}
