package download

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmoe-dl/kmoe/internal/catalog"
	"github.com/kmoe-dl/kmoe/internal/mirror"
	"github.com/kmoe-dl/kmoe/internal/testutil"
)

func resolveManager(t *testing.T, site *testutil.MirrorSite) *Manager {
	t.Helper()
	r, err := mirror.NewRouter(mirror.Options{
		Endpoints: []string{site.Host},
		Client:    testutil.NewClient(t, site),
	})
	require.NoError(t, err)
	return NewManager(Options{Router: r})
}

func TestResolveURLBodyShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json", `{"code":200,"msg":"ok","url":"https://cdn.test/f.epub"}`, "https://cdn.test/f.epub"},
		{"plain absolute", "https://cdn.test/plain.epub", "https://cdn.test/plain.epub"},
		{"plain relative", "/dl/123.epub", "https://mirror-a.test/dl/123.epub"},
		{"json relative", `{"code":200,"msg":"","url":"/dl/456.epub"}`, "https://mirror-a.test/dl/456.epub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := testutil.NewMirrorSite(t, "mirror-a.test",
				testutil.WithPage("/getdownurl.php", tt.body))
			m := resolveManager(t, site)

			got, err := m.resolveURL(context.Background(), "15042", "v1", catalog.FormatEpub, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURLQuotaDetection(t *testing.T) {
	for name, body := range map[string]string{
		"json":  testutil.QuotaExhaustedJSON(),
		"plain": "本月下載額度不足，請下月再試",
	} {
		t.Run(name, func(t *testing.T) {
			site := testutil.NewMirrorSite(t, "mirror-a.test",
				testutil.WithPage("/getdownurl.php", body))
			m := resolveManager(t, site)

			_, err := m.resolveURL(context.Background(), "15042", "v1", catalog.FormatEpub, 0)
			var quota *QuotaExhaustedError
			require.ErrorAs(t, err, &quota)
			assert.Equal(t, "v1", quota.VolID)
		})
	}
}

func TestResolveURLRejectsGarbage(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "   ",
		"bad json":    "{nope",
		"api error":   `{"code":500,"msg":"internal","url":""}`,
		"random text": "something went wrong",
	} {
		t.Run(name, func(t *testing.T) {
			site := testutil.NewMirrorSite(t, "mirror-a.test",
				testutil.WithPage("/getdownurl.php", body))
			m := resolveManager(t, site)

			_, err := m.resolveURL(context.Background(), "15042", "v1", catalog.FormatEpub, 0)
			var re *ResolveError
			require.ErrorAs(t, err, &re)
		})
	}
}

func TestResolveURLSendsFormatAndVolume(t *testing.T) {
	var query map[string]string
	var accept string
	site := testutil.NewMirrorSite(t, "mirror-a.test",
		testutil.WithHandler("/getdownurl.php", func(w http.ResponseWriter, r *http.Request) {
			query = map[string]string{
				"b":    r.URL.Query().Get("b"),
				"v":    r.URL.Query().Get("v"),
				"mobi": r.URL.Query().Get("mobi"),
				"vip":  r.URL.Query().Get("vip"),
				"json": r.URL.Query().Get("json"),
			}
			accept = r.Header.Get("Accept")
			w.Write([]byte("https://cdn.test/x.mobi"))
		}))
	m := resolveManager(t, site)

	_, err := m.resolveURL(context.Background(), "15042", "v7", catalog.FormatMobi, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"b": "15042", "v": "v7", "mobi": "1", "vip": "1", "json": "1",
	}, query)
	assert.Equal(t, "application/json, text/plain", accept)
}
