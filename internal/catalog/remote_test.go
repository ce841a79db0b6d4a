package catalog_test

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

func newCatalogRouter(t *testing.T, sites ...*testutil.MirrorSite) *mirror.Router {
	t.Helper()
	var hosts []string
	for _, s := range sites {
		hosts = append(hosts, s.Host)
	}
	r, err := mirror.NewRouter(mirror.Options{
		Endpoints: hosts,
		Failover:  true,
		Client:    testutil.NewClient(t, sites...),
	})
	require.NoError(t, err)
	return r
}

func TestDetailParsesPageAndVolinfo(t *testing.T) {
	site := testutil.NewMirrorSite(t, "mirror-a.test",
		testutil.WithPage("/c/abc123.htm", testutil.DetailPage("abc123", "15042", "Sample Comic")),
		testutil.WithPage("/book_data.php", testutil.VolinfoFeed(
			testutil.FixtureVolume{VolID: "v1", Title: "Vol 01", FileCount: 180, SizeMobiMB: 52.0, SizeEpubMB: 48.5},
			testutil.FixtureVolume{VolID: "v2", Title: "Vol 02", FileCount: 192, SizeMobiMB: 55.0, SizeEpubMB: 50.0},
		)))

	remote := catalog.NewRemote(newCatalogRouter(t, site))

	detail, err := remote.Detail(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "15042", detail.Meta.BookID)
	assert.Equal(t, "abc123", detail.Meta.ComicID)
	assert.Equal(t, "Sample Comic", detail.Meta.Title)

	require.Len(t, detail.Volumes, 2)
	assert.Equal(t, "v1", detail.Volumes[0].VolID)
	assert.Equal(t, "Vol 01", detail.Volumes[0].Title)
	assert.Equal(t, 180, detail.Volumes[0].FileCount)
	assert.InDelta(t, 48.5, detail.Volumes[0].SizeEpubMB, 0.001)
	assert.InDelta(t, 52.0, detail.Volumes[0].SizeMobiMB, 0.001)
	assert.Equal(t, []string{"v1", "v2"}, detail.VolumeIDs())
}

func TestDetailNotFoundWhenAllMirrorsMiss(t *testing.T) {
	a := testutil.NewMirrorSite(t, "mirror-a.test",
		testutil.WithStatusSequence("/c/nope.htm", http.StatusNotFound))
	b := testutil.NewMirrorSite(t, "mirror-b.test",
		testutil.WithStatusSequence("/c/nope.htm", http.StatusNotFound))

	remote := catalog.NewRemote(newCatalogRouter(t, a, b))

	_, err := remote.Detail(context.Background(), "nope")
	var nf *catalog.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.ComicID)
}

func TestDetailRejectsPageWithoutBookID(t *testing.T) {
	site := testutil.NewMirrorSite(t, "mirror-a.test",
		testutil.WithPage("/c/abc123.htm", "<html><title>broken</title></html>"))

	remote := catalog.NewRemote(newCatalogRouter(t, site))

	_, err := remote.Detail(context.Background(), "abc123")
	var pe *catalog.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestDetailWithoutVolinfoFeed(t *testing.T) {
	page := `<html><head><title>Lonely : someone [Kmoe]</title></head>
<script>var bookid = "99";</script></html>`
	site := testutil.NewMirrorSite(t, "mirror-a.test",
		testutil.WithPage("/c/x.htm", page))

	remote := catalog.NewRemote(newCatalogRouter(t, site))

	detail, err := remote.Detail(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Lonely", detail.Meta.Title)
	assert.Empty(t, detail.Volumes)
}

func TestFindVolume(t *testing.T) {
	d := &catalog.Detail{Volumes: []catalog.Volume{{VolID: "v1", Title: "Vol 01"}}}

	v, err := d.FindVolume("v1")
	require.NoError(t, err)
	assert.Equal(t, "Vol 01", v.Title)

	_, err = d.FindVolume("v9")
	var vnf *catalog.VolumeNotFoundError
	require.ErrorAs(t, err, &vnf)
}

func TestParseFormat(t *testing.T) {
	f, err := catalog.ParseFormat("EPUB")
	require.NoError(t, err)
	assert.Equal(t, catalog.FormatEpub, f)
	assert.Equal(t, "epub", f.Ext())

	f, err = catalog.ParseFormat("mobi")
	require.NoError(t, err)
	assert.Equal(t, catalog.FormatMobi, f)

	_, err = catalog.ParseFormat("pdf")
	assert.Error(t, err)
}

func TestExpectedBytes(t *testing.T) {
	v := catalog.Volume{SizeMobiMB: 2, SizeEpubMB: 0}
	assert.Equal(t, int64(2*1024*1024), v.ExpectedBytes(catalog.FormatMobi))
	assert.Equal(t, int64(0), v.ExpectedBytes(catalog.FormatEpub))
}
