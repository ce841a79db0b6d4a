// Package catalog defines the data model for the remote comic catalog and
// the client contract used by the rest of the application. Full detail-page
// scraping lives behind the Client interface; this package only decodes the
// machine-readable data the site embeds in its pages.
package catalog

import (
	"fmt"
	"strings"
)

// Meta holds the core metadata for a comic. Instances are treated as
// immutable once produced by a Client.
type Meta struct {
	BookID      string   `json:"book_id"`
	ComicID     string   `json:"comic_id,omitempty"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Status      string   `json:"status,omitempty"`
	Region      string   `json:"region,omitempty"`
	Language    string   `json:"language,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Score       float64  `json:"score,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Volume is a single downloadable unit of a comic.
type Volume struct {
	VolID      string  `json:"vol_id"`
	Title      string  `json:"title"`
	FileCount  int     `json:"file_count"`
	SizeMobiMB float64 `json:"size_mobi_mb"`
	SizeEpubMB float64 `json:"size_epub_mb"`
}

// ExpectedBytes returns the expected download size for the given format,
// or 0 when the catalog did not report one.
func (v Volume) ExpectedBytes(f Format) int64 {
	var mb float64
	switch f {
	case FormatMobi:
		mb = v.SizeMobiMB
	case FormatEpub:
		mb = v.SizeEpubMB
	}
	if mb <= 0 {
		return 0
	}
	return int64(mb * 1024 * 1024)
}

// Detail is the full catalog record for a comic: metadata plus the list of
// volumes currently available for download.
type Detail struct {
	Meta    Meta     `json:"meta"`
	Volumes []Volume `json:"volumes"`
}

// FindVolume returns the volume with the given ID.
func (d *Detail) FindVolume(volID string) (Volume, error) {
	for _, v := range d.Volumes {
		if v.VolID == volID {
			return v, nil
		}
	}
	return Volume{}, &VolumeNotFoundError{VolID: volID}
}

// VolumeIDs returns the IDs of all volumes in catalog order.
func (d *Detail) VolumeIDs() []string {
	ids := make([]string, len(d.Volumes))
	for i, v := range d.Volumes {
		ids[i] = v.VolID
	}
	return ids
}

// Format identifies a download format. The numeric values are the format
// codes the download API expects.
type Format int

const (
	FormatMobi Format = 1
	FormatEpub Format = 2
)

// ParseFormat converts "epub" or "mobi" (case-insensitive) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "mobi":
		return FormatMobi, nil
	case "epub":
		return FormatEpub, nil
	}
	return 0, fmt.Errorf("invalid download format %q (valid: epub, mobi)", s)
}

// Ext returns the lowercase file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatMobi:
		return "mobi"
	case FormatEpub:
		return "epub"
	}
	return ""
}

func (f Format) String() string { return f.Ext() }
