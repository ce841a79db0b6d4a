package catalog

import "fmt"

// NotFoundError reports that a comic ID does not exist on any mirror.
type NotFoundError struct {
	ComicID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("comic not found: %s", e.ComicID)
}

// VolumeNotFoundError reports that a volume ID is not in a comic's volume
// list.
type VolumeNotFoundError struct {
	VolID string
}

func (e *VolumeNotFoundError) Error() string {
	return fmt.Sprintf("volume not found: %s", e.VolID)
}

// ParseError reports that a catalog response could not be decoded. URL
// identifies the offending resource.
type ParseError struct {
	URL string
	Msg string
}

func (e *ParseError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("parse catalog response: %s", e.Msg)
	}
	return fmt.Sprintf("parse catalog response: %s: %s", e.Msg, e.URL)
}
