package catalog

import "context"

// Client supplies remote catalog truth. Implementations may scrape the
// site's detail pages or talk to any equivalent source; everything else in
// the application only depends on this contract.
type Client interface {
	// Detail returns the full record for a comic, including its volume
	// list. Returns *NotFoundError when the comic does not exist.
	Detail(ctx context.Context, comicID string) (*Detail, error)
}
