package download

import "fmt"

// QuotaExhaustedError reports that the account's download quota is used up.
// It is an account-level condition, not a mirror failure, so nothing in the
// request layer retries it.
type QuotaExhaustedError struct {
	VolID string
	Msg   string
}

func (e *QuotaExhaustedError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("download quota exhausted for volume %s: %s", e.VolID, e.Msg)
	}
	return fmt.Sprintf("download quota exhausted for volume %s", e.VolID)
}

// CorruptFileError reports a transfer that completed but produced a file far
// smaller than the catalog said it should be.
type CorruptFileError struct {
	Name     string
	Got      int64
	Expected int64
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt download %s: got %d bytes, expected about %d", e.Name, e.Got, e.Expected)
}

// ResolveError reports that the download API returned an unusable response
// for a volume.
type ResolveError struct {
	VolID string
	Msg   string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve download url for volume %s: %s", e.VolID, e.Msg)
}
