package confluence

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the wiki rejected the credentials (HTTP 401/403).
	ErrAuth = errors.New("access denied, check your credentials")

	// ErrNotFound covers both HTTP 404 and lookups the API answers with
	// an empty result set.
	ErrNotFound = errors.New("resource not found")

	// ErrAmbiguousTitle is returned when a by-title lookup matches more
	// than one page. Titles are unique per space by the wiki's own
	// invariant, so this indicates a broken space rather than a caller
	// mistake, and is never resolved by picking one.
	ErrAmbiguousTitle = errors.New("multiple pages found for title")
)

// APIError is any remote failure that is not auth or not-found. The
// wiki does not reliably distinguish finer kinds (a duplicate title on
// create comes back as a plain 400), so callers get the status code and
// the operation that failed.
type APIError struct {
	StatusCode int
	Op         string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
}

// Unwrap maps well-known status codes onto the sentinel errors so that
// errors.Is works across the package boundary.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}
