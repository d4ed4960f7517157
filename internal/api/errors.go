package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

var (
	// ErrAuthFailed means the storefront rejected the credentials, either at
	// startup or while refreshing the session.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnauthorized is matched by a StatusError carrying 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is matched by a StatusError carrying 404.
	ErrNotFound = errors.New("not found")
)

// maxErrorBody caps how much of a failed response body is kept for logging.
const maxErrorBody = 512

// StatusError reports an unexpected HTTP status from a per-item call.
type StatusError struct {
	Op         string // e.g. "list formats"
	ItemID     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s for %s failed: status %d: %s", e.Op, e.ItemID, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrUnauthorized and ErrNotFound.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case nethttp.StatusUnauthorized:
		return ErrUnauthorized
	case nethttp.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// IsAuthError reports whether err should end the run: the session could not
// be established or renewed.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
