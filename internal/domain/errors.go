package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed means the feed, a page or an image could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrMalformedFeed means the feed document could not be parsed.
	ErrMalformedFeed = errors.New("malformed feed")

	// ErrEmptyFeed means the feed has no usable item.
	ErrEmptyFeed = errors.New("feed has no items")

	// ErrAuthFailed means session creation did not return an access token.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPublishFailed means record creation did not return a record URI.
	ErrPublishFailed = errors.New("publish failed")

	// ErrPersistFailed means the published links could not be saved.
	ErrPersistFailed = errors.New("persist failed")
)

// APIError is a failed API call. It unwraps to Kind so callers can use
// errors.Is with the sentinel errors above.
type APIError struct {
	Kind   error
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.Status, e.Body)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Body)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
