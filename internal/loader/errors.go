package loader

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrNilRequest = errors.New("loader: nil navigation request")
	ErrNoTarget   = errors.New("loader: navigation request has no target")
	ErrNilContext = errors.New("loader: nil browsing context")

	ErrMalformedRefresh = errors.New("malformed refresh directive")
	ErrRefreshLimit     = errors.New("meta refresh limit exceeded")
)

// DirectiveError reports refresh content that could not be parsed.
// It matches ErrMalformedRefresh and the underlying cause under errors.Is.
type DirectiveError struct {
	Content string
	Err     error
}

func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrMalformedRefresh, e.Content, e.Err)
}

func (e *DirectiveError) Unwrap() []error {
	return []error{ErrMalformedRefresh, e.Err}
}

// RefreshLimitError is returned when a navigation keeps refreshing past the
// configured cap.
type RefreshLimitError struct {
	Limit int
	Next  *url.URL
}

func (e *RefreshLimitError) Error() string {
	return fmt.Sprintf("%s: %d refreshes followed, next target %s", ErrRefreshLimit, e.Limit, e.Next)
}

func (e *RefreshLimitError) Unwrap() error {
	return ErrRefreshLimit
}
