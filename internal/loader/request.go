package loader

import (
	"context"
	"net/url"

	"github.com/GriffinCanCode/docloader/internal/document"
	"github.com/GriffinCanCode/docloader/internal/transport"
)

// Header is one request header. Order matters: a later header with the
// same name replaces an earlier one.
type Header struct {
	Name  string
	Value string
}

// NavigationRequest describes what to load. It is treated as read-only.
type NavigationRequest struct {
	Target  *url.URL
	Method  string
	Body    []byte
	Headers []Header

	// Origin is the document the navigation started from, if any.
	Origin *document.Document
}

// BrowsingContext opens documents on behalf of a navigation.
// *document.Builder is the default implementation.
type BrowsingContext interface {
	OpenFromResponse(ctx context.Context, resp *transport.Response) (*document.Document, error)
	OpenBlank(ctx context.Context, u *url.URL) (*document.Document, error)
	OpenFromURL(ctx context.Context, u *url.URL) (*document.Document, error)
}

var _ BrowsingContext = (*document.Builder)(nil)
