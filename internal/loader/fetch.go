package loader

import (
	"context"
	"net/http"

	"github.com/GriffinCanCode/docloader/internal/transport"
)

// FetchFunc starts the download for a navigation and returns its handle
// without blocking.
type FetchFunc func(ctx context.Context, req *NavigationRequest) *transport.Handle

// Downloader is the download primitive a FetchFunc delegates to.
type Downloader interface {
	Download(ctx context.Context, req transport.Request) *transport.Handle
}

// NewFetch returns the default fetch strategy: translate the request and
// hand it to d.
func NewFetch(d Downloader) FetchFunc {
	return func(ctx context.Context, req *NavigationRequest) *transport.Handle {
		return d.Download(ctx, TransportRequest(req))
	}
}

// TransportRequest maps a navigation request onto the transport's shape.
func TransportRequest(req *NavigationRequest) transport.Request {
	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		headers[http.CanonicalHeaderKey(h.Name)] = h.Value
	}

	out := transport.Request{
		URL:     req.Target.String(),
		Method:  req.Method,
		Body:    req.Body,
		Headers: headers,
	}
	if req.Origin != nil {
		out.Referrer = req.Origin.Address()
	}
	return out
}
