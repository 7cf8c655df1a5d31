package transport

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
)

// Response is a downloaded resource whose body has not been read yet.
// The receiver of a Response owns it and must Close it exactly once;
// further Close calls are no-ops.
type Response struct {
	Status   int
	Header   http.Header
	URL      *url.URL // final address after HTTP redirects
	Referrer string
	Body     io.Reader

	closer  io.Closer
	release func()
	once    sync.Once
	closed  atomic.Bool
	err     error
}

// NewResponse assembles a Response around body. It is used by the HTTP
// client and by tests that stand in for it.
func NewResponse(status int, header http.Header, u *url.URL, body io.ReadCloser) *Response {
	if header == nil {
		header = make(http.Header)
	}
	return &Response{
		Status: status,
		Header: header,
		URL:    u,
		Body:   body,
		closer: body,
	}
}

// ContentType returns the Content-Type header, possibly empty.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Close releases the body and the request context behind it.
func (r *Response) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		if r.closer != nil {
			r.err = r.closer.Close()
		}
		if r.release != nil {
			r.release()
		}
	})
	return r.err
}

// Closed reports whether Close has been called.
func (r *Response) Closed() bool {
	return r.closed.Load()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
