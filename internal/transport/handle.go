package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClaimed is returned when a handle's response was already taken.
var ErrClaimed = errors.New("transport: response already claimed")

// Handle is an in-flight download. Await yields the response, or nil when
// the download produced no body. Cancel may be called any number of times
// from any goroutine.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc

	finishOnce sync.Once

	mu        sync.Mutex
	resp      *Response
	err       error
	finished  bool
	claimed   bool
	cancelled bool
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{done: make(chan struct{}), cancel: cancel}
}

// NewPending returns an unresolved handle and the function that resolves
// it. Only the first call to resolve has any effect. Fetch strategies that
// produce responses without the HTTP client use it.
func NewPending() (*Handle, func(*Response, error)) {
	h := newHandle(func() {})
	return h, h.finish
}

// Resolved returns a handle that is already complete.
func Resolved(resp *Response, err error) *Handle {
	h, resolve := NewPending()
	resolve(resp, err)
	return h
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done is closed once the download has resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Await blocks until the download resolves or ctx is done. On success the
// caller owns the returned response. If ctx ends first the download is
// cancelled and ctx.Err() is returned.
func (h *Handle) Await(ctx context.Context) (*Response, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		h.Cancel()
		return nil, ctx.Err()
	}
	return h.claim()
}

// Cancel aborts the download. A response that arrives after Cancel, or
// that arrived and was never claimed, is closed by the handle.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		return
	}
	h.cancelled = true
	h.cancel()

	if h.finished && !h.claimed && h.resp != nil {
		h.resp.Close()
		h.resp = nil
	}
}

func (h *Handle) finish(resp *Response, err error) {
	h.finishOnce.Do(func() { h.settle(resp, err) })
}

func (h *Handle) settle(resp *Response, err error) {
	h.mu.Lock()
	h.finished = true
	if h.cancelled {
		if resp != nil {
			resp.Close()
			resp = nil
		}
		if err == nil {
			err = context.Canceled
		}
	}
	h.resp, h.err = resp, err
	h.mu.Unlock()

	close(h.done)
}

func (h *Handle) claim() (*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.claimed {
		return nil, ErrClaimed
	}
	if h.cancelled {
		return nil, context.Canceled
	}
	h.claimed = true

	resp := h.resp
	h.resp = nil
	return resp, h.err
}
