package loader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/docloader/internal/document"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/config"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docloader/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext serves markup per URL. The last page queued for a URL is
// served on every later open.
type fakeContext struct {
	mu      sync.Mutex
	pages   map[string][]string
	calls   []string
	docs    []*document.Document
	openErr error
}

func newFakeContext() *fakeContext {
	return &fakeContext{pages: make(map[string][]string)}
}

func (f *fakeContext) serve(rawURL string, markup ...string) {
	f.pages[rawURL] = append(f.pages[rawURL], markup...)
}

func (f *fakeContext) next(u *url.URL) string {
	queue := f.pages[u.String()]
	if len(queue) == 0 {
		return "<html><body>empty</body></html>"
	}
	markup := queue[0]
	if len(queue) > 1 {
		f.pages[u.String()] = queue[1:]
	}
	return markup
}

func (f *fakeContext) open(kind string, u *url.URL, markup string) (*document.Document, error) {
	f.calls = append(f.calls, kind+" "+u.String())
	if f.openErr != nil {
		return nil, f.openErr
	}
	doc, err := document.FromHTML(u, markup)
	if err != nil {
		return nil, err
	}
	f.docs = append(f.docs, doc)
	return doc, nil
}

func (f *fakeContext) OpenFromResponse(_ context.Context, resp *transport.Response) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return f.open("response", resp.URL, string(body))
}

func (f *fakeContext) OpenBlank(_ context.Context, u *url.URL) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// blank documents never get scanned, so a directive here must be inert
	return f.open("blank", u, `<meta http-equiv="refresh" content="0;url=/never">`)
}

func (f *fakeContext) OpenFromURL(_ context.Context, u *url.URL) (*document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open("url", u, f.next(u))
}

func (f *fakeContext) assertReleasedExceptLast(t *testing.T, final *document.Document) {
	t.Helper()
	for _, doc := range f.docs {
		if doc == final {
			assert.False(t, doc.Released(), "final document released")
			continue
		}
		assert.True(t, doc.Released(), "document %s leaked", doc.Address())
	}
}

type trackedBody struct {
	io.Reader
	closes atomic.Int32
}

func (b *trackedBody) Close() error {
	b.closes.Add(1)
	return nil
}

func htmlResponse(t *testing.T, rawURL, markup string) (*transport.Response, *trackedBody) {
	t.Helper()
	body := &trackedBody{Reader: strings.NewReader(markup)}
	header := http.Header{"Content-Type": []string{"text/html"}}
	return transport.NewResponse(http.StatusOK, header, mustURL(t, rawURL), body), body
}

func respond(resp *transport.Response, err error) FetchFunc {
	return func(context.Context, *NavigationRequest) *transport.Handle {
		return transport.Resolved(resp, err)
	}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func get(t *testing.T, rawURL string) *NavigationRequest {
	t.Helper()
	return &NavigationRequest{Target: mustURL(t, rawURL), Method: http.MethodGet}
}

func TestOpenRejectsNilRequest(t *testing.T) {
	fetched := false
	l := New(func(context.Context, *NavigationRequest) *transport.Handle {
		fetched = true
		return transport.Resolved(nil, nil)
	})
	bc := newFakeContext()

	doc, err := l.Open(context.Background(), bc, nil)
	assert.ErrorIs(t, err, ErrNilRequest)
	assert.Nil(t, doc)
	assert.False(t, fetched)
	assert.Empty(t, bc.calls)
}

func TestOpenRejectsIncompleteArguments(t *testing.T) {
	l := New(respond(nil, nil))

	_, err := l.Open(context.Background(), newFakeContext(), &NavigationRequest{})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = l.Open(context.Background(), nil, get(t, "http://example.com/"))
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestOpenFallsBackToBlank(t *testing.T) {
	sleeper := &sleepRecorder{}
	l := New(respond(nil, nil), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	bc := newFakeContext()

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/empty"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, "http://example.com/empty", doc.Address())
	assert.Equal(t, []string{"blank http://example.com/empty"}, bc.calls)
	assert.Empty(t, sleeper.delays)
}

func TestOpenWithoutFollowReturnsFirstDocument(t *testing.T) {
	resp, body := htmlResponse(t, "http://example.com/start",
		`<html><head><meta http-equiv="refresh" content="0;url=/next"></head></html>`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithSleep(sleeper.sleep))
	bc := newFakeContext()

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/start"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, "http://example.com/start", doc.Address())
	assert.Equal(t, []string{"response http://example.com/start"}, bc.calls)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, int32(1), body.closes.Load())
}

func TestOpenFollowsRefreshTarget(t *testing.T) {
	resp, body := htmlResponse(t, "http://example.com/start",
		`<html><head><meta http-equiv="refresh" content="5;url=/next"></head></html>`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	bc := newFakeContext()
	bc.serve("http://example.com/next", "<html><head><title>Next</title></head></html>")

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/start"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, "http://example.com/next", doc.Address())
	assert.Equal(t, "Next", doc.Title())
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.delays)
	assert.Equal(t, []string{
		"response http://example.com/start",
		"url http://example.com/next",
	}, bc.calls)
	assert.Equal(t, int32(1), body.closes.Load())
	bc.assertReleasedExceptLast(t, doc)
}

func TestOpenSelfRefreshUntilDirectiveGone(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/poll", `<meta http-equiv="refresh" content="0">`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	bc := newFakeContext()
	bc.serve("http://example.com/poll",
		`<meta http-equiv="refresh" content="0">`,
		`<p>ready</p>`,
	)

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/poll"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, []time.Duration{0, 0}, sleeper.delays)
	assert.Equal(t, []string{
		"response http://example.com/poll",
		"url http://example.com/poll",
		"url http://example.com/poll",
	}, bc.calls)
	bc.assertReleasedExceptLast(t, doc)
}

func TestOpenMatchesDirectiveCaseInsensitively(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/a",
		`<HTML><HEAD><META HTTP-EQUIV="REFRESH" CONTENT="1; URL=/b"></HEAD></HTML>`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	bc := newFakeContext()

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/a"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, "http://example.com/b", doc.Address())
	assert.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestOpenCancelledDuringDelay(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/a", `<meta http-equiv="refresh" content="3600;url=/later">`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}))
	bc := newFakeContext()

	doc, err := l.Open(ctx, bc, get(t, "http://example.com/a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, doc)
	require.Len(t, bc.docs, 1)
	assert.True(t, bc.docs[0].Released())
	assert.Equal(t, []string{"response http://example.com/a"}, bc.calls)
}

func TestOpenDeadlineDuringDelay(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/a", `<meta http-equiv="refresh" content="3600">`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	l := New(respond(resp, nil), WithFollowMetaRefresh(true))
	bc := newFakeContext()

	start := time.Now()
	doc, err := l.Open(ctx, bc, get(t, "http://example.com/a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, doc)
	assert.Less(t, time.Since(start), 10*time.Second)
	require.Len(t, bc.docs, 1)
	assert.True(t, bc.docs[0].Released())
}

func TestOpenPreCancelledContextCancelsFetch(t *testing.T) {
	h, _ := transport.NewPending()
	l := New(func(context.Context, *NavigationRequest) *transport.Handle { return h })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := l.Open(ctx, newFakeContext(), get(t, "http://example.com/"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, doc)
	assert.True(t, h.Cancelled())
}

func TestOpenCancelledWhileAwaiting(t *testing.T) {
	h, resolve := transport.NewPending()
	l := New(func(context.Context, *NavigationRequest) *transport.Handle { return h })
	ctx, cancel := context.WithCancel(context.Background())
	bc := newFakeContext()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	doc, err := l.Open(ctx, bc, get(t, "http://example.com/"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, doc)
	assert.True(t, h.Cancelled())

	late, body := htmlResponse(t, "http://example.com/", "<p>late</p>")
	resolve(late, nil)
	assert.Equal(t, int32(1), body.closes.Load())
	assert.Empty(t, bc.calls)
}

func TestOpenPropagatesFetchError(t *testing.T) {
	boom := errors.New("connection refused")
	l := New(respond(nil, boom))
	bc := newFakeContext()

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/"))
	assert.Same(t, boom, err)
	assert.Nil(t, doc)
	assert.Empty(t, bc.calls)
}

func TestOpenClosesResponseWhenBuildFails(t *testing.T) {
	boom := errors.New("parse failed")
	resp, body := htmlResponse(t, "http://example.com/", "<p>x</p>")
	l := New(respond(resp, nil))
	bc := newFakeContext()
	bc.openErr = boom

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/"))
	assert.Same(t, boom, err)
	assert.Nil(t, doc)
	assert.Equal(t, int32(1), body.closes.Load())
	assert.True(t, resp.Closed())
}

func TestOpenPropagatesRedirectOpenError(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/a", `<meta http-equiv="refresh" content="0;url=/b">`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	bc := &failingRedirects{fakeContext: newFakeContext(), err: errors.New("dns failure")}

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/a"))
	assert.Same(t, bc.err, err)
	assert.Nil(t, doc)
	require.Len(t, bc.docs, 1)
	assert.True(t, bc.docs[0].Released())
}

type failingRedirects struct {
	*fakeContext
	err error
}

func (f *failingRedirects) OpenFromURL(context.Context, *url.URL) (*document.Document, error) {
	return nil, f.err
}

func TestOpenStopsAtRefreshLimit(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/loop", `<meta http-equiv="refresh" content="0">`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithMaxRefreshes(3), WithSleep(sleeper.sleep))
	bc := newFakeContext()
	bc.serve("http://example.com/loop", `<meta http-equiv="refresh" content="0">`)

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/loop"))
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrRefreshLimit)

	var limitErr *RefreshLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)
	assert.Equal(t, "http://example.com/loop", limitErr.Next.String())

	assert.Len(t, sleeper.delays, 3)
	assert.Len(t, bc.calls, 4)
	bc.assertReleasedExceptLast(t, nil)
}

func TestOpenUnlimitedRefreshes(t *testing.T) {
	resp, _ := htmlResponse(t, "http://example.com/p", `<meta http-equiv="refresh" content="0">`)
	sleeper := &sleepRecorder{}
	l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithMaxRefreshes(0), WithSleep(sleeper.sleep))
	bc := newFakeContext()

	queue := make([]string, 0, 30)
	for i := 0; i < 29; i++ {
		queue = append(queue, `<meta http-equiv="refresh" content="0">`)
	}
	bc.serve("http://example.com/p", append(queue, "<p>done</p>")...)

	doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/p"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Len(t, sleeper.delays, 30)
}

func TestOpenMalformedDirective(t *testing.T) {
	markup := `<meta http-equiv="refresh" content="soon;url=/x">`

	t.Run("surfaced by default", func(t *testing.T) {
		resp, _ := htmlResponse(t, "http://example.com/", markup)
		l := New(respond(resp, nil), WithFollowMetaRefresh(true))
		bc := newFakeContext()

		doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/"))
		assert.Nil(t, doc)
		assert.ErrorIs(t, err, ErrMalformedRefresh)
		require.Len(t, bc.docs, 1)
		assert.True(t, bc.docs[0].Released())
	})

	t.Run("ignored", func(t *testing.T) {
		resp, _ := htmlResponse(t, "http://example.com/", markup)
		l := New(respond(resp, nil), WithFollowMetaRefresh(true), WithIgnoreMalformedRefresh(true))
		bc := newFakeContext()

		doc, err := l.Open(context.Background(), bc, get(t, "http://example.com/"))
		require.NoError(t, err)
		defer doc.Close()
		assert.Equal(t, "http://example.com/", doc.Address())
		assert.Len(t, bc.calls, 1)
	})
}

func TestOpenRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	sleeper := &sleepRecorder{}

	l := New(respond(nil, nil), WithMetrics(m))
	doc, err := l.Open(context.Background(), newFakeContext(), get(t, "http://example.com/"))
	require.NoError(t, err)
	doc.Close()

	resp, _ := htmlResponse(t, "http://example.com/a", `<meta http-equiv="refresh" content="2;url=/b">`)
	l = New(respond(resp, nil), WithMetrics(m), WithFollowMetaRefresh(true), WithSleep(sleeper.sleep))
	doc, err = l.Open(context.Background(), newFakeContext(), get(t, "http://example.com/a"))
	require.NoError(t, err)
	doc.Close()

	l = New(respond(nil, errors.New("boom")), WithMetrics(m))
	_, err = l.Open(context.Background(), newFakeContext(), get(t, "http://example.com/"))
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Navigations.WithLabelValues(monitoring.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Navigations.WithLabelValues(monitoring.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshFollows))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Loader
	cfg.FollowMetaRefresh = true
	cfg.MaxRefreshes = 7
	cfg.MalformedRefresh = config.MalformedRefreshIgnore

	l := New(respond(nil, nil), FromConfig(cfg)...)
	assert.True(t, l.followRefresh)
	assert.Equal(t, 7, l.maxRefreshes)
	assert.True(t, l.ignoreMalformed)

	l = New(respond(nil, nil), FromConfig(config.Default().Loader)...)
	assert.False(t, l.followRefresh)
	assert.Equal(t, DefaultMaxRefreshes, l.maxRefreshes)
	assert.False(t, l.ignoreMalformed)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestOpenEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/start":
			assert.Equal(t, "second", r.Header.Get("X-Trace"))
			io.WriteString(w, `<html><head><meta http-equiv="Refresh" content="0; url='/final'"></head></html>`)
		case "/final":
			io.WriteString(w, `<html><head><title>Final</title></head><body><a href="/x">x</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := transport.NewClient(transport.Options{Timeout: 5 * time.Second})
	builder := document.NewBuilder(client)
	l := New(NewFetch(client), WithFollowMetaRefresh(true))

	req := get(t, srv.URL+"/start")
	req.Headers = []Header{{Name: "X-Trace", Value: "first"}, {Name: "X-Trace", Value: "second"}}

	doc, err := l.Open(context.Background(), builder, req)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, srv.URL+"/final", doc.Address())
	assert.Equal(t, "Final", doc.Title())
	assert.Equal(t, int32(2), hits.Load())

	nodes, err := doc.XPath("//a/@href")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestOpenEndToEndNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := transport.NewClient(transport.Options{Timeout: 5 * time.Second})
	l := New(NewFetch(client), WithFollowMetaRefresh(true))

	doc, err := l.Open(context.Background(), document.NewBuilder(client), get(t, srv.URL+"/nothing"))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, srv.URL+"/nothing", doc.Address())
	assert.Empty(t, doc.Title())
}
