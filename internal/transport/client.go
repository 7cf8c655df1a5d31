package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/docloader/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Request is the transport-level shape of a download.
type Request struct {
	URL      string
	Method   string
	Body     []byte
	Headers  map[string]string
	Referrer string
}

// Options configures a Client. Zero values take defaults.
type Options struct {
	Timeout      time.Duration
	Retries      int
	UserAgent    string
	RateLimitRPS float64
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
	Breakers     *resilience.Group
}

// Client performs downloads through resty over a retrying transport, with
// a shared rate limiter and a circuit breaker per host.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewClient creates a download client
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "docloader/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewGroup(resilience.Settings{
			Probes:   1,
			Window:   60 * time.Second,
			Cooldown: 30 * time.Second,
			ShouldTrip: func(counts resilience.Counts) bool {
				// Trip if 10+ consecutive failures OR >70% failure rate with 20+ requests
				return counts.ConsecutiveFailures >= 10 ||
					(counts.Requests >= 20 && float64(counts.Failures)/float64(counts.Requests) > 0.7)
			},
		})
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	// hand the last response back instead of turning exhausted 5xx retries into errors
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent).
		SetLogger(opts.Logger.Named("resty").Sugar())

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	return &Client{
		resty:    restyClient,
		limiter:  limiter,
		breakers: opts.Breakers,
		metrics:  opts.Metrics,
		log:      opts.Logger.Named("transport"),
	}
}

// Download starts req in the background and returns immediately.
func (c *Client) Download(ctx context.Context, req Request) *Handle {
	dlCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	record := c.metrics.DownloadStarted(method)

	go func() {
		resp, err := c.do(dlCtx, method, req)
		switch {
		case err != nil && dlCtx.Err() != nil:
			record("cancelled")
		case err != nil:
			record("error")
		case resp == nil:
			record("empty")
		default:
			record("response")
		}
		if resp == nil {
			cancel()
		} else {
			resp.release = cancel
		}
		h.finish(resp, err)
	}()

	return h
}

// Get is shorthand for a GET download of rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) *Handle {
	return c.Download(ctx, Request{URL: rawURL, Method: http.MethodGet})
}

func (c *Client) do(ctx context.Context, method string, req Request) (*Response, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in %s", target.Scheme, req.URL)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	r := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(req.Headers)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}
	if req.Referrer != "" && r.Header.Get("Referer") == "" {
		r.SetHeader("Referer", req.Referrer)
	}

	var raw *resty.Response
	err = c.breakers.Get(target.Host).Do(func() error {
		var execErr error
		raw, execErr = r.Execute(method, target.String())
		return execErr
	})
	if err != nil {
		if raw != nil && raw.RawResponse != nil {
			raw.RawBody().Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%s unavailable: %w", target.Host, err)
		}
		return nil, err
	}

	c.log.Debug("response headers received",
		zap.String("method", method),
		zap.String("url", target.String()),
		zap.Int("status", raw.StatusCode()),
		zap.Duration("elapsed", raw.Time()),
	)

	return c.wrap(method, req, target, raw.RawResponse)
}

// wrap turns an http.Response into a Response, or nil when there is no
// body to build a document from.
func (c *Client) wrap(method string, req Request, target *url.URL, hr *http.Response) (*Response, error) {
	if noBody(method, hr.StatusCode) {
		hr.Body.Close()
		return nil, nil
	}

	buffered := bufio.NewReader(hr.Body)
	if _, err := buffered.Peek(1); err != nil {
		hr.Body.Close()
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	final := target
	if hr.Request != nil && hr.Request.URL != nil {
		final = hr.Request.URL
	}
	resp := NewResponse(hr.StatusCode, hr.Header, final, hr.Body)
	resp.Body = buffered
	resp.Referrer = req.Referrer

	if strings.EqualFold(hr.Header.Get("Content-Encoding"), "zstd") {
		dec, err := zstd.NewReader(buffered)
		if err != nil {
			hr.Body.Close()
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		rc := dec.IOReadCloser()
		resp.Body = rc
		resp.closer = multiCloser{rc, hr.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}

	return resp, nil
}

func noBody(method string, status int) bool {
	if method == http.MethodHead {
		return true
	}
	switch status {
	case http.StatusNoContent, http.StatusResetContent, http.StatusNotModified:
		return true
	}
	return false
}
