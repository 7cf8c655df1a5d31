package loader

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/docloader/internal/document"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/config"
	"github.com/GriffinCanCode/docloader/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docloader/internal/logging"
	"github.com/GriffinCanCode/docloader/internal/shared/id"
	"go.uber.org/zap"
)

// DefaultMaxRefreshes caps refresh chains unless configured otherwise.
const DefaultMaxRefreshes = 20

// Loader runs navigations: fetch, build, then optionally follow meta
// refresh directives until a document carries none.
type Loader struct {
	fetch           FetchFunc
	followRefresh   bool
	maxRefreshes    int
	ignoreMalformed bool
	sleep           func(ctx context.Context, d time.Duration) error
	log             *logging.Logger
	metrics         *monitoring.Metrics
}

// Option configures a Loader.
type Option func(*Loader)

// WithFollowMetaRefresh enables the refresh loop. Off by default.
func WithFollowMetaRefresh(follow bool) Option {
	return func(l *Loader) {
		l.followRefresh = follow
	}
}

// WithMaxRefreshes caps how many refreshes one navigation follows.
// Zero means no cap.
func WithMaxRefreshes(n int) Option {
	return func(l *Loader) {
		if n >= 0 {
			l.maxRefreshes = n
		}
	}
}

// WithIgnoreMalformedRefresh treats unparsable directives as absent
// instead of failing the navigation.
func WithIgnoreMalformedRefresh(ignore bool) Option {
	return func(l *Loader) {
		l.ignoreMalformed = ignore
	}
}

// WithSleep replaces the delay primitive used between refreshes.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loader) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

func WithLogger(log *logging.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// FromConfig translates loader configuration into options.
func FromConfig(cfg config.LoaderConfig) []Option {
	return []Option{
		WithFollowMetaRefresh(cfg.FollowMetaRefresh),
		WithMaxRefreshes(cfg.MaxRefreshes),
		WithIgnoreMalformedRefresh(cfg.MalformedRefresh == config.MalformedRefreshIgnore),
	}
}

// New creates a Loader that starts downloads with fetch.
func New(fetch FetchFunc, opts ...Option) *Loader {
	l := &Loader{
		fetch:        fetch,
		maxRefreshes: DefaultMaxRefreshes,
		sleep:        sleepContext,
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open navigates to req.Target and returns the final document, which the
// caller owns. Cancelling ctx aborts the navigation at any step; no
// document is returned alongside an error.
func (l *Loader) Open(ctx context.Context, bc BrowsingContext, req *NavigationRequest) (*document.Document, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if req.Target == nil {
		return nil, ErrNoTarget
	}
	if bc == nil {
		return nil, ErrNilContext
	}

	start := time.Now()
	log := l.log.Navigation(id.NewNavigationID().String(), req.Target.String())

	doc, err := l.navigate(ctx, bc, req, log)
	l.metrics.RecordNavigation(outcome(err), time.Since(start))
	if err != nil {
		log.Debug("navigation aborted", zap.Error(err))
		return nil, err
	}

	log.Debug("navigation complete", zap.String("url", doc.Address()))
	return doc, nil
}

func (l *Loader) navigate(ctx context.Context, bc BrowsingContext, req *NavigationRequest, log *zap.Logger) (*document.Document, error) {
	var slot docSlot
	defer slot.release()

	doc, fallback, err := l.load(ctx, bc, req, log)
	if err != nil {
		return nil, err
	}
	slot.replace(doc)

	if fallback || !l.followRefresh {
		return slot.take(), nil
	}
	if err := l.followRefreshes(ctx, bc, &slot, log); err != nil {
		return nil, err
	}
	return slot.take(), nil
}

// load fetches req and builds the first document. fallback reports that
// the fetch produced no response and a blank document stands in.
func (l *Loader) load(ctx context.Context, bc BrowsingContext, req *NavigationRequest, log *zap.Logger) (doc *document.Document, fallback bool, err error) {
	h := l.fetch(ctx, req)
	stop := context.AfterFunc(ctx, h.Cancel)
	defer stop()

	resp, err := h.Await(ctx)
	if err != nil {
		return nil, false, err
	}

	if resp == nil {
		log.Debug("no response, opening blank document")
		l.metrics.RecordFallback()
		doc, err = settle(ctx)(bc.OpenBlank(ctx, req.Target))
		return doc, true, err
	}
	defer resp.Close()

	log.Debug("response received", zap.Int("status", resp.Status))
	doc, err = settle(ctx)(bc.OpenFromResponse(ctx, resp))
	return doc, false, err
}

func (l *Loader) followRefreshes(ctx context.Context, bc BrowsingContext, slot *docSlot, log *zap.Logger) error {
	for followed := 0; ; followed++ {
		current := slot.current()

		content, found, err := FindRefresh(current)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		directive, err := ParseRefresh(content, current.URL)
		if err == nil && directive.URL == nil {
			err = &DirectiveError{Content: content, Err: errors.New("document has no address")}
		}
		if err != nil {
			if l.ignoreMalformed {
				log.Debug("ignoring malformed refresh", zap.Error(err))
				return nil
			}
			return err
		}

		if l.maxRefreshes > 0 && followed >= l.maxRefreshes {
			return &RefreshLimitError{Limit: l.maxRefreshes, Next: directive.URL}
		}

		log.Debug("following refresh",
			zap.Duration("delay", directive.Delay),
			zap.String("next", directive.URL.String()),
			zap.Int("followed", followed),
		)
		if err := l.sleep(ctx, directive.Delay); err != nil {
			return err
		}

		slot.release()
		l.metrics.RecordRefresh(directive.Delay)

		next, err := settle(ctx)(bc.OpenFromURL(ctx, directive.URL))
		if err != nil {
			return err
		}
		slot.replace(next)
	}
}

// settle drops a document that was opened after ctx was cancelled.
func settle(ctx context.Context) func(*document.Document, error) (*document.Document, error) {
	return func(doc *document.Document, err error) (*document.Document, error) {
		if err != nil {
			if doc != nil {
				doc.Close()
			}
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			if doc != nil {
				doc.Close()
			}
			return nil, ctxErr
		}
		return doc, nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return monitoring.OutcomeCancelled
	default:
		return monitoring.OutcomeError
	}
}
