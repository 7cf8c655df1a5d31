package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Navigation outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Metrics holds the Prometheus collectors for navigations and downloads.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Navigation metrics
	Navigations        *prometheus.CounterVec
	NavigationDuration prometheus.Histogram
	Fallbacks          prometheus.Counter
	RefreshFollows     prometheus.Counter
	RefreshDelay       prometheus.Histogram

	// Download metrics
	Downloads        *prometheus.CounterVec
	DownloadDuration *prometheus.HistogramVec
	DownloadsActive  prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docloader_navigations_total",
				Help: "Total number of navigations by outcome",
			},
			[]string{"outcome"},
		),
		NavigationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docloader_navigation_duration_seconds",
				Help:    "Navigation duration in seconds, refresh delays included",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		Fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docloader_fallback_documents_total",
				Help: "Navigations that opened a blank document because the fetch returned no response",
			},
		),
		RefreshFollows: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docloader_meta_refresh_follows_total",
				Help: "Meta refresh directives followed",
			},
		),
		RefreshDelay: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docloader_meta_refresh_delay_seconds",
				Help:    "Delay requested by followed meta refresh directives",
				Buckets: []float64{0, 1, 2, 5, 10, 30, 60, 300},
			},
		),

		Downloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docloader_downloads_total",
				Help: "Downloads by method and result",
			},
			[]string{"method", "result"},
		),
		DownloadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docloader_download_duration_seconds",
				Help:    "Time until response headers arrive",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		DownloadsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "docloader_downloads_in_flight",
				Help: "Downloads started and not yet resolved",
			},
		),
	}
}

// RecordNavigation records a finished navigation.
func (m *Metrics) RecordNavigation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(outcome).Inc()
	m.NavigationDuration.Observe(duration.Seconds())
}

// RecordFallback records a blank document opened in place of a response.
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

// RecordRefresh records a followed meta refresh.
func (m *Metrics) RecordRefresh(delay time.Duration) {
	if m == nil {
		return
	}
	m.RefreshFollows.Inc()
	m.RefreshDelay.Observe(delay.Seconds())
}

// DownloadStarted marks a download in flight and returns a func that
// records its result exactly once.
func (m *Metrics) DownloadStarted(method string) func(result string) {
	if m == nil {
		return func(string) {}
	}

	start := time.Now()
	m.DownloadsActive.Inc()

	var once sync.Once
	return func(result string) {
		once.Do(func() {
			m.DownloadsActive.Dec()
			m.Downloads.WithLabelValues(method, result).Inc()
			m.DownloadDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		})
	}
}
