/*
Package monitoring provides Prometheus metrics for navigations and downloads.

# Metrics

  - docloader_navigations_total{outcome}: success, cancelled, error
  - docloader_navigation_duration_seconds
  - docloader_fallback_documents_total: fetches that produced no response
  - docloader_meta_refresh_follows_total and docloader_meta_refresh_delay_seconds
  - docloader_downloads_total{method,result}, docloader_download_duration_seconds{method}
  - docloader_downloads_in_flight

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	l := loader.New(fetch, loader.WithMetrics(metrics))

Tests register against a private prometheus.NewRegistry() so collectors do
not collide across test cases.
*/
package monitoring
