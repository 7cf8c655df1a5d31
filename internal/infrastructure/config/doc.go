// Package config provides 12-factor configuration for docloader.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables.
//
// Configuration Sections:
//   - Loader: meta refresh following, refresh cap, malformed directive policy
//   - HTTP: download timeout, retries, user agent, rate limit, body cap
//   - Logging: Log level and output format
//   - Metrics: optional Prometheus listener
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	if cfg.Loader.FollowMetaRefresh {
//		opts = append(opts, loader.WithFollowMetaRefresh(true))
//	}
//
// Environment Variables:
//   - LOADER_FOLLOW_META_REFRESH, LOADER_MAX_REFRESHES, LOADER_MALFORMED_REFRESH
//   - HTTP_TIMEOUT, HTTP_RETRIES, HTTP_USER_AGENT, HTTP_RATE_LIMIT_RPS, HTTP_MAX_BODY_BYTES
//   - LOG_LEVEL, LOG_DEV
//   - METRICS_ADDR
package config
