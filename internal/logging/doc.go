// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr unless OutputPaths says otherwise; the navigate command
// writes the document itself to stdout.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Navigation(navID, "https://example.com")
//	log.Debug("following refresh", zap.Duration("delay", d))
package logging
