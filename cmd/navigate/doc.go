// Package main is the navigate command: it loads one URL the way a
// browser tab would and prints what it ended up on.
//
// The command fetches the target, builds a document from the response
// and, with -follow-refresh, follows <meta http-equiv="refresh">
// directives until a page carries none.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Print URL, status, content type and title of the final page
//	./navigate -follow-refresh https://example.com/
//
//	# POST a form with headers and print link targets
//	./navigate -X POST -d 'q=go' -H 'Content-Type: application/x-www-form-urlencoded' \
//	    -xpath '//a/@href' https://example.com/search
//
//	# Expose navigation metrics while running
//	./navigate -metrics-addr :9090 https://example.com/
//
// Signals:
//   - SIGINT, SIGTERM: cancel the navigation
package main
