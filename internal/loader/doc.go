// Package loader turns navigation requests into documents.
//
// A navigation starts a download through a pluggable FetchFunc, builds a
// document from the response (or a blank one when there is none) and, if
// enabled, follows <meta http-equiv="refresh"> directives until a document
// carries none. The loader owns exactly one document at a time while it
// works and hands the final one to the caller.
package loader
