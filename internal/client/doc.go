// Package client provides typed HTTP access to a running audiolens daemon.
//
// Every method takes a context and maps non-2xx responses to *APIError so
// callers can distinguish a missing job from a dead daemon. Uploads stream
// from disk through a pipe, so file size never dictates memory use.
package client
