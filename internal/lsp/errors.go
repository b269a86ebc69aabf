package lsp

import "errors"

var (
	// ErrVersionSkew is returned when a notification does not start at the
	// version the analyzer was last brought up to.
	ErrVersionSkew = errors.New("analyzer version skew")
	// ErrTransport wraps failures of the underlying connection.
	ErrTransport = errors.New("analyzer transport failure")
	ErrDegraded  = errors.New("analyzer unavailable")
	ErrNotReady  = errors.New("analyzer not ready")
	ErrClosed    = errors.New("analyzer session closed")
	ErrCancelled = errors.New("request cancelled")
	// ErrUnsupported is returned for request kinds the server did not advertise.
	ErrUnsupported = errors.New("request not supported by analyzer")
	ErrNotOpen     = errors.New("document not open")
	ErrThrottled   = errors.New("reconnect throttled")
	// ErrStaleResponse marks a result issued against an older document version.
	// It is only ever logged.
	ErrStaleResponse = errors.New("stale analyzer response")
	ErrMalformed     = errors.New("malformed analyzer message")
	// ErrStalled is the cause of degrading when the analyzer stops reading.
	ErrStalled = errors.New("analyzer stopped reading")
)
