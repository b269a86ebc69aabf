package coordinator

import "errors"

var (
	// ErrNoAnalyzer is returned by requests on a document without an analyzer.
	ErrNoAnalyzer = errors.New("no analyzer attached")
	ErrClosed     = errors.New("coordinator closed")
)
