package parser

import "errors"

var (
	// ErrParseFailure marks a parse that produced no usable tree. It is
	// absorbed by the tracker and only reported through Stale.
	ErrParseFailure = errors.New("parse failure")
	// ErrVersionMismatch is returned when edits do not continue from the
	// version the tree was built for.
	ErrVersionMismatch = errors.New("edits do not match tree version")
	// ErrNoHighlighting is reported when the grammar's highlight query does
	// not compile for its language.
	ErrNoHighlighting = errors.New("highlighting unavailable")
)
