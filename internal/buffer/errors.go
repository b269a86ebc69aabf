package buffer

import "errors"

var (
	// ErrOutOfBounds is returned when a read or edit range exceeds the document.
	ErrOutOfBounds = errors.New("range out of bounds")
	// ErrInvalidCoordinate is returned when a coordinate does not map to a
	// character boundary inside the document.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrEmptyEdit is returned for an edit that would not change the document.
	ErrEmptyEdit = errors.New("edit changes nothing")
)
