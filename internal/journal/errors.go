package journal

import "fmt"

var (
	// ErrNotFound is returned when a session doesn't exist
	ErrNotFound = fmt.Errorf("session not found")

	// ErrInvalidTransaction is returned when a transaction operation fails
	ErrInvalidTransaction = fmt.Errorf("invalid transaction")

	// ErrCorrupt is returned when recorded edits do not form a chain
	ErrCorrupt = fmt.Errorf("journal corrupt")
)
