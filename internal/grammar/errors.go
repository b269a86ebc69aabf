package grammar

import "errors"

var (
	// ErrUnknownLanguage is returned for a language name no grammar serves.
	ErrUnknownLanguage = errors.New("unknown language")
)
