package dataset

import "errors"

// Sentinel kinds for cleaning errors.
var (
	ErrMissingColumn = errors.New("required column missing")
)
