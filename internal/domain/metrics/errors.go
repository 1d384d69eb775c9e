package metrics

import "errors"

// Sentinel kinds for engine errors.
var (
	// ErrUnsortedInput signals a caller bug: the cleaner must always hand
	// the engine strictly date-ordered series.
	ErrUnsortedInput = errors.New("unsorted input series")
)
