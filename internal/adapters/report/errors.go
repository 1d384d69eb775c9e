package report

import "errors"

// ErrWrite is returned when any report artifact cannot be produced.
var ErrWrite = errors.New("report write failed")
