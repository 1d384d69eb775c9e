package table

import "errors"

// Sentinel kinds for table errors.
var (
	ErrArity = errors.New("row arity mismatch")
)
