package source

import "errors"

var (
	// ErrNoData is returned when both the download and the local fallback fail.
	ErrNoData = errors.New("no data available from any source")
	// ErrBadStatus is returned on a non-200 HTTP response.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrDecode is returned when the CSV stream cannot be parsed.
	ErrDecode = errors.New("csv decode failed")
)
