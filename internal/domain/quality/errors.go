package quality

import "errors"

// Sentinel kinds for evaluator errors.
var (
	// ErrQualityGate wraps the names of failed ERROR-severity rules; the
	// caller decides whether to halt downstream computation.
	ErrQualityGate = errors.New("quality gate failed")

	ErrUnknownTarget = errors.New("unknown check target")
	ErrUnknownKind   = errors.New("unknown rule kind")
)
