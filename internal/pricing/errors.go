package pricing

import "errors"

var (
	// ErrPriceNotFound means no history entry covers the requested instant.
	ErrPriceNotFound = errors.New("no price effective at the requested time")
	// ErrAmbiguousPrice means overlapping entries cover the same instant.
	ErrAmbiguousPrice = errors.New("more than one price effective at the requested time")
)
