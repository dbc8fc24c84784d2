package services

import "errors"

var (
	// ErrTraceNotYetAvailable is returned when a decision trace could not be
	// found within the lookup attempts. Traces are written asynchronously, so
	// callers should retry later.
	ErrTraceNotYetAvailable = errors.New("decision trace not yet available")

	ErrDecisionNotFound = errors.New("decision trace not found")

	ErrTooManyItems = errors.New("too many items")
)
