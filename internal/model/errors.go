package model

import "errors"

// Error taxonomy shared by the services and the request layer. Callers wrap
// these with context and match with errors.Is.
var (
	// ErrMissingFields is returned when a required input is absent.
	ErrMissingFields = errors.New("missing required fields")
	// ErrInvalidTimestamp is returned for an unparsable summary timestamp.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidDate is returned for a malformed YYYY-MM-DD day.
	ErrInvalidDate = errors.New("invalid date format, use YYYY-MM-DD")
	// ErrInvalidUsage is returned for usage deltas that would decrease a counter.
	ErrInvalidUsage = errors.New("usage deltas must not be negative")
	// ErrClassifierUnavailable marks any failed classifier call.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrPersistence marks a store that is unreachable or rejected a write.
	ErrPersistence = errors.New("persistence failure")
)
