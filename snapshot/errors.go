package snapshot

import "errors"

// Errors shared by snapshot producers and consumers.
var (
	// ErrSourceUnavailable is returned when a document cannot be retrieved
	// or parsed.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedSource is returned when a freshly fetched document does not
	// declare its modification date.
	ErrMalformedSource = errors.New("malformed source")
)
