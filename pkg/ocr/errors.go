package ocr

import "errors"

var (
	// ErrNoText is returned when a backend answers but recognises nothing.
	ErrNoText = errors.New("no text detected")
	// ErrUnknownEngine is returned by Open for unregistered backend names.
	ErrUnknownEngine = errors.New("unknown ocr engine")
	// ErrMissingAPIKey is returned when a cloud backend has no key configured.
	ErrMissingAPIKey = errors.New("api key missing")
)
