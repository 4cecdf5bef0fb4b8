package digits

import "errors"

var (
	// ErrUnknownMode is returned by ParseMode for unrecognised names.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrUnknownPolicy is returned by Lookup for unrecognised policy IDs.
	ErrUnknownPolicy = errors.New("unknown policy")
)
