package frame

import "errors"

// ErrInvalidArgument is returned when a pixel buffer does not match its declared shape.
var ErrInvalidArgument = errors.New("invalid argument")
