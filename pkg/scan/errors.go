package scan

import "errors"

// ErrCapture marks a frame that could not be used; the caller should abort the scan
// and show a generic capture error.
var ErrCapture = errors.New("capture error")
