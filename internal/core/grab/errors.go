package grab

import "errors"

// Grab target errors
var (
	ErrDuplicateGrab = errors.New("pointer is already grabbing this target")
	ErrNilPointer    = errors.New("pointer is nil")
	ErrFocusLocked   = errors.New("pointer focus is locked by another target")
)
