package scene

import "errors"

var (
	ErrUnknownTarget      = errors.New("unknown target")
	ErrUnknownPointer     = errors.New("unknown pointer")
	ErrUnknownFollowMode  = errors.New("unknown follow mode")
	ErrUnknownShape       = errors.New("unknown shape")
	ErrUnknownPointerKind = errors.New("unknown pointer kind")
	ErrInvalidConfig      = errors.New("invalid scene config")
)
