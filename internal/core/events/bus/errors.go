package bus

import "errors"

var (
	ErrNilHandler   = errors.New("event handler is nil")
	ErrDefaultTopic = errors.New("default topic cannot be deleted")
)
