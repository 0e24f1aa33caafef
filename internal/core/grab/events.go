package grab

import (
	"time"

	"github.com/zeusync/grabkit/internal/core/events/bus"
)

// Grab lifecycle event types published on the bus.
const (
	EventBegin  = "grab.begin"
	EventUpdate = "grab.update"
	EventEnd    = "grab.end"
)

// EventTypes lists every grab event type.
var EventTypes = []string{EventBegin, EventUpdate, EventEnd}

// Event is a grab lifecycle notification. Record is a snapshot taken when the
// event was raised.
type Event struct {
	Kind   string
	Target *Target
	Record GrabPointerRecord
	At     time.Time
}

var _ bus.Event = Event{}

func (e Event) Type() string { return e.Kind }

func (e Event) Source() string {
	if e.Target == nil {
		return ""
	}
	return e.Target.Name()
}

func (e Event) Timestamp() time.Time { return e.At }
func (e Event) Data() any            { return e }
