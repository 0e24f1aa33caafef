// Package touch tracks the targets overlapping a touch pointer and resolves
// the single closest one as hovered.
package touch

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/pkg/generic"
)

// DefaultTouchRadius is the touch sphere radius used when none is configured.
const DefaultTouchRadius = 0.02

// Hover change event types.
const (
	EventHoverBegin = "touch.hover.begin"
	EventHoverEnd   = "touch.hover.end"
)

// HoverEvent reports a change of the hovered target.
type HoverEvent struct {
	Kind    string
	Pointer *Pointer
	Target  models.Handle
	Point   mgl64.Vec3
	At      time.Time
}

func (e HoverEvent) Type() string         { return e.Kind }
func (e HoverEvent) Source() string       { return e.Pointer.Name() }
func (e HoverEvent) Timestamp() time.Time { return e.At }
func (e HoverEvent) Data() any            { return e }

var candidatePool = generic.NewSlicePool[Candidate](8)

// Pointer is a touch-capable pointer. Each tick it queries the spatial index
// with its touch sphere and hovers the candidate whose closest surface point
// is nearest to its center. Ties go to the first candidate in query order.
type Pointer struct {
	name   string
	handle models.Handle
	center mgl64.Vec3
	radius float64

	hoverLocked bool
	grasped     bool

	// non-owning; validity is checked through alive
	hovered models.Handle
	closest mgl64.Vec3
	alive   func(models.Handle) bool

	events bus.EventBus
	logger log.Log
}

// Option configures a Pointer.
type Option func(*Pointer)

// WithBus publishes hover changes on b.
func WithBus(b bus.EventBus) Option {
	return func(p *Pointer) { p.events = b }
}

func WithLogger(l log.Log) Option {
	return func(p *Pointer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLiveness lets HoveredTarget drop handles of destroyed targets.
func WithLiveness(alive func(models.Handle) bool) Option {
	return func(p *Pointer) { p.alive = alive }
}

// NewPointer creates a touch pointer at the origin.
func NewPointer(name string, radius float64, opts ...Option) *Pointer {
	if radius <= 0 {
		radius = DefaultTouchRadius
	}
	p := &Pointer{name: name, radius: radius, logger: log.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(log.String("pointer", name))
	return p
}

func (p *Pointer) Name() string              { return p.name }
func (p *Pointer) Handle() models.Handle     { return p.handle }
func (p *Pointer) SetHandle(h models.Handle) { p.handle = h }

func (p *Pointer) Center() mgl64.Vec3     { return p.center }
func (p *Pointer) SetCenter(c mgl64.Vec3) { p.center = c }

func (p *Pointer) TouchRadius() float64 { return p.radius }

// SetTouchRadius changes the touch sphere; negative radii clamp to zero.
func (p *Pointer) SetTouchRadius(radius float64) {
	if radius < 0 {
		radius = 0
	}
	p.radius = radius
}

// HoverLocked reports whether the pointer keeps its hovered target even when
// it stops overlapping it.
func (p *Pointer) HoverLocked() bool        { return p.hoverLocked }
func (p *Pointer) SetHoverLocked(lock bool) { p.hoverLocked = lock }

// Grasped is gesture state toggled by external logic. It does not affect
// hover selection.
func (p *Pointer) Grasped() bool           { return p.grasped }
func (p *Pointer) SetGrasped(grasped bool) { p.grasped = grasped }

// HoveredTarget returns the hovered target and the closest point on its
// surface. ok is false when nothing is hovered or the target is gone.
func (p *Pointer) HoveredTarget() (target models.Handle, closest mgl64.Vec3, ok bool) {
	if p.hovered.IsZero() {
		return models.Handle{}, mgl64.Vec3{}, false
	}
	if p.alive != nil && !p.alive(p.hovered) {
		return models.Handle{}, mgl64.Vec3{}, false
	}
	return p.hovered, p.closest, true
}

// Tick re-resolves the hovered target unless the hover is locked.
func (p *Pointer) Tick(index SpatialIndex) {
	if p.hoverLocked || index == nil {
		return
	}

	buf, release := candidatePool.Acquire()
	defer release()
	*buf = index.QuerySphere(p.center, p.radius, *buf)

	var next models.Handle
	var point mgl64.Vec3
	best := -1.0
	for _, c := range *buf {
		if best < 0 || c.Distance < best {
			best, next, point = c.Distance, c.Target, c.ClosestPoint
		}
	}
	p.setHovered(next, point)
}

// ClearHover drops the hovered target regardless of the lock.
func (p *Pointer) ClearHover() {
	p.setHovered(models.Handle{}, mgl64.Vec3{})
}

func (p *Pointer) setHovered(next models.Handle, point mgl64.Vec3) {
	prev, prevPoint := p.hovered, p.closest
	p.hovered, p.closest = next, point
	if prev == next {
		return
	}
	if !prev.IsZero() {
		p.publish(EventHoverEnd, prev, prevPoint)
	}
	if !next.IsZero() {
		p.publish(EventHoverBegin, next, point)
	}
}

func (p *Pointer) publish(kind string, target models.Handle, point mgl64.Vec3) {
	if p.events == nil {
		return
	}
	ev := HoverEvent{Kind: kind, Pointer: p, Target: target, Point: point, At: time.Now()}
	if err := p.events.Publish(ev); err != nil {
		p.logger.Warn("hover event handler failed", log.String("event", kind), log.Error(err))
	}
}
