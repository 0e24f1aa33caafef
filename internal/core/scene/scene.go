// Package scene is the host-facing facade of the interaction core. It owns the
// pointers and grab targets, takes the host's per-frame inputs and runs the
// per-tick systems that turn them into grab and hover transitions.
package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
	"github.com/zeusync/grabkit/internal/core/touch"
)

// FollowMode selects how a grabbed target follows its pointers.
type FollowMode uint8

const (
	// FollowNone leaves moving the target to the host.
	FollowNone FollowMode = iota
	// FollowTranslate keeps the grab point on the pointer without rotating.
	FollowTranslate
	// FollowFull also matches the pointer orientation for single-pointer grabs.
	FollowFull
)

func (m FollowMode) String() string {
	switch m {
	case FollowTranslate:
		return "translate"
	case FollowFull:
		return "full"
	default:
		return "none"
	}
}

// ParseFollowMode maps a config name to a FollowMode.
func ParseFollowMode(s string) (FollowMode, error) {
	switch s {
	case "", "none":
		return FollowNone, nil
	case "translate":
		return FollowTranslate, nil
	case "full":
		return FollowFull, nil
	default:
		return FollowNone, fmt.Errorf("%w: %q", ErrUnknownFollowMode, s)
	}
}

// Defaults are applied to pointers and targets created without explicit values.
type Defaults struct {
	TouchRadius          float64 `yaml:"touch_radius"`
	NearRadius           float64 `yaml:"near_radius"`
	TickOnlyWhileGrabbed bool    `yaml:"tick_only_while_grabbed"`
	CellSize             float64 `yaml:"cell_size"`
}

// DefaultDefaults mirrors the package defaults of pointer, touch and grab.
func DefaultDefaults() Defaults {
	return Defaults{
		TouchRadius:          touch.DefaultTouchRadius,
		NearRadius:           pointer.DefaultNearRadius,
		TickOnlyWhileGrabbed: true,
		CellSize:             touch.DefaultCellSize,
	}
}

type targetEntry struct {
	target  *grab.Target
	follow  FollowMode
	indexed physics.Pose
	dirty   bool
}

type nearEntry struct {
	pointer     *pointer.Near
	wasGrabbing bool
	grabbed     models.Handle
}

type farEntry struct {
	pointer    *pointer.Far
	wasPressed bool
	grabbed    models.Handle
}

// Scene owns every pointer and target of one interaction space. It is driven
// from a single goroutine: host setters and Tick must not run concurrently.
type Scene struct {
	defaults Defaults
	logger   log.Log
	events   bus.EventBus
	manager  *systems.Manager
	active   *systems.ActiveSet[models.Handle]
	index    *touch.HashGrid

	targets *models.Arena[*targetEntry]
	nears   *models.Arena[*nearEntry]
	fars    *models.Arena[*farEntry]
	touches *models.Arena[*touch.Pointer]

	now float64
}

// New creates an empty scene with the standard system pipeline registered.
func New(defaults Defaults, logger log.Log, events bus.EventBus) *Scene {
	if logger == nil {
		logger = log.NewNop()
	}
	if events == nil {
		events = bus.New()
	}
	s := &Scene{
		defaults: defaults,
		logger:   logger,
		events:   events,
		manager:  systems.NewManager(logger.Named("systems")),
		active:   systems.NewActiveSet[models.Handle](),
		index:    touch.NewHashGrid(defaults.CellSize),
		targets:  models.NewArena[*targetEntry](),
		nears:    models.NewArena[*nearEntry](),
		fars:     models.NewArena[*farEntry](),
		touches:  models.NewArena[*touch.Pointer](),
	}
	for _, sys := range s.pipeline() {
		if err := s.manager.RegisterSystem(sys); err != nil {
			panic(err)
		}
	}
	return s
}

// Events is the bus every grab and hover event is published on.
func (s *Scene) Events() bus.EventBus { return s.events }

// Systems exposes the tick pipeline, e.g. to register host systems.
func (s *Scene) Systems() *systems.Manager { return s.manager }

// Time is the scene clock in seconds.
func (s *Scene) Time() float64 { return s.now }

// Tick advances the clock and runs one pass of the system pipeline.
func (s *Scene) Tick(deltaTime float64) error {
	s.now += deltaTime
	return s.manager.Update(deltaTime)
}

// AddTarget registers a grab target built from opts and returns its handle.
func (s *Scene) AddTarget(name string, follow FollowMode, opts ...grab.Option) models.Handle {
	base := []grab.Option{
		grab.WithBus(s.events),
		grab.WithLogger(s.logger.Named("grab")),
		grab.WithClock(s.Time),
		grab.WithScheduler(s.active),
		grab.WithPointerLiveness(s.pointerAlive),
		grab.WithTickOnlyWhileGrabbed(s.defaults.TickOnlyWhileGrabbed),
	}
	t := grab.NewTarget(name, append(base, opts...)...)
	h := s.targets.Insert(&targetEntry{target: t, follow: follow, dirty: true})
	t.SetHandle(h)
	s.reindex(h)
	s.logger.Debug("target added", log.String("target", name), log.Stringer("handle", h))
	return h
}

// RemoveTarget ends every grab on the target, releasing the grabbing
// pointers' focus locks, and forgets it.
func (s *Scene) RemoveTarget(h models.Handle) error {
	e, ok := s.targets.Get(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, h)
	}
	e.target.EndAll()
	s.nears.Each(func(_ models.Handle, n *nearEntry) bool {
		if n.grabbed == h {
			n.grabbed = models.Handle{}
		}
		return true
	})
	s.fars.Each(func(_ models.Handle, f *farEntry) bool {
		if f.grabbed == h {
			f.grabbed = models.Handle{}
		}
		return true
	})
	s.index.Remove(h)
	s.active.SetActive(h, false)
	_ = s.events.DeleteTopic(e.target.Topic())
	s.targets.Remove(h)
	return nil
}

// Target resolves a target handle.
func (s *Scene) Target(h models.Handle) (*grab.Target, bool) {
	e, ok := s.targets.Get(h)
	if !ok {
		return nil, false
	}
	return e.target, true
}

// TargetAlive reports whether h refers to a live target.
func (s *Scene) TargetAlive(h models.Handle) bool { return s.targets.Valid(h) }

// SetTargetTransform moves a target on behalf of the host.
func (s *Scene) SetTargetTransform(h models.Handle, pose physics.Pose) error {
	e, ok := s.targets.Get(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, h)
	}
	e.target.SetTransform(pose)
	e.dirty = true
	return nil
}

// SetFollowMode changes how a target follows its grabs.
func (s *Scene) SetFollowMode(h models.Handle, mode FollowMode) error {
	e, ok := s.targets.Get(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, h)
	}
	e.follow = mode
	return nil
}

// ActiveTargets lists targets that currently want per-tick work.
func (s *Scene) ActiveTargets() []models.Handle { return s.active.Snapshot() }

// AddNearPointer registers a near pointer. A radius of zero uses the default.
func (s *Scene) AddNearPointer(name string, radius float64) models.Handle {
	if radius <= 0 {
		radius = s.defaults.NearRadius
	}
	p := pointer.NewNear(name, radius)
	h := s.nears.Insert(&nearEntry{pointer: p})
	p.SetHandle(h)
	return h
}

// RemoveNearPointer ends the pointer's grabs before forgetting it, so its
// focus lock never outlives the pointer.
func (s *Scene) RemoveNearPointer(h models.Handle) error {
	e, ok := s.nears.Get(h)
	if !ok {
		return fmt.Errorf("%w: near %s", ErrUnknownPointer, h)
	}
	s.releaseEverywhere(pointer.NearRef(e.pointer))
	s.nears.Remove(h)
	return nil
}

// NearPointer resolves a near pointer handle.
func (s *Scene) NearPointer(h models.Handle) (*pointer.Near, bool) {
	e, ok := s.nears.Get(h)
	if !ok {
		return nil, false
	}
	return e.pointer, true
}

// SetNearPose updates the grab pose of a near pointer.
func (s *Scene) SetNearPose(h models.Handle, pose physics.Pose) error {
	e, ok := s.nears.Get(h)
	if !ok {
		return fmt.Errorf("%w: near %s", ErrUnknownPointer, h)
	}
	e.pointer.SetGrabPointerTransform(pose)
	return nil
}

// SetNearGrabbing updates the grab input of a near pointer.
func (s *Scene) SetNearGrabbing(h models.Handle, grabbing bool) error {
	e, ok := s.nears.Get(h)
	if !ok {
		return fmt.Errorf("%w: near %s", ErrUnknownPointer, h)
	}
	e.pointer.SetGrabbing(grabbing)
	return nil
}

// AddFarPointer registers a far pointer.
func (s *Scene) AddFarPointer(name string) models.Handle {
	p := pointer.NewFar(name)
	h := s.fars.Insert(&farEntry{pointer: p})
	p.SetHandle(h)
	return h
}

// RemoveFarPointer ends the pointer's grabs before forgetting it.
func (s *Scene) RemoveFarPointer(h models.Handle) error {
	e, ok := s.fars.Get(h)
	if !ok {
		return fmt.Errorf("%w: far %s", ErrUnknownPointer, h)
	}
	s.releaseEverywhere(pointer.FarRef(e.pointer))
	s.fars.Remove(h)
	return nil
}

// FarPointer resolves a far pointer handle.
func (s *Scene) FarPointer(h models.Handle) (*pointer.Far, bool) {
	e, ok := s.fars.Get(h)
	if !ok {
		return nil, false
	}
	return e.pointer, true
}

// SetFarRay updates a far pointer's ray frame.
func (s *Scene) SetFarRay(h models.Handle, origin mgl64.Vec3, orientation mgl64.Quat) error {
	e, ok := s.fars.Get(h)
	if !ok {
		return fmt.Errorf("%w: far %s", ErrUnknownPointer, h)
	}
	e.pointer.SetRay(origin, orientation)
	return nil
}

// SetFarHit records the host's ray cast. primitive names the part that was
// hit; hits on parts the target excludes from far focus count as misses. An
// empty primitive name accepts the hit.
func (s *Scene) SetFarHit(h, target models.Handle, primitive string, point mgl64.Vec3) error {
	e, ok := s.fars.Get(h)
	if !ok {
		return fmt.Errorf("%w: far %s", ErrUnknownPointer, h)
	}
	if !target.IsZero() && !s.farFocusable(target, primitive) {
		target = models.Handle{}
	}
	e.pointer.SetHit(target, point)
	return nil
}

// SetFarPressed updates the select input of a far pointer.
func (s *Scene) SetFarPressed(h models.Handle, pressed bool) error {
	e, ok := s.fars.Get(h)
	if !ok {
		return fmt.Errorf("%w: far %s", ErrUnknownPointer, h)
	}
	e.pointer.SetPressed(pressed)
	return nil
}

// AddTouchPointer registers a touch pointer. A radius of zero uses the default.
func (s *Scene) AddTouchPointer(name string, radius float64) models.Handle {
	if radius <= 0 {
		radius = s.defaults.TouchRadius
	}
	p := touch.NewPointer(name, radius,
		touch.WithBus(s.events),
		touch.WithLogger(s.logger.Named("touch")),
		touch.WithLiveness(s.TargetAlive),
	)
	h := s.touches.Insert(p)
	p.SetHandle(h)
	return h
}

// RemoveTouchPointer forgets a touch pointer, ending its hover.
func (s *Scene) RemoveTouchPointer(h models.Handle) error {
	p, ok := s.touches.Get(h)
	if !ok {
		return fmt.Errorf("%w: touch %s", ErrUnknownPointer, h)
	}
	p.ClearHover()
	s.touches.Remove(h)
	return nil
}

// TouchPointer resolves a touch pointer handle.
func (s *Scene) TouchPointer(h models.Handle) (*touch.Pointer, bool) {
	return s.touches.Get(h)
}

// SetTouchCenter moves a touch pointer.
func (s *Scene) SetTouchCenter(h models.Handle, center mgl64.Vec3) error {
	p, ok := s.touches.Get(h)
	if !ok {
		return fmt.Errorf("%w: touch %s", ErrUnknownPointer, h)
	}
	p.SetCenter(center)
	return nil
}

// HoveredTarget is the hovered target of a touch pointer.
func (s *Scene) HoveredTarget(h models.Handle) (models.Handle, mgl64.Vec3, bool) {
	p, ok := s.touches.Get(h)
	if !ok {
		return models.Handle{}, mgl64.Vec3{}, false
	}
	return p.HoveredTarget()
}

// pointerAlive reports whether ref is still registered on this scene.
func (s *Scene) pointerAlive(ref pointer.Ref) bool {
	switch ref.Kind() {
	case pointer.KindNear:
		e, ok := s.nears.Get(ref.Handle())
		return ok && e.pointer == ref.Near
	case pointer.KindFar:
		e, ok := s.fars.Get(ref.Handle())
		return ok && e.pointer == ref.Far
	default:
		return false
	}
}

func (s *Scene) releaseEverywhere(ref pointer.Ref) {
	s.targets.Each(func(_ models.Handle, e *targetEntry) bool {
		if n := e.target.EndGrab(ref); n > 0 {
			s.logger.Debug("implicit grab end", log.Stringer("pointer", ref), log.String("target", e.target.Name()))
		}
		return true
	})
}

func (s *Scene) farFocusable(h models.Handle, primitive string) bool {
	e, ok := s.targets.Get(h)
	if !ok {
		return false
	}
	for _, p := range e.target.Primitives() {
		if primitive == "" || p.Name == primitive {
			if e.target.IsFarFocusable(p) {
				return true
			}
			if primitive != "" {
				return false
			}
		}
	}
	return primitive == "" && len(e.target.Primitives()) == 0
}

// reindex refreshes the spatial index entry of a target.
func (s *Scene) reindex(h models.Handle) {
	e, ok := s.targets.Get(h)
	if !ok {
		return
	}
	pose := e.target.Transform()
	prims := e.target.Primitives()
	parts := make([]touch.Part, 0, len(prims))
	for _, p := range prims {
		parts = append(parts, touch.Part{Shape: p.Shape, Pose: p.WorldPose(pose)})
	}
	s.index.Upsert(h, parts...)
	e.indexed = pose
	e.dirty = false
}
