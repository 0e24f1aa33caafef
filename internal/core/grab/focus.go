package grab

import (
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// Primitive is one collidable part of a target, placed relative to the
// target's transform.
type Primitive struct {
	Name   string
	Shape  physics.Shape
	Offset physics.Pose
}

// WorldPose is the primitive's placement in world space.
func (p Primitive) WorldPose(target physics.Pose) physics.Pose {
	return p.Offset.Mul(target)
}

// Focusable lets a target exclude some of its primitives from near grabbing
// or far focus, e.g. decorative geometry.
type Focusable interface {
	IsGrabFocusable(Primitive) bool
	IsFarFocusable(Primitive) bool
}

// AllFocusable treats every primitive as a valid grab and far target.
type AllFocusable struct{}

func (AllFocusable) IsGrabFocusable(Primitive) bool { return true }
func (AllFocusable) IsFarFocusable(Primitive) bool  { return true }

// FocusableFuncs adapts plain functions to Focusable. Nil functions accept everything.
type FocusableFuncs struct {
	Grab func(Primitive) bool
	Far  func(Primitive) bool
}

func (f FocusableFuncs) IsGrabFocusable(p Primitive) bool {
	return f.Grab == nil || f.Grab(p)
}

func (f FocusableFuncs) IsFarFocusable(p Primitive) bool {
	return f.Far == nil || f.Far(p)
}

// ExcludeNamed rejects the listed primitives for both grab and far focus.
func ExcludeNamed(names ...string) Focusable {
	excluded := make(map[string]struct{}, len(names))
	for _, n := range names {
		excluded[n] = struct{}{}
	}
	accept := func(p Primitive) bool {
		_, skip := excluded[p.Name]
		return !skip
	}
	return FocusableFuncs{Grab: accept, Far: accept}
}
