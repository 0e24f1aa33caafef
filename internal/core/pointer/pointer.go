// Package pointer holds the interaction input sources: near-field hand trackers
// and far-field rays. Pointers carry the pose data grab targets read and the
// focus lock grab targets toggle.
package pointer

import (
	"fmt"

	"github.com/zeusync/grabkit/internal/core/models"
)

// Kind distinguishes near and far pointers.
type Kind uint8

const (
	KindNone Kind = iota
	KindNear
	KindFar
)

func (k Kind) String() string {
	switch k {
	case KindNear:
		return "near"
	case KindFar:
		return "far"
	default:
		return "none"
	}
}

// FocusLocker is implemented by every pointer kind.
type FocusLocker interface {
	FocusLocked() bool
	SetFocusLocked(bool)
}

// focus is the target-selection state shared by near and far pointers.
type focus struct {
	locked bool
	target models.Handle
}

// FocusLocked reports whether target selection is frozen.
func (f *focus) FocusLocked() bool { return f.locked }

// SetFocusLocked freezes or releases target selection.
func (f *focus) SetFocusLocked(locked bool) { f.locked = locked }

// FocusedTarget returns the currently focused target, zero when none.
func (f *focus) FocusedTarget() models.Handle { return f.target }

// SetFocusedTarget changes the focused target. It is ignored while the focus
// is locked and reports whether the change was applied.
func (f *focus) SetFocusedTarget(h models.Handle) bool {
	if f.locked {
		return false
	}
	f.target = h
	return true
}

// Ref identifies exactly one near or far pointer. It is a non-owning
// reference and is comparable, so it can key lookups.
type Ref struct {
	Near *Near
	Far  *Far
}

// NearRef wraps a near pointer.
func NearRef(p *Near) Ref { return Ref{Near: p} }

// FarRef wraps a far pointer.
func FarRef(p *Far) Ref { return Ref{Far: p} }

// Kind returns which pointer the reference holds.
func (r Ref) Kind() Kind {
	switch {
	case r.Near != nil && r.Far == nil:
		return KindNear
	case r.Far != nil && r.Near == nil:
		return KindFar
	default:
		return KindNone
	}
}

// Valid reports whether exactly one pointer is set.
func (r Ref) Valid() bool { return r.Kind() != KindNone }

// Locker returns the focus lock of the referenced pointer, nil for invalid refs.
func (r Ref) Locker() FocusLocker {
	switch r.Kind() {
	case KindNear:
		return r.Near
	case KindFar:
		return r.Far
	default:
		return nil
	}
}

// Name returns the referenced pointer's name.
func (r Ref) Name() string {
	switch r.Kind() {
	case KindNear:
		return r.Near.Name()
	case KindFar:
		return r.Far.Name()
	default:
		return ""
	}
}

// Handle returns the referenced pointer's arena handle.
func (r Ref) Handle() models.Handle {
	switch r.Kind() {
	case KindNear:
		return r.Near.Handle()
	case KindFar:
		return r.Far.Handle()
	default:
		return models.Handle{}
	}
}

func (r Ref) String() string {
	if !r.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%s:%s", r.Kind(), r.Name())
}
