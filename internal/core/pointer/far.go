package pointer

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// Far is a far-field ray pointer. The host supplies the ray origin and
// orientation each tick together with the result of its own ray cast.
type Far struct {
	focus
	name        string
	handle      models.Handle
	origin      mgl64.Vec3
	orientation mgl64.Quat
	hitPoint    mgl64.Vec3
	hitTarget   models.Handle
	pressed     bool
}

// NewFar creates a far pointer at the origin looking down its local X axis.
func NewFar(name string) *Far {
	return &Far{name: name, orientation: mgl64.QuatIdent()}
}

func (p *Far) Name() string { return p.name }

func (p *Far) Handle() models.Handle     { return p.handle }
func (p *Far) SetHandle(h models.Handle) { p.handle = h }

// PointerOrigin is the world-space ray origin.
func (p *Far) PointerOrigin() mgl64.Vec3 { return p.origin }

// PointerOrientation is the world-space ray orientation.
func (p *Far) PointerOrientation() mgl64.Quat { return p.orientation }

// PointerTransform is the ray frame built from orientation and origin.
func (p *Far) PointerTransform() physics.Pose {
	return physics.NewPose(p.orientation, p.origin)
}

// SetRay updates the ray frame.
func (p *Far) SetRay(origin mgl64.Vec3, orientation mgl64.Quat) {
	p.origin = origin
	p.orientation = physics.NewPose(orientation, origin).Rotation
}

// HitPoint is the last ray-cast hit point in world space.
func (p *Far) HitPoint() mgl64.Vec3 { return p.hitPoint }

// HitTarget is the target the last ray cast hit, zero when none.
func (p *Far) HitTarget() models.Handle { return p.hitTarget }

// SetHit records the host's ray-cast result. The hit point always updates; the
// focused target only changes while the focus is unlocked.
func (p *Far) SetHit(target models.Handle, point mgl64.Vec3) {
	p.hitPoint = point
	p.hitTarget = target
	p.SetFocusedTarget(target)
}

// IsPressed reports the host's select input state.
func (p *Far) IsPressed() bool { return p.pressed }

func (p *Far) SetPressed(pressed bool) { p.pressed = pressed }
