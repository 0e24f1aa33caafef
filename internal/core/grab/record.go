package grab

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// GrabPointerRecord is one active interaction between a pointer and a target.
// Exactly one of Near and Far is set. The target that created the record owns
// it; the pointer fields are non-owning back references.
type GrabPointerRecord struct {
	Near *pointer.Near
	Far  *pointer.Far

	// PointerTransform is the current world pose of the pointer's grab point.
	PointerTransform physics.Pose
	// LocalGrabPoint is the grab point in the target's local space. It is
	// captured at grab start and only changes on an explicit reset.
	LocalGrabPoint physics.Pose
	// FarRayHitPointInPointer is the ray hit point in the pointer's ray frame,
	// fixed at grab start. Far grabs only.
	FarRayHitPointInPointer physics.Pose
	// StartTime is the world clock in seconds when the grab began.
	StartTime float64
}

// Ref returns the identity of the grabbing pointer.
func (r GrabPointerRecord) Ref() pointer.Ref {
	return pointer.Ref{Near: r.Near, Far: r.Far}
}

// GrabLocation is the world position of the grabbed point given the target transform.
func GrabLocation(transform physics.Pose, r GrabPointerRecord) mgl64.Vec3 {
	return transform.TransformPosition(r.LocalGrabPoint.Location)
}

// GrabRotation is the world orientation of the grabbed point given the target transform.
func GrabRotation(transform physics.Pose, r GrabPointerRecord) mgl64.Quat {
	return transform.TransformRotation(r.LocalGrabPoint.Rotation)
}

// GrabTransform is the local grab point expressed in world space.
func GrabTransform(transform physics.Pose, r GrabPointerRecord) physics.Pose {
	return r.LocalGrabPoint.Mul(transform)
}

// TargetLocation is where the pointer wants the grabbed point to be.
func TargetLocation(r GrabPointerRecord) mgl64.Vec3 {
	return r.PointerTransform.Location
}

// TargetRotation is the orientation the pointer wants the grabbed point to have.
func TargetRotation(r GrabPointerRecord) mgl64.Quat {
	return r.PointerTransform.Normalize().Rotation
}

// TargetTransform is the full pose the pointer wants the grabbed point to have.
func TargetTransform(r GrabPointerRecord) physics.Pose {
	return r.PointerTransform
}

// LocationOffset is the world-space translation that moves the grabbed point onto the pointer.
func LocationOffset(transform physics.Pose, r GrabPointerRecord) mgl64.Vec3 {
	return TargetLocation(r).Sub(GrabLocation(transform, r))
}

// RotationOffset is the world-space rotation that turns the grabbed point onto the pointer.
func RotationOffset(transform physics.Pose, r GrabPointerRecord) mgl64.Quat {
	return TargetRotation(r).Mul(GrabRotation(transform, r).Inverse()).Normalize()
}
