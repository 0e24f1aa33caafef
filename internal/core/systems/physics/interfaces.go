package physics

import "github.com/go-gl/mathgl/mgl64"

// Shape is a collision surface expressed in the local space of its owner.
// Shapes only answer geometric queries; overlap detection and collision
// response stay with the host engine.
type Shape interface {
	// ClosestPoint returns the point on or inside the shape nearest to p.
	// Points inside the shape are returned unchanged.
	ClosestPoint(p mgl64.Vec3) mgl64.Vec3
	// Bounds returns the local axis-aligned bounds of the shape.
	Bounds() AABB
}

// Locatable is anything with a world pose.
type Locatable interface {
	Transform() Pose
}
