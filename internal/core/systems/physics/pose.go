package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a rigid transform with an optional uniform scale.
//
// Composition follows the "apply left first" convention: a.Mul(b) maps a point
// through a and then through b. A pose expressed in the local space of a parent
// is therefore brought to world space with local.Mul(parent).
type Pose struct {
	Location mgl64.Vec3
	Rotation mgl64.Quat
	Scale    float64
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Rotation: mgl64.QuatIdent(), Scale: 1}
}

// NewPose creates a unit-scale pose from a rotation and a location.
func NewPose(rotation mgl64.Quat, location mgl64.Vec3) Pose {
	return Pose{Location: location, Rotation: rotation, Scale: 1}.Normalize()
}

// At creates an unrotated unit-scale pose at location.
func At(location mgl64.Vec3) Pose {
	return Pose{Location: location, Rotation: mgl64.QuatIdent(), Scale: 1}
}

// Normalize fixes up zero values: a zero quaternion becomes identity and a
// zero scale becomes 1. Rotations are renormalized.
func (p Pose) Normalize() Pose {
	if p.Rotation.W == 0 && p.Rotation.V == (mgl64.Vec3{}) {
		p.Rotation = mgl64.QuatIdent()
	} else {
		p.Rotation = p.Rotation.Normalize()
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	return p
}

// Mul returns the pose that applies p first and then parent.
func (p Pose) Mul(parent Pose) Pose {
	p, parent = p.Normalize(), parent.Normalize()
	return Pose{
		Location: parent.TransformPosition(p.Location),
		Rotation: parent.Rotation.Mul(p.Rotation).Normalize(),
		Scale:    p.Scale * parent.Scale,
	}
}

// Inverse returns the pose q such that p.Mul(q) is the identity.
func (p Pose) Inverse() Pose {
	p = p.Normalize()
	invRot := p.Rotation.Inverse()
	invScale := 1 / p.Scale
	return Pose{
		Location: invRot.Rotate(p.Location.Mul(-1)).Mul(invScale),
		Rotation: invRot,
		Scale:    invScale,
	}
}

// TransformPosition maps a local point to the space p is expressed in.
func (p Pose) TransformPosition(v mgl64.Vec3) mgl64.Vec3 {
	p = p.Normalize()
	return p.Rotation.Rotate(v.Mul(p.Scale)).Add(p.Location)
}

// InverseTransformPosition maps a point into the local space of p.
func (p Pose) InverseTransformPosition(v mgl64.Vec3) mgl64.Vec3 {
	p = p.Normalize()
	return p.Rotation.Inverse().Rotate(v.Sub(p.Location)).Mul(1 / p.Scale)
}

// TransformRotation maps a local orientation to the space p is expressed in.
func (p Pose) TransformRotation(q mgl64.Quat) mgl64.Quat {
	return p.Normalize().Rotation.Mul(q).Normalize()
}

// TransformDirection rotates (but does not translate or scale) v.
func (p Pose) TransformDirection(v mgl64.Vec3) mgl64.Vec3 {
	return p.Normalize().Rotation.Rotate(v)
}

// Translate returns p moved by delta in world space.
func (p Pose) Translate(delta mgl64.Vec3) Pose {
	p.Location = p.Location.Add(delta)
	return p
}

// ApproxEqual reports whether two poses match within eps. Quaternions q and -q
// encode the same orientation and compare equal.
func (p Pose) ApproxEqual(other Pose, eps float64) bool {
	p, other = p.Normalize(), other.Normalize()
	if !VecApproxEqual(p.Location, other.Location, eps) {
		return false
	}
	if math.Abs(p.Scale-other.Scale) > eps {
		return false
	}
	return QuatApproxEqual(p.Rotation, other.Rotation, eps)
}

// VecApproxEqual reports whether a and b are within eps of each other. The
// tolerance is absolute so points at the origin compare like any other.
func VecApproxEqual(a, b mgl64.Vec3, eps float64) bool {
	return a.Sub(b).Len() <= eps
}

// QuatApproxEqual compares orientations, treating q and -q as equal.
func QuatApproxEqual(a, b mgl64.Quat, eps float64) bool {
	return math.Abs(math.Abs(a.Normalize().Dot(b.Normalize()))-1) <= eps
}

// Distance3 computes the Euclidean distance between two points.
func Distance3(a, b mgl64.Vec3) float64 { return b.Sub(a).Len() }
