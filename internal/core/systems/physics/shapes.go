package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// Overlaps checks if two AABBs overlap on all three axes.
func (a AABB) Overlaps(other AABB) bool {
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// ContainsPoint checks if a point is inside the AABB.
func (a AABB) ContainsPoint(p mgl64.Vec3) bool {
	return p.X() >= a.Min.X() && p.X() <= a.Max.X() &&
		p.Y() >= a.Min.Y() && p.Y() <= a.Max.Y() &&
		p.Z() >= a.Min.Z() && p.Z() <= a.Max.Z()
}

// Corners returns the eight corners of the box.
func (a AABB) Corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	for i := range out {
		c := a.Min
		if i&1 != 0 {
			c[0] = a.Max[0]
		}
		if i&2 != 0 {
			c[1] = a.Max[1]
		}
		if i&4 != 0 {
			c[2] = a.Max[2]
		}
		out[i] = c
	}
	return out
}

// SphereBounds returns the AABB enclosing a sphere.
func SphereBounds(center mgl64.Vec3, radius float64) AABB {
	r := mgl64.Vec3{radius, radius, radius}
	return AABB{Min: center.Sub(r), Max: center.Add(r)}
}

// Sphere is a sphere shape centered at Center in local space.
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

func (s Sphere) ClosestPoint(p mgl64.Vec3) mgl64.Vec3 {
	d := p.Sub(s.Center)
	l := d.Len()
	if l <= s.Radius {
		return p
	}
	return s.Center.Add(d.Mul(s.Radius / l))
}

func (s Sphere) Bounds() AABB { return SphereBounds(s.Center, s.Radius) }

// Box is an axis-aligned box in local space given by its center and half extents.
type Box struct {
	Center      mgl64.Vec3
	HalfExtents mgl64.Vec3
}

func (b Box) ClosestPoint(p mgl64.Vec3) mgl64.Vec3 {
	var out mgl64.Vec3
	for i := 0; i < 3; i++ {
		lo := b.Center[i] - math.Abs(b.HalfExtents[i])
		hi := b.Center[i] + math.Abs(b.HalfExtents[i])
		out[i] = math.Max(lo, math.Min(p[i], hi))
	}
	return out
}

func (b Box) Bounds() AABB {
	h := mgl64.Vec3{math.Abs(b.HalfExtents[0]), math.Abs(b.HalfExtents[1]), math.Abs(b.HalfExtents[2])}
	return AABB{Min: b.Center.Sub(h), Max: b.Center.Add(h)}
}

// WorldClosestPoint queries a local shape placed at pose with a world-space point.
func WorldClosestPoint(shape Shape, pose Pose, p mgl64.Vec3) mgl64.Vec3 {
	local := pose.InverseTransformPosition(p)
	return pose.TransformPosition(shape.ClosestPoint(local))
}

// WorldBounds returns the world AABB of a local shape placed at pose.
func WorldBounds(shape Shape, pose Pose) AABB {
	corners := shape.Bounds().Corners()
	first := pose.TransformPosition(corners[0])
	out := AABB{Min: first, Max: first}
	for _, c := range corners[1:] {
		w := pose.TransformPosition(c)
		for i := 0; i < 3; i++ {
			out.Min[i] = math.Min(out.Min[i], w[i])
			out.Max[i] = math.Max(out.Max[i], w[i])
		}
	}
	return out
}
