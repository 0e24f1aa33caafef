package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestPose(t *testing.T) {
	t.Run("Zero Value Normalizes To Identity", func(t *testing.T) {
		require.True(t, Pose{}.ApproxEqual(Identity(), eps))
	})

	t.Run("Inverse Cancels", func(t *testing.T) {
		p := Pose{
			Location: mgl64.Vec3{1, -2, 3},
			Rotation: mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{0, 1, 0}),
			Scale:    2,
		}
		require.True(t, p.Mul(p.Inverse()).ApproxEqual(Identity(), eps))
		require.True(t, p.Inverse().Mul(p).ApproxEqual(Identity(), eps))
	})

	t.Run("Mul Applies Left First", func(t *testing.T) {
		local := At(mgl64.Vec3{1, 0, 0})
		parent := NewPose(mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}), mgl64.Vec3{0, 0, 5})

		world := local.Mul(parent)
		require.True(t, VecApproxEqual(world.Location, mgl64.Vec3{0, 1, 5}, eps))
		require.True(t, QuatApproxEqual(world.Rotation, parent.Rotation, eps))
	})

	t.Run("Transform Position Round Trip", func(t *testing.T) {
		p := Pose{
			Location: mgl64.Vec3{4, 5, 6},
			Rotation: mgl64.QuatRotate(1.1, mgl64.Vec3{1, 1, 0}.Normalize()),
			Scale:    0.5,
		}
		v := mgl64.Vec3{-3, 2, 7}
		require.True(t, VecApproxEqual(p.InverseTransformPosition(p.TransformPosition(v)), v, eps))
	})

	t.Run("Quaternion Sign Is Ignored", func(t *testing.T) {
		q := mgl64.QuatRotate(0.7, mgl64.Vec3{0, 1, 0})
		neg := mgl64.Quat{W: -q.W, V: q.V.Mul(-1)}
		require.True(t, QuatApproxEqual(q, neg, eps))
	})

	t.Run("Tolerance Is Absolute Near Origin", func(t *testing.T) {
		require.True(t, At(mgl64.Vec3{1e-16, 0, 0}).ApproxEqual(Identity(), eps))
		require.True(t, At(mgl64.Vec3{1 + 1e-16, 0, 0}).ApproxEqual(At(mgl64.Vec3{1, 0, 0}), eps))
		require.False(t, At(mgl64.Vec3{1e-6, 0, 0}).ApproxEqual(Identity(), eps))
		require.True(t, VecApproxEqual(mgl64.Vec3{}, mgl64.Vec3{0, -1e-15, 1e-15}, eps))
	})

	t.Run("Translate", func(t *testing.T) {
		p := Identity().Translate(mgl64.Vec3{1, 2, 3})
		require.Equal(t, mgl64.Vec3{1, 2, 3}, p.Location)
	})
}

func TestShapes(t *testing.T) {
	t.Run("Sphere Closest Point", func(t *testing.T) {
		s := Sphere{Radius: 1}
		require.True(t, VecApproxEqual(s.ClosestPoint(mgl64.Vec3{3, 0, 0}), mgl64.Vec3{1, 0, 0}, eps))
		inside := mgl64.Vec3{0.2, 0.1, 0}
		require.Equal(t, inside, s.ClosestPoint(inside))
	})

	t.Run("Box Closest Point", func(t *testing.T) {
		b := Box{HalfExtents: mgl64.Vec3{1, 1, 1}}
		require.Equal(t, mgl64.Vec3{1, 0.5, -1}, b.ClosestPoint(mgl64.Vec3{4, 0.5, -9}))
	})

	t.Run("World Closest Point Follows Pose", func(t *testing.T) {
		b := Box{HalfExtents: mgl64.Vec3{1, 1, 1}}
		pose := At(mgl64.Vec3{10, 0, 0})
		got := WorldClosestPoint(b, pose, mgl64.Vec3{0, 0, 0})
		require.True(t, VecApproxEqual(got, mgl64.Vec3{9, 0, 0}, eps))
	})

	t.Run("World Bounds", func(t *testing.T) {
		s := Sphere{Radius: 1}
		bounds := WorldBounds(s, Pose{Location: mgl64.Vec3{5, 0, 0}, Rotation: mgl64.QuatIdent(), Scale: 2})
		require.True(t, VecApproxEqual(bounds.Min, mgl64.Vec3{3, -2, -2}, eps))
		require.True(t, VecApproxEqual(bounds.Max, mgl64.Vec3{7, 2, 2}, eps))
		require.True(t, bounds.ContainsPoint(mgl64.Vec3{5, 0, 0}))
		require.False(t, bounds.Overlaps(SphereBounds(mgl64.Vec3{20, 0, 0}, 1)))
	})
}
