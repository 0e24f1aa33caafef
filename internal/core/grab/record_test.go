package grab

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

func TestGeometryUtilities(t *testing.T) {
	turn := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	rec := GrabPointerRecord{
		Near:             pointer.NewNear("p", 0),
		PointerTransform: physics.NewPose(turn, mgl64.Vec3{0, 3, 0}),
		LocalGrabPoint:   physics.At(mgl64.Vec3{1, 0, 0}),
	}
	targetPose := physics.At(mgl64.Vec3{0, 0, 1})

	t.Run("Grab Side", func(t *testing.T) {
		require.True(t, physics.VecApproxEqual(GrabLocation(targetPose, rec), mgl64.Vec3{1, 0, 1}, tolerance))
		require.True(t, physics.QuatApproxEqual(GrabRotation(targetPose, rec), mgl64.QuatIdent(), tolerance))
		require.True(t, GrabTransform(targetPose, rec).ApproxEqual(physics.At(mgl64.Vec3{1, 0, 1}), tolerance))
	})

	t.Run("Pointer Side", func(t *testing.T) {
		require.Equal(t, mgl64.Vec3{0, 3, 0}, TargetLocation(rec))
		require.True(t, physics.QuatApproxEqual(TargetRotation(rec), turn, tolerance))
		require.Equal(t, rec.PointerTransform, TargetTransform(rec))
	})

	t.Run("Offsets", func(t *testing.T) {
		require.True(t, physics.VecApproxEqual(LocationOffset(targetPose, rec), mgl64.Vec3{-1, 3, -1}, tolerance))
		require.True(t, physics.QuatApproxEqual(RotationOffset(targetPose, rec), turn, tolerance))

		// Applying both offsets puts the grab point onto the pointer.
		rot := RotationOffset(targetPose, rec)
		rotated := physics.Pose{
			Location: targetPose.Location,
			Rotation: rot.Mul(targetPose.Rotation),
			Scale:    1,
		}
		fix := LocationOffset(rotated, rec)
		moved := rotated.Translate(fix)
		require.True(t, GrabTransform(moved, rec).ApproxEqual(rec.PointerTransform, 1e-9))
	})

	t.Run("Ref", func(t *testing.T) {
		require.Equal(t, pointer.KindNear, rec.Ref().Kind())
		require.Equal(t, pointer.KindNone, GrabPointerRecord{}.Ref().Kind())
	})
}
