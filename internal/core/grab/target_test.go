package grab

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

const tolerance = 1e-9

type recordingScheduler struct {
	active map[models.Handle]bool
	calls  int
}

func (s *recordingScheduler) SetActive(h models.Handle, active bool) {
	if s.active == nil {
		s.active = make(map[models.Handle]bool)
	}
	s.active[h] = active
	s.calls++
}

func nearAt(name string, pose physics.Pose) *pointer.Near {
	p := pointer.NewNear(name, 0)
	p.SetGrabPointerTransform(pose)
	return p
}

func collect(t *testing.T, target *Target) *[]Event {
	t.Helper()
	var events []Event
	for _, kind := range EventTypes {
		_, err := target.Subscribe(kind, func(e Event) { events = append(events, e) })
		require.NoError(t, err)
	}
	return &events
}

func TestTargetScenario(t *testing.T) {
	target := NewTarget("cube")
	a := nearAt("a", physics.Identity())
	b := nearAt("b", physics.At(mgl64.Vec3{2, 0, 0}))

	require.NoError(t, target.OnBeginGrab(a))
	rec, idx, ok := target.FindGrabPointer(pointer.NearRef(a))
	require.True(t, ok)
	require.Equal(t, 0, idx)
	require.True(t, rec.LocalGrabPoint.ApproxEqual(physics.Identity(), tolerance))
	require.True(t, physics.VecApproxEqual(GrabLocation(target.Transform(), rec), mgl64.Vec3{}, tolerance))

	_, ok = target.SecondaryGrabPointer()
	require.False(t, ok)

	require.NoError(t, target.OnBeginGrab(b))
	second, ok := target.SecondaryGrabPointer()
	require.True(t, ok)
	require.Equal(t, b, second.Near)

	primary, ok := target.PrimaryGrabPointer()
	require.True(t, ok)
	require.Equal(t, a, primary.Near)

	centroid := target.GrabPointCentroid(target.Transform())
	require.True(t, physics.VecApproxEqual(centroid, mgl64.Vec3{1, 0, 0}, tolerance))
	require.True(t, physics.VecApproxEqual(target.TargetCentroid(), mgl64.Vec3{1, 0, 0}, tolerance))
}

func TestEmptyTarget(t *testing.T) {
	target := NewTarget("empty", WithTransform(physics.At(mgl64.Vec3{3, 4, 5})))

	require.Equal(t, mgl64.Vec3{}, target.GrabPointCentroid(target.Transform()))
	require.Equal(t, mgl64.Vec3{}, target.TargetCentroid())

	_, ok := target.PrimaryGrabPointer()
	require.False(t, ok)
	_, idx, ok := target.FindGrabPointer(pointer.NearRef(pointer.NewNear("x", 0)))
	require.False(t, ok)
	require.Equal(t, -1, idx)
	require.Empty(t, target.GrabPointers())
}

func TestBeginGrabCapturesLocalGrabPoint(t *testing.T) {
	targetPose := physics.Pose{
		Location: mgl64.Vec3{1, 2, 3},
		Rotation: mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1}),
		Scale:    1.5,
	}
	pointerPose := physics.NewPose(mgl64.QuatRotate(0.3, mgl64.Vec3{1, 0, 0}), mgl64.Vec3{2, 2, 2})
	target := NewTarget("t", WithTransform(targetPose), WithClock(func() float64 { return 12.5 }))
	p := nearAt("p", pointerPose)

	require.NoError(t, target.OnBeginGrab(p))
	rec, _, ok := target.FindGrabPointer(pointer.NearRef(p))
	require.True(t, ok)
	require.Equal(t, 12.5, rec.StartTime)
	require.True(t, rec.LocalGrabPoint.ApproxEqual(pointerPose.Mul(targetPose.Inverse()), tolerance))

	// The grab point maps back onto the pointer while the target has not moved.
	require.True(t, GrabTransform(targetPose, rec).ApproxEqual(pointerPose, 1e-9))
	require.True(t, physics.VecApproxEqual(LocationOffset(targetPose, rec), mgl64.Vec3{}, 1e-9))
	require.True(t, physics.QuatApproxEqual(RotationOffset(targetPose, rec), mgl64.QuatIdent(), 1e-9))
}

func TestLocalGrabPointDoesNotDrift(t *testing.T) {
	target := NewTarget("t")
	p := nearAt("p", physics.At(mgl64.Vec3{1, 0, 0}))
	require.NoError(t, target.OnBeginGrab(p))
	before, _, _ := target.FindGrabPointer(pointer.NearRef(p))

	p.SetGrabPointerTransform(physics.At(mgl64.Vec3{4, 0, 0}))
	target.SetTransform(physics.At(mgl64.Vec3{0, 1, 0}))
	require.True(t, target.OnUpdateGrab(p))

	after, _, _ := target.FindGrabPointer(pointer.NearRef(p))
	require.Equal(t, before.LocalGrabPoint, after.LocalGrabPoint)
	require.Equal(t, mgl64.Vec3{4, 0, 0}, after.PointerTransform.Location)
	require.True(t, physics.VecApproxEqual(LocationOffset(target.Transform(), after), mgl64.Vec3{3, -1, 0}, tolerance))
}

func TestResetLocalGrabPoint(t *testing.T) {
	target := NewTarget("t", WithTransform(physics.NewPose(mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0}), mgl64.Vec3{1, 1, 1})))
	p := nearAt("p", physics.At(mgl64.Vec3{2, 0, 0}))
	require.NoError(t, target.OnBeginGrab(p))

	p.SetGrabPointerTransform(physics.NewPose(mgl64.QuatRotate(0.5, mgl64.Vec3{1, 0, 0}), mgl64.Vec3{-3, 2, 7}))
	target.OnUpdateGrab(p)

	t.Run("On A Copy", func(t *testing.T) {
		rec, _, _ := target.FindGrabPointer(pointer.NearRef(p))
		target.ResetLocalGrabPoint(&rec)
		require.True(t, GrabTransform(target.Transform(), rec).ApproxEqual(rec.PointerTransform, 1e-9))
	})

	t.Run("Stored Record", func(t *testing.T) {
		require.True(t, target.ResetLocalGrabPointFor(pointer.NearRef(p)))
		rec, _, _ := target.FindGrabPointer(pointer.NearRef(p))
		require.True(t, GrabTransform(target.Transform(), rec).ApproxEqual(rec.PointerTransform, 1e-9))
		require.False(t, target.ResetLocalGrabPointFor(pointer.NearRef(pointer.NewNear("other", 0))))
	})
}

func TestFarGrab(t *testing.T) {
	target := NewTarget("panel", WithTransform(physics.At(mgl64.Vec3{0, 0, 5})))
	ray := pointer.NewFar("ray")
	ray.SetRay(mgl64.Vec3{0, 1, 0}, mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{0, 1, 0}))
	ray.SetHit(models.Handle{Index: 0, Generation: 1}, mgl64.Vec3{0, 1, 4.5})

	require.NoError(t, target.OnFarPressed(ray))
	require.True(t, ray.FocusLocked())

	rec, _, ok := target.FindGrabPointer(pointer.FarRef(ray))
	require.True(t, ok)
	require.Nil(t, rec.Near)
	require.True(t, physics.VecApproxEqual(rec.PointerTransform.Location, mgl64.Vec3{0, 1, 4.5}, tolerance))
	require.True(t, physics.VecApproxEqual(rec.LocalGrabPoint.Location, mgl64.Vec3{0, 1, -0.5}, tolerance))

	t.Run("Translation Moves Hit Point By Delta", func(t *testing.T) {
		delta := mgl64.Vec3{0.5, -0.25, 2}
		before := rec.PointerTransform
		ray.SetRay(ray.PointerOrigin().Add(delta), ray.PointerOrientation())
		// A stale hit from the host must not matter while dragging.
		ray.SetHit(models.Handle{}, mgl64.Vec3{100, 100, 100})
		require.True(t, target.OnFarDragged(ray))

		moved, _, _ := target.FindGrabPointer(pointer.FarRef(ray))
		require.True(t, moved.PointerTransform.ApproxEqual(before.Translate(delta), 1e-9))
		require.Equal(t, rec.LocalGrabPoint, moved.LocalGrabPoint)
	})

	t.Run("Rotation Swings Pinned Point", func(t *testing.T) {
		ray.SetRay(mgl64.Vec3{}, mgl64.QuatIdent())
		require.True(t, target.OnFarDragged(ray))
		first, _, _ := target.FindGrabPointer(pointer.FarRef(ray))
		dist := first.PointerTransform.Location.Len()

		ray.SetRay(mgl64.Vec3{}, mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}))
		require.True(t, target.OnFarDragged(ray))
		second, _, _ := target.FindGrabPointer(pointer.FarRef(ray))
		require.InDelta(t, dist, second.PointerTransform.Location.Len(), 1e-9)
	})

	require.Equal(t, 1, target.OnFarReleased(ray))
	require.False(t, ray.FocusLocked())
	require.Equal(t, 0, target.OnFarReleased(ray))
}

func TestDuplicateBeginRejected(t *testing.T) {
	target := NewTarget("t")
	events := collect(t, target)
	p := nearAt("p", physics.Identity())

	require.NoError(t, target.OnBeginGrab(p))
	err := target.OnBeginGrab(p)
	require.ErrorIs(t, err, ErrDuplicateGrab)
	require.Equal(t, 1, target.Len())
	require.Len(t, *events, 1)
	require.True(t, p.FocusLocked())

	require.ErrorIs(t, target.OnBeginGrab(nil), ErrNilPointer)
	require.ErrorIs(t, target.OnFarPressed(nil), ErrNilPointer)
}

func TestPointerLockedByOtherTarget(t *testing.T) {
	first := NewTarget("first")
	second := NewTarget("second")
	p := nearAt("p", physics.Identity())

	require.NoError(t, first.OnBeginGrab(p))
	require.ErrorIs(t, second.OnBeginGrab(p), ErrFocusLocked)
	require.Zero(t, second.Len())

	// Ending on the target that never held the pointer keeps the lock.
	require.Zero(t, second.OnEndGrab(p))
	require.True(t, p.FocusLocked())

	require.Equal(t, 1, first.OnEndGrab(p))
	require.False(t, p.FocusLocked())
	require.NoError(t, second.OnBeginGrab(p))
}

func TestNearAndFarAreDistinctIdentities(t *testing.T) {
	target := NewTarget("t")
	near := nearAt("hand", physics.Identity())
	far := pointer.NewFar("hand")

	require.NoError(t, target.OnBeginGrab(near))
	require.NoError(t, target.OnFarPressed(far))
	require.Equal(t, 2, target.Len())

	require.Equal(t, 1, target.OnEndGrab(near))
	_, _, ok := target.FindGrabPointer(pointer.FarRef(far))
	require.True(t, ok)
}

func TestEndGrabIsIdempotent(t *testing.T) {
	target := NewTarget("t")
	events := collect(t, target)
	p := nearAt("p", physics.Identity())

	require.NoError(t, target.OnBeginGrab(p))
	require.Equal(t, 1, target.OnEndGrab(p))
	require.False(t, p.FocusLocked())
	require.Equal(t, 0, target.OnEndGrab(p))
	require.False(t, p.FocusLocked())
	require.Zero(t, target.OnEndGrab(nil))

	require.Len(t, *events, 2)
	require.Equal(t, EventBegin, (*events)[0].Kind)
	require.Equal(t, EventEnd, (*events)[1].Kind)
	require.Equal(t, p, (*events)[1].Record.Near)
}

func TestUpdateUnknownPointer(t *testing.T) {
	target := NewTarget("t")
	events := collect(t, target)
	require.False(t, target.OnUpdateGrab(pointer.NewNear("ghost", 0)))
	require.False(t, target.OnFarDragged(pointer.NewFar("ghost")))
	require.False(t, target.OnUpdateGrab(nil))
	require.Empty(t, *events)
}

func TestEventsCarrySnapshots(t *testing.T) {
	shared := bus.New()
	target := NewTarget("t", WithBus(shared))
	var global []string
	_, err := shared.Subscribe(EventUpdate, func(e bus.Event) error {
		global = append(global, e.Source())
		return nil
	})
	require.NoError(t, err)

	events := collect(t, target)
	p := nearAt("p", physics.Identity())
	require.NoError(t, target.OnBeginGrab(p))
	p.SetGrabPointerTransform(physics.At(mgl64.Vec3{1, 0, 0}))
	target.OnUpdateGrab(p)
	p.SetGrabPointerTransform(physics.At(mgl64.Vec3{2, 0, 0}))
	target.OnUpdateGrab(p)

	require.Len(t, *events, 3)
	require.Equal(t, mgl64.Vec3{1, 0, 0}, (*events)[1].Record.PointerTransform.Location)
	require.Equal(t, mgl64.Vec3{2, 0, 0}, (*events)[2].Record.PointerTransform.Location)
	require.Equal(t, target, (*events)[2].Target)
	require.Equal(t, []string{"t", "t"}, global)
}

func TestHandlerErrorsDoNotBreakGrab(t *testing.T) {
	shared := bus.New()
	target := NewTarget("t", WithBus(shared))
	_, err := shared.SubscribeTopic(target.Topic(), EventBegin, func(bus.Event) error {
		return errors.New("subscriber failed")
	})
	require.NoError(t, err)

	require.NoError(t, target.OnBeginGrab(nearAt("p", physics.Identity())))
	require.Equal(t, 1, target.Len())
}

func TestTickEnablement(t *testing.T) {
	sched := &recordingScheduler{}
	target := NewTarget("t", WithScheduler(sched))
	h := models.Handle{Index: 3, Generation: 1}

	// No handle yet: nothing is reported.
	require.Zero(t, sched.calls)
	require.False(t, target.IsTickEnabled())

	target.SetHandle(h)
	require.False(t, sched.active[h])

	p := nearAt("p", physics.Identity())
	require.NoError(t, target.OnBeginGrab(p))
	require.True(t, target.IsTickEnabled())
	require.True(t, sched.active[h])

	target.OnEndGrab(p)
	require.False(t, target.IsTickEnabled())
	require.False(t, sched.active[h])

	target.SetTickOnlyWhileGrabbed(false)
	require.True(t, target.IsTickEnabled())
	require.True(t, sched.active[h])

	target.SetTickOnlyWhileGrabbed(true)
	require.False(t, sched.active[h])

	always := NewTarget("always", WithTickOnlyWhileGrabbed(false))
	require.True(t, always.IsTickEnabled())
	require.False(t, always.TickOnlyWhileGrabbed())
}

func TestFocusable(t *testing.T) {
	knob := Primitive{Name: "knob", Shape: physics.Sphere{Radius: 0.1}}
	trim := Primitive{Name: "trim", Shape: physics.Sphere{Radius: 0.1}}

	target := NewTarget("t", WithPrimitives(knob, trim))
	require.True(t, target.IsGrabFocusable(trim))
	require.True(t, target.IsFarFocusable(trim))
	require.Len(t, target.Primitives(), 2)

	target.SetFocusable(ExcludeNamed("trim"))
	require.True(t, target.IsGrabFocusable(knob))
	require.False(t, target.IsGrabFocusable(trim))
	require.False(t, target.IsFarFocusable(trim))

	target.SetFocusable(FocusableFuncs{Far: func(p Primitive) bool { return p.Name == "knob" }})
	require.True(t, target.IsGrabFocusable(trim))
	require.False(t, target.IsFarFocusable(trim))

	target.SetFocusable(nil)
	require.True(t, target.IsFarFocusable(trim))
}

func TestEndAll(t *testing.T) {
	target := NewTarget("t")
	near := nearAt("n", physics.Identity())
	far := pointer.NewFar("f")
	require.NoError(t, target.OnBeginGrab(near))
	require.NoError(t, target.OnFarPressed(far))

	require.Equal(t, 2, target.EndAll())
	require.False(t, near.FocusLocked())
	require.False(t, far.FocusLocked())
	require.False(t, target.IsGrabbed())
	require.Zero(t, target.EndGrab(pointer.Ref{}))
}

// Random begin/end sequences keep exactly one record per grabbing pointer.
func TestRecordCountProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	target := NewTarget("t")
	pointers := make([]*pointer.Near, 6)
	for i := range pointers {
		pointers[i] = nearAt(string(rune('a'+i)), physics.At(mgl64.Vec3{float64(i), 0, 0}))
	}
	grabbing := map[*pointer.Near]bool{}

	for step := 0; step < 500; step++ {
		p := pointers[rng.Intn(len(pointers))]
		switch rng.Intn(3) {
		case 0:
			err := target.OnBeginGrab(p)
			if grabbing[p] {
				require.ErrorIs(t, err, ErrDuplicateGrab)
			} else {
				require.NoError(t, err)
				grabbing[p] = true
			}
		case 1:
			require.Equal(t, grabbing[p], target.OnUpdateGrab(p))
		case 2:
			want := 0
			if grabbing[p] {
				want = 1
			}
			require.Equal(t, want, target.OnEndGrab(p))
			delete(grabbing, p)
		}

		require.Equal(t, len(grabbing), target.Len())
		for _, q := range pointers {
			require.Equal(t, grabbing[q], q.FocusLocked())
		}
	}
}

func TestTargetDropsDestroyedPointers(t *testing.T) {
	alive := map[pointer.Ref]bool{}
	target := NewTarget("cube", WithPointerLiveness(func(ref pointer.Ref) bool { return alive[ref] }))
	events := collect(t, target)

	a := nearAt("a", physics.Identity())
	ray := pointer.NewFar("ray")
	alive[pointer.NearRef(a)] = true
	alive[pointer.FarRef(ray)] = true

	require.NoError(t, target.OnBeginGrab(a))
	require.NoError(t, target.OnFarPressed(ray))
	require.Equal(t, 2, target.Len())

	delete(alive, pointer.NearRef(a))
	primary, ok := target.PrimaryGrabPointer()
	require.True(t, ok)
	require.Equal(t, pointer.FarRef(ray), primary.Ref())
	require.False(t, a.FocusLocked())
	require.True(t, ray.FocusLocked())

	last := (*events)[len(*events)-1]
	require.Equal(t, EventEnd, last.Kind)
	require.Equal(t, pointer.NearRef(a), last.Record.Ref())

	require.Zero(t, target.Prune())
	delete(alive, pointer.FarRef(ray))
	require.False(t, target.IsGrabbed())
	require.Zero(t, target.OnFarReleased(ray))
}
