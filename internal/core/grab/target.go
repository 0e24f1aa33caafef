package grab

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// Scheduler receives the target's per-tick enablement. It is polled by the
// host's tick loop rather than toggling any callback itself.
type Scheduler interface {
	SetActive(h models.Handle, active bool)
}

// Clock returns the world time in seconds.
type Clock func() float64

// Liveness reports whether a recorded pointer still exists.
type Liveness func(pointer.Ref) bool

// Target tracks the active grabs on one interactive object and exposes the
// pose data that motion-following logic needs.
//
// Each pointer identity is either idle or grabbing; begin, update and end are
// the only transitions. Records keep arrival order: index 0 is the primary
// grab, index 1 the secondary. A Target is driven from a single goroutine.
type Target struct {
	id         string
	name       string
	handle     models.Handle
	transform  physics.Pose
	primitives []Primitive
	records    []GrabPointerRecord

	tickOnlyWhileGrabbed bool
	tickEnabled          bool

	focusable Focusable
	scheduler Scheduler
	events    bus.EventBus
	clock     Clock
	alive     Liveness
	logger    log.Log
}

// Option configures a Target.
type Option func(*Target)

// WithBus publishes grab events on b instead of a private bus.
func WithBus(b bus.EventBus) Option {
	return func(t *Target) {
		if b != nil {
			t.events = b
		}
	}
}

func WithLogger(l log.Log) Option {
	return func(t *Target) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock sets the clock used to stamp StartTime.
func WithClock(c Clock) Option {
	return func(t *Target) {
		if c != nil {
			t.clock = c
		}
	}
}

func WithFocusable(f Focusable) Option {
	return func(t *Target) { t.SetFocusable(f) }
}

// WithPointerLiveness drops records whose pointer no longer exists before
// any lookup. Records hold non-owning pointer references; without a checker
// a destroyed pointer stays recorded until it is ended explicitly.
func WithPointerLiveness(alive Liveness) Option {
	return func(t *Target) { t.alive = alive }
}

func WithScheduler(s Scheduler) Option {
	return func(t *Target) { t.scheduler = s }
}

func WithTransform(p physics.Pose) Option {
	return func(t *Target) { t.transform = p.Normalize() }
}

func WithPrimitives(p ...Primitive) Option {
	return func(t *Target) { t.primitives = append(t.primitives, p...) }
}

// WithTickOnlyWhileGrabbed sets the tick policy; the default is true.
func WithTickOnlyWhileGrabbed(enable bool) Option {
	return func(t *Target) { t.tickOnlyWhileGrabbed = enable }
}

// NewTarget creates an idle target.
func NewTarget(name string, opts ...Option) *Target {
	created := time.Now()
	t := &Target{
		id:                   uuid.NewString(),
		name:                 name,
		transform:            physics.Identity(),
		tickOnlyWhileGrabbed: true,
		focusable:            AllFocusable{},
		events:               bus.New(),
		clock:                func() float64 { return time.Since(created).Seconds() },
		logger:               log.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(log.String("target", name))
	t.updateTickEnabled()
	return t
}

// ID is unique per target and names the target's bus topic.
func (t *Target) ID() string    { return t.id }
func (t *Target) Name() string  { return t.name }
func (t *Target) Topic() string { return "grab/" + t.id }

func (t *Target) Handle() models.Handle { return t.handle }

// SetHandle records the target's arena handle and re-announces its tick state.
func (t *Target) SetHandle(h models.Handle) {
	t.handle = h
	t.updateTickEnabled()
}

// Transform is the owning object's world transform.
func (t *Target) Transform() physics.Pose { return t.transform }

// SetTransform updates the world transform. Held local grab points are not touched.
func (t *Target) SetTransform(p physics.Pose) { t.transform = p.Normalize() }

// Primitives returns the target's collidable parts.
func (t *Target) Primitives() []Primitive { return t.primitives }

// SetFocusable installs the focusability policy; nil restores the default.
func (t *Target) SetFocusable(f Focusable) {
	if f == nil {
		f = AllFocusable{}
	}
	t.focusable = f
}

func (t *Target) IsGrabFocusable(p Primitive) bool { return t.focusable.IsGrabFocusable(p) }
func (t *Target) IsFarFocusable(p Primitive) bool  { return t.focusable.IsFarFocusable(p) }

// Subscribe registers fn for one grab event kind raised by this target.
func (t *Target) Subscribe(kind string, fn func(Event)) (bus.Subscription, error) {
	return t.events.SubscribeTopic(t.Topic(), kind, func(e bus.Event) error {
		if ge, ok := e.(Event); ok {
			fn(ge)
		}
		return nil
	})
}

// GrabPointers returns a copy of the active records in arrival order.
func (t *Target) GrabPointers() []GrabPointerRecord {
	t.Prune()
	out := make([]GrabPointerRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Len returns the number of active grabs.
func (t *Target) Len() int {
	t.Prune()
	return len(t.records)
}

// IsGrabbed reports whether any pointer holds the target.
func (t *Target) IsGrabbed() bool { return t.Len() > 0 }

// GrabPointCentroid is the mean grab location over all records, or the zero
// vector when there are none.
func (t *Target) GrabPointCentroid(transform physics.Pose) mgl64.Vec3 {
	t.Prune()
	var centroid mgl64.Vec3
	for _, r := range t.records {
		centroid = centroid.Add(GrabLocation(transform, r))
	}
	return centroid.Mul(1 / float64(max(len(t.records), 1)))
}

// TargetCentroid is the mean pointer location over all records, or the zero
// vector when there are none.
func (t *Target) TargetCentroid() mgl64.Vec3 {
	t.Prune()
	var centroid mgl64.Vec3
	for _, r := range t.records {
		centroid = centroid.Add(TargetLocation(r))
	}
	return centroid.Mul(1 / float64(max(len(t.records), 1)))
}

// PrimaryGrabPointer returns the first grab, if any.
func (t *Target) PrimaryGrabPointer() (GrabPointerRecord, bool) {
	return t.recordAt(0)
}

// SecondaryGrabPointer returns the second grab, if any.
func (t *Target) SecondaryGrabPointer() (GrabPointerRecord, bool) {
	return t.recordAt(1)
}

func (t *Target) recordAt(i int) (GrabPointerRecord, bool) {
	t.Prune()
	if i >= len(t.records) {
		return GrabPointerRecord{}, false
	}
	return t.records[i], true
}

// FindGrabPointer looks up the record of a pointer. The index is -1 when not found.
func (t *Target) FindGrabPointer(ref pointer.Ref) (GrabPointerRecord, int, bool) {
	i := t.indexOf(ref)
	if i < 0 {
		return GrabPointerRecord{}, -1, false
	}
	return t.records[i], i, true
}

func (t *Target) indexOf(ref pointer.Ref) int {
	if !ref.Valid() {
		return -1
	}
	t.Prune()
	for i, r := range t.records {
		if r.Ref() == ref {
			return i
		}
	}
	return -1
}

// OnBeginGrab starts a near grab from the pointer's current grab pose.
func (t *Target) OnBeginGrab(p *pointer.Near) error {
	if p == nil {
		return ErrNilPointer
	}
	pose := p.GrabPointerTransform()
	return t.begin(GrabPointerRecord{
		Near:             p,
		PointerTransform: pose,
		LocalGrabPoint:   pose.Mul(t.transform.Inverse()),
	})
}

// OnFarPressed starts a far grab at the pointer's current ray hit point.
func (t *Target) OnFarPressed(p *pointer.Far) error {
	if p == nil {
		return ErrNilPointer
	}
	atRayEnd := physics.NewPose(p.PointerOrientation(), p.HitPoint())
	return t.begin(GrabPointerRecord{
		Far:                     p,
		PointerTransform:        atRayEnd,
		LocalGrabPoint:          atRayEnd.Mul(t.transform.Inverse()),
		FarRayHitPointInPointer: atRayEnd.Mul(p.PointerTransform().Inverse()),
	})
}

func (t *Target) begin(r GrabPointerRecord) error {
	ref := r.Ref()
	if t.indexOf(ref) >= 0 {
		t.logger.Warn("duplicate grab rejected", log.Stringer("pointer", ref))
		return fmt.Errorf("%w: %s", ErrDuplicateGrab, ref)
	}
	locker := ref.Locker()
	if locker.FocusLocked() {
		t.logger.Warn("grab rejected, pointer locked elsewhere", log.Stringer("pointer", ref))
		return fmt.Errorf("%w: %s", ErrFocusLocked, ref)
	}

	r.StartTime = t.clock()
	t.records = append(t.records, r)

	// Keep this target focused while the pointer moves.
	locker.SetFocusLocked(true)

	t.logger.Debug("grab begin", log.Stringer("pointer", ref), log.Int("records", len(t.records)))
	t.publish(EventBegin, r)
	t.updateTickEnabled()
	return nil
}

// OnUpdateGrab refreshes a near grab from the pointer's live grab pose.
// It reports whether the pointer was grabbing this target.
func (t *Target) OnUpdateGrab(p *pointer.Near) bool {
	if p == nil {
		return false
	}
	i := t.indexOf(pointer.NearRef(p))
	if i < 0 {
		return false
	}
	t.records[i].PointerTransform = p.GrabPointerTransform()
	t.publish(EventUpdate, t.records[i])
	return true
}

// OnFarDragged moves a far grab with the pointer's ray frame. The hit point
// stays pinned to the ray at the distance captured on press; no new hit test
// is involved.
func (t *Target) OnFarDragged(p *pointer.Far) bool {
	if p == nil {
		return false
	}
	i := t.indexOf(pointer.FarRef(p))
	if i < 0 {
		return false
	}
	r := &t.records[i]
	r.PointerTransform = r.FarRayHitPointInPointer.Mul(p.PointerTransform())
	t.publish(EventUpdate, *r)
	return true
}

// OnEndGrab ends the near pointer's grab and returns how many records were
// removed. Ending a pointer that is not grabbing is a no-op.
func (t *Target) OnEndGrab(p *pointer.Near) int {
	if p == nil {
		return 0
	}
	return t.end(pointer.NearRef(p))
}

// OnFarReleased ends the far pointer's grab. See OnEndGrab.
func (t *Target) OnFarReleased(p *pointer.Far) int {
	if p == nil {
		return 0
	}
	return t.end(pointer.FarRef(p))
}

// EndGrab ends the grab of any pointer kind.
func (t *Target) EndGrab(ref pointer.Ref) int {
	if !ref.Valid() {
		return 0
	}
	return t.end(ref)
}

// EndAll releases every grab, e.g. when the target is destroyed.
func (t *Target) EndAll() int {
	removed := 0
	for len(t.records) > 0 {
		removed += t.end(t.records[0].Ref())
	}
	return removed
}

func (t *Target) end(ref pointer.Ref) int {
	kept := t.records[:0]
	var removed []GrabPointerRecord
	for _, r := range t.records {
		if r.Ref() == ref {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	// clear the tail so dropped records don't pin their pointers
	for i := len(kept); i < len(t.records); i++ {
		t.records[i] = GrabPointerRecord{}
	}
	t.records = kept

	for _, r := range removed {
		// Unlock so another target can be selected.
		ref.Locker().SetFocusLocked(false)
		t.logger.Debug("grab end", log.Stringer("pointer", ref), log.Float64("held", t.clock()-r.StartTime))
		t.publish(EventEnd, r)
	}
	t.updateTickEnabled()
	return len(removed)
}

// Prune ends the grabs of pointers the liveness checker reports destroyed
// and returns how many records were dropped.
func (t *Target) Prune() int {
	if t.alive == nil {
		return 0
	}
	dropped := 0
	for i := 0; i < len(t.records); {
		ref := t.records[i].Ref()
		if t.alive(ref) {
			i++
			continue
		}
		t.logger.Debug("dropping grab of destroyed pointer", log.Stringer("pointer", ref))
		dropped += t.end(ref)
	}
	return dropped
}

// ResetLocalGrabPoint re-pins r to the target at its current pointer pose.
func (t *Target) ResetLocalGrabPoint(r *GrabPointerRecord) {
	if r == nil {
		return
	}
	r.LocalGrabPoint = r.PointerTransform.Mul(t.transform.Inverse())
}

// ResetLocalGrabPointFor re-pins the stored record of a pointer without a
// release and re-grab. It reports whether the pointer was grabbing.
func (t *Target) ResetLocalGrabPointFor(ref pointer.Ref) bool {
	i := t.indexOf(ref)
	if i < 0 {
		return false
	}
	t.ResetLocalGrabPoint(&t.records[i])
	return true
}

// TickOnlyWhileGrabbed reports the tick policy.
func (t *Target) TickOnlyWhileGrabbed() bool { return t.tickOnlyWhileGrabbed }

// SetTickOnlyWhileGrabbed changes the tick policy and re-evaluates enablement.
func (t *Target) SetTickOnlyWhileGrabbed(enable bool) {
	t.tickOnlyWhileGrabbed = enable
	t.updateTickEnabled()
}

// IsTickEnabled reports whether the target currently wants per-tick work.
func (t *Target) IsTickEnabled() bool { return t.tickEnabled }

func (t *Target) updateTickEnabled() {
	t.tickEnabled = !t.tickOnlyWhileGrabbed || len(t.records) > 0
	if t.scheduler != nil && !t.handle.IsZero() {
		t.scheduler.SetActive(t.handle, t.tickEnabled)
	}
}

func (t *Target) publish(kind string, r GrabPointerRecord) {
	ev := Event{Kind: kind, Target: t, Record: r, At: time.Now()}
	if err := t.events.PublishToTopic(t.Topic(), ev); err != nil {
		t.logger.Warn("grab event handler failed", log.String("event", kind), log.Error(err))
	}
}
