package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/systems"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
	"github.com/zeusync/grabkit/internal/core/touch"
	"github.com/zeusync/grabkit/pkg/generic"
)

// System names of the built-in pipeline, in execution order.
const (
	SystemIndexSync = "index-sync"
	SystemNearFocus = "near-focus"
	SystemNearGrab  = "near-grab"
	SystemFarGrab   = "far-grab"
	SystemTouch     = "touch-hover"
	SystemFollow    = "follow"
)

var nearCandidates = generic.NewSlicePool[touch.Candidate](16)

func (s *Scene) pipeline() []systems.System {
	return []systems.System{
		systems.Func{SystemName: SystemIndexSync, SystemPriority: systems.PriorityHighest, Fn: s.syncIndex},
		systems.Func{SystemName: SystemNearFocus, SystemPriority: systems.PriorityHighest, Fn: s.updateNearFocus},
		systems.Func{SystemName: SystemNearGrab, SystemPriority: systems.PriorityHigh, Fn: s.updateNearGrabs},
		systems.Func{SystemName: SystemFarGrab, SystemPriority: systems.PriorityHigh, Fn: s.updateFarGrabs},
		systems.Func{SystemName: SystemTouch, SystemPriority: systems.PriorityNormal, Fn: s.updateTouch},
		systems.Func{SystemName: SystemFollow, SystemPriority: systems.PriorityLow, Fn: s.updateFollow},
	}
}

func (s *Scene) syncIndex(float64) error {
	var stale []models.Handle
	s.targets.Each(func(h models.Handle, e *targetEntry) bool {
		if e.dirty || e.indexed != e.target.Transform() {
			stale = append(stale, h)
		}
		return true
	})
	for _, h := range stale {
		s.reindex(h)
	}
	return nil
}

// updateNearFocus points every unlocked near pointer at the closest
// grab-focusable primitive within its radius.
func (s *Scene) updateNearFocus(float64) error {
	buf, release := nearCandidates.Acquire()
	defer release()

	s.nears.Each(func(_ models.Handle, n *nearEntry) bool {
		p := n.pointer
		if p.FocusLocked() {
			return true
		}
		loc := p.Location()
		*buf = s.index.QuerySphere(loc, p.Radius(), (*buf)[:0])

		var best models.Handle
		bestDist := math.Inf(1)
		for _, c := range *buf {
			if d, ok := s.grabDistance(c.Target, loc); ok && d <= p.Radius() && d < bestDist {
				best, bestDist = c.Target, d
			}
		}
		p.SetFocusedTarget(best)
		return true
	})
	return nil
}

func (s *Scene) grabDistance(h models.Handle, loc mgl64.Vec3) (float64, bool) {
	e, ok := s.targets.Get(h)
	if !ok {
		return 0, false
	}
	pose := e.target.Transform()
	found := false
	best := math.Inf(1)
	for _, prim := range e.target.Primitives() {
		if !e.target.IsGrabFocusable(prim) {
			continue
		}
		closest := physics.WorldClosestPoint(prim.Shape, prim.WorldPose(pose), loc)
		if d := physics.Distance3(loc, closest); d < best {
			best, found = d, true
		}
	}
	return best, found
}

// updateNearGrabs turns grab-input edges into begin, update and end calls.
func (s *Scene) updateNearGrabs(float64) error {
	s.nears.Each(func(_ models.Handle, n *nearEntry) bool {
		p := n.pointer
		grabbing := p.IsGrabbing()
		switch {
		case grabbing && !n.wasGrabbing:
			focused := p.FocusedTarget()
			if t, ok := s.Target(focused); ok {
				if err := t.OnBeginGrab(p); err != nil {
					s.logger.Warn("near grab refused", log.String("pointer", p.Name()), log.Error(err))
				} else {
					n.grabbed = focused
				}
			}
		case grabbing && n.wasGrabbing:
			if t, ok := s.Target(n.grabbed); ok {
				t.OnUpdateGrab(p)
			}
		case !grabbing && n.wasGrabbing:
			if t, ok := s.Target(n.grabbed); ok {
				t.OnEndGrab(p)
			}
			n.grabbed = models.Handle{}
		}
		n.wasGrabbing = grabbing
		return true
	})
	return nil
}

// updateFarGrabs turns select-input edges into press, drag and release calls.
func (s *Scene) updateFarGrabs(float64) error {
	s.fars.Each(func(_ models.Handle, f *farEntry) bool {
		p := f.pointer
		pressed := p.IsPressed()
		switch {
		case pressed && !f.wasPressed:
			focused := p.FocusedTarget()
			if t, ok := s.Target(focused); ok {
				if err := t.OnFarPressed(p); err != nil {
					s.logger.Warn("far grab refused", log.String("pointer", p.Name()), log.Error(err))
				} else {
					f.grabbed = focused
				}
			}
		case pressed && f.wasPressed:
			if t, ok := s.Target(f.grabbed); ok {
				t.OnFarDragged(p)
			}
		case !pressed && f.wasPressed:
			if t, ok := s.Target(f.grabbed); ok {
				t.OnFarReleased(p)
			}
			f.grabbed = models.Handle{}
		}
		f.wasPressed = pressed
		return true
	})
	return nil
}

func (s *Scene) updateTouch(float64) error {
	s.touches.Each(func(_ models.Handle, p *touch.Pointer) bool {
		p.Tick(s.index)
		return true
	})
	return nil
}

// updateFollow moves active targets that follow their grabs. One pointer
// carries the target rigidly; with two or more only the grab-point centroid
// is followed.
func (s *Scene) updateFollow(float64) error {
	for _, h := range s.active.Snapshot() {
		e, ok := s.targets.Get(h)
		if !ok || e.follow == FollowNone || !e.target.IsGrabbed() {
			continue
		}
		next := followPose(e.target, e.follow)
		if next != e.target.Transform() {
			e.target.SetTransform(next)
			e.dirty = true
		}
	}
	return nil
}

func followPose(t *grab.Target, mode FollowMode) physics.Pose {
	pose := t.Transform()
	if t.Len() > 1 {
		return pose.Translate(t.TargetCentroid().Sub(t.GrabPointCentroid(pose)))
	}
	r, ok := t.PrimaryGrabPointer()
	if !ok {
		return pose
	}
	if mode == FollowFull {
		pose.Rotation = grab.RotationOffset(pose, r).Mul(pose.Rotation).Normalize()
	}
	return pose.Translate(grab.LocationOffset(pose, r))
}
