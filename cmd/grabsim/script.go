package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/scene"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
	"gopkg.in/yaml.v3"
)

// simConfig is a scene config plus the scripted pointer input to replay.
type simConfig struct {
	scene.Config `yaml:",inline"`
	Script       []Step `yaml:"script"`
}

// Step changes one pointer's input before the given tick runs. Fields left
// unset keep their previous value.
type Step struct {
	Tick    int    `yaml:"tick"`
	Pointer string `yaml:"pointer"`
	// Move is the near grab location, the far ray origin or the touch center.
	Move        *[3]float64 `yaml:"move"`
	RotationDeg *[3]float64 `yaml:"rotation_deg"`
	// Grab drives the near grabbing flag or the far pressed flag.
	Grab *bool    `yaml:"grab"`
	Hit  *HitStep `yaml:"hit"`
	// Over spreads Move across that many ticks, shaped by Ease.
	Over int    `yaml:"over"`
	Ease string `yaml:"ease"`
}

// HitStep is a far pointer ray cast result. An empty target is a miss.
type HitStep struct {
	Target    string     `yaml:"target"`
	Primitive string     `yaml:"primitive"`
	Point     [3]float64 `yaml:"point"`
}

var (
	errUnknownPointer = errors.New("script names an unknown pointer")
	errUnknownEase    = errors.New("unknown ease")
)

var easings = map[string]ease.TweenFunc{
	"":             ease.Linear,
	"linear":       ease.Linear,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-cubic":     ease.InCubic,
	"out-cubic":    ease.OutCubic,
	"in-out-cubic": ease.InOutCubic,
	"in-out-sine":  ease.InOutSine,
	"out-bounce":   ease.OutBounce,
}

func loadSimConfig(path string) (simConfig, error) {
	cfg := simConfig{Config: scene.DefaultConfig()}
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return simConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return simConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return simConfig{}, err
	}
	for _, st := range cfg.Script {
		if _, ok := easings[st.Ease]; !ok {
			return simConfig{}, fmt.Errorf("script tick %d: %w: %q", st.Tick, errUnknownEase, st.Ease)
		}
		if st.Over < 0 {
			return simConfig{}, fmt.Errorf("script tick %d: negative over", st.Tick)
		}
	}
	sort.SliceStable(cfg.Script, func(i, j int) bool { return cfg.Script[i].Tick < cfg.Script[j].Tick })
	return cfg, nil
}

// Ticks is how many ticks the script needs for every step and motion to
// finish.
func (c simConfig) Ticks() int {
	n := 0
	for _, st := range c.Script {
		n = max(n, st.Tick+st.Over+1)
	}
	return n
}

// motion eases one pointer's location towards a scripted point, one unit of
// tween time per tick.
type motion struct {
	axes [3]*gween.Tween
}

func newMotion(from, to mgl64.Vec3, ticks int, fn ease.TweenFunc) *motion {
	m := &motion{}
	for i := range m.axes {
		m.axes[i] = gween.New(float32(from[i]), float32(to[i]), float32(ticks), fn)
	}
	return m
}

func (m *motion) step() (mgl64.Vec3, bool) {
	var at mgl64.Vec3
	done := true
	for i, tw := range m.axes {
		v, finished := tw.Update(1)
		at[i] = float64(v)
		done = done && finished
	}
	return at, done
}

// player replays a sorted script against a scene.
type player struct {
	steps   []Step
	next    int
	scene   *scene.Scene
	handles scene.Handles
	poses   map[string]physics.Pose
	motions map[string]*motion
}

func newPlayer(steps []Step, s *scene.Scene, handles scene.Handles) *player {
	return &player{
		steps:   steps,
		scene:   s,
		handles: handles,
		poses:   make(map[string]physics.Pose),
		motions: make(map[string]*motion),
	}
}

// Done reports whether every step has been applied and every motion has
// arrived.
func (p *player) Done() bool { return p.next >= len(p.steps) && len(p.motions) == 0 }

// Apply advances running motions, then feeds every step scheduled at or
// before tick.
func (p *player) Apply(tick int) error {
	for name, m := range p.motions {
		at, done := m.step()
		if done {
			delete(p.motions, name)
		}
		pose := p.poses[name]
		pose.Location = at
		p.poses[name] = pose
		if err := p.push(name, pose); err != nil {
			return fmt.Errorf("script motion %q: %w", name, err)
		}
	}
	for ; p.next < len(p.steps) && p.steps[p.next].Tick <= tick; p.next++ {
		if err := p.apply(p.steps[p.next]); err != nil {
			return fmt.Errorf("script tick %d: %w", p.steps[p.next].Tick, err)
		}
	}
	return nil
}

func (p *player) apply(st Step) error {
	kind, ok := p.handles.Pointers[st.Pointer]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownPointer, st.Pointer)
	}
	from := p.poses[st.Pointer].Location
	pose := p.pose(st)
	if st.Move != nil && st.Over > 0 {
		// The pointer starts where it was and arrives Over ticks later.
		pose.Location = from
		p.poses[st.Pointer] = pose
		p.motions[st.Pointer] = newMotion(pose.Location, mgl64.Vec3(*st.Move), st.Over, easings[st.Ease])
	} else if st.Move != nil {
		delete(p.motions, st.Pointer)
	}
	if st.Move != nil || st.RotationDeg != nil {
		if err := p.push(st.Pointer, pose); err != nil {
			return err
		}
	}

	switch kind {
	case "near":
		if st.Grab != nil {
			return p.scene.SetNearGrabbing(p.handles.Near[st.Pointer], *st.Grab)
		}
	case "far":
		h := p.handles.Far[st.Pointer]
		if st.Hit != nil {
			var target models.Handle
			if st.Hit.Target != "" {
				var ok bool
				if target, ok = p.handles.Targets[st.Hit.Target]; !ok {
					return fmt.Errorf("%w: %q", scene.ErrUnknownTarget, st.Hit.Target)
				}
			}
			if err := p.scene.SetFarHit(h, target, st.Hit.Primitive, mgl64.Vec3(st.Hit.Point)); err != nil {
				return err
			}
		}
		if st.Grab != nil {
			return p.scene.SetFarPressed(h, *st.Grab)
		}
	}
	return nil
}

// push hands a pointer pose to the scene in the form its kind expects.
func (p *player) push(name string, pose physics.Pose) error {
	switch p.handles.Pointers[name] {
	case "near":
		return p.scene.SetNearPose(p.handles.Near[name], pose)
	case "far":
		return p.scene.SetFarRay(p.handles.Far[name], pose.Location, pose.Rotation)
	case "touch":
		return p.scene.SetTouchCenter(p.handles.Touch[name], pose.Location)
	default:
		return fmt.Errorf("%w: %q", errUnknownPointer, name)
	}
}

// pose merges the step into the last pose scripted for its pointer.
func (p *player) pose(st Step) physics.Pose {
	pose, ok := p.poses[st.Pointer]
	if !ok {
		pose = physics.Identity()
	}
	if st.Move != nil {
		pose.Location = mgl64.Vec3(*st.Move)
	}
	if st.RotationDeg != nil {
		r := *st.RotationDeg
		pose.Rotation = mgl64.AnglesToQuat(mgl64.DegToRad(r[0]), mgl64.DegToRad(r[1]), mgl64.DegToRad(r[2]), mgl64.XYZ)
	}
	p.poses[st.Pointer] = pose
	return pose
}
