package scene

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
	"gopkg.in/yaml.v3"
)

// Config describes a scene and its surroundings as loaded from YAML.
type Config struct {
	Log      log.Config      `yaml:"log"`
	TickRate int             `yaml:"tick_rate"`
	Defaults Defaults        `yaml:"defaults"`
	Targets  []TargetConfig  `yaml:"targets"`
	Pointers []PointerConfig `yaml:"pointers"`
	Stream   StreamConfig    `yaml:"stream"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

type TargetConfig struct {
	Name     string     `yaml:"name"`
	Location [3]float64 `yaml:"location"`
	// RotationDeg holds XYZ Euler angles in degrees.
	RotationDeg          [3]float64        `yaml:"rotation_deg"`
	Follow               string            `yaml:"follow"`
	TickOnlyWhileGrabbed *bool             `yaml:"tick_only_while_grabbed"`
	Exclude              []string          `yaml:"exclude"`
	Primitives           []PrimitiveConfig `yaml:"primitives"`
}

type PrimitiveConfig struct {
	Name        string     `yaml:"name"`
	Shape       string     `yaml:"shape"` // "sphere" or "box"
	Radius      float64    `yaml:"radius"`
	HalfExtents [3]float64 `yaml:"half_extents"`
	Offset      [3]float64 `yaml:"offset"`
}

type PointerConfig struct {
	Name   string  `yaml:"name"`
	Kind   string  `yaml:"kind"` // "near", "far" or "touch"
	Radius float64 `yaml:"radius"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Buffer  int    `yaml:"buffer"`
	// UpdateRate caps streamed grab.update messages per second; 0 is unlimited.
	UpdateRate float64 `yaml:"update_rate"`
}

// MetricsConfig mounts a Prometheus endpoint on the stream server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig is an empty scene ticking at 60Hz.
func DefaultConfig() Config {
	return Config{
		Log:      log.DefaultConfig(),
		TickRate: 60,
		Defaults: DefaultDefaults(),
		Stream:   StreamConfig{Addr: ":8089", Buffer: 64},
		Metrics:  MetricsConfig{Path: "/metrics"},
	}
}

// LoadYAML decodes a config on top of DefaultConfig and validates it.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode scene config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config from path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open scene config: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// TickInterval is the wall time between ticks.
func (c Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.TickRate)
}

// Validate reports every problem in the config at once.
func (c Config) Validate() error {
	var errs []error
	if c.TickRate < 0 {
		errs = append(errs, fmt.Errorf("%w: negative tick_rate %d", ErrInvalidConfig, c.TickRate))
	}
	if c.Defaults.CellSize < 0 {
		errs = append(errs, fmt.Errorf("%w: negative cell_size", ErrInvalidConfig))
	}
	if c.Stream.UpdateRate < 0 {
		errs = append(errs, fmt.Errorf("%w: negative stream update_rate", ErrInvalidConfig))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("%w: metrics path %q must start with /", ErrInvalidConfig, c.Metrics.Path))
	}

	seen := make(map[string]struct{})
	for i, t := range c.Targets {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%w: target #%d has no name", ErrInvalidConfig, i))
		} else if _, dup := seen["target/"+t.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate target %q", ErrInvalidConfig, t.Name))
		}
		seen["target/"+t.Name] = struct{}{}
		if _, err := ParseFollowMode(t.Follow); err != nil {
			errs = append(errs, fmt.Errorf("target %q: %w", t.Name, err))
		}
		for _, p := range t.Primitives {
			if _, err := p.shape(); err != nil {
				errs = append(errs, fmt.Errorf("target %q: %w", t.Name, err))
			}
		}
	}
	for i, p := range c.Pointers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%w: pointer #%d has no name", ErrInvalidConfig, i))
		} else if _, dup := seen["pointer/"+p.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate pointer %q", ErrInvalidConfig, p.Name))
		}
		seen["pointer/"+p.Name] = struct{}{}
		switch p.Kind {
		case "near", "far", "touch":
		default:
			errs = append(errs, fmt.Errorf("pointer %q: %w: %q", p.Name, ErrUnknownPointerKind, p.Kind))
		}
		if p.Radius < 0 {
			errs = append(errs, fmt.Errorf("%w: pointer %q has negative radius", ErrInvalidConfig, p.Name))
		}
	}
	return errors.Join(errs...)
}

func (p PrimitiveConfig) shape() (physics.Shape, error) {
	switch p.Shape {
	case "sphere":
		if p.Radius <= 0 {
			return nil, fmt.Errorf("%w: sphere %q needs a positive radius", ErrInvalidConfig, p.Name)
		}
		return physics.Sphere{Radius: p.Radius}, nil
	case "box":
		he := mgl64.Vec3(p.HalfExtents)
		if he.X() < 0 || he.Y() < 0 || he.Z() < 0 {
			return nil, fmt.Errorf("%w: box %q has negative half extents", ErrInvalidConfig, p.Name)
		}
		return physics.Box{HalfExtents: he}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, p.Shape)
	}
}

// Pose is the target's initial world transform.
func (t TargetConfig) Pose() physics.Pose {
	rot := mgl64.AnglesToQuat(
		mgl64.DegToRad(t.RotationDeg[0]),
		mgl64.DegToRad(t.RotationDeg[1]),
		mgl64.DegToRad(t.RotationDeg[2]),
		mgl64.XYZ,
	)
	return physics.NewPose(rot, mgl64.Vec3(t.Location))
}

// Handles maps configured names to the handles Build registered them under.
type Handles struct {
	Targets  map[string]models.Handle
	Near     map[string]models.Handle
	Far      map[string]models.Handle
	Touch    map[string]models.Handle
	Pointers map[string]string // name -> kind
}

// Build registers the configured targets and pointers on s.
func (c Config) Build(s *Scene) (Handles, error) {
	if err := c.Validate(); err != nil {
		return Handles{}, err
	}
	out := Handles{
		Targets:  make(map[string]models.Handle, len(c.Targets)),
		Near:     make(map[string]models.Handle),
		Far:      make(map[string]models.Handle),
		Touch:    make(map[string]models.Handle),
		Pointers: make(map[string]string, len(c.Pointers)),
	}
	for _, t := range c.Targets {
		follow, _ := ParseFollowMode(t.Follow)
		prims := make([]grab.Primitive, 0, len(t.Primitives))
		for _, p := range t.Primitives {
			shape, _ := p.shape()
			prims = append(prims, grab.Primitive{
				Name:   p.Name,
				Shape:  shape,
				Offset: physics.At(mgl64.Vec3(p.Offset)),
			})
		}
		opts := []grab.Option{grab.WithTransform(t.Pose()), grab.WithPrimitives(prims...)}
		if len(t.Exclude) > 0 {
			opts = append(opts, grab.WithFocusable(grab.ExcludeNamed(t.Exclude...)))
		}
		if t.TickOnlyWhileGrabbed != nil {
			opts = append(opts, grab.WithTickOnlyWhileGrabbed(*t.TickOnlyWhileGrabbed))
		}
		out.Targets[t.Name] = s.AddTarget(t.Name, follow, opts...)
	}
	for _, p := range c.Pointers {
		out.Pointers[p.Name] = p.Kind
		switch p.Kind {
		case "near":
			out.Near[p.Name] = s.AddNearPointer(p.Name, p.Radius)
		case "far":
			out.Far[p.Name] = s.AddFarPointer(p.Name)
		case "touch":
			out.Touch[p.Name] = s.AddTouchPointer(p.Name, p.Radius)
		}
	}
	return out, nil
}
