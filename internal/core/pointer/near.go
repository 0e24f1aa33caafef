package pointer

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
)

// DefaultNearRadius is the proximity radius used when none is configured.
const DefaultNearRadius = 0.05

// Near is a near-field pointer: a hand tracker whose grab point pose is driven
// by the host and whose proximity sphere selects a grab target.
type Near struct {
	focus
	name     string
	handle   models.Handle
	grabPose physics.Pose
	radius   float64
	grabbing bool
}

// NewNear creates a near pointer at the origin.
func NewNear(name string, radius float64) *Near {
	if radius <= 0 {
		radius = DefaultNearRadius
	}
	return &Near{name: name, grabPose: physics.Identity(), radius: radius}
}

func (p *Near) Name() string { return p.name }

// Handle is the pointer's arena handle; zero until registered.
func (p *Near) Handle() models.Handle     { return p.handle }
func (p *Near) SetHandle(h models.Handle) { p.handle = h }

// GrabPointerTransform is the world pose of the pointer's grab point.
func (p *Near) GrabPointerTransform() physics.Pose { return p.grabPose }

// SetGrabPointerTransform updates the grab point pose.
func (p *Near) SetGrabPointerTransform(pose physics.Pose) { p.grabPose = pose.Normalize() }

// Location is the center of the proximity volume.
func (p *Near) Location() mgl64.Vec3 { return p.grabPose.Location }

func (p *Near) Radius() float64 { return p.radius }

func (p *Near) SetRadius(radius float64) {
	if radius < 0 {
		radius = 0
	}
	p.radius = radius
}

// IsGrabbing reports the host's grab input state (e.g. a pinch or grip).
func (p *Near) IsGrabbing() bool { return p.grabbing }

func (p *Near) SetGrabbing(grabbing bool) { p.grabbing = grabbing }
