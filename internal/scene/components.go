package scene

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// Kind says how a body takes part in physics.
type Kind int

const (
	// Fixed bodies never move and block active ones.
	Fixed Kind = iota
	// Active bodies fall under gravity and collide with fixed ones.
	Active
)

func (k Kind) String() string {
	if k == Active {
		return "active"
	}
	return "fixed"
}

// TransformData is an entity's center position in screen pixels.
type TransformData struct {
	Position mgl64.Vec2
}

// VelocityData is in pixels per second; positive Y points down.
type VelocityData struct {
	Velocity mgl64.Vec2
}

// BodyData links an entity to its collision object.
type BodyData struct {
	Kind   Kind
	Size   mgl64.Vec2
	Object *resolv.Object
}

// AppearanceData is the fill color of an entity's rectangle.
type AppearanceData struct {
	Color color.RGBA
}

// UpdateFunc runs once per tick before physics. It may read gesture
// state through r and mutate its own entry.
type UpdateFunc func(e *donburi.Entry, r gesture.Reader)

// ControllerData holds an entity's per-tick update functions.
type ControllerData struct {
	Updates []UpdateFunc
}

var (
	Transform  = donburi.NewComponentType[TransformData]()
	Velocity   = donburi.NewComponentType[VelocityData]()
	Body       = donburi.NewComponentType[BodyData]()
	Appearance = donburi.NewComponentType[AppearanceData]()
	Controller = donburi.NewComponentType[ControllerData]()

	PlayerTag = donburi.NewTag()
	GroundTag = donburi.NewTag()
)
