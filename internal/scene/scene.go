// Package scene holds the demo world: a static ground and one player body
// that jumps when the reader reports a rock gesture.
package scene

import (
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/filter"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// World geometry and physics constants.
const (
	Width  = 800
	Height = 600
	TPS    = 60

	Gravity      = 800.0
	JumpVelocity = -600.0

	cellSize = 8
	solidTag = "solid"
)

var (
	GroundCenter = mgl64.Vec2{400, 560}
	GroundSize   = mgl64.Vec2{800, 80}
	PlayerCenter = mgl64.Vec2{300, 300}
	PlayerSize   = mgl64.Vec2{64, 96}

	groundColor = color.RGBA{R: 0x55, G: 0x6b, B: 0x2f, A: 0xff}
	playerColor = color.RGBA{R: 0xdc, G: 0x14, B: 0x3c, A: 0xff}
)

// Rect is an entity's drawable bounds.
type Rect struct {
	Min, Size mgl64.Vec2
	Color     color.RGBA
}

// Scene owns the ECS world and its collision space. All methods are safe
// for concurrent use.
type Scene struct {
	mu     sync.RWMutex
	reader gesture.Reader
	world  donburi.World
	space  *resolv.Space
	player donburi.Entity
	built  bool

	controllers *donburi.Query
	bodies      *donburi.Query
}

// New creates an empty scene reading gestures from reader.
func New(reader gesture.Reader) *Scene {
	return &Scene{
		reader:      reader,
		world:       donburi.NewWorld(),
		space:       resolv.NewSpace(Width, Height, cellSize, cellSize),
		controllers: donburi.NewQuery(filter.Contains(Controller)),
		bodies:      donburi.NewQuery(filter.Contains(Transform, Body)),
	}
}

// Build adds the ground and the player. Calling it again is a no-op.
func (s *Scene) Build() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		return
	}
	s.built = true

	ground := s.world.Entry(s.world.Create(GroundTag, Transform, Body, Appearance))
	s.place(ground, GroundCenter, GroundSize, Fixed, groundColor, solidTag)

	s.player = s.world.Create(PlayerTag, Transform, Velocity, Body, Appearance, Controller)
	player := s.world.Entry(s.player)
	s.place(player, PlayerCenter, PlayerSize, Active, playerColor, "player")
	Controller.SetValue(player, ControllerData{Updates: []UpdateFunc{JumpOnRock}})
}

func (s *Scene) place(e *donburi.Entry, center, size mgl64.Vec2, kind Kind, c color.RGBA, tag string) {
	corner := center.Sub(size.Mul(0.5))
	obj := resolv.NewObject(corner.X(), corner.Y(), size.X(), size.Y(), tag)
	s.space.Add(obj)

	Transform.SetValue(e, TransformData{Position: center})
	Body.SetValue(e, BodyData{Kind: kind, Size: size, Object: obj})
	Appearance.SetValue(e, AppearanceData{Color: c})
}

// Tick advances the world by dt seconds. Controllers run first, then every
// active body integrates gravity and moves one axis at a time against the
// fixed bodies. A blocked axis zeroes that velocity component.
func (s *Scene) Tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.controllers.Each(s.world, func(e *donburi.Entry) {
		for _, update := range Controller.Get(e).Updates {
			update(e, s.reader)
		}
	})

	s.bodies.Each(s.world, func(e *donburi.Entry) {
		body := Body.Get(e)
		if body.Kind != Active || !e.HasComponent(Velocity) {
			return
		}
		vel := &Velocity.Get(e).Velocity
		vel[1] += Gravity * dt
		move(body.Object, vel, dt)
		pos := body.Object.Position
		Transform.Get(e).Position = mgl64.Vec2{pos.X, pos.Y}.Add(body.Size.Mul(0.5))
	})
}

// move displaces obj by vel*dt, X then Y, stopping at contact with solids.
func move(obj *resolv.Object, vel *mgl64.Vec2, dt float64) {
	if dx := vel[0] * dt; dx != 0 {
		if c := obj.Check(dx, 0, solidTag); c != nil {
			dx = c.ContactWithObject(c.Objects[0]).X
			vel[0] = 0
		}
		obj.Position.X += dx
	}
	if dy := vel[1] * dt; dy != 0 {
		if c := obj.Check(0, dy, solidTag); c != nil {
			dy = c.ContactWithObject(c.Objects[0]).Y
			vel[1] = 0
		}
		obj.Position.Y += dy
	}
	obj.Update()
}

// PlayerPosition returns the player's center.
func (s *Scene) PlayerPosition() mgl64.Vec2 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return mgl64.Vec2{}
	}
	return Transform.Get(s.world.Entry(s.player)).Position
}

// PlayerVelocity returns the player's velocity.
func (s *Scene) PlayerVelocity() mgl64.Vec2 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return mgl64.Vec2{}
	}
	return Velocity.Get(s.world.Entry(s.player)).Velocity
}

// SetPlayerVelocity overwrites the player's velocity.
func (s *Scene) SetPlayerVelocity(v mgl64.Vec2) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.built {
		return
	}
	Velocity.Get(s.world.Entry(s.player)).Velocity = v
}

// Rects returns the drawable bounds of every body, ground first.
func (s *Scene) Rects() []Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rects []Rect
	s.bodies.Each(s.world, func(e *donburi.Entry) {
		body := Body.Get(e)
		center := Transform.Get(e).Position
		r := Rect{Min: center.Sub(body.Size.Mul(0.5)), Size: body.Size}
		if e.HasComponent(Appearance) {
			r.Color = Appearance.Get(e).Color
		}
		if body.Kind == Fixed {
			rects = append([]Rect{r}, rects...)
			return
		}
		rects = append(rects, r)
	})
	return rects
}
