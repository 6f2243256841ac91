// Package game adapts the scene to ebiten: a fixed 60 TPS update loop and
// a window showing the bodies, the hand overlay and any warning.
package game

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/ayusman/gesturejump/internal/overlay"
	"github.com/ayusman/gesturejump/internal/scene"
)

// DefaultFatalDelay is how long a fatal message stays on screen.
const DefaultFatalDelay = 3 * time.Second

const bannerHeight = 24

var (
	backgroundColor = color.RGBA{R: 0x87, G: 0xce, B: 0xeb, A: 0xff}
	bannerColor     = color.RGBA{R: 0x40, G: 0x10, B: 0x10, A: 0xe0}
	fatalColor      = color.RGBA{R: 0x90, G: 0x00, B: 0x00, A: 0xf0}
)

// Options configures a Game.
type Options struct {
	Scene   *scene.Scene
	Overlay *overlay.Renderer
	// OnStart runs in its own goroutine after the first update.
	OnStart func()
	// FatalDelay overrides DefaultFatalDelay.
	FatalDelay time.Duration
}

// Game implements ebiten.Game.
type Game struct {
	scene      *scene.Scene
	overlay    *overlay.Renderer
	onStart    func()
	fatalDelay time.Duration
	now        func() time.Time

	start   sync.Once
	stopped atomic.Bool
	ticks   atomic.Int64

	mu      sync.Mutex
	banner  string
	fatal   error
	fatalAt time.Time

	// Draw-only.
	overlayImg     *ebiten.Image
	overlayVersion uint64
}

// New creates a Game. Scene must be built.
func New(opts Options) *Game {
	delay := opts.FatalDelay
	if delay <= 0 {
		delay = DefaultFatalDelay
	}
	return &Game{
		scene:      opts.Scene,
		overlay:    opts.Overlay,
		onStart:    opts.OnStart,
		fatalDelay: delay,
		now:        time.Now,
	}
}

// Warn shows msg in the banner until replaced.
func (g *Game) Warn(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fatal != nil {
		return
	}
	g.banner = msg
}

// Fail shows msg and makes Update return err once the fatal delay passes,
// which ends RunGame with err.
func (g *Game) Fail(err error, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fatal != nil {
		return
	}
	g.banner = msg
	g.fatal = err
	g.fatalAt = g.now().Add(g.fatalDelay)
}

// Banner returns the current warning text and whether it is fatal.
func (g *Game) Banner() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.banner, g.fatal != nil
}

// Stop makes the next Update end the game cleanly.
func (g *Game) Stop() {
	g.stopped.Store(true)
}

// Ticks returns the number of scene ticks run so far.
func (g *Game) Ticks() int64 {
	return g.ticks.Load()
}

// Update advances the scene by one tick.
func (g *Game) Update() error {
	g.start.Do(func() {
		if g.onStart != nil {
			go g.onStart()
		}
	})

	if g.stopped.Load() {
		return ebiten.Termination
	}

	g.mu.Lock()
	fatal, at := g.fatal, g.fatalAt
	g.mu.Unlock()
	if fatal != nil && !g.now().Before(at) {
		return fatal
	}

	g.scene.Tick(1.0 / scene.TPS)
	g.ticks.Add(1)
	return nil
}

// Draw renders the bodies, then the overlay in the top-right corner, then
// the banner.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	for _, r := range g.scene.Rects() {
		vector.DrawFilledRect(screen, float32(r.Min.X()), float32(r.Min.Y()), float32(r.Size.X()), float32(r.Size.Y()), r.Color, false)
	}

	if g.overlay != nil {
		g.drawOverlay(screen)
	}

	if text, fatal := g.Banner(); text != "" {
		c := bannerColor
		if fatal {
			c = fatalColor
		}
		vector.DrawFilledRect(screen, 0, 0, scene.Width, bannerHeight, c, false)
		ebitenutil.DebugPrintAt(screen, text, 8, 4)
	}
}

func (g *Game) drawOverlay(screen *ebiten.Image) {
	size := g.overlay.Size()
	if v := g.overlay.Version(); g.overlayImg == nil || v != g.overlayVersion {
		img, err := g.overlay.Image()
		if err != nil {
			return
		}
		g.overlayVersion = v
		if rgba, ok := img.(*image.RGBA); ok && len(rgba.Pix) == 4*size.X*size.Y {
			if g.overlayImg == nil {
				g.overlayImg = ebiten.NewImage(size.X, size.Y)
			}
			g.overlayImg.WritePixels(rgba.Pix)
		} else {
			g.overlayImg = ebiten.NewImageFromImage(img)
		}
	}

	x := scene.Width - size.X
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(x), 0)
	screen.DrawImage(g.overlayImg, op)

	if text, ok := g.overlay.Label(); ok {
		ebitenutil.DebugPrintAt(screen, text, x+8, size.Y+8)
	}
}

// Layout fixes the logical screen at the scene size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return scene.Width, scene.Height
}

// Run opens the window and blocks until the game ends. A clean stop
// returns nil.
func Run(g *Game, title string) error {
	ebiten.SetWindowSize(scene.Width, scene.Height)
	ebiten.SetWindowTitle(title)
	ebiten.SetTPS(scene.TPS)
	return ebiten.RunGame(g)
}
