// Package overlay draws the debug view of detected hands: landmark
// connectors and points on a transparent canvas, plus the gesture label.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/recognizer"
)

// Default debug viewport size in pixels.
const (
	DefaultWidth  = 360
	DefaultHeight = 240
)

var (
	connectorColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	landmarkColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

const (
	connectorThickness = 2
	landmarkRadius     = 3
)

// Renderer owns the overlay canvas. It is safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	canvas  gocv.Mat
	width   int
	height  int
	label   string
	visible bool
	version uint64
}

// New creates a Renderer with a transparent width×height canvas.
func New(width, height int) *Renderer {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	canvas := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	return &Renderer{
		canvas: canvas,
		width:  width,
		height: height,
	}
}

// Size returns the canvas dimensions.
func (r *Renderer) Size() image.Point {
	return image.Pt(r.width, r.height)
}

// Project maps a normalized landmark to canvas pixels.
func (r *Renderer) Project(p recognizer.Point3D) image.Point {
	return image.Pt(int(p.X*float64(r.width)), int(p.Y*float64(r.height)))
}

// Render clears the canvas and draws every hand in result.
// The label is shown only while the frame has classifications.
func (r *Renderer) Render(result *recognizer.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
	r.version++

	if result == nil {
		r.label, r.visible = "", false
		return
	}

	for i := range result.Hands {
		hand := &result.Hands[i]
		for _, c := range recognizer.HandConnections {
			gocv.Line(&r.canvas, r.Project(hand.Points[c.From]), r.Project(hand.Points[c.To]), connectorColor, connectorThickness)
		}
		for _, p := range hand.Points {
			gocv.Circle(&r.canvas, r.Project(p), landmarkRadius, landmarkColor, -1)
		}
	}

	if top := result.Top(); top != nil {
		r.label = fmt.Sprintf("Gesture: %s\nConfidence: %s", top.Name, gesture.FormatPercent(top.Score))
		r.visible = true
	} else {
		r.label, r.visible = "", false
	}
}

// Label returns the gesture text and whether it should be displayed.
func (r *Renderer) Label() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.label, r.visible
}

// Version counts Render calls. Callers can compare it to skip copying an
// unchanged canvas.
func (r *Renderer) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Image returns a copy of the canvas with transparency preserved.
func (r *Renderer) Image() (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canvas.ToImage()
}

// JPEG returns the canvas encoded as JPEG over a black background.
func (r *Renderer) JPEG() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(r.canvas, &bgr, gocv.ColorBGRAToBGR)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, bgr)
	if err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close releases the canvas.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canvas.Close()
}
