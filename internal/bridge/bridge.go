// Package bridge connects the camera to the gesture recognizer and keeps
// the shared gesture state current, one frame per display refresh.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/overlay"
	"github.com/ayusman/gesturejump/internal/recognizer"
)

// DefaultRefreshRate is the frame loop rate in Hz.
const DefaultRefreshRate = 60

// User-facing warnings.
const (
	NotReadyMessage    = "Please wait for the gesture recognizer to load"
	CameraErrorMessage = "Could not access the webcam; gesture control is disabled"
)

var (
	// ErrRecognizerInit wraps any failure to load the model or backend.
	ErrRecognizerInit = errors.New("gesture recognizer failed to initialize")
	// ErrRecognizerNotReady is returned by StartCamera before the model is loaded.
	ErrRecognizerNotReady = errors.New("gesture recognizer is not ready")
	// ErrCameraUnavailable is returned when the camera cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
)

// Notifier shows warnings to the user.
type Notifier interface {
	Warn(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Warn implements Notifier.
func (f NotifierFunc) Warn(msg string) { f(msg) }

// Config holds the bridge's collaborators and settings.
type Config struct {
	Log        *logrus.Logger
	Camera     capture.Camera
	Recognizer recognizer.Recognizer
	State      *gesture.State
	Overlay    *overlay.Renderer
	Notifier   Notifier
	DeviceID   int
	// RefreshRate is the frame loop rate in Hz (default 60).
	RefreshRate int
	// CameraSupport overrides capture.HasCameraSupport.
	CameraSupport func(deviceID int) bool
}

// Bridge drives the recognizer from the camera.
type Bridge struct {
	log           *logrus.Logger
	camera        capture.Camera
	recognizer    recognizer.Recognizer
	state         *gesture.State
	overlay       *overlay.Renderer
	notifier      Notifier
	deviceID      int
	interval      time.Duration
	cameraSupport func(int) bool
	now           func() time.Time

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	onChange []func(gesture.Change)
	onResult []func(*recognizer.Result)

	// Owned by the frame loop.
	processed     bool
	lastVideoTime time.Duration
	lastTimestamp int64
	last          *recognizer.Result
}

// New creates a Bridge. State and Overlay are created when nil.
func New(cfg Config) *Bridge {
	rate := cfg.RefreshRate
	if rate <= 0 {
		rate = DefaultRefreshRate
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.State == nil {
		cfg.State = gesture.NewState()
	}
	if cfg.Overlay == nil {
		cfg.Overlay = overlay.New(overlay.DefaultWidth, overlay.DefaultHeight)
	}
	if cfg.Notifier == nil {
		log := cfg.Log
		cfg.Notifier = NotifierFunc(func(msg string) { log.Warn(msg) })
	}
	if cfg.CameraSupport == nil {
		cfg.CameraSupport = capture.HasCameraSupport
	}

	return &Bridge{
		log:           cfg.Log,
		camera:        cfg.Camera,
		recognizer:    cfg.Recognizer,
		state:         cfg.State,
		overlay:       cfg.Overlay,
		notifier:      cfg.Notifier,
		deviceID:      cfg.DeviceID,
		interval:      time.Second / time.Duration(rate),
		cameraSupport: cfg.CameraSupport,
		now:           time.Now,
	}
}

// State returns the shared gesture state.
func (b *Bridge) State() *gesture.State {
	return b.state
}

// Overlay returns the debug overlay renderer.
func (b *Bridge) Overlay() *overlay.Renderer {
	return b.overlay
}

// Subscribe registers fn to be called on every change of the current gesture.
// Callbacks run on the frame loop and must not block.
func (b *Bridge) Subscribe(fn func(gesture.Change)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, fn)
}

// OnResult registers fn to be called with every processed frame's result.
// Callbacks run on the frame loop and must not block.
func (b *Bridge) OnResult(fn func(*recognizer.Result)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResult = append(b.onResult, fn)
}

// HasCameraSupport reports whether the host exposes a camera device.
func (b *Bridge) HasCameraSupport() bool {
	return b.cameraSupport(b.deviceID)
}

// InitializeRecognizer loads the model and inference backend.
// It must succeed before StartCamera.
func (b *Bridge) InitializeRecognizer(ctx context.Context) error {
	if b.state.ModelLoaded() {
		return nil
	}

	start := time.Now()
	if err := b.recognizer.Load(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRecognizerInit, err)
	}

	b.state.SetModelLoaded()
	b.log.Infof("gesture recognizer loaded in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// StartCamera opens the camera and starts the frame loop.
// The loop stops when ctx is cancelled or Stop is called.
func (b *Bridge) StartCamera(ctx context.Context) error {
	if !b.state.ModelLoaded() {
		b.notifier.Warn(NotReadyMessage)
		return ErrRecognizerNotReady
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Don't start if already running
	if b.running {
		return nil
	}

	if err := b.camera.Open(); err != nil {
		b.log.Warnf("camera %d unavailable: %v", b.deviceID, err)
		b.notifier.Warn(CameraErrorMessage)
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(loopCtx, b.done)

	b.log.Infof("camera %d started", b.deviceID)
	return nil
}

// Running reports whether the frame loop is active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Stop halts the frame loop, waits for it to exit and closes the camera.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	cancel, done := b.cancel, b.done
	b.running = false
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	<-done

	if err := b.camera.Close(); err != nil {
		b.log.Warnf("error closing camera: %v", err)
	}
	b.log.Info("camera stopped")
}

// Close stops the loop and releases the recognizer.
func (b *Bridge) Close() error {
	b.Stop()
	if b.recognizer == nil {
		return nil
	}
	return b.recognizer.Close()
}
