// Package app wires the gesture bridge, the scene, the session recorder,
// the debug server and the tray into one application.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/bridge"
	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/config"
	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/overlay"
	"github.com/ayusman/gesturejump/internal/recognizer"
	"github.com/ayusman/gesturejump/internal/recorder"
	"github.com/ayusman/gesturejump/internal/scene"
	"github.com/ayusman/gesturejump/internal/server"
	"github.com/ayusman/gesturejump/internal/store"
	"github.com/ayusman/gesturejump/internal/tray"
)

// User-facing messages.
const (
	UnsupportedMessage = "Your system does not expose a webcam; gesture control is disabled"
	FatalMessage       = "The gesture recognizer failed to load; exiting"
)

// Options holds the application's configuration and optional overrides.
type Options struct {
	Config *config.Config
	Log    *logrus.Logger
	// Camera, Recognizer and CameraSupport replace the hardware-backed
	// defaults when set.
	Camera        capture.Camera
	Recognizer    recognizer.Recognizer
	CameraSupport func(deviceID int) bool
}

// App is the main application.
type App struct {
	cfg     *config.Config
	log     *logrus.Logger
	state   *gesture.State
	gate    *gesture.Gate
	overlay *overlay.Renderer
	bridge  *bridge.Bridge
	scene   *scene.Scene

	store    *store.Store
	session  *store.Session
	recorder *recorder.Recorder
	server   *server.Server

	newTray func(tray.Toggler) trayMenu

	mu        sync.Mutex
	notifiers []bridge.Notifier
	onFatal   []func(err error, msg string)
	closed    bool
}

// New creates an App. It opens the store and starts a session row but
// touches neither the camera nor the recognizer.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		state:   gesture.NewState(),
		overlay: overlay.New(overlay.DefaultWidth, overlay.DefaultHeight),
		newTray: newTrayMenu,
	}
	a.gate = gesture.NewGate(a.state)

	camera := opts.Camera
	if camera == nil {
		camera = capture.NewCamera(cfg.Camera.Device)
	}
	rec := opts.Recognizer
	if rec == nil {
		mp, err := recognizer.NewMediaPipeRecognizer(log, cfg.RecognizerOptions())
		if err != nil {
			rec = unavailableRecognizer{err: err}
		} else {
			rec = mp
		}
	}

	a.bridge = bridge.New(bridge.Config{
		Log:           log,
		Camera:        camera,
		Recognizer:    rec,
		State:         a.state,
		Overlay:       a.overlay,
		Notifier:      a,
		DeviceID:      cfg.Camera.Device,
		RefreshRate:   cfg.Camera.RefreshRate,
		CameraSupport: opts.CameraSupport,
	})

	a.scene = scene.New(a.gate)
	a.scene.Build()

	if err := a.openStore(); err != nil {
		a.overlay.Close()
		return nil, err
	}

	if cfg.Server.Enabled {
		a.server = server.New(server.Config{
			Log:            log,
			Store:          a.store,
			State:          a.state,
			Player:         a.scene,
			Frames:         a.overlay,
			SessionID:      a.session.ID,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
		a.bridge.Subscribe(a.server.Hub().PublishChange)
		a.bridge.OnResult(a.server.Hub().PublishResult)
	}

	return a, nil
}

func (a *App) openStore() error {
	s, err := store.New(a.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	sess := &store.Session{}
	if err := s.Sessions().Create(sess); err != nil {
		s.Close()
		return fmt.Errorf("create session: %w", err)
	}

	rec, err := recorder.New(a.log, s.Events(), sess.ID, a.cfg.Recorder.Workers)
	if err != nil {
		s.Close()
		return err
	}

	a.store, a.session, a.recorder = s, sess, rec
	a.bridge.Subscribe(rec.Record)
	a.log.WithField("session", sess.ID).Info("session started")
	return nil
}

// AddNotifier registers n to receive user-facing warnings.
func (a *App) AddNotifier(n bridge.Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

// OnFatal registers fn to be called when startup fails irrecoverably.
func (a *App) OnFatal(fn func(err error, msg string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onFatal = append(a.onFatal, fn)
}

// Warn logs msg and forwards it to every notifier.
func (a *App) Warn(msg string) {
	a.log.Warn(msg)

	a.mu.Lock()
	notifiers := append([]bridge.Notifier(nil), a.notifiers...)
	a.mu.Unlock()

	for _, n := range notifiers {
		n.Warn(msg)
	}
}

// Initialize performs the post-start camera check. Without a camera it
// warns and returns nil; the scene keeps running without gesture control.
// Otherwise it loads the recognizer and starts the frame loop. A recognizer
// failure is reported as fatal and returned wrapped in
// bridge.ErrRecognizerInit, unless ctx was cancelled during the load.
func (a *App) Initialize(ctx context.Context) error {
	if !a.bridge.HasCameraSupport() {
		a.Warn(UnsupportedMessage)
		return nil
	}

	if err := a.bridge.InitializeRecognizer(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.log.Info("recognizer load cancelled")
			return err
		}
		a.fail(err)
		return err
	}

	if err := a.bridge.StartCamera(ctx); err != nil {
		if errors.Is(err, bridge.ErrCameraUnavailable) {
			return nil
		}
		return err
	}

	if err := a.store.Sessions().SetCameraAvailable(a.session.ID, true); err != nil {
		a.log.Warnf("update session: %v", err)
	}
	return nil
}

// fail reports a fatal startup error.
func (a *App) fail(err error) {
	a.log.Errorf("fatal: %v", err)

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "startup")
		scope.SetTag("session", a.session.ID)
	})
	hub.CaptureException(err)
	hub.Flush(2 * time.Second)

	a.mu.Lock()
	handlers := append([]func(error, string){}, a.onFatal...)
	a.mu.Unlock()

	for _, fn := range handlers {
		fn(err, FatalMessage)
	}
}

// State returns the shared gesture state.
func (a *App) State() *gesture.State {
	return a.state
}

// Gate returns the gesture control toggle.
func (a *App) Gate() *gesture.Gate {
	return a.gate
}

// Scene returns the demo scene.
func (a *App) Scene() *scene.Scene {
	return a.scene
}

// Overlay returns the hand overlay renderer.
func (a *App) Overlay() *overlay.Renderer {
	return a.overlay
}

// Bridge returns the gesture bridge.
func (a *App) Bridge() *bridge.Bridge {
	return a.bridge
}

// Session returns the current session record.
func (a *App) Session() *store.Session {
	return a.session
}

// Store returns the session store.
func (a *App) Store() *store.Store {
	return a.store
}

// Server returns the debug server, nil when disabled.
func (a *App) Server() *server.Server {
	return a.server
}

// Close stops the bridge, flushes the recorder, shuts the server down and
// ends the session.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var errs []error
	if err := a.bridge.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recognizer: %w", err))
	}
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	a.recorder.Close()
	if recorded, dropped, failed := a.recorder.Stats(); dropped > 0 || failed > 0 {
		a.log.Warnf("recorded %d gesture changes, dropped %d, failed %d", recorded, dropped, failed)
	}
	if err := a.store.Sessions().End(a.session.ID, time.Now()); err != nil {
		errs = append(errs, fmt.Errorf("end session: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.overlay.Close()

	a.log.WithField("session", a.session.ID).Info("session ended")
	return errors.Join(errs...)
}
