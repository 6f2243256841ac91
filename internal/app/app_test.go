package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/bridge"
	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/config"
	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/recognizer"
	"github.com/ayusman/gesturejump/internal/scene"
	"github.com/ayusman/gesturejump/internal/store"
	"github.com/ayusman/gesturejump/internal/tray"
)

type warnings struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnings) Warn(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
}

func (w *warnings) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.msgs...)
}

type testApp struct {
	app    *App
	camera *capture.MockCamera
	rec    *recognizer.MockRecognizer
	warn   *warnings
	dbPath string
}

func newTestApp(t *testing.T, cameraSupported, serverEnabled bool) *testApp {
	t.Helper()

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Server.Enabled = serverEnabled
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Camera.RefreshRate = 200
	cfg.Recorder.Workers = 2

	log := logrus.New()
	log.SetOutput(io.Discard)

	ta := &testApp{
		camera: capture.NewMockCamera([]capture.MockFrame{{Mat: &mat, Timestamp: time.Millisecond}}, true),
		rec:    recognizer.NewMockRecognizer(),
		warn:   &warnings{},
		dbPath: cfg.Store.Path,
	}

	a, err := New(Options{
		Config:        cfg,
		Log:           log,
		Camera:        ta.camera,
		Recognizer:    ta.rec,
		CameraSupport: func(int) bool { return cameraSupported },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.AddNotifier(ta.warn)
	t.Cleanup(func() { a.Close() })
	ta.app = a
	return ta
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_New(t *testing.T) {
	ta := newTestApp(t, true, false)

	if ta.app.Session() == nil || ta.app.Session().ID == "" {
		t.Fatal("expected a session to be created")
	}
	if ta.app.Server() != nil {
		t.Error("Server() should be nil when disabled")
	}
	if got := ta.app.Scene().PlayerPosition(); got != scene.PlayerCenter {
		t.Errorf("PlayerPosition() = %v, want %v", got, scene.PlayerCenter)
	}
	if ta.camera.Opens() != 0 {
		t.Error("New() should not open the camera")
	}
}

func TestApp_Initialize_NoCamera(t *testing.T) {
	ta := newTestApp(t, false, false)

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	msgs := ta.warn.list()
	if len(msgs) != 1 || msgs[0] != UnsupportedMessage {
		t.Errorf("warnings = %v, want [%q]", msgs, UnsupportedMessage)
	}
	if ta.rec.Calls() != 0 || ta.camera.Opens() != 0 {
		t.Error("recognizer and camera should stay untouched")
	}
	if ta.app.State().ModelLoaded() {
		t.Error("model should not be loaded")
	}

	// The scene still runs with physics only.
	for i := 0; i < 120; i++ {
		ta.app.Scene().Tick(1.0 / scene.TPS)
	}
	if got := ta.app.Scene().PlayerVelocity()[1]; got < 0 {
		t.Errorf("player moving up without gesture control: vy = %v", got)
	}
}

func TestApp_Initialize_RockJumps(t *testing.T) {
	ta := newTestApp(t, true, false)
	ta.rec.SetResult(recognizer.SingleHand("Rock", 0.82))

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	waitFor(t, "rock", func() bool { return ta.app.State().Current() == gesture.Rock })

	if mode := ta.app.State().RunningMode(); mode != gesture.ModeVideo {
		t.Errorf("RunningMode() = %q, want %q", mode, gesture.ModeVideo)
	}

	ta.app.Scene().Tick(0)
	if got := ta.app.Scene().PlayerVelocity()[1]; got != scene.JumpVelocity {
		t.Errorf("vy = %v, want %v", got, scene.JumpVelocity)
	}

	sess, err := ta.app.Store().Sessions().GetByID(ta.app.Session().ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !sess.CameraAvailable {
		t.Error("session should record the camera as available")
	}
}

func TestApp_Initialize_GateDisabled(t *testing.T) {
	ta := newTestApp(t, true, false)
	ta.rec.SetResult(recognizer.SingleHand("Rock", 0.9))
	ta.app.Gate().SetEnabled(false)

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	waitFor(t, "rock", func() bool { return ta.app.State().Current() == gesture.Rock })

	ta.app.Scene().Tick(0)
	if got := ta.app.Scene().PlayerVelocity()[1]; got == scene.JumpVelocity {
		t.Error("player jumped with gesture control disabled")
	}
}

func TestApp_Initialize_RecognizerFailure(t *testing.T) {
	ta := newTestApp(t, true, false)
	ta.rec.SetLoadError(errors.New("model missing"))

	var gotErr error
	var gotMsg string
	ta.app.OnFatal(func(err error, msg string) {
		gotErr, gotMsg = err, msg
	})

	err := ta.app.Initialize(context.Background())
	if !errors.Is(err, bridge.ErrRecognizerInit) {
		t.Fatalf("Initialize() error = %v, want ErrRecognizerInit", err)
	}
	if !errors.Is(gotErr, bridge.ErrRecognizerInit) {
		t.Errorf("fatal handler error = %v", gotErr)
	}
	if gotMsg != FatalMessage {
		t.Errorf("fatal handler msg = %q, want %q", gotMsg, FatalMessage)
	}
	if ta.camera.Opens() != 0 {
		t.Error("camera should not open after a recognizer failure")
	}
}

func TestApp_Initialize_CameraDenied(t *testing.T) {
	ta := newTestApp(t, true, false)
	ta.camera.SetOpenError(errors.New("permission denied"))

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	msgs := ta.warn.list()
	if len(msgs) != 1 || msgs[0] != bridge.CameraErrorMessage {
		t.Errorf("warnings = %v, want [%q]", msgs, bridge.CameraErrorMessage)
	}

	sess, err := ta.app.Store().Sessions().GetByID(ta.app.Session().ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.CameraAvailable {
		t.Error("session should not record the camera as available")
	}
}

func TestApp_Close_RecordsSession(t *testing.T) {
	ta := newTestApp(t, true, false)
	ta.rec.SetResult(recognizer.SingleHand("Rock", 0.9))

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	waitFor(t, "rock", func() bool { return ta.app.State().Current() == gesture.Rock })

	id := ta.app.Session().ID
	if err := ta.app.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ta.app.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !ta.rec.Closed() {
		t.Error("recognizer should be closed")
	}
	if ta.camera.IsOpen() {
		t.Error("camera should be closed")
	}

	s, err := store.New(ta.dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	sess, err := s.Sessions().GetByID(id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.EndedAt == nil {
		t.Error("session should be ended")
	}

	events, err := s.Events().ListBySession(id)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Label != gesture.Rock {
		t.Errorf("Label = %q, want %q", events[0].Label, gesture.Rock)
	}
}

func TestApp_ServerState(t *testing.T) {
	ta := newTestApp(t, true, true)
	ta.rec.SetResult(recognizer.SingleHand("Paper", 0.75))

	if err := ta.app.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	waitFor(t, "paper", func() bool { return ta.app.State().Current() == gesture.Paper })

	srv := httptest.NewServer(ta.app.Server())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Current   string `json:"current"`
		Percent   string `json:"percent"`
		SessionID string `json:"session_id"`
		Player    *struct {
			Position struct{ X, Y float64 }
		} `json:"player"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if body.Current != "paper" {
		t.Errorf("current = %q, want paper", body.Current)
	}
	if body.SessionID != ta.app.Session().ID {
		t.Errorf("session_id = %q, want %q", body.SessionID, ta.app.Session().ID)
	}
	if body.Player == nil {
		t.Error("expected player in state")
	}
}

func TestApp_RunHeadless(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Run("runs until cancelled", func(t *testing.T) {
		ta := newTestApp(t, true, true)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		start := ta.app.Scene().PlayerPosition()
		if err := ta.app.RunHeadless(ctx, false); err != nil {
			t.Fatalf("RunHeadless() error = %v", err)
		}
		if got := ta.app.Scene().PlayerPosition(); got == start {
			t.Error("scene did not advance")
		}
	})

	t.Run("returns fatal startup error", func(t *testing.T) {
		ta := newTestApp(t, true, false)
		ta.rec.SetLoadError(errors.New("boom"))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := ta.app.RunHeadless(ctx, false)
		if !errors.Is(err, bridge.ErrRecognizerInit) {
			t.Errorf("RunHeadless() error = %v, want ErrRecognizerInit", err)
		}
		if ctx.Err() != nil {
			t.Error("RunHeadless() should return before the deadline")
		}
	})
}

func TestApp_DebugURL(t *testing.T) {
	ta := newTestApp(t, false, false)

	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080/"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			ta.app.cfg.Server.Addr = tt.addr
			if got := ta.app.DebugURL(); got != tt.want {
				t.Errorf("DebugURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeTray struct {
	warnings
	mu      sync.Mutex
	onQuit  func()
	changes []gesture.Change
	quit    chan struct{}
	once    sync.Once
}

func newFakeTray() *fakeTray {
	return &fakeTray{quit: make(chan struct{})}
}

func (f *fakeTray) SetLastGesture(c gesture.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
}

func (f *fakeTray) OnQuit(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onQuit = fn
}

func (f *fakeTray) OnOpen(func()) {}

// Run blocks like systray until Quit, or until the first warning arrives,
// which it treats as the user choosing Quit.
func (f *fakeTray) Run() {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-f.quit:
			return
		case <-deadline:
			return
		case <-time.After(5 * time.Millisecond):
			if len(f.list()) > 0 {
				f.mu.Lock()
				quit := f.onQuit
				f.mu.Unlock()
				quit()
				return
			}
		}
	}
}

func (f *fakeTray) Quit() {
	f.once.Do(func() { close(f.quit) })
}

func TestApp_RunHeadless_TrayReceivesStartupWarning(t *testing.T) {
	ta := newTestApp(t, false, false)
	menu := newFakeTray()
	ta.app.newTray = func(tray.Toggler) trayMenu { return menu }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ta.app.RunHeadless(ctx, true); err != nil {
		t.Fatalf("RunHeadless() error = %v", err)
	}

	msgs := menu.list()
	if len(msgs) != 1 || msgs[0] != UnsupportedMessage {
		t.Errorf("tray warnings = %v, want [%q]", msgs, UnsupportedMessage)
	}
	if ctx.Err() != nil {
		t.Error("RunHeadless() should return when the tray quits")
	}
}

func TestApp_Initialize_Cancelled(t *testing.T) {
	ta := newTestApp(t, true, false)

	fatalCalled := false
	ta.app.OnFatal(func(error, string) { fatalCalled = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ta.app.Initialize(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Initialize() error = %v, want context.Canceled", err)
	}
	if fatalCalled {
		t.Error("a cancelled load should not be reported as fatal")
	}
	if ta.camera.Opens() != 0 {
		t.Error("camera should not open after a cancelled load")
	}

	t.Run("headless exits cleanly", func(t *testing.T) {
		ta := newTestApp(t, true, false)
		if err := ta.app.RunHeadless(ctx, false); err != nil {
			t.Errorf("RunHeadless() error = %v, want nil", err)
		}
	})
}
