package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/recognizer"
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

type fixture struct {
	bridge *Bridge
	camera *capture.MockCamera
	rec    *recognizer.MockRecognizer
	warn   *warnings
	mats   []*gocv.Mat
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })

	f := &fixture{
		camera: capture.NewMockCamera([]capture.MockFrame{{Mat: &mat, Timestamp: time.Millisecond}}, true),
		rec:    recognizer.NewMockRecognizer(),
		warn:   &warnings{},
	}
	f.bridge = New(Config{
		Log:         quietLogger(),
		Camera:      f.camera,
		Recognizer:  f.rec,
		Notifier:    f.warn,
		RefreshRate: 200,
	})
	t.Cleanup(func() {
		f.bridge.Close()
		f.bridge.Overlay().Close()
	})
	return f
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	if err := f.bridge.InitializeRecognizer(context.Background()); err != nil {
		t.Fatalf("InitializeRecognizer() error = %v", err)
	}
}

// frame builds a frame at stream position ms.
func frame(t *testing.T, ms int) *capture.Frame {
	t.Helper()
	f := &capture.Frame{Mat: gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3), Timestamp: time.Duration(ms) * time.Millisecond}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestBridge_StartCamera_BeforeRecognizerReady(t *testing.T) {
	f := newFixture(t)

	err := f.bridge.StartCamera(context.Background())
	if !errors.Is(err, ErrRecognizerNotReady) {
		t.Fatalf("StartCamera() error = %v, want %v", err, ErrRecognizerNotReady)
	}

	if got := f.warn.list(); len(got) != 1 || got[0] != NotReadyMessage {
		t.Errorf("warnings = %v, want [%q]", got, NotReadyMessage)
	}
	if f.camera.Opens() != 0 {
		t.Errorf("camera opened %d times, want 0", f.camera.Opens())
	}
	if f.bridge.Running() {
		t.Error("loop should not be running")
	}
}

func TestBridge_InitializeRecognizer_Failure(t *testing.T) {
	f := newFixture(t)
	backend := errors.New("GPU delegate is not available")
	f.rec.SetLoadError(backend)

	err := f.bridge.InitializeRecognizer(context.Background())
	if !errors.Is(err, ErrRecognizerInit) {
		t.Errorf("error = %v, want %v", err, ErrRecognizerInit)
	}
	if !errors.Is(err, backend) {
		t.Errorf("error = %v, should wrap %v", err, backend)
	}
	if f.bridge.State().ModelLoaded() {
		t.Error("model should not be marked loaded")
	}
}

func TestBridge_StartCamera_Denied(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	denied := errors.New("permission denied")
	f.camera.SetOpenError(denied)

	err := f.bridge.StartCamera(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) || !errors.Is(err, denied) {
		t.Fatalf("StartCamera() error = %v, want %v wrapping %v", err, ErrCameraUnavailable, denied)
	}
	if got := f.warn.list(); len(got) != 1 || got[0] != CameraErrorMessage {
		t.Errorf("warnings = %v, want [%q]", got, CameraErrorMessage)
	}
	if f.bridge.Running() {
		t.Error("loop should not be running")
	}
}

func TestBridge_HasCameraSupport(t *testing.T) {
	var asked int
	b := New(Config{
		Log:           quietLogger(),
		DeviceID:      3,
		CameraSupport: func(id int) bool { asked = id; return true },
	})
	defer b.Overlay().Close()

	if !b.HasCameraSupport() {
		t.Error("HasCameraSupport() = false, want true")
	}
	if asked != 3 {
		t.Errorf("asked about device %d, want 3", asked)
	}
}

func TestBridge_ProcessFrame_RunningMode(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	state := f.bridge.State()

	if state.RunningMode() != gesture.ModeImage {
		t.Fatalf("initial mode = %q, want image", state.RunningMode())
	}

	for i := 1; i <= 5; i++ {
		f.bridge.processFrame(frame(t, i))
		if state.RunningMode() != gesture.ModeVideo {
			t.Fatalf("mode after frame %d = %q, want video", i, state.RunningMode())
		}
	}

	if f.rec.ModeSwitches() != 1 {
		t.Errorf("recognizer mode switched %d times, want 1", f.rec.ModeSwitches())
	}
	if !state.PredictionsStarted() {
		t.Error("predictions should have started")
	}
}

func TestBridge_ProcessFrame_GestureState(t *testing.T) {
	t.Run("confident rock sets rock", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.rec.SetResult(recognizer.SingleHand("Rock", 0.82))

		f.bridge.processFrame(frame(t, 1))

		if got := f.bridge.State().Current(); got != gesture.Rock {
			t.Errorf("Current() = %q, want %q", got, gesture.Rock)
		}
	})

	t.Run("low confidence keeps previous", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.rec.SetResult(recognizer.SingleHand("Fox", 0.9))
		f.bridge.processFrame(frame(t, 1))

		for i, score := range []float64{0.0, 0.25, 0.30, 0.4999} {
			f.rec.SetResult(recognizer.SingleHand("Paper", score))
			f.bridge.processFrame(frame(t, 2+i))
			if got := f.bridge.State().Current(); got != gesture.Fox {
				t.Errorf("score %v: Current() = %q, want %q", score, got, gesture.Fox)
			}
		}
	})

	t.Run("no hands resets to none", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.rec.SetResult(recognizer.SingleHand("Rock", 0.9))
		f.bridge.processFrame(frame(t, 1))

		f.rec.SetResult(&recognizer.Result{})
		f.bridge.processFrame(frame(t, 2))

		if got := f.bridge.State().Current(); got != gesture.None {
			t.Errorf("Current() = %q, want %q", got, gesture.None)
		}
	})

	t.Run("recognition error leaves state alone", func(t *testing.T) {
		f := newFixture(t)
		f.load(t)
		f.rec.SetResult(recognizer.SingleHand("Scissors", 0.9))
		f.bridge.processFrame(frame(t, 1))

		f.rec.SetError(errors.New("inference failed"))
		f.bridge.processFrame(frame(t, 2))

		if got := f.bridge.State().Current(); got != gesture.Scissors {
			t.Errorf("Current() = %q, want %q", got, gesture.Scissors)
		}
	})
}

func TestBridge_ProcessFrame_SkipsRepeatedTimestamp(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.rec.SetResult(recognizer.SingleHand("Rock", 0.9))

	f.bridge.processFrame(frame(t, 10))
	// The display refreshed again before the video produced a new frame.
	f.rec.SetResult(&recognizer.Result{})
	f.bridge.processFrame(frame(t, 10))

	if f.rec.Calls() != 1 {
		t.Errorf("recognizer called %d times, want 1", f.rec.Calls())
	}
	if got := f.bridge.State().Current(); got != gesture.Rock {
		t.Errorf("Current() = %q, want previous result %q", got, gesture.Rock)
	}

	f.bridge.processFrame(frame(t, 11))
	if f.rec.Calls() != 2 {
		t.Errorf("recognizer called %d times, want 2", f.rec.Calls())
	}
	if got := f.bridge.State().Current(); got != gesture.None {
		t.Errorf("Current() = %q, want %q", got, gesture.None)
	}
}

func TestBridge_ProcessFrame_TimestampsIncrease(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	frozen := time.UnixMilli(1_700_000_000_000)
	f.bridge.now = func() time.Time { return frozen }

	for i := 1; i <= 4; i++ {
		f.bridge.processFrame(frame(t, i))
	}

	ts := f.rec.Timestamps()
	if len(ts) != 4 {
		t.Fatalf("got %d timestamps, want 4", len(ts))
	}
	if ts[0] != frozen.UnixMilli() {
		t.Errorf("first timestamp = %d, want %d", ts[0], frozen.UnixMilli())
	}
	for i := 1; i < len(ts); i++ {
		if ts[i] <= ts[i-1] {
			t.Errorf("timestamp %d = %d not greater than %d", i, ts[i], ts[i-1])
		}
	}
}

func TestBridge_Listeners(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	var changes []gesture.Change
	var results int
	f.bridge.Subscribe(func(c gesture.Change) { changes = append(changes, c) })
	f.bridge.OnResult(func(*recognizer.Result) { results++ })

	f.rec.SetResult(recognizer.SingleHand("Rock", 0.9))
	f.bridge.processFrame(frame(t, 1))
	f.bridge.processFrame(frame(t, 2))
	f.rec.SetResult(&recognizer.Result{})
	f.bridge.processFrame(frame(t, 3))

	if results != 3 {
		t.Errorf("result callbacks = %d, want 3", results)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(changes))
	}
	if changes[0].To != gesture.Rock || changes[1].To != gesture.None {
		t.Errorf("changes = %+v, want rock then none", changes)
	}
}

func TestBridge_LoopStartStop(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	f.rec.SetResult(recognizer.SingleHand("Rock", 0.9))

	if err := f.bridge.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	if !f.bridge.Running() {
		t.Fatal("loop should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.bridge.State().Current() != gesture.Rock {
		if time.Now().After(deadline) {
			t.Fatal("frame loop did not classify a frame in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.bridge.Stop()
	f.bridge.Stop()

	if f.bridge.Running() {
		t.Error("loop should be stopped")
	}
	if f.camera.IsOpen() {
		t.Error("camera should be closed after Stop()")
	}

	calls := f.rec.Calls()
	time.Sleep(30 * time.Millisecond)
	if f.rec.Calls() != calls {
		t.Error("recognizer called after Stop()")
	}
}

func TestBridge_LoopStopsWithContext(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.bridge.StartCamera(ctx); err != nil {
		t.Fatalf("StartCamera() error = %v", err)
	}
	cancel()

	select {
	case <-f.bridge.done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after context cancel")
	}
}
