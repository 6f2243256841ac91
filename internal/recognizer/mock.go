package recognizer

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// MockRecognizer is a test implementation of the Recognizer interface.
// It allows tests to control the recognition results.
type MockRecognizer struct {
	mu         sync.Mutex
	result     *Result
	err        error
	loadErr    error
	loaded     bool
	mode       gesture.RunningMode
	modeSwitch int
	timestamps []int64
	closed     bool
}

// NewMockRecognizer creates a new MockRecognizer instance.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{mode: gesture.ModeImage}
}

// SetResult sets the result that will be returned by RecognizeForVideo.
func (m *MockRecognizer) SetResult(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetError sets the error that will be returned by RecognizeForVideo.
func (m *MockRecognizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError sets the error that will be returned by Load.
func (m *MockRecognizer) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// Load marks the mock as loaded unless ctx is done or a load error is set.
func (m *MockRecognizer) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

// SetRunningMode records the mode and counts actual transitions.
func (m *MockRecognizer) SetRunningMode(mode gesture.RunningMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}
	if mode != m.mode {
		m.mode = mode
		m.modeSwitch++
	}
	return nil
}

// RecognizeForVideo returns the pre-configured result or error.
func (m *MockRecognizer) RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	m.timestamps = append(m.timestamps, timestampMs)
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &Result{}, nil
	}
	return m.result, nil
}

// Close is a no-op for the mock recognizer.
func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Mode returns the current running mode.
func (m *MockRecognizer) Mode() gesture.RunningMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// ModeSwitches returns how many times the running mode changed.
func (m *MockRecognizer) ModeSwitches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modeSwitch
}

// Timestamps returns the timestamps of every submitted frame.
func (m *MockRecognizer) Timestamps() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.timestamps...)
}

// Calls returns how many frames were submitted.
func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timestamps)
}

// Closed reports whether Close was called.
func (m *MockRecognizer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SingleHand returns a Result with one hand classified as name.
func SingleHand(name string, score float64) *Result {
	return &Result{
		Hands:    []Hand{OpenHandLandmarks()},
		Gestures: [][]gesture.Classification{{{Name: name, Score: score}}},
	}
}

// OpenHandLandmarks returns a preset right hand with all fingers extended
// upward, in normalized image coordinates.
func OpenHandLandmarks() Hand {
	hand := Hand{
		Handedness: "Right",
		Score:      0.95,
	}

	hand.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	hand.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	hand.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	hand.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	hand.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	hand.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68}
	hand.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55}
	hand.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45}
	hand.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35}

	hand.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66}
	hand.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52}
	hand.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40}
	hand.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28}

	hand.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68}
	hand.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55}
	hand.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45}
	hand.Points[RingTip] = Point3D{X: 0.42, Y: 0.35}

	hand.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70}
	hand.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60}
	hand.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50}
	hand.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42}

	return hand
}
