package gesture

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunningMode is the recognizer's processing mode.
type RunningMode string

const (
	// ModeImage classifies independent still images.
	ModeImage RunningMode = "image"
	// ModeVideo classifies a timestamped frame sequence.
	ModeVideo RunningMode = "video"
)

// Reader is the read-only view of State used by game logic.
type Reader interface {
	PredictionsStarted() bool
	Current() Label
}

// Change describes a transition of the current label.
type Change struct {
	From       Label     `json:"from"`
	To         Label     `json:"to"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	ModelLoaded        bool        `json:"model_loaded"`
	PredictionsStarted bool        `json:"predictions_started"`
	RunningMode        RunningMode `json:"running_mode"`
	Current            Label       `json:"current"`
	Confidence         float64     `json:"confidence"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// State is the recognition session together with the most recent
// confident gesture. The bridge is the only writer.
type State struct {
	mu                 sync.RWMutex
	modelLoaded        bool
	predictionsStarted bool
	mode               RunningMode
	current            Label
	confidence         float64
	updatedAt          time.Time

	now func() time.Time
}

// NewState returns a State in image mode with no gesture.
func NewState() *State {
	return &State{
		mode:    ModeImage,
		current: None,
		now:     time.Now,
	}
}

// SetModelLoaded marks the recognizer as ready.
func (s *State) SetModelLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelLoaded = true
}

// ModelLoaded reports whether the recognizer finished loading.
func (s *State) ModelLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelLoaded
}

// StartPredictions marks continuous classification as begun and reports
// whether this call was the one that started it.
func (s *State) StartPredictions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.predictionsStarted {
		return false
	}
	s.predictionsStarted = true
	return true
}

// PredictionsStarted reports whether the first frame has been processed.
func (s *State) PredictionsStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.predictionsStarted
}

// SwitchToVideo moves the running mode from image to video.
// It returns false if the mode was already video; the switch never reverts.
func (s *State) SwitchToVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeVideo {
		return false
	}
	s.mode = ModeVideo
	return true
}

// RunningMode returns the current running mode.
func (s *State) RunningMode() RunningMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Current returns the most recent confident gesture.
func (s *State) Current() Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Confidence returns the score of the current gesture, 0 when none.
func (s *State) Confidence() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confidence
}

// Observe applies one frame's top classification for the first hand.
// A nil classification means nothing was detected and resets the label
// to None. A classification below ConfidenceThreshold is ignored.
// Names outside the vocabulary count as None.
func (s *State) Observe(top *Classification) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, confidence := None, 0.0
	if top != nil {
		if !top.Confident() {
			return Change{}, false
		}
		next, _ = ParseLabel(top.Name)
		confidence = top.Score
		if next == None {
			confidence = 0
		}
	}

	prev := s.current
	s.current = next
	s.confidence = confidence
	s.updatedAt = s.now()

	if prev == next {
		return Change{}, false
	}
	return Change{From: prev, To: next, Confidence: confidence, At: s.updatedAt}, true
}

// Snapshot returns a copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ModelLoaded:        s.modelLoaded,
		PredictionsStarted: s.predictionsStarted,
		RunningMode:        s.mode,
		Current:            s.current,
		Confidence:         s.confidence,
		UpdatedAt:          s.updatedAt,
	}
}

// Gate wraps a Reader so gesture control can be paused.
// While disabled it reports that predictions have not started.
type Gate struct {
	r       Reader
	enabled atomic.Bool
}

// NewGate returns an enabled Gate over r.
func NewGate(r Reader) *Gate {
	g := &Gate{r: r}
	g.enabled.Store(true)
	return g
}

// SetEnabled enables or disables gesture control.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Enabled reports whether gesture control is enabled.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// PredictionsStarted implements Reader.
func (g *Gate) PredictionsStarted() bool {
	return g.enabled.Load() && g.r.PredictionsStarted()
}

// Current implements Reader.
func (g *Gate) Current() Label {
	return g.r.Current()
}
