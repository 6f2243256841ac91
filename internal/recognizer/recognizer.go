// Package recognizer classifies hand gestures in video frames using a
// pretrained MediaPipe GestureRecognizer task.
package recognizer

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/gesture"
)

// Delegate names accepted by the inference backend.
const (
	DelegateGPU = "GPU"
	DelegateCPU = "CPU"
)

// DefaultRuntimeVersion is the MediaPipe release the demo model was built with.
const DefaultRuntimeVersion = "0.10.3"

// ErrNotLoaded is returned when frames are submitted before Load succeeds.
var ErrNotLoaded = errors.New("recognizer is not loaded")

// Recognizer classifies gestures in video frames.
type Recognizer interface {
	// Load starts the inference backend with the model and waits until it
	// is ready, in image running mode.
	Load(ctx context.Context) error
	// SetRunningMode switches between image and video classification.
	SetRunningMode(mode gesture.RunningMode) error
	// RecognizeForVideo classifies one frame. timestampMs must increase
	// strictly between calls.
	RecognizeForVideo(frame *gocv.Mat, timestampMs int64) (*Result, error)
	// Close releases any resources held by the recognizer.
	Close() error
}

// Options holds configuration options for gesture recognition.
type Options struct {
	// ModelPath is the .task model bundle, a local path or an http(s) URL.
	ModelPath string
	// CacheDir receives downloaded model bundles.
	CacheDir string
	// Delegate selects the inference backend, GPU or CPU.
	Delegate string
	// NumHands is the maximum number of hands to classify (default: 1).
	NumHands int
	// Python overrides the interpreter used to run the service.
	Python string
	// Script overrides the location of gesture_service.py.
	Script string
	// RuntimeVersion is the expected MediaPipe version.
	RuntimeVersion string
	// InitTimeout bounds the ready handshake.
	InitTimeout time.Duration
}

// DefaultOptions returns Options with sensible default values.
func DefaultOptions() Options {
	return Options{
		ModelPath:      "resources/gesture_recognizer.task",
		Delegate:       DelegateGPU,
		NumHands:       1,
		RuntimeVersion: DefaultRuntimeVersion,
		InitTimeout:    30 * time.Second,
	}
}

// Result is the output of classifying one frame.
type Result struct {
	// Hands holds the landmarks of each detected hand.
	Hands []Hand `json:"hands"`
	// Gestures holds, per hand, the categories ranked best first.
	Gestures [][]gesture.Classification `json:"gestures"`
}

// Top returns the best classification for the first hand, or nil when
// the frame has no classifications.
func (r *Result) Top() *gesture.Classification {
	if r == nil || len(r.Gestures) == 0 || len(r.Gestures[0]) == 0 {
		return nil
	}
	top := r.Gestures[0][0]
	return &top
}
