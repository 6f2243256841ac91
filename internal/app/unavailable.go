package app

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/ayusman/gesturejump/internal/gesture"
	"github.com/ayusman/gesturejump/internal/recognizer"
)

// unavailableRecognizer stands in when the recognizer service cannot be
// created, so the failure surfaces from Initialize like any load error.
type unavailableRecognizer struct {
	err error
}

func (r unavailableRecognizer) Load(context.Context) error { return r.err }

func (r unavailableRecognizer) SetRunningMode(gesture.RunningMode) error {
	return recognizer.ErrNotLoaded
}

func (r unavailableRecognizer) RecognizeForVideo(*gocv.Mat, int64) (*recognizer.Result, error) {
	return nil, recognizer.ErrNotLoaded
}

func (r unavailableRecognizer) Close() error { return nil }
