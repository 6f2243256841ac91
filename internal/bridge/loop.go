package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/gesturejump/internal/capture"
	"github.com/ayusman/gesturejump/internal/gesture"
)

// run is the frame loop. It ticks at the refresh rate and processes the
// camera's current frame until ctx is cancelled. Ticks before the stream
// has data are skipped.
func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := recover(); err != nil {
			b.log.Errorf("frame loop panic: %v", err)
			hub := sentry.CurrentHub().Clone()
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("component", "bridge")
			})
			hub.Recover(fmt.Errorf("%v", err))
			hub.Flush(2 * time.Second)
		}
	}()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := b.camera.ReadFrame()
			if err != nil {
				b.log.Debugf("no frame: %v", err)
				continue
			}
			b.processFrame(frame)
			frame.Close()
		}
	}
}

// processFrame classifies frame and publishes the outcome.
//
// Steps:
// 1. First call: mark predictions started, switch recognizer to video mode
// 2. Reuse the previous result if the stream position has not advanced
// 3. Otherwise classify with a strictly increasing wall-clock timestamp
// 4. Redraw the overlay
// 5. Update the gesture state from the first hand's top category
func (b *Bridge) processFrame(frame *capture.Frame) {
	if b.state.StartPredictions() {
		b.log.Info("gesture predictions started")
	}
	if b.state.SwitchToVideo() {
		if err := b.recognizer.SetRunningMode(gesture.ModeVideo); err != nil {
			b.log.Errorf("switch recognizer to video mode: %v", err)
		}
	}

	if !b.processed || frame.Timestamp != b.lastVideoTime {
		b.processed = true
		b.lastVideoTime = frame.Timestamp

		result, err := b.recognizer.RecognizeForVideo(&frame.Mat, b.nextTimestamp())
		if err != nil {
			b.log.Warnf("recognize frame: %v", err)
			return
		}
		b.last = result
	}

	if b.last == nil {
		return
	}

	b.overlay.Render(b.last)
	change, changed := b.state.Observe(b.last.Top())

	b.mu.Lock()
	onResult := b.onResult
	onChange := b.onChange
	b.mu.Unlock()

	for _, fn := range onResult {
		fn(b.last)
	}
	if changed {
		b.log.WithFields(logrus.Fields{
			"from":       change.From,
			"to":         change.To,
			"confidence": gesture.FormatPercent(change.Confidence),
		}).Debug("gesture changed")
		for _, fn := range onChange {
			fn(change)
		}
	}
}

// nextTimestamp returns wall-clock milliseconds, bumped when needed so
// successive values strictly increase.
func (b *Bridge) nextTimestamp() int64 {
	ts := b.now().UnixMilli()
	if ts <= b.lastTimestamp {
		ts = b.lastTimestamp + 1
	}
	b.lastTimestamp = ts
	return ts
}
