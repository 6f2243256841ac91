// Package gesture holds the recognized gesture vocabulary and the shared
// recognition state written by the bridge and read by the scene.
package gesture

import (
	"math"
	"strconv"
	"strings"
)

// Label is a gesture class emitted by the recognizer, lower-cased.
type Label string

// Gesture labels understood by the demo model.
const (
	None     Label = "none"
	Fox      Label = "fox"
	Scissors Label = "scissors"
	Paper    Label = "paper"
	Rock     Label = "rock"
)

// ConfidenceThreshold is the minimum confidence, in percent, a
// classification needs before it replaces the current label.
const ConfidenceThreshold = 50.0

var labels = map[Label]struct{}{
	None:     {},
	Fox:      {},
	Scissors: {},
	Paper:    {},
	Rock:     {},
}

// ParseLabel normalizes a category name to a Label.
// The second return value is false for names outside the vocabulary.
func ParseLabel(name string) (Label, bool) {
	l := Label(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := labels[l]; !ok {
		return None, false
	}
	return l, true
}

func (l Label) String() string {
	return string(l)
}

// Percent converts a [0,1] score to a percentage rounded to two decimals.
func Percent(score float64) float64 {
	return math.Round(score*10000) / 100
}

// FormatPercent renders a [0,1] score as a percentage with two decimals.
func FormatPercent(score float64) string {
	return strconv.FormatFloat(Percent(score), 'f', 2, 64)
}

// Classification is one ranked gesture category for a hand.
type Classification struct {
	Name  string  `json:"category_name"`
	Score float64 `json:"score"`
}

// Confident reports whether the classification meets ConfidenceThreshold.
func (c Classification) Confident() bool {
	return Percent(c.Score) >= ConfidenceThreshold
}
