// Package engagement maps smoothed head pose into a discrete audience
// engagement level and maintains the time-windowed, confidence-weighted
// rolling engagement percentage.
package engagement

import (
	"fmt"
	"time"

	"github.com/podiumai/coach-gateway/internal/config"
)

// Level is a discrete engagement tier
type Level string

const (
	LevelGood    Level = "good"
	LevelNeutral Level = "neutral"
	LevelBad     Level = "bad"

	// LevelUnknown is reported when no face is available; it is distinct
	// from "bad" so a dropped detection never reads as disengagement
	LevelUnknown Level = "unknown"
)

// Classification is the per-frame engagement decision
type Classification struct {
	Level      Level
	Reason     string
	Score      float64 // [0,100]
	Confidence float64 // [0,1]
}

// sample is one scored frame in the rolling window
type sample struct {
	at         time.Time
	score      float64
	confidence float64
}

// Classifier owns the engagement decision rules and the rolling window.
// One instance per session; driven from the session's frame loop.
type Classifier struct {
	thresholds config.EngagementTuning
	window     time.Duration
	samples    []sample

	// now is the clock, swappable in tests
	now func() time.Time
}

// NewClassifier creates a classifier with the given thresholds and rolling
// window duration.
func NewClassifier(thresholds config.EngagementTuning, window time.Duration) *Classifier {
	return &Classifier{
		thresholds: thresholds,
		window:     window,
		now:        time.Now,
	}
}

// SetThresholds replaces the decision thresholds at runtime without
// disturbing the rolling window.
func (c *Classifier) SetThresholds(thresholds config.EngagementTuning) {
	c.thresholds = thresholds
}

// Thresholds returns the active decision thresholds
func (c *Classifier) Thresholds() config.EngagementTuning {
	return c.thresholds
}

// Classify evaluates one smoothed pose sample, records it in the rolling
// window, and returns the decision. The rules are ordered; the first match
// wins, and low confidence must suppress every other signal.
func (c *Classifier) Classify(yaw, pitch, confidence float64) Classification {
	result := c.decide(yaw, pitch, confidence)

	c.samples = append(c.samples, sample{
		at:         c.now(),
		score:      result.Score,
		confidence: confidence,
	})
	c.prune()

	return result
}

func (c *Classifier) decide(yaw, pitch, confidence float64) Classification {
	t := c.thresholds
	absYaw := abs(yaw)

	// Rule 1: uncertain pose suppresses everything else
	if confidence < 0.3 {
		return Classification{LevelNeutral, "uncertain", 50, confidence}
	}

	// Rule 2: looking up
	if pitch > t.GoodPitch {
		return Classification{LevelNeutral, "looking up", 60, confidence}
	}

	// Rule 3: looking down, worse the further down
	if pitch < t.BadPitch {
		score := clampScore(40-(t.BadPitch-pitch)*1.5, 20, 40)
		return Classification{LevelBad, "looking down", score, confidence}
	}

	// Rule 4: side profile, facing the audience
	if absYaw >= t.GoodYaw {
		score := clampScore(85+(absYaw-t.GoodYaw)*0.5, 85, 95)
		return Classification{LevelGood, "facing audience", score, confidence}
	}

	// Rule 5: frontal, facing the slides/camera; worse the more frontal
	if absYaw < t.BadYaw {
		score := clampScore(25+(absYaw/t.BadYaw)*20, 25, 45)
		return Classification{LevelBad, "facing screen", score, confidence}
	}

	// Rule 6: dead zone between the thresholds, interpolated
	position := (absYaw - t.BadYaw) / (t.GoodYaw - t.BadYaw)
	score := 50 + position*40
	return Classification{LevelNeutral, "transitional", score, confidence}
}

// Percent returns the confidence-weighted mean of the scores currently in
// the rolling window, or 0 when the window is empty. The window is
// time-based so the metric's responsiveness does not depend on frame rate.
func (c *Classifier) Percent() float64 {
	c.prune()

	var weightedSum, weightSum float64
	for _, s := range c.samples {
		weightedSum += s.score * s.confidence
		weightSum += s.confidence
	}

	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// WindowSize returns the number of samples currently in the window
func (c *Classifier) WindowSize() int {
	c.prune()
	return len(c.samples)
}

// Reset clears the rolling window
func (c *Classifier) Reset() {
	c.samples = c.samples[:0]
}

// prune evicts samples older than the window from the front of the FIFO
func (c *Classifier) prune() {
	cutoff := c.now().Add(-c.window)
	start := 0
	for start < len(c.samples) && c.samples[start].at.Before(cutoff) {
		start++
	}
	if start > 0 {
		c.samples = c.samples[start:]
	}
}

func clampScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// String implements fmt.Stringer for log output
func (cl Classification) String() string {
	return fmt.Sprintf("%s (%s, score %.0f)", cl.Level, cl.Reason, cl.Score)
}
