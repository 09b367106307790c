package engagement

import (
	"math"
	"testing"
	"time"

	"github.com/podiumai/coach-gateway/internal/config"
)

func newTestClassifier() *Classifier {
	return NewClassifier(config.DefaultTuning().Engagement, 2000*time.Millisecond)
}

func TestClassify_DecisionOrder(t *testing.T) {
	tests := []struct {
		name       string
		yaw        float64
		pitch      float64
		confidence float64
		wantLevel  Level
		wantScore  float64 // -1 means don't check exact value
	}{
		{"low confidence suppresses good yaw", 25, 0, 0.2, LevelNeutral, 50},
		{"low confidence suppresses bad pitch", 0, -40, 0.1, LevelNeutral, 50},
		{"looking up", 25, 20, 0.8, LevelNeutral, 60},
		{"looking down", 25, -20, 0.8, LevelBad, -1},
		{"facing audience at threshold", 20, 0, 0.8, LevelGood, 85},
		{"facing audience beyond threshold", 25, 0, 0.8, LevelGood, -1},
		{"facing audience negative yaw", -30, 0, 0.8, LevelGood, -1},
		{"frontal dead center", 0, 0, 0.8, LevelBad, 25},
		{"frontal near threshold", 11, 0, 0.8, LevelBad, -1},
		{"dead zone low end", 12, 0, 0.8, LevelNeutral, 50},
		{"dead zone midpoint", 16, 0, 0.8, LevelNeutral, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier()
			result := c.Classify(tt.yaw, tt.pitch, tt.confidence)

			if result.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", result.Level, tt.wantLevel)
			}
			if tt.wantScore >= 0 && math.Abs(result.Score-tt.wantScore) > 0.01 {
				t.Errorf("Score = %f, want %f", result.Score, tt.wantScore)
			}
			if result.Score < 0 || result.Score > 100 {
				t.Errorf("Score %f outside [0,100]", result.Score)
			}
		})
	}
}

func TestClassify_LookingDownPenalty(t *testing.T) {
	c := newTestClassifier()

	mild := c.Classify(0, -16, 0.8)
	severe := c.Classify(0, -45, 0.8)

	if mild.Level != LevelBad || severe.Level != LevelBad {
		t.Fatal("Expected bad level for downward pitch")
	}
	if severe.Score >= mild.Score {
		t.Errorf("Expected more extreme pitch to score lower: %f >= %f", severe.Score, mild.Score)
	}
	if severe.Score < 20 {
		t.Errorf("Expected floor near 20, got %f", severe.Score)
	}
}

func TestClassify_FrontalPenalty(t *testing.T) {
	c := newTestClassifier()

	nearThreshold := c.Classify(10, 0, 0.8)
	deadCenter := c.Classify(0, 0, 0.8)

	if deadCenter.Score >= nearThreshold.Score {
		t.Errorf("Expected more frontal pose to score lower: %f >= %f",
			deadCenter.Score, nearThreshold.Score)
	}
	if deadCenter.Score < 25 {
		t.Errorf("Expected floor at 25, got %f", deadCenter.Score)
	}
}

func TestClassify_ExactlyOneRuleFires(t *testing.T) {
	// Sweep a grid of inputs; each must produce a defined level and a
	// score inside [0,100]
	c := newTestClassifier()
	for yaw := -60.0; yaw <= 60; yaw += 3 {
		for pitch := -50.0; pitch <= 50; pitch += 5 {
			for _, conf := range []float64{0.1, 0.3, 0.5, 0.9} {
				result := c.decide(yaw, pitch, conf)
				switch result.Level {
				case LevelGood, LevelNeutral, LevelBad:
				default:
					t.Fatalf("Undefined level %q for yaw=%f pitch=%f conf=%f",
						result.Level, yaw, pitch, conf)
				}
				if result.Score < 0 || result.Score > 100 {
					t.Fatalf("Score %f outside [0,100] for yaw=%f pitch=%f conf=%f",
						result.Score, yaw, pitch, conf)
				}
			}
		}
	}
}

func TestPercent_ConfidenceWeighted(t *testing.T) {
	c := newTestClassifier()

	// A low-confidence outlier must barely move the weighted mean
	c.Classify(25, 0, 0.9) // good, 87.5
	c.Classify(0, 0, 0.05) // low confidence -> neutral 50, weight 0.05

	percent := c.Percent()
	weighted := (87.5*0.9 + 50*0.05) / (0.9 + 0.05)
	if math.Abs(percent-weighted) > 0.01 {
		t.Errorf("Percent = %f, want %f", percent, weighted)
	}
}

func TestPercent_EmptyWindow(t *testing.T) {
	c := newTestClassifier()
	if c.Percent() != 0 {
		t.Errorf("Expected 0 for empty window, got %f", c.Percent())
	}
}

func TestPercent_TimeWindowEviction(t *testing.T) {
	c := newTestClassifier()

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	c.Classify(0, 0, 0.8) // bad, score 25

	// Advance past the window; the old sample must have zero influence
	current = current.Add(2500 * time.Millisecond)
	c.Classify(25, 0, 0.8) // good, 87.5

	percent := c.Percent()
	if math.Abs(percent-87.5) > 0.01 {
		t.Errorf("Expected average to equal only the in-window sample (87.5), got %f", percent)
	}
	if c.WindowSize() != 1 {
		t.Errorf("Expected 1 sample in window, got %d", c.WindowSize())
	}
}

func TestPercent_StableUnderConstantInput(t *testing.T) {
	c := newTestClassifier()

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	// 90 frames at 30fps of a fixed frontal pose: once the window fills
	// (~60 frames), the reported percentage stops moving
	var prev float64
	for i := 0; i < 90; i++ {
		c.Classify(0, 0, 0.9)
		percent := c.Percent()
		if i > 60 && math.Abs(percent-prev) > 0.5 {
			t.Fatalf("Frame %d: percent still drifting: %f -> %f", i, prev, percent)
		}
		prev = percent
		current = current.Add(time.Second / 30)
	}

	if math.Abs(prev-25) > 0.5 {
		t.Errorf("Expected stabilization near frontal penalty score 25, got %f", prev)
	}
}

func TestSetThresholds(t *testing.T) {
	c := newTestClassifier()

	custom := config.EngagementTuning{GoodYaw: 30, BadYaw: 10, BadPitch: -20, GoodPitch: 20}
	c.SetThresholds(custom)

	// yaw 25 was good under the defaults; under the new thresholds it
	// lands in the dead zone
	result := c.Classify(25, 0, 0.8)
	if result.Level != LevelNeutral {
		t.Errorf("Expected neutral under widened thresholds, got %s", result.Level)
	}

	if c.Thresholds().GoodYaw != 30 {
		t.Errorf("Expected thresholds to be stored, got %f", c.Thresholds().GoodYaw)
	}
}

func TestReset(t *testing.T) {
	c := newTestClassifier()
	c.Classify(0, 0, 0.8)
	c.Reset()

	if c.WindowSize() != 0 {
		t.Errorf("Expected empty window after reset, got %d", c.WindowSize())
	}
}
