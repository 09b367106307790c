package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the empirically tuned analysis constants. A deployment may
// override any of them through a YAML profile to match its capture hardware.
type Tuning struct {
	Engagement EngagementTuning `yaml:"engagement"`
	HeadPose   HeadPoseTuning   `yaml:"head_pose"`
	Posture    PostureTuning    `yaml:"posture"`

	// FillerWords is the canonical filler vocabulary. Locale-specific
	// profiles replace the whole list.
	FillerWords []string `yaml:"filler_words"`
}

// EngagementTuning holds the yaw/pitch thresholds (degrees) that drive the
// engagement decision rules.
type EngagementTuning struct {
	GoodYaw   float64 `yaml:"good_yaw"`   // |yaw| at or above this reads as facing the audience
	BadYaw    float64 `yaml:"bad_yaw"`    // |yaw| below this reads as frontal (facing slides/camera)
	BadPitch  float64 `yaml:"bad_pitch"`  // pitch below this reads as looking down
	GoodPitch float64 `yaml:"good_pitch"` // pitch above this reads as looking up
}

// HeadPoseTuning holds the adaptive smoothing parameters.
type HeadPoseTuning struct {
	BaseAlpha         float64 `yaml:"base_alpha"`         // EMA alpha when the head is still
	MaxAlpha          float64 `yaml:"max_alpha"`          // hard cap so jitter rejection survives fast turns
	MovementThreshold float64 `yaml:"movement_threshold"` // degrees/frame above which alpha grows
	AlphaGain         float64 `yaml:"alpha_gain"`         // alpha increase per degree above the threshold
}

// PostureTuning holds the skeletal geometry thresholds (normalized image units).
type PostureTuning struct {
	ShoulderTiltMax float64 `yaml:"shoulder_tilt_max"` // shoulder y-delta before "uneven shoulders"
	LeanMax         float64 `yaml:"lean_max"`          // shoulder/hip midpoint x-delta before "leaning"
	HeadForwardMax  float64 `yaml:"head_forward_max"`  // nose drop relative to shoulder width before "head down"
}

// DefaultTuning returns the compiled-in tuning profile.
func DefaultTuning() *Tuning {
	return &Tuning{
		Engagement: EngagementTuning{
			GoodYaw:   20,
			BadYaw:    12,
			BadPitch:  -15,
			GoodPitch: 15,
		},
		HeadPose: HeadPoseTuning{
			BaseAlpha:         0.3,
			MaxAlpha:          0.7,
			MovementThreshold: 5,
			AlphaGain:         0.04,
		},
		Posture: PostureTuning{
			ShoulderTiltMax: 0.05,
			LeanMax:         0.08,
			HeadForwardMax:  0.35,
		},
		FillerWords: []string{
			"um", "uh", "er", "ah", "like", "you know", "sort of",
			"kind of", "i mean", "actually", "basically", "literally",
			"right", "so yeah",
		},
	}
}

// LoadTuning reads a YAML tuning profile from path, layered over the
// defaults so a profile only needs to name the values it changes.
// An empty path returns the defaults.
func LoadTuning(path string) (*Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning profile: %w", err)
	}

	if err := yaml.Unmarshal(data, tuning); err != nil {
		return nil, fmt.Errorf("failed to parse tuning profile: %w", err)
	}

	if tuning.Engagement.BadYaw >= tuning.Engagement.GoodYaw {
		return nil, fmt.Errorf("tuning profile: bad_yaw (%.1f) must be below good_yaw (%.1f)",
			tuning.Engagement.BadYaw, tuning.Engagement.GoodYaw)
	}
	if len(tuning.FillerWords) == 0 {
		return nil, fmt.Errorf("tuning profile: filler_words must not be empty")
	}

	return tuning, nil
}
