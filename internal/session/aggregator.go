// Package session owns per-connection state: one WebSocket connection is
// one practice session, with its own analyzer instances, speech pipeline,
// and metrics history.
package session

import (
	"math"
	"sync"

	"github.com/podiumai/coach-gateway/internal/engagement"
	"github.com/podiumai/coach-gateway/internal/posture"
	"github.com/podiumai/coach-gateway/internal/speech"
)

// Snapshot is the merged metrics record captured on each aggregation tick.
// Counts are cumulative at capture time; scores are the current values.
type Snapshot struct {
	TimestampMs       int64               `json:"timestamp"`
	PostureScore      float64             `json:"postureScore"`
	EyeContactPercent float64             `json:"eyeContactPercent"`
	EngagementLevel   engagement.Level    `json:"engagementLevel,omitempty"`
	EngagementReason  string              `json:"engagementReason,omitempty"`
	GestureType       posture.GestureType `json:"gestureType"`
	SpeechRate        int                 `json:"speechRate"`
	FillerCount       int                 `json:"fillerCount"`
	FillerWords       []string            `json:"fillerWords"`
	Issues            []string            `json:"issues,omitempty"`
	HeadPose          *HeadPoseSnapshot   `json:"headPose,omitempty"`
	SpeechMode        speech.Mode         `json:"speechMode"`
}

// HeadPoseSnapshot is the optional pose detail on a snapshot
type HeadPoseSnapshot struct {
	Yaw        float64 `json:"yaw"`
	Pitch      float64 `json:"pitch"`
	Roll       float64 `json:"roll"`
	Confidence float64 `json:"confidence"`
	Calibrated bool    `json:"calibrated"`
}

// Summary is the end-of-session reduction over the snapshot history
type Summary struct {
	SnapshotCount     int      `json:"snapshotCount"`
	DurationMs        int64    `json:"durationMs"`
	PostureAverage    float64  `json:"postureAverage"`
	EngagementAverage float64  `json:"engagementAverage"`
	SpeechRateAverage float64  `json:"speechRateAverage"`
	TotalFillerCount  int      `json:"totalFillerCount"`
	FillerWords       []string `json:"fillerWords"`
	Issues            []string `json:"issues"`
	OverallScore      int      `json:"overallScore"`
}

// Aggregator stores an immutable copy of each tick's snapshot in arrival
// order. The reduction is pure: calling Reduce never mutates the history,
// so a summary can be recomputed at any time.
type Aggregator struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append stores a snapshot. Slices are copied so later mutation by the
// caller cannot change stored history.
func (a *Aggregator) Append(s Snapshot) {
	s.FillerWords = append([]string(nil), s.FillerWords...)
	s.Issues = append([]string(nil), s.Issues...)
	if s.HeadPose != nil {
		hp := *s.HeadPose
		s.HeadPose = &hp
	}

	a.mu.Lock()
	a.snapshots = append(a.snapshots, s)
	a.mu.Unlock()
}

// Len returns the number of stored snapshots
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

// History returns a copy of the stored snapshot sequence
func (a *Aggregator) History() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Snapshot(nil), a.snapshots...)
}

// Reduce folds the snapshot history into per-metric averages and totals.
// Filler words are deduplicated and issues unioned, both in first-seen
// order. Filler counts are cumulative per snapshot, so the total is the
// last snapshot's value, not a sum.
func (a *Aggregator) Reduce() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := Summary{SnapshotCount: len(a.snapshots)}
	if len(a.snapshots) == 0 {
		return summary
	}

	var postureSum, engagementSum, rateSum float64
	seenFiller := map[string]bool{}
	seenIssue := map[string]bool{}

	for _, s := range a.snapshots {
		postureSum += s.PostureScore
		engagementSum += s.EyeContactPercent
		rateSum += float64(s.SpeechRate)

		for _, f := range s.FillerWords {
			if !seenFiller[f] {
				seenFiller[f] = true
				summary.FillerWords = append(summary.FillerWords, f)
			}
		}
		for _, issue := range s.Issues {
			if !seenIssue[issue] {
				seenIssue[issue] = true
				summary.Issues = append(summary.Issues, issue)
			}
		}
	}

	n := float64(len(a.snapshots))
	summary.PostureAverage = postureSum / n
	summary.EngagementAverage = engagementSum / n
	summary.SpeechRateAverage = rateSum / n

	last := a.snapshots[len(a.snapshots)-1]
	summary.TotalFillerCount = last.FillerCount
	summary.DurationMs = last.TimestampMs - a.snapshots[0].TimestampMs
	summary.OverallScore = overallScore(summary.PostureAverage, summary.EngagementAverage)

	return summary
}

// Reset clears the stored history for a fresh session
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.snapshots = nil
	a.mu.Unlock()
}

// overallScore blends the session averages into a single score. Vocal
// delivery has no graded sub-score, so it contributes a fixed midpoint.
func overallScore(postureAvg, engagementAvg float64) int {
	return int(math.Round(postureAvg*0.3 + engagementAvg*0.4 + 50*0.3))
}
