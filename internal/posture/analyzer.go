// Package posture computes a posture score from skeletal landmark geometry
// and classifies the current hand/arm gesture. It keeps a short gesture
// history for frequency statistics and a coarse energy timeline for
// post-session trend analysis.
package posture

import (
	"math"
	"time"

	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/landmark"
)

// GestureType labels the current hand/arm behavior
type GestureType string

const (
	GestureHandsHidden GestureType = "hands_hidden"
	GestureArmsCrossed GestureType = "arms_crossed"
	GestureFidgeting   GestureType = "fidgeting"
	GesturePointing    GestureType = "pointing"
	GestureOpenPalms   GestureType = "open_palms"
	GestureHandsDown   GestureType = "hands_down"
	GestureActive      GestureType = "active"
	GestureMinimal     GestureType = "minimal"
)

const (
	// Landmarks below this visibility are treated as missing
	visibilityThreshold = 0.5

	// Posture penalties
	unevenShouldersPenalty = 15
	leaningPenalty         = 10
	headDownPenalty        = 10

	// Gesture geometry thresholds (normalized image units)
	wristsCloseMax    = 0.15 // wrists horizontally "close together"
	armExtendedMin    = 0.35 // wrist-to-shoulder distance for pointing
	straightElbowMin  = 150  // degrees at the elbow for an extended arm
	fidgetMovementMin = 0.06 // frame-to-frame wrist travel for fidgeting
	activeMovementMin = 0.02 // frame-to-frame wrist travel for active gesturing
	openSpreadFactor  = 1.5  // wrist spread vs shoulder width for open palms

	// Rolling history length for gesture frequency statistics
	historySize = 30
)

// gestureScores maps each label to its fixed score
var gestureScores = map[GestureType]float64{
	GestureOpenPalms:   90,
	GestureActive:      90,
	GesturePointing:    75,
	GestureHandsDown:   55,
	GestureMinimal:     55,
	GestureHandsHidden: 50,
	GestureFidgeting:   45,
	GestureArmsCrossed: 40,
}

// gestureIssues carries the coaching note attached to low-scoring gestures
var gestureIssues = map[GestureType]string{
	GestureHandsDown:   "hands at your sides - try gesturing at chest height",
	GestureMinimal:     "very little hand movement - gestures add energy",
	GestureHandsHidden: "hands not visible to the audience",
	GestureFidgeting:   "fidgeting can read as nervousness",
	GestureArmsCrossed: "crossed arms read as closed off",
}

// Result is the per-frame posture and gesture output. When PoseDetected is
// false the zero scores are a neutral "no data" value, not a judgment.
type Result struct {
	PoseDetected bool
	PostureScore float64 // [0,100]
	GestureScore float64 // [0,100]
	Gesture      GestureType
	Issues       []string
}

// EnergyPoint is one coarse sample on the session energy timeline
type EnergyPoint struct {
	ElapsedSeconds float64     `json:"elapsedSeconds"`
	PostureScore   float64     `json:"postureScore"`
	GestureScore   float64     `json:"gestureScore"`
	Gesture        GestureType `json:"gestureType"`
}

// EnergyDrop flags a fall-off between consecutive timeline entries
type EnergyDrop struct {
	AtSeconds float64 `json:"atSeconds"`
	Metric    string  `json:"metric"`   // "posture" or "gesture"
	Severity  string  `json:"severity"` // "moderate" or "significant"
	DropPct   float64 `json:"dropPct"`
}

// EnergyAnalysis is the post-session energy summary
type EnergyAnalysis struct {
	Points []EnergyPoint `json:"points"`
	Drops  []EnergyDrop  `json:"drops"`
	Trend  string        `json:"trend"` // "declining", "stable", or "improving"
}

// Analyzer holds per-session gesture history, motion state, and the energy
// timeline. One instance per session; not safe for concurrent use.
type Analyzer struct {
	tuning         config.PostureTuning
	energyInterval time.Duration

	history []GestureType

	prevLeftWrist  *landmark.Point
	prevRightWrist *landmark.Point

	timeline   []EnergyPoint
	started    time.Time
	nextEnergy time.Duration

	now func() time.Time
}

// NewAnalyzer creates a posture analyzer with the given tuning and energy
// timeline sampling interval.
func NewAnalyzer(tuning config.PostureTuning, energyInterval time.Duration) *Analyzer {
	a := &Analyzer{
		tuning:         tuning,
		energyInterval: energyInterval,
		now:            time.Now,
	}
	a.started = a.now()
	return a
}

// Analyze processes one frame's body landmarks
func (a *Analyzer) Analyze(pose []landmark.Point) Result {
	if len(pose) < landmark.PoseLandmarkCount {
		return Result{PoseDetected: false}
	}

	postureScore, issues := a.scorePosture(pose)

	movement := a.wristMovement(pose)
	gesture := a.classifyGesture(pose, movement)
	gestureScore := gestureScores[gesture]

	if note, ok := gestureIssues[gesture]; ok {
		issues = append(issues, note)
	}

	a.pushHistory(gesture)
	a.sampleEnergy(postureScore, gestureScore, gesture)

	return Result{
		PoseDetected: true,
		PostureScore: postureScore,
		GestureScore: gestureScore,
		Gesture:      gesture,
		Issues:       issues,
	}
}

// scorePosture starts at 100 and subtracts a fixed penalty per detected
// issue. Checks whose landmarks are not visible are skipped silently rather
// than penalized.
func (a *Analyzer) scorePosture(pose []landmark.Point) (float64, []string) {
	score := 100.0
	var issues []string

	ls := pose[landmark.PoseLeftShoulder]
	rs := pose[landmark.PoseRightShoulder]
	lh := pose[landmark.PoseLeftHip]
	rh := pose[landmark.PoseRightHip]
	nose := pose[landmark.PoseNose]

	shouldersVisible := ls.Visible(visibilityThreshold) && rs.Visible(visibilityThreshold)

	if shouldersVisible {
		if math.Abs(ls.Y-rs.Y) > a.tuning.ShoulderTiltMax {
			score -= unevenShouldersPenalty
			issues = append(issues, "uneven shoulders")
		}
	}

	if shouldersVisible && lh.Visible(visibilityThreshold) && rh.Visible(visibilityThreshold) {
		shoulderMid := landmark.Midpoint(ls, rs)
		hipMid := landmark.Midpoint(lh, rh)
		if math.Abs(shoulderMid.X-hipMid.X) > a.tuning.LeanMax {
			score -= leaningPenalty
			issues = append(issues, "leaning to one side")
		}
	}

	if shouldersVisible && nose.Visible(visibilityThreshold) {
		shoulderMid := landmark.Midpoint(ls, rs)
		shoulderWidth := landmark.Distance(ls, rs)
		if shoulderWidth > 0 {
			// Head pitched forward brings the nose down toward the
			// shoulder line
			headHeight := (shoulderMid.Y - nose.Y) / shoulderWidth
			if headHeight < a.tuning.HeadForwardMax {
				score -= headDownPenalty
				issues = append(issues, "head tilted down")
			}
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, issues
}

// wristMovement returns the mean frame-to-frame travel of the visible
// wrists and records their positions for the next frame.
func (a *Analyzer) wristMovement(pose []landmark.Point) float64 {
	lw := pose[landmark.PoseLeftWrist]
	rw := pose[landmark.PoseRightWrist]

	var total float64
	var count int

	if lw.Visible(visibilityThreshold) {
		if a.prevLeftWrist != nil {
			total += landmark.Distance(lw, *a.prevLeftWrist)
			count++
		}
		prev := lw
		a.prevLeftWrist = &prev
	} else {
		a.prevLeftWrist = nil
	}

	if rw.Visible(visibilityThreshold) {
		if a.prevRightWrist != nil {
			total += landmark.Distance(rw, *a.prevRightWrist)
			count++
		}
		prev := rw
		a.prevRightWrist = &prev
	} else {
		a.prevRightWrist = nil
	}

	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// classifyGesture walks the priority-ordered decision tree. The first
// matching rule wins; order is part of the contract.
func (a *Analyzer) classifyGesture(pose []landmark.Point, movement float64) GestureType {
	lw := pose[landmark.PoseLeftWrist]
	rw := pose[landmark.PoseRightWrist]
	ls := pose[landmark.PoseLeftShoulder]
	rs := pose[landmark.PoseRightShoulder]
	le := pose[landmark.PoseLeftElbow]
	re := pose[landmark.PoseRightElbow]
	lh := pose[landmark.PoseLeftHip]
	rh := pose[landmark.PoseRightHip]

	leftVisible := lw.Visible(visibilityThreshold)
	rightVisible := rw.Visible(visibilityThreshold)

	// 1. Both wrists invisible
	if !leftVisible && !rightVisible {
		return GestureHandsHidden
	}

	hipMid := landmark.Midpoint(lh, rh)
	shoulderMid := landmark.Midpoint(ls, rs)
	shoulderWidth := landmark.Distance(ls, rs)
	wristSpread := math.Abs(lw.X - rw.X)

	// 2. Arms crossed: wrist x-order inverted relative to the shoulders,
	// both above hip level, wrists close together
	if leftVisible && rightVisible {
		wristOrder := lw.X - rw.X
		shoulderOrder := ls.X - rs.X
		inverted := wristOrder*shoulderOrder < 0
		aboveHips := lw.Y < hipMid.Y && rw.Y < hipMid.Y
		if inverted && aboveHips && wristSpread < wristsCloseMax {
			return GestureArmsCrossed
		}
	}

	// 3. Fidgeting: rapid movement with the hands held close together
	if leftVisible && rightVisible && movement > fidgetMovementMin && wristSpread < wristsCloseMax {
		return GestureFidgeting
	}

	// 4. Pointing: either arm extended far from its shoulder with a
	// roughly straight elbow
	if leftVisible && landmark.Distance(lw, ls) > armExtendedMin && elbowAngle(ls, le, lw) > straightElbowMin {
		return GesturePointing
	}
	if rightVisible && landmark.Distance(rw, rs) > armExtendedMin && elbowAngle(rs, re, rw) > straightElbowMin {
		return GesturePointing
	}

	// 5. Open palms: both wrists in the chest band, spread wide
	if leftVisible && rightVisible {
		chestTop := shoulderMid.Y - 0.05
		inChestBand := lw.Y > chestTop && lw.Y < hipMid.Y && rw.Y > chestTop && rw.Y < hipMid.Y
		if inChestBand && wristSpread > shoulderWidth*openSpreadFactor {
			return GestureOpenPalms
		}
	}

	// 6. Hands down: either wrist below hip level
	if (leftVisible && lw.Y > hipMid.Y) || (rightVisible && rw.Y > hipMid.Y) {
		return GestureHandsDown
	}

	// 7. Active gesturing
	if movement > activeMovementMin {
		return GestureActive
	}

	// 8. Default
	return GestureMinimal
}

// elbowAngle returns the angle in degrees at the elbow between the
// upper arm and forearm.
func elbowAngle(shoulder, elbow, wrist landmark.Point) float64 {
	ux := shoulder.X - elbow.X
	uy := shoulder.Y - elbow.Y
	vx := wrist.X - elbow.X
	vy := wrist.Y - elbow.Y

	uLen := math.Hypot(ux, uy)
	vLen := math.Hypot(vx, vy)
	if uLen == 0 || vLen == 0 {
		return 0
	}

	cos := (ux*vx + uy*vy) / (uLen * vLen)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

func (a *Analyzer) pushHistory(gesture GestureType) {
	a.history = append(a.history, gesture)
	if len(a.history) > historySize {
		a.history = a.history[1:]
	}
}

// sampleEnergy appends a timeline point once per interval of elapsed
// session time. The timeline grows for the whole session and is only
// cleared by Reset.
func (a *Analyzer) sampleEnergy(postureScore, gestureScore float64, gesture GestureType) {
	elapsed := a.now().Sub(a.started)
	if elapsed < a.nextEnergy {
		return
	}

	a.timeline = append(a.timeline, EnergyPoint{
		ElapsedSeconds: elapsed.Seconds(),
		PostureScore:   postureScore,
		GestureScore:   gestureScore,
		Gesture:        gesture,
	})
	a.nextEnergy = elapsed + a.energyInterval
}

// GestureStats returns the frequency of each gesture over the rolling history
func (a *Analyzer) GestureStats() map[GestureType]int {
	stats := make(map[GestureType]int)
	for _, g := range a.history {
		stats[g]++
	}
	return stats
}

// Energy returns the session energy analysis: the timeline, flagged energy
// drops between consecutive entries, and the first-half versus second-half
// trend.
func (a *Analyzer) Energy() EnergyAnalysis {
	analysis := EnergyAnalysis{
		Points: append([]EnergyPoint(nil), a.timeline...),
		Trend:  "stable",
	}

	for i := 1; i < len(a.timeline); i++ {
		prev, cur := a.timeline[i-1], a.timeline[i]

		if drop, ok := dropBetween(prev.PostureScore, cur.PostureScore, 15, 25); ok {
			drop.AtSeconds = cur.ElapsedSeconds
			drop.Metric = "posture"
			analysis.Drops = append(analysis.Drops, drop)
		}
		if drop, ok := dropBetween(prev.GestureScore, cur.GestureScore, 20, 25); ok {
			drop.AtSeconds = cur.ElapsedSeconds
			drop.Metric = "gesture"
			analysis.Drops = append(analysis.Drops, drop)
		}
	}

	if len(a.timeline) >= 2 {
		mid := len(a.timeline) / 2
		first := composite(a.timeline[:mid])
		second := composite(a.timeline[mid:])

		switch {
		case second < first-5:
			analysis.Trend = "declining"
		case second > first+5:
			analysis.Trend = "improving"
		}
	}

	return analysis
}

// dropBetween flags a percentage fall-off between two scores
func dropBetween(prev, cur, moderatePct, significantPct float64) (EnergyDrop, bool) {
	if prev <= 0 || cur >= prev {
		return EnergyDrop{}, false
	}

	pct := (prev - cur) / prev * 100
	switch {
	case pct > significantPct:
		return EnergyDrop{Severity: "significant", DropPct: pct}, true
	case pct > moderatePct:
		return EnergyDrop{Severity: "moderate", DropPct: pct}, true
	}
	return EnergyDrop{}, false
}

// composite averages posture and gesture scores over timeline points
func composite(points []EnergyPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += (p.PostureScore + p.GestureScore) / 2
	}
	return sum / float64(len(points))
}

// Reset clears all per-session state for a fresh practice session
func (a *Analyzer) Reset() {
	a.history = a.history[:0]
	a.timeline = a.timeline[:0]
	a.prevLeftWrist = nil
	a.prevRightWrist = nil
	a.started = a.now()
	a.nextEnergy = 0
}
