// Package headpose derives yaw/pitch/roll for a detected face, either from
// the detector's 3D transformation matrix (preferred, high confidence) or
// geometrically from face landmark ratios (fallback). It owns auto-calibration
// and adaptive exponential smoothing of the pose signal.
package headpose

import (
	"math"
	"sort"

	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/landmark"
)

const (
	// Confidence assigned to matrix-derived pose
	matrixConfidence = 0.9

	// Floor for landmark-derived confidence
	baseConfidence = 0.3

	// Width/height ratio of a frontal face used to judge landmark plausibility
	canonicalAspect = 0.65

	// Below this normalized size the face geometry is degenerate
	geometryEpsilon = 1e-3

	// Cue blend weights for the geometric yaw estimate
	noseOffsetWeight = 0.30
	eyeAsymWeight    = 0.25
	eyeDepthWeight   = 0.25
	halfWidthWeight  = 0.20

	// Degrees per normalized cue unit
	yawScale   = 100.0
	pitchScale = 90.0

	// Where the nose sits vertically between the eyes and the chin on a
	// level head, as a fraction of face height
	noseRestingRatio = 0.25
)

// Result is the estimator's per-frame output. When FaceDetected is false no
// other field is meaningful and no internal state was touched.
type Result struct {
	FaceDetected bool
	Yaw          float64 // smoothed, calibration-corrected, degrees
	Pitch        float64
	Roll         float64
	RawYaw       float64 // calibration-corrected but unsmoothed, degrees
	RawPitch     float64
	Confidence   float64 // [0,1]
	Calibrated   bool
}

// Estimator holds per-session calibration and smoothing state. A session
// owns exactly one instance and drives it from its frame loop; the type is
// not safe for concurrent use.
type Estimator struct {
	tuning            config.HeadPoseTuning
	calibrationTarget int

	// Calibration state: raw samples accumulate until the target count,
	// then the median freezes into the offsets.
	calibYaw    []float64
	calibPitch  []float64
	yawOffset   float64
	pitchOffset float64
	calibrated  bool

	// Smoothing state
	smoothedYaw   float64
	smoothedPitch float64
	smoothedRoll  float64
	lastRawYaw    float64
	lastRawPitch  float64
	hasSample     bool
}

// NewEstimator creates a head-pose estimator with the given tuning and
// calibration sample target.
func NewEstimator(tuning config.HeadPoseTuning, calibrationSamples int) *Estimator {
	return &Estimator{
		tuning:            tuning,
		calibrationTarget: calibrationSamples,
		calibYaw:          make([]float64, 0, calibrationSamples),
		calibPitch:        make([]float64, 0, calibrationSamples),
	}
}

// Analyze processes one frame's face landmarks. transform, if non-nil, is
// the detector's 4x4 row-major transformation matrix for the face.
func (e *Estimator) Analyze(face []landmark.Point, transform *[16]float64) Result {
	var yaw, pitch, roll, confidence float64

	switch {
	case transform != nil:
		yaw, pitch, roll = decomposeTransform(transform)
		confidence = matrixConfidence
	case len(face) >= landmark.FaceLandmarkCount:
		yaw, pitch, roll, confidence = geometricPose(face)
	default:
		// No face this frame: calibration and smoothing state stay frozen
		return Result{FaceDetected: false}
	}

	// Calibration must settle before smoothing is meaningful: offsets are
	// subtracted from the raw pose before it enters the EMA.
	e.collectCalibration(yaw, pitch)
	yaw -= e.yawOffset
	pitch -= e.pitchOffset

	e.smooth(yaw, pitch, roll)

	return Result{
		FaceDetected: true,
		Yaw:          e.smoothedYaw,
		Pitch:        e.smoothedPitch,
		Roll:         e.smoothedRoll,
		RawYaw:       yaw,
		RawPitch:     pitch,
		Confidence:   confidence,
		Calibrated:   e.calibrated,
	}
}

// Recalibrate clears the calibration state and offsets so the next target
// count of face frames re-seeds calibration. Smoothing state is preserved.
func (e *Estimator) Recalibrate() {
	e.calibYaw = e.calibYaw[:0]
	e.calibPitch = e.calibPitch[:0]
	e.yawOffset = 0
	e.pitchOffset = 0
	e.calibrated = false
}

// IsCalibrated reports whether the calibration offsets have frozen
func (e *Estimator) IsCalibrated() bool {
	return e.calibrated
}

// Offsets returns the frozen calibration offsets in degrees
func (e *Estimator) Offsets() (yaw, pitch float64) {
	return e.yawOffset, e.pitchOffset
}

func (e *Estimator) collectCalibration(rawYaw, rawPitch float64) {
	if e.calibrated {
		return
	}

	e.calibYaw = append(e.calibYaw, rawYaw)
	e.calibPitch = append(e.calibPitch, rawPitch)

	if len(e.calibYaw) >= e.calibrationTarget {
		// Median rather than mean: a handful of outlier frames during
		// calibration must not shift the resting offsets.
		e.yawOffset = median(e.calibYaw)
		e.pitchOffset = median(e.calibPitch)
		e.calibrated = true
	}
}

// smooth applies the adaptive EMA. The alpha grows with instantaneous
// movement speed so deliberate head turns track with low lag, but stays
// capped so stationary jitter remains damped.
func (e *Estimator) smooth(yaw, pitch, roll float64) {
	if !e.hasSample {
		e.smoothedYaw = yaw
		e.smoothedPitch = pitch
		e.smoothedRoll = roll
		e.lastRawYaw = yaw
		e.lastRawPitch = pitch
		e.hasSample = true
		return
	}

	movement := math.Max(math.Abs(yaw-e.lastRawYaw), math.Abs(pitch-e.lastRawPitch))

	alpha := e.tuning.BaseAlpha
	if movement > e.tuning.MovementThreshold {
		alpha += (movement - e.tuning.MovementThreshold) * e.tuning.AlphaGain
		if alpha > e.tuning.MaxAlpha {
			alpha = e.tuning.MaxAlpha
		}
	}

	e.smoothedYaw = e.smoothedYaw + alpha*(yaw-e.smoothedYaw)
	e.smoothedPitch = e.smoothedPitch + alpha*(pitch-e.smoothedPitch)
	e.smoothedRoll = e.smoothedRoll + alpha*(roll-e.smoothedRoll)

	e.lastRawYaw = yaw
	e.lastRawPitch = pitch
}

// decomposeTransform converts a 4x4 row-major face transformation matrix to
// YXZ Euler angles in degrees. The gimbal-lock configuration (the matrix's
// vertical rotation component saturated) pins pitch to ±90° and zeroes yaw
// instead of dividing by a near-zero cosine.
func decomposeTransform(m *[16]float64) (yaw, pitch, roll float64) {
	m02 := m[0*4+2]
	m12 := m[1*4+2]
	m22 := m[2*4+2]
	m10 := m[1*4+0]
	m11 := m[1*4+1]
	m20 := m[2*4+0]
	m00 := m[0*4+0]

	if math.Abs(m12) >= 0.999 {
		pitch = math.Copysign(90, -m12)
		yaw = 0
		roll = toDegrees(math.Atan2(-m20, m00))
		return yaw, pitch, roll
	}

	pitch = toDegrees(math.Asin(clamp(-m12, -1, 1)))
	yaw = toDegrees(math.Atan2(m02, m22))
	roll = toDegrees(math.Atan2(m10, m11))
	return yaw, pitch, roll
}

// geometricPose estimates pose from landmark geometry alone. Several
// independent cues per axis are blended by fixed empirical weights; the
// confidence reflects how plausible the face's aspect ratio looks.
func geometricPose(face []landmark.Point) (yaw, pitch, roll, confidence float64) {
	nose := face[landmark.FaceNoseTip]
	forehead := face[landmark.FaceForehead]
	chin := face[landmark.FaceChin]
	leftCheek := face[landmark.FaceLeftCheek]
	rightCheek := face[landmark.FaceRightCheek]
	leftEyeOuter := face[landmark.FaceLeftEyeOuter]
	leftEyeInner := face[landmark.FaceLeftEyeInner]
	rightEyeOuter := face[landmark.FaceRightEyeOuter]
	rightEyeInner := face[landmark.FaceRightEyeInner]
	mouthLeft := face[landmark.FaceMouthLeft]
	mouthRight := face[landmark.FaceMouthRight]

	faceWidth := landmark.Distance(leftCheek, rightCheek)
	faceHeight := landmark.Distance(forehead, chin)
	if faceWidth < geometryEpsilon || faceHeight < geometryEpsilon {
		return 0, 0, 0, 0
	}

	eyeCenter := landmark.Midpoint(leftEyeOuter, rightEyeOuter)

	// Yaw: horizontal nose offset, eye-width asymmetry, inter-ocular depth
	// differential, and the relative half-face widths, each in roughly
	// [-1, 1] for a strong turn.
	noseOffset := (nose.X - eyeCenter.X) / faceWidth
	leftEyeWidth := landmark.Distance(leftEyeOuter, leftEyeInner)
	rightEyeWidth := landmark.Distance(rightEyeInner, rightEyeOuter)
	eyeAsym := 0.0
	if sum := leftEyeWidth + rightEyeWidth; sum > geometryEpsilon {
		eyeAsym = (leftEyeWidth - rightEyeWidth) / sum
	}
	eyeDepth := leftEyeOuter.Z - rightEyeOuter.Z
	halfWidthDiff := (landmark.Distance(nose, rightCheek) - landmark.Distance(leftCheek, nose)) / faceWidth

	yaw = (noseOffset*noseOffsetWeight +
		eyeAsym*eyeAsymWeight +
		eyeDepth*eyeDepthWeight +
		halfWidthDiff*halfWidthWeight) * yawScale

	// Pitch: vertical nose offset from its resting position plus the
	// forehead-to-chin balance. Image y grows downward, so a dropped nose
	// reads as negative pitch.
	noseVert := (nose.Y-eyeCenter.Y)/faceHeight - noseRestingRatio
	foreheadRatio := landmark.Distance(forehead, nose)/faceHeight - 0.5
	pitch = -(noseVert*0.6 + foreheadRatio*0.4) * pitchScale

	// Roll: the tilt of the eye line, steadied by the mouth line
	eyeTilt := math.Atan2(rightEyeOuter.Y-leftEyeOuter.Y, rightEyeOuter.X-leftEyeOuter.X)
	mouthTilt := math.Atan2(mouthRight.Y-mouthLeft.Y, mouthRight.X-mouthLeft.X)
	roll = toDegrees(eyeTilt*0.7 + mouthTilt*0.3)

	aspect := faceWidth / faceHeight
	confidence = 1 - math.Min(1, math.Abs(aspect-canonicalAspect)/canonicalAspect)
	if confidence < baseConfidence {
		confidence = baseConfidence
	}

	return yaw, pitch, roll, confidence
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
