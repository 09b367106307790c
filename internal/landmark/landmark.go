// Package landmark defines the per-frame landmark data model shared by the
// analyzers. Frames are ephemeral: they exist for the duration of one
// analysis call and are never retained.
package landmark

import "math"

// Body pose landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	PoseNose          = 0
	PoseLeftEar       = 7
	PoseRightEar      = 8
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftElbow     = 13
	PoseRightElbow    = 14
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24
	PoseLandmarkCount = 33
)

// Face mesh landmark indices following the MediaPipe Face Mesh convention.
// Only the points the head-pose estimator reads are named.
const (
	FaceNoseTip       = 1
	FaceForehead      = 10
	FaceLeftEyeOuter  = 33
	FaceLeftEyeInner  = 133
	FaceChin          = 152
	FaceLeftCheek     = 234
	FaceRightEyeInner = 362
	FaceRightEyeOuter = 263
	FaceRightCheek    = 454
	FaceMouthLeft     = 61
	FaceMouthRight    = 291
	FaceLandmarkCount = 468
)

// Point is a single landmark in normalized image space. X and Y are in
// [0,1]; Z is relative depth; Visibility is a [0,1] detector confidence.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one analyzed video frame's worth of landmark data. Either set
// may be empty when the corresponding detector found nothing. FaceTransform
// is the optional 4x4 row-major transformation matrix for the detected face.
type Frame struct {
	TimestampMs   int64        `json:"timestamp"`
	Pose          []Point      `json:"pose,omitempty"`
	Face          []Point      `json:"face,omitempty"`
	FaceTransform *[16]float64 `json:"faceTransform,omitempty"`
}

// HasPose reports whether the frame carries a full body landmark set
func (f *Frame) HasPose() bool {
	return len(f.Pose) >= PoseLandmarkCount
}

// HasFace reports whether the frame carries a full face landmark set
func (f *Frame) HasFace() bool {
	return len(f.Face) >= FaceLandmarkCount
}

// Visible reports whether a point's visibility clears the threshold
func (p Point) Visible(threshold float64) bool {
	return p.Visibility > threshold
}

// Distance returns the Euclidean distance between two points in the image plane
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Midpoint returns the point halfway between a and b
func Midpoint(a, b Point) Point {
	return Point{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}
