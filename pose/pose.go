// Package pose defines the domain types returned by the motion analysis
// service: skeleton keypoints, repetitions with corrective feedback, body
// state, and session quality ratings.
package pose

import "time"

// Keypoint identifies one of the 19 anatomical points in a skeleton.
// The set is fixed by the analysis model and never reordered.
type Keypoint int

const (
	Nose Keypoint = iota
	Neck
	LeftEar
	RightEar
	LeftEye
	RightEye
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	MidHip

	// NumKeypoints is the fixed cardinality of a skeleton.
	NumKeypoints = iota
)

// keypointNames maps keypoints to their wire names.
var keypointNames = map[Keypoint]string{
	Nose:          "nose",
	Neck:          "neck",
	LeftEar:       "leftEar",
	RightEar:      "rightEar",
	LeftEye:       "leftEye",
	RightEye:      "rightEye",
	LeftShoulder:  "leftShoulder",
	RightShoulder: "rightShoulder",
	LeftElbow:     "leftElbow",
	RightElbow:    "rightElbow",
	LeftWrist:     "leftWrist",
	RightWrist:    "rightWrist",
	LeftHip:       "leftHip",
	RightHip:      "rightHip",
	LeftKnee:      "leftKnee",
	RightKnee:     "rightKnee",
	LeftAnkle:     "leftAnkle",
	RightAnkle:    "rightAnkle",
	MidHip:        "midHip",
}

// String returns the wire name of the keypoint.
func (k Keypoint) String() string {
	if name, ok := keypointNames[k]; ok {
		return name
	}
	return "unknown"
}

// KeypointFromName resolves a wire name to a Keypoint.
func KeypointFromName(name string) (Keypoint, bool) {
	for k, n := range keypointNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Keypoints returns all keypoints in their canonical order.
func Keypoints() []Keypoint {
	out := make([]Keypoint, NumKeypoints)
	for i := range out {
		out[i] = Keypoint(i)
	}
	return out
}

// Point is a 2D coordinate in source-image pixel space with a confidence
// score in [0,1].
type Point struct {
	X     float64
	Y     float64
	Score float64
}

// Skeleton is one analyzed pose: a point per anatomical keypoint.
type Skeleton map[Keypoint]Point

// Complete reports whether the skeleton carries all 19 keypoints.
func (s Skeleton) Complete() bool {
	return len(s) == NumKeypoints
}

// Feedback is a server-issued correction tied to a violated movement metric.
type Feedback struct {
	// MetricID identifies the violated metric.
	MetricID string

	// Messages holds the human-readable correction texts, in server order.
	Messages []string
}

// First returns the first correction message, or "" when none exist.
func (f Feedback) First() string {
	if len(f.Messages) == 0 {
		return ""
	}
	return f.Messages[0]
}

// Repetition is one completed cycle of the monitored exercise movement.
type Repetition struct {
	// Duration is how long the repetition took.
	Duration time.Duration

	// Feedbacks lists the corrections that applied, in arrival order.
	Feedbacks []Feedback
}

// Correct reports whether the repetition completed without corrections.
func (r Repetition) Correct() bool {
	return len(r.Feedbacks) == 0
}

// PrimaryCorrection returns the first message of the first feedback entry.
// When several corrections apply only the first is surfaced; consumers that
// want the full list can walk Feedbacks directly.
func (r Repetition) PrimaryCorrection() string {
	if len(r.Feedbacks) == 0 {
		return ""
	}
	return r.Feedbacks[0].First()
}

// MetricValue is a raw metric reading attached to an analyzed frame.
type MetricValue struct {
	MetricID string
	Value    float64
}

// Rating grades an aspect of the running session. Ratings are ordered:
// Bad < Poor < Good.
type Rating int

const (
	RatingBad Rating = iota
	RatingPoor
	RatingGood
)

// String returns the wire name of the rating.
func (r Rating) String() string {
	switch r {
	case RatingBad:
		return "bad"
	case RatingPoor:
		return "poor"
	case RatingGood:
		return "good"
	default:
		return "unknown"
	}
}

// RatingFromName resolves a wire name to a Rating.
func RatingFromName(name string) (Rating, bool) {
	switch name {
	case "bad":
		return RatingBad, true
	case "poor":
		return RatingPoor, true
	case "good":
		return RatingGood, true
	default:
		return 0, false
	}
}

// Quality rates the connection latency and the capture environment.
type Quality struct {
	Latency     Rating
	Environment Rating
}

// BodyState describes what the analysis currently sees in the frame.
type BodyState int

const (
	// BodyStateNoHuman means no person is visible.
	BodyStateNoHuman BodyState = iota

	// BodyStatePositioning means a person is visible but not yet in the
	// exercise starting position.
	BodyStatePositioning

	// BodyStateExercising means the exercise movement is being tracked.
	BodyStateExercising
)

// String returns the wire name of the body state.
func (s BodyState) String() string {
	switch s {
	case BodyStateNoHuman:
		return "noHuman"
	case BodyStatePositioning:
		return "positioning"
	case BodyStateExercising:
		return "exercising"
	default:
		return "unknown"
	}
}

// BodyStateFromName resolves a wire name to a BodyState.
func BodyStateFromName(name string) (BodyState, bool) {
	switch name {
	case "noHuman":
		return BodyStateNoHuman, true
	case "positioning":
		return BodyStatePositioning, true
	case "exercising":
		return BodyStateExercising, true
	default:
		return 0, false
	}
}
