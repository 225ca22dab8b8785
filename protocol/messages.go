// Package protocol defines the wire messages exchanged with the motion
// analysis service and helpers to convert them into domain types.
//
// The wire format is a JSON union: every message carries exactly one of the
// pointer fields below. Unknown messages decode into an empty union and are
// reported as KindUnknown so the session can log and drop them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vay-org/motionsdk-go/pose"
)

// Service error codes carried by ErrorMessage.
const (
	CodeInvalidConfiguration = 1001
	CodeUnauthorized         = 1002
	CodeInvalidFrame         = 2001
	CodeFrameTooLarge        = 2002
	CodeTimeout              = 3001
	CodeInternal             = 5000
)

// ClientMessage is the union of messages a client may send.
type ClientMessage struct {
	Configuration *Configuration `json:"configuration,omitempty"`
	Frame         *Frame         `json:"frame,omitempty"`
}

// Configuration is the metadata handshake message. It must be acknowledged
// by the server before any frame may be sent, and may be re-sent on a live
// session to switch exercises.
type Configuration struct {
	ExerciseKey string `json:"exerciseKey"`
	SessionName string `json:"sessionName"`
	APIKey      string `json:"apiKey"`
}

// Frame carries one encoded camera image. Data is base64-encoded JPEG on
// the wire (encoding/json handles []byte as base64).
type Frame struct {
	Seq  int64  `json:"seq"`
	Data []byte `json:"data"`
}

// MessageKind classifies a decoded server message.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindConfigurationAck
	KindPose
	KindPoseInterpolated
	KindFeedback
	KindRepetition
	KindMetricValues
	KindSessionState
	KindSessionQuality
	KindError
	KindClose
)

// String returns a readable name for the kind.
func (k MessageKind) String() string {
	switch k {
	case KindConfigurationAck:
		return "configurationAck"
	case KindPose:
		return "pose"
	case KindPoseInterpolated:
		return "poseInterpolated"
	case KindFeedback:
		return "feedback"
	case KindRepetition:
		return "repetition"
	case KindMetricValues:
		return "metricValues"
	case KindSessionState:
		return "sessionState"
	case KindSessionQuality:
		return "sessionQuality"
	case KindError:
		return "error"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// ServerMessage is the union of messages the service may send.
type ServerMessage struct {
	ConfigurationAck *ConfigurationAck    `json:"configurationAck,omitempty"`
	Pose             *PoseMessage         `json:"pose,omitempty"`
	PoseInterpolated *PoseMessage         `json:"poseInterpolated,omitempty"`
	Feedback         *FeedbackMessage     `json:"feedback,omitempty"`
	Repetition       *RepetitionMessage   `json:"repetition,omitempty"`
	MetricValues     *MetricValuesMessage `json:"metricValues,omitempty"`
	SessionState     *SessionStateMessage `json:"sessionState,omitempty"`
	SessionQuality   *QualityMessage      `json:"sessionQuality,omitempty"`
	Error            *ErrorMessage        `json:"error,omitempty"`
	Close            *CloseMessage        `json:"close,omitempty"`
}

// Kind returns which union field is populated. When several are set the
// first in declaration order wins; a well-behaved server sets exactly one.
func (m *ServerMessage) Kind() MessageKind {
	switch {
	case m.ConfigurationAck != nil:
		return KindConfigurationAck
	case m.Pose != nil:
		return KindPose
	case m.PoseInterpolated != nil:
		return KindPoseInterpolated
	case m.Feedback != nil:
		return KindFeedback
	case m.Repetition != nil:
		return KindRepetition
	case m.MetricValues != nil:
		return KindMetricValues
	case m.SessionState != nil:
		return KindSessionState
	case m.SessionQuality != nil:
		return KindSessionQuality
	case m.Error != nil:
		return KindError
	case m.Close != nil:
		return KindClose
	default:
		return KindUnknown
	}
}

// ConfigurationAck acknowledges a Configuration message.
type ConfigurationAck struct {
	ExerciseKey string `json:"exerciseKey,omitempty"`
}

// WirePoint is one named keypoint on the wire.
type WirePoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// PoseMessage carries the skeleton for one analyzed (or interpolated) frame.
type PoseMessage struct {
	Seq    int64       `json:"seq"`
	Points []WirePoint `json:"points"`
}

// Skeleton converts the wire points into a domain skeleton. Points with an
// unrecognized name are rejected rather than silently dropped.
func (m *PoseMessage) Skeleton() (pose.Skeleton, error) {
	s := make(pose.Skeleton, len(m.Points))
	for _, p := range m.Points {
		k, ok := pose.KeypointFromName(p.Name)
		if !ok {
			return nil, fmt.Errorf("unknown keypoint %q", p.Name)
		}
		s[k] = pose.Point{X: p.X, Y: p.Y, Score: p.Score}
	}
	return s, nil
}

// WireFeedback is one correction entry on the wire.
type WireFeedback struct {
	MetricID string   `json:"metricId"`
	Messages []string `json:"messages"`
}

// Domain converts the wire feedback into the domain type.
func (f WireFeedback) Domain() pose.Feedback {
	return pose.Feedback{MetricID: f.MetricID, Messages: f.Messages}
}

// FeedbackMessage carries the corrections for one analyzed frame.
type FeedbackMessage struct {
	Seq     int64          `json:"seq"`
	Entries []WireFeedback `json:"entries"`
}

// Feedbacks converts the wire entries into domain feedback, preserving order.
func (m *FeedbackMessage) Feedbacks() []pose.Feedback {
	out := make([]pose.Feedback, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Domain())
	}
	return out
}

// RepetitionMessage reports one completed exercise repetition.
type RepetitionMessage struct {
	DurationMs int64          `json:"durationMs"`
	Feedbacks  []WireFeedback `json:"feedbacks"`
}

// Repetition converts the message into the domain type.
func (m *RepetitionMessage) Repetition() pose.Repetition {
	feedbacks := make([]pose.Feedback, 0, len(m.Feedbacks))
	for _, f := range m.Feedbacks {
		feedbacks = append(feedbacks, f.Domain())
	}
	return pose.Repetition{
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		Feedbacks: feedbacks,
	}
}

// WireMetricValue is one raw metric reading on the wire.
type WireMetricValue struct {
	MetricID string  `json:"metricId"`
	Value    float64 `json:"value"`
}

// MetricValuesMessage carries the raw metric readings for one analyzed frame.
type MetricValuesMessage struct {
	Seq    int64             `json:"seq"`
	Values []WireMetricValue `json:"values"`
}

// MetricValues converts the wire readings into domain metric values.
func (m *MetricValuesMessage) MetricValues() []pose.MetricValue {
	out := make([]pose.MetricValue, 0, len(m.Values))
	for _, v := range m.Values {
		out = append(out, pose.MetricValue{MetricID: v.MetricID, Value: v.Value})
	}
	return out
}

// SessionStateMessage reports a body-state transition.
type SessionStateMessage struct {
	Current  string `json:"current"`
	Previous string `json:"previous,omitempty"`
}

// States converts the wire names into domain body states. An unknown name
// is an error; the dispatcher surfaces it instead of guessing.
func (m *SessionStateMessage) States() (current, previous pose.BodyState, err error) {
	current, ok := pose.BodyStateFromName(m.Current)
	if !ok {
		return 0, 0, fmt.Errorf("unknown body state %q", m.Current)
	}
	previous = pose.BodyStateNoHuman
	if m.Previous != "" {
		previous, ok = pose.BodyStateFromName(m.Previous)
		if !ok {
			return 0, 0, fmt.Errorf("unknown body state %q", m.Previous)
		}
	}
	return current, previous, nil
}

// QualityMessage rates the running session.
type QualityMessage struct {
	Latency     string `json:"latency"`
	Environment string `json:"environment"`
}

// Quality converts the wire ratings into the domain type.
func (m *QualityMessage) Quality() (pose.Quality, error) {
	latency, ok := pose.RatingFromName(m.Latency)
	if !ok {
		return pose.Quality{}, fmt.Errorf("unknown rating %q", m.Latency)
	}
	environment, ok := pose.RatingFromName(m.Environment)
	if !ok {
		return pose.Quality{}, fmt.Errorf("unknown rating %q", m.Environment)
	}
	return pose.Quality{Latency: latency, Environment: environment}, nil
}

// ErrorMessage reports a server-side failure. Seq is set when the error is
// addressed to a specific frame request.
type ErrorMessage struct {
	Seq     int64  `json:"seq,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CloseMessage announces that the server is terminating the session.
type CloseMessage struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// Decode parses raw bytes into a ServerMessage.
func Decode(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode server message: %w", err)
	}
	return &msg, nil
}
