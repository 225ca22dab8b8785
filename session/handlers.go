package session

import "github.com/vay-org/motionsdk-go/pose"

// Handlers is the event registration table: at most one handler per event
// kind. Register handlers before Connect; nil slots mean the event is
// dropped. Handlers are invoked in the order messages arrive on the
// connection and never concurrently for the same client, but they run on
// the client's dispatch goroutine; consumers that need a specific
// execution context (a UI loop, say) must marshal from inside the handler.
type Handlers struct {
	// Ready fires when the configuration handshake completes and frames
	// may be enqueued.
	Ready func()

	// SessionState fires when the analysis reports a body-state change.
	SessionState func(current, previous pose.BodyState)

	// Pose fires with the skeleton of a completed frame analysis.
	Pose func(seq int64, skeleton pose.Skeleton)

	// PoseInterpolated fires with an intermediate skeleton the server
	// interpolated between analyzed frames.
	PoseInterpolated func(seq int64, skeleton pose.Skeleton)

	// Feedback fires with the corrections for a completed frame analysis.
	Feedback func(seq int64, feedbacks []pose.Feedback)

	// Repetition fires when a movement cycle completes.
	Repetition func(rep pose.Repetition)

	// MetricValues fires with raw metric readings for a completed frame.
	MetricValues func(seq int64, values []pose.MetricValue)

	// SessionQuality fires when the server re-rates the session.
	SessionQuality func(q pose.Quality)

	// Error fires for every classified failure that does not end the
	// session.
	Error func(err *Error)

	// Close fires exactly once when the session ends server-side, with the
	// close code and reason.
	Close func(code int, reason string)
}
