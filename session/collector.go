package session

import "time"

// Collector receives flow-control and analysis observations from a Client.
// Implementations must be safe for concurrent use; the Prometheus collector
// in metrics/prometheus satisfies this interface.
type Collector interface {
	// FrameEnqueued is called for every Enqueue.
	FrameEnqueued()

	// FrameSuperseded is called when a newer frame replaces an unsent one.
	FrameSuperseded()

	// FrameSent is called when a frame is released to the transport.
	FrameSent(bytes int)

	// ResponseReceived is called when a completed analysis response clears
	// the in-flight token. Latency is the frame round trip.
	ResponseReceived(kind string, latency time.Duration)

	// ErrorObserved is called once per emitted Error event.
	ErrorObserved(kind string)

	// RepetitionCounted is called once per repetition event.
	RepetitionCounted(correct bool)

	// StateChanged is called after every connection state transition.
	StateChanged(state State)
}

// noopCollector discards all observations.
type noopCollector struct{}

func (noopCollector) FrameEnqueued()                         {}
func (noopCollector) FrameSuperseded()                       {}
func (noopCollector) FrameSent(int)                          {}
func (noopCollector) ResponseReceived(string, time.Duration) {}
func (noopCollector) ErrorObserved(string)                   {}
func (noopCollector) RepetitionCounted(bool)                 {}
func (noopCollector) StateChanged(State)                     {}
