package prometheus

import (
	"time"

	"github.com/vay-org/motionsdk-go/session"
)

// knownStates are the gauge label values maintained by StateChanged.
var knownStates = []session.State{
	session.StateDisconnected,
	session.StateConnecting,
	session.StateAwaitingHandshake,
	session.StateReady,
	session.StateActive,
	session.StateClosed,
	session.StateFailed,
}

// Collector implements session.Collector by recording into the package
// metrics. Wire it through session.Config.Collector.
type Collector struct{}

// NewCollector creates a Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// FrameEnqueued implements session.Collector.
func (*Collector) FrameEnqueued() {
	framesEnqueuedTotal.Inc()
}

// FrameSuperseded implements session.Collector.
func (*Collector) FrameSuperseded() {
	framesSupersededTotal.Inc()
}

// FrameSent implements session.Collector.
func (*Collector) FrameSent(bytes int) {
	framesSentTotal.Inc()
	frameSizeBytes.Observe(float64(bytes))
}

// ResponseReceived implements session.Collector.
func (*Collector) ResponseReceived(kind string, latency time.Duration) {
	responsesTotal.WithLabelValues(kind).Inc()
	responseLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// ErrorObserved implements session.Collector.
func (*Collector) ErrorObserved(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RepetitionCounted implements session.Collector.
func (*Collector) RepetitionCounted(correct bool) {
	result := "incorrect"
	if correct {
		result = "correct"
	}
	repetitionsTotal.WithLabelValues(result).Inc()
}

// StateChanged implements session.Collector. The gauge is one-hot: the
// current state reads 1, all others 0.
func (*Collector) StateChanged(state session.State) {
	for _, s := range knownStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		sessionState.WithLabelValues(s.String()).Set(value)
	}
}
