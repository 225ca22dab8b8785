// Package prometheus provides Prometheus metrics for motion analysis sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "motionsdk"

var (
	// framesEnqueuedTotal is a counter of frames handed to the flow controller.
	framesEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_enqueued_total",
			Help:      "Total number of frames handed to the session flow controller",
		},
	)

	// framesSupersededTotal is a counter of frames dropped in favor of newer ones.
	framesSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_superseded_total",
			Help:      "Total number of unsent frames replaced by newer ones",
		},
	)

	// framesSentTotal is a counter of frames released to the transport.
	framesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames sent to the analysis service",
		},
	)

	// frameSizeBytes is a histogram of sent frame sizes.
	frameSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_size_bytes",
			Help:      "Histogram of sent frame sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10), // 1KB .. 512KB
		},
	)

	// responseLatency is a histogram of frame round-trip latency by response kind.
	responseLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_latency_seconds",
			Help:      "Frame round-trip latency in seconds by response kind",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	// responsesTotal is a counter of completed analysis responses by kind.
	responsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of completed analysis responses by kind",
		},
		[]string{"kind"},
	)

	// errorsTotal is a counter of session errors by kind.
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of session errors by kind",
		},
		[]string{"kind"},
	)

	// repetitionsTotal is a counter of detected repetitions by result.
	repetitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repetitions_total",
			Help:      "Total number of detected exercise repetitions by result",
		},
		[]string{"result"}, // result: correct, incorrect
	)

	// sessionState is a gauge of the current connection state.
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current connection state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		framesEnqueuedTotal,
		framesSupersededTotal,
		framesSentTotal,
		frameSizeBytes,
		responseLatency,
		responsesTotal,
		errorsTotal,
		repetitionsTotal,
		sessionState,
	}
)
