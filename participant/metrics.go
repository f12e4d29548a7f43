package participant

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process-level counters/gauges a participant updates
// as it runs the reliability protocol (spec §4.10's periodic tasks are
// the natural place these change).
type Metrics struct {
	HeartbeatsSent     prometheus.Counter
	AckNacksReceived   prometheus.Counter
	SamplesRejected    prometheus.Counter
	MatchedWriters     prometheus.Gauge
	MatchedReaders     prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors under reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry across participant instances.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "heartbeats_sent_total",
			Help:      "HEARTBEAT submessages sent by this participant's writers.",
		}),
		AckNacksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "acknacks_received_total",
			Help:      "ACKNACK submessages received by this participant's writers.",
		}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtps",
			Name:      "samples_rejected_total",
			Help:      "Samples rejected by a reader's resource limits.",
		}),
		MatchedWriters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtps",
			Name:      "matched_writers",
			Help:      "Number of remote writers currently matched to a local reader.",
		}),
		MatchedReaders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtps",
			Name:      "matched_readers",
			Help:      "Number of remote readers currently matched to a local writer.",
		}),
	}
	reg.MustRegister(m.HeartbeatsSent, m.AckNacksReceived, m.SamplesRejected, m.MatchedWriters, m.MatchedReaders)
	return m
}
