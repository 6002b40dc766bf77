package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "glowlogger_ingest"

// Label values.
const (
	failureStorage       = "storage"
	failureTimestamp     = "timestamp_parse"
	failurePoolExhausted = "pool_exhausted"
	connectResultSuccess = "success"
	connectResultFailure = "failure"
)

// Metrics is a prometheus.Collector for the ingest session and pipeline.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	messages        prometheus.Counter
	stored          prometheus.Counter
	duplicates      prometheus.Counter
	decodeFailures  prometheus.Counter
	persistFailures *prometheus.CounterVec
	connects        *prometheus.CounterVec
	state           *prometheus.GaugeVec
}

// NewMetrics returns a new Metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Messages received on the subscribed topic.",
		}),
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "readings_stored_total",
			Help:      "Readings stored as a new record set.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "readings_duplicate_total",
			Help:      "Readings discarded because their timestamp was already stored.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_failures_total",
			Help:      "Payloads dropped because they could not be decoded.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Readings dropped because they could not be stored.",
		}, []string{"reason"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Broker connect and subscribe attempts.",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "session_state",
			Help:      "1 for the session's current state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.setState(StateDisconnected)
	return m
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.messages.Describe(ch)
	m.stored.Describe(ch)
	m.duplicates.Describe(ch)
	m.decodeFailures.Describe(ch)
	m.persistFailures.Describe(ch)
	m.connects.Describe(ch)
	m.state.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.messages.Collect(ch)
	m.stored.Collect(ch)
	m.duplicates.Collect(ch)
	m.decodeFailures.Collect(ch)
	m.persistFailures.Collect(ch)
	m.connects.Collect(ch)
	m.state.Collect(ch)
}

func (m *Metrics) received() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) storedReading() {
	if m != nil {
		m.stored.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) decodeFailed() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) persistFailed(reason string) {
	if m != nil {
		m.persistFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.WithLabelValues(connectResultSuccess).Inc()
	}
}

func (m *Metrics) connectFailed() {
	if m != nil {
		m.connects.WithLabelValues(connectResultFailure).Inc()
	}
}

func (m *Metrics) setState(current StateName) {
	if m == nil {
		return
	}
	for _, name := range []StateName{StateDisconnected, StateConnecting, StateSubscribed} {
		v := 0.0
		if name == current {
			v = 1
		}
		m.state.WithLabelValues(string(name)).Set(v)
	}
}
