// Package rangingmetrics exposes the process's Prometheus metrics:
// session counts, negotiation outcomes, OOB message counters, measurement
// throughput, and the fusion-drift event counter (§2.1/§2.2).
package rangingmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rangingd"
	subsystem = "core"
)

// Label names shared across metric vectors.
const (
	labelTechnology = "technology"
	labelReason     = "reason"
	labelDirection  = "direction"
	labelMsgType    = "message_type"
)

// Collector holds every Prometheus metric the ranging core exports.
type Collector struct {
	// Sessions tracks the number of currently registered sessions.
	Sessions prometheus.Gauge

	// SessionsClosedTotal counts session terminations, labeled by reason
	// (requested/limit_reached/error).
	SessionsClosedTotal *prometheus.CounterVec

	// NegotiationsTotal counts completed per-peer negotiations, labeled by
	// outcome (ready/failed).
	NegotiationsTotal *prometheus.CounterVec

	// OOBMessagesTotal counts OOB wire messages, labeled by direction
	// (sent/received) and message type.
	OOBMessagesTotal *prometheus.CounterVec

	// MeasurementsTotal counts delivered measurements, labeled by
	// technology.
	MeasurementsTotal *prometheus.CounterVec

	// FusionDriftTotal counts fusion-collaborator silence events that fell
	// back to raw measurement forwarding (§4.2 "Measurement merging").
	FusionDriftTotal prometheus.Counter
}

// NewCollector creates a Collector with every metric registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.SessionsClosedTotal,
		c.NegotiationsTotal,
		c.OOBMessagesTotal,
		c.MeasurementsTotal,
		c.FusionDriftTotal,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently registered ranging sessions.",
		}),

		SessionsClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_closed_total",
			Help:      "Total sessions closed, labeled by close reason.",
		}, []string{labelReason}),

		NegotiationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "negotiations_total",
			Help:      "Total per-peer OOB negotiations, labeled by outcome.",
		}, []string{"outcome"}),

		OOBMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "oob_messages_total",
			Help:      "Total OOB wire messages, labeled by direction and message type.",
		}, []string{labelDirection, labelMsgType}),

		MeasurementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "measurements_total",
			Help:      "Total measurements delivered to callers, labeled by technology.",
		}, []string{labelTechnology}),

		FusionDriftTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fusion_drift_total",
			Help:      "Total fusion-collaborator silence events that fell back to raw measurements.",
		}),
	}
}

// SessionCreated increments the sessions gauge.
func (c *Collector) SessionCreated() { c.Sessions.Inc() }

// SessionClosed decrements the sessions gauge and records the close reason.
func (c *Collector) SessionClosed(reason string) {
	c.Sessions.Dec()
	c.SessionsClosedTotal.WithLabelValues(reason).Inc()
}

// NegotiationOutcome records a completed negotiation's outcome ("ready" or
// "failed").
func (c *Collector) NegotiationOutcome(outcome string) {
	c.NegotiationsTotal.WithLabelValues(outcome).Inc()
}

// OOBMessageSent records one outbound OOB message.
func (c *Collector) OOBMessageSent(msgType string) {
	c.OOBMessagesTotal.WithLabelValues("sent", msgType).Inc()
}

// OOBMessageReceived records one inbound OOB message.
func (c *Collector) OOBMessageReceived(msgType string) {
	c.OOBMessagesTotal.WithLabelValues("received", msgType).Inc()
}

// MeasurementDelivered records one measurement delivered to the caller.
func (c *Collector) MeasurementDelivered(technology string) {
	c.MeasurementsTotal.WithLabelValues(technology).Inc()
}

// FusionDrift records one fusion-collaborator silence event.
func (c *Collector) FusionDrift() { c.FusionDriftTotal.Inc() }
