package rangingmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	rangingmetrics "github.com/sebas/rangingcore/internal/metrics"
)

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.SessionsClosedTotal == nil {
		t.Error("SessionsClosedTotal is nil")
	}
	if c.NegotiationsTotal == nil {
		t.Error("NegotiationsTotal is nil")
	}
	if c.OOBMessagesTotal == nil {
		t.Error("OOBMessagesTotal is nil")
	}
	if c.MeasurementsTotal == nil {
		t.Error("MeasurementsTotal is nil")
	}
	if c.FusionDriftTotal == nil {
		t.Error("FusionDriftTotal is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionCreatedAndClosedTrackTheGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	c.SessionCreated()
	c.SessionCreated()
	if got := gaugeValue(t, c.Sessions); got != 2 {
		t.Errorf("Sessions = %v, want 2", got)
	}

	c.SessionClosed("requested")
	if got := gaugeValue(t, c.Sessions); got != 1 {
		t.Errorf("Sessions after one close = %v, want 1", got)
	}
	if got := counterValue(t, c.SessionsClosedTotal, "requested"); got != 1 {
		t.Errorf("SessionsClosedTotal{reason=requested} = %v, want 1", got)
	}
}

func TestNegotiationOutcomeLabelsAreIndependent(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	c.NegotiationOutcome("ready")
	c.NegotiationOutcome("ready")
	c.NegotiationOutcome("failed")

	if got := counterValue(t, c.NegotiationsTotal, "ready"); got != 2 {
		t.Errorf("NegotiationsTotal{outcome=ready} = %v, want 2", got)
	}
	if got := counterValue(t, c.NegotiationsTotal, "failed"); got != 1 {
		t.Errorf("NegotiationsTotal{outcome=failed} = %v, want 1", got)
	}
}

func TestOOBMessageCountersAreDirectionAndTypeScoped(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	c.OOBMessageSent("CAPABILITY_REQUEST")
	c.OOBMessageReceived("CAPABILITY_RESPONSE")
	c.OOBMessageReceived("CAPABILITY_RESPONSE")

	if got := counterValue(t, c.OOBMessagesTotal, "sent", "CAPABILITY_REQUEST"); got != 1 {
		t.Errorf("sent/CAPABILITY_REQUEST = %v, want 1", got)
	}
	if got := counterValue(t, c.OOBMessagesTotal, "received", "CAPABILITY_RESPONSE"); got != 2 {
		t.Errorf("received/CAPABILITY_RESPONSE = %v, want 2", got)
	}
}

func TestMeasurementDeliveredCountsByTechnology(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	c.MeasurementDelivered("UWB")
	c.MeasurementDelivered("UWB")
	c.MeasurementDelivered("RSSI")

	if got := counterValue(t, c.MeasurementsTotal, "UWB"); got != 2 {
		t.Errorf("MeasurementsTotal{technology=UWB} = %v, want 2", got)
	}
	if got := counterValue(t, c.MeasurementsTotal, "RSSI"); got != 1 {
		t.Errorf("MeasurementsTotal{technology=RSSI} = %v, want 1", got)
	}
}

func TestFusionDriftIncrementsOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := rangingmetrics.NewCollector(reg)

	c.FusionDrift()

	m := &dto.Metric{}
	if err := c.FusionDriftTotal.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("FusionDriftTotal = %v, want 1", got)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
