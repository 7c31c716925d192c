package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProviderCallMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProviderCallMetrics(reg)

	m.ObserveDuration("Stripe", "process_payment", 120*time.Millisecond)
	m.IncSuccess("Stripe", "process_payment")
	m.IncFailure("square", "refund payment")

	if got := testutil.ToFloat64(m.success.WithLabelValues("stripe", "process_payment")); got != 1 {
		t.Fatalf("success counter = %v", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("square", "refund_payment")); got != 1 {
		t.Fatalf("failure counter = %v", got)
	}
}

func TestProviderCallMetricsNilSafe(t *testing.T) {
	var m *ProviderCallMetrics
	m.ObserveDuration("stripe", "x", time.Second)
	m.IncSuccess("stripe", "x")
	m.IncFailure("stripe", "x")

	empty := NewProviderCallMetrics(nil)
	empty.IncSuccess("stripe", "x")
}

func TestNormalizeLabel(t *testing.T) {
	if got := normalizeLabel("  Process Payment "); got != "process_payment" {
		t.Fatalf("normalizeLabel = %q", got)
	}
	if got := normalizeLabel(""); got != "unknown" {
		t.Fatalf("normalizeLabel empty = %q", got)
	}
}
