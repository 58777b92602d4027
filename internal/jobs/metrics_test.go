package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	if err := m.Track("invoice_run").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("boom")
	if err := m.Track("invoice_run").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	_ = m.Track("invoice_run").Reject("invalid_input", boom)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("invoice_run", StatusSuccess)); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("invoice_run", StatusFailure)); got != 1 {
		t.Fatalf("failure count = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("invoice_run")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("invoice_run", "invalid_input")); got != 1 {
		t.Fatalf("rejected = %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestNilMetricsTrackerIsSafe(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	if err := m.Track("x").End(boom); !errors.Is(err, boom) {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if err := m.Track("x").Reject("bad", nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
