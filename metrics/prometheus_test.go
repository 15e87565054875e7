package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mickamy/gaudit"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg).(*prometheusObserver)

	obs.ObserveCommit(gaudit.OutcomeCommitted, 20*time.Millisecond)
	obs.ObserveCommit(gaudit.OutcomeCommitted, 10*time.Millisecond)
	obs.ObserveCommit(gaudit.OutcomeFailed, time.Millisecond)
	obs.ObserveAuditRows("Invoice_Audit", 3)
	obs.ObserveAuditRows("Invoice_Audit", 1)

	if got := testutil.ToFloat64(obs.commits.WithLabelValues(gaudit.OutcomeCommitted)); got != 2 {
		t.Fatalf("committed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(obs.commits.WithLabelValues(gaudit.OutcomeFailed)); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.auditRows.WithLabelValues("Invoice_Audit")); got != 4 {
		t.Fatalf("audit rows = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(obs.latency); got != 2 {
		t.Fatalf("latency series = %d, want 2", got)
	}
}

func TestNewPrometheusObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusObserver(reg)

	defer func() {
		if recover() == nil {
			t.Fatalf("second registration did not panic")
		}
	}()
	_ = NewPrometheusObserver(reg)
}
