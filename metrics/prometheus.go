// Package metrics exports SaveChanges telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mickamy/gaudit"
)

type prometheusObserver struct {
	commits   *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	auditRows *prometheus.CounterVec
}

var _ gaudit.Observer = (*prometheusObserver)(nil)

// NewPrometheusObserver registers the gaudit collectors with reg, or with the
// default registry when reg is nil.
func NewPrometheusObserver(reg prometheus.Registerer) gaudit.Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &prometheusObserver{
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gaudit_commits_total",
			Help: "Total number of SaveChanges calls by outcome",
		}, []string{"outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gaudit_commit_duration_seconds",
			Help:    "SaveChanges latency by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		auditRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gaudit_audit_rows_total",
			Help: "Total number of audit rows staged by audit table",
		}, []string{"table"}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) ObserveCommit(outcome string, d time.Duration) {
	p.commits.WithLabelValues(outcome).Inc()
	p.latency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *prometheusObserver) ObserveAuditRows(table string, n int) {
	p.auditRows.WithLabelValues(table).Add(float64(n))
}
