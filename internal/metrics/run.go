package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"cod-reconciliation-service/internal/models"
)

const namespace = "cod_reconciliation"

// RunMetrics records the outcome of reconciliation runs.
type RunMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.GaugeVec
	fetched  *prometheus.GaugeVec
	lastRun  prometheus.Gauge
}

// NewRunMetrics registers the run metrics on the provided registerer. A nil
// registerer yields a recorder that does nothing.
func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	if reg == nil {
		return &RunMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome.",
	}, []string{"status", "category"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 20, 25, 30, 60},
	}, []string{"status"})
	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows",
		Help:      "Reconciliation rows of the last successful run by status.",
	}, []string{"status"})
	fetched := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fetched_records",
		Help:      "Records fetched by the last successful run by dataset.",
	}, []string{"dataset"})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run.",
	})
	reg.MustRegister(runs, duration, rows, fetched, lastRun)
	return &RunMetrics{
		runs:     runs,
		duration: duration,
		rows:     rows,
		fetched:  fetched,
		lastRun:  lastRun,
	}
}

// ObserveRun records one finished run.
func (m *RunMetrics) ObserveRun(result *models.RunResult) {
	if m == nil || m.runs == nil || result == nil {
		return
	}

	status := normalizeLabel(result.Status)
	m.runs.WithLabelValues(status, normalizeLabel(result.Category)).Inc()
	m.duration.WithLabelValues(status).Observe(result.Duration.Seconds())

	if !result.Succeeded() {
		return
	}

	m.fetched.WithLabelValues("orders").Set(float64(result.ShopifyOrders))
	m.fetched.WithLabelValues("settlements").Set(float64(result.ShiprocketRows))
	m.fetched.WithLabelValues("fees").Set(float64(result.FeeRows))
	if result.Stats != nil {
		for _, st := range models.Statuses() {
			m.rows.WithLabelValues(st.String()).Set(float64(result.Stats.ByStatus[st]))
		}
	}
	m.lastRun.Set(float64(result.Timestamp.Unix()))
}

// Push sends everything gathered by g to a Pushgateway under job.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	return push.New(url, normalizeLabel(job)).Gatherer(g).PushContext(ctx)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
