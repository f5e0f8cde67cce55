package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"cod-reconciliation-service/internal/models"
)

func successfulRun() *models.RunResult {
	stats := models.NewStats()
	stats.ByStatus[models.StatusReconciled] = 3
	stats.ByStatus[models.StatusMismatch] = 1
	r := &models.RunResult{
		Status:         models.RunStatusSuccess,
		Timestamp:      time.Unix(1760000000, 0),
		ShopifyOrders:  4,
		ShiprocketRows: 5,
		FeeRows:        2,
		Stats:          stats,
	}
	r.SetDuration(1500 * time.Millisecond)
	return r
}

func TestRunMetrics_ObserveSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRunMetrics(reg)
	m.ObserveRun(successfulRun())

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchValue(mfs, "cod_reconciliation_runs_total", map[string]string{"status": "success", "category": "none"}); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected runs=1, got %f", got)
	}

	for status, want := range map[string]float64{"Reconciled": 3, "Mismatch": 1, "PendingRemittance": 0} {
		got, err := fetchValue(mfs, "cod_reconciliation_rows", map[string]string{"status": status})
		if err != nil {
			t.Fatalf("fetch rows %s: %v", status, err)
		}
		if got != want {
			t.Errorf("rows{status=%s} = %f, want %f", status, got, want)
		}
	}

	if got, err := fetchValue(mfs, "cod_reconciliation_fetched_records", map[string]string{"dataset": "settlements"}); err != nil {
		t.Fatalf("fetch settlements: %v", err)
	} else if got != 5 {
		t.Errorf("expected 5 settlements, got %f", got)
	}

	if got, err := fetchValue(mfs, "cod_reconciliation_last_success_timestamp_seconds", nil); err != nil {
		t.Fatalf("fetch last run: %v", err)
	} else if got != 1760000000 {
		t.Errorf("unexpected last success timestamp %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cod_reconciliation_run_duration_seconds", "status", "success"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.5 {
		t.Errorf("expected duration sum 1.5, got %f", got)
	}
}

func TestRunMetrics_ObserveFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRunMetrics(reg)
	m.ObserveRun(&models.RunResult{Status: models.RunStatusError, Category: "timeout"})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchValue(mfs, "cod_reconciliation_runs_total", map[string]string{"status": "error", "category": "timeout"}); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected runs=1, got %f", got)
	}
	if findMetricFamily(mfs, "cod_reconciliation_rows") != nil {
		t.Error("failed runs must not set row gauges")
	}
}

func TestRunMetrics_NilSafe(t *testing.T) {
	var m *RunMetrics
	m.ObserveRun(successfulRun())
	NewRunMetrics(nil).ObserveRun(successfulRun())
}

func TestPush(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewRunMetrics(reg).ObserveRun(successfulRun())

	if err := Push(context.Background(), srv.URL, "cod-reconciliation", reg); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotPath != "/metrics/job/cod-reconciliation" {
		t.Errorf("unexpected push path %q", gotPath)
	}
	if gotMethod != http.MethodPut {
		t.Errorf("expected PUT, got %s", gotMethod)
	}
}

func fetchValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if !matchesLabels(metric.GetLabel(), labels) {
			continue
		}
		if c := metric.GetCounter(); c != nil {
			return c.GetValue(), nil
		}
		return metric.GetGauge().GetValue(), nil
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for name, value := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == name && p.GetValue() == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
