package models

import "time"

const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// RunResult is what a caller gets back from one reconciliation run. On
// failure only the error fields, Timestamp and Duration are set.
type RunResult struct {
	RunID     string        `json:"runId,omitempty"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Code      string        `json:"code,omitempty"`
	Category  string        `json:"category,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"-"`
	// DurationMS mirrors Duration for JSON consumers
	DurationMS int64 `json:"durationMs"`
	DryRun     bool  `json:"dryRun,omitempty"`

	ShopifyOrders  int    `json:"shopifyOrders"`
	ShiprocketRows int    `json:"shiprocketRows"`
	ReconciledRows int    `json:"reconciledRows"`
	FeeRows        int    `json:"feeRows"`
	Stats          *Stats `json:"reconciliationStats,omitempty"`

	// Rows are kept for local reporting and are not serialized.
	Rows []ReconciliationRow `json:"-"`
}

// Succeeded reports whether the run finished without error
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status == RunStatusSuccess
}

// SetDuration records the elapsed time in both fields
func (r *RunResult) SetDuration(d time.Duration) {
	r.Duration = d
	r.DurationMS = d.Milliseconds()
}
