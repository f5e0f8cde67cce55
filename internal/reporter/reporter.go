// Package reporter renders reconciliation runs for people and for the sink.
//
// Two kinds of output live here:
//   - table grids (header row plus one row per record) handed to the
//     persistence sink for each named table
//   - run reports written to a terminal or file in console, JSON or CSV form
//
// Example usage:
//
//	gen, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = gen.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cod-reconciliation-service/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeRows adds the per-order rows to JSON output
	IncludeRows bool `json:"include_rows"`

	// MaxAttentionItems caps the mismatch/pending listing in console output
	MaxAttentionItems int `json:"max_attention_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		MaxAttentionItems: 10,
		CSVDelimiter:      ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxAttentionItems < 0 {
		return fmt.Errorf("max attention items cannot be negative, got %d", c.MaxAttentionItems)
	}
	return nil
}

// ReportGenerator writes run reports
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the report for result to writer
func (rg *ReportGenerator) GenerateReport(result *models.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *models.RunResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	if result.RunID != "" {
		fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	}
	fmt.Fprintf(writer, "Generated: %s\n", result.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n", result.Duration)
	fmt.Fprintf(writer, "Status: %s\n", result.Status)
	if result.DryRun {
		fmt.Fprintf(writer, "Dry run: nothing was persisted\n")
	}
	fmt.Fprintf(writer, "\n")

	if !result.Succeeded() {
		fmt.Fprintf(writer, "=== ERROR ===\n")
		if result.Category != "" {
			fmt.Fprintf(writer, "Category: %s\n", result.Category)
		}
		if result.Code != "" {
			fmt.Fprintf(writer, "Code:     %s\n", result.Code)
		}
		fmt.Fprintf(writer, "Message:  %s\n", result.Message)
		return nil
	}

	fmt.Fprintf(writer, "=== DATASETS ===\n")
	fmt.Fprintf(writer, "Shopify Orders:         %d\n", result.ShopifyOrders)
	fmt.Fprintf(writer, "Shiprocket Settlements: %d\n", result.ShiprocketRows)
	fmt.Fprintf(writer, "Reconciled Rows:        %d\n", result.ReconciledRows)
	if result.FeeRows > 0 {
		fmt.Fprintf(writer, "Fee Breakdown Rows:     %d\n", result.FeeRows)
	}
	fmt.Fprintf(writer, "\n")

	if stats := result.Stats; stats != nil {
		fmt.Fprintf(writer, "=== SUMMARY ===\n")
		rg.printSummary(stats, writer)
		fmt.Fprintf(writer, "\n")

		fmt.Fprintf(writer, "=== STATUS BREAKDOWN ===\n")
		for _, status := range models.Statuses() {
			count := stats.ByStatus[status]
			fmt.Fprintf(writer, "%-20s %d (%.1f%%)\n", status.String()+":", count,
				rg.calculatePercentage(count, stats.TotalOrders))
		}
		fmt.Fprintf(writer, "\n")

		fmt.Fprintf(writer, "=== MATCH METHODS ===\n")
		for _, method := range models.MatchMethods() {
			fmt.Fprintf(writer, "%-20s %d\n", method.String()+":", stats.ByMatchMethod[method])
		}
		fmt.Fprintf(writer, "\n")
	}

	attention := rg.attentionRows(result.Rows)
	if len(attention) > 0 {
		fmt.Fprintf(writer, "=== NEEDS ATTENTION ===\n")
		rg.printAttention(attention, writer)
	}

	return nil
}

func (rg *ReportGenerator) printSummary(stats *models.Stats, writer io.Writer) {
	fmt.Fprintf(writer, "Orders:   %d\n", stats.TotalOrders)
	fmt.Fprintf(writer, "  COD:     %d (%.1f%%)\n", stats.CODOrders,
		rg.calculatePercentage(stats.CODOrders, stats.TotalOrders))
	fmt.Fprintf(writer, "  Prepaid: %d (%.1f%%)\n", stats.PrepaidOrders,
		rg.calculatePercentage(stats.PrepaidOrders, stats.TotalOrders))
	if stats.Skipped > 0 {
		fmt.Fprintf(writer, "  Skipped: %d\n", stats.Skipped)
	}
	fmt.Fprintf(writer, "Order Total:    %s\n", stats.OrderTotal.StringFixed(2))
	fmt.Fprintf(writer, "Net Received:   %s\n", stats.NetReceived.StringFixed(2))
	fmt.Fprintf(writer, "Net Difference: %s\n", stats.NetDifference.StringFixed(2))
}

// attentionRows returns mismatched and pending rows in input order
func (rg *ReportGenerator) attentionRows(rows []models.ReconciliationRow) []models.ReconciliationRow {
	var out []models.ReconciliationRow
	for _, r := range rows {
		if r.Status == models.StatusMismatch || r.Status == models.StatusPendingRemittance {
			out = append(out, r)
		}
	}
	return out
}

func (rg *ReportGenerator) printAttention(rows []models.ReconciliationRow, writer io.Writer) {
	limit := rg.config.MaxAttentionItems
	for i, r := range rows {
		if limit > 0 && i >= limit {
			fmt.Fprintf(writer, "  ... and %d more\n", len(rows)-limit)
			break
		}
		fmt.Fprintf(writer, "  %d. %s (%s) %s: total %s, received %s, difference %s\n",
			i+1,
			r.OrderNumber,
			r.OrderID,
			r.Status,
			r.OrderTotal.StringFixed(2),
			r.ShiprocketNet.StringFixed(2),
			r.Difference.StringFixed(2))
	}
}

func (rg *ReportGenerator) generateJSONReport(result *models.RunResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	if !rg.config.IncludeRows {
		return encoder.Encode(result)
	}

	return encoder.Encode(struct {
		*models.RunResult
		Rows []models.ReconciliationRow `json:"rows"`
	}{result, result.Rows})
}

// generateCSVReport writes the reconciliation table
func (rg *ReportGenerator) generateCSVReport(result *models.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	for _, row := range ReconciliationTable(result.Rows) {
		if err := csvWriter.Write(Stringify(row)); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Stringify converts one grid row to strings
func Stringify(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = val
		default:
			out[i] = fmt.Sprint(val)
		}
	}
	return out
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
