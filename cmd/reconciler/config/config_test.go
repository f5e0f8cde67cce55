package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"cod-reconciliation-service/pkg/errors"
)

// fileBacked returns a viper whose sources are CSV files and whose sink is csv
func fileBacked() *viper.Viper {
	v := viper.New()
	v.Set("files.orders", "orders.csv")
	v.Set("files.settlements", "settlements.csv")
	v.Set("sink.kind", "csv")
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(fileBacked())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("ValidateRun() error = %v", err)
	}

	if cfg.Run.Timeout != 25*time.Second {
		t.Errorf("expected 25s timeout, got %v", cfg.Run.Timeout)
	}
	if !cfg.Run.FeeBreakdown {
		t.Error("expected fee breakdown enabled by default")
	}
	if cfg.Run.OutputFormat != "console" {
		t.Errorf("expected console output, got %s", cfg.Run.OutputFormat)
	}
	if cfg.Shopify.APIVersion != "2024-04" || cfg.Shopify.PageSize != 250 {
		t.Errorf("unexpected shopify defaults: %+v", cfg.Shopify)
	}
	if cfg.Shiprocket.TokenTTL != 216*time.Hour {
		t.Errorf("expected 9 day token TTL, got %v", cfg.Shiprocket.TokenTTL)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("expected 24h redis TTL, got %v", cfg.Redis.TTL)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without an endpoint")
	}
	if cfg.Sink.CSV.Dir != "reconciliation" {
		t.Errorf("unexpected csv dir %q", cfg.Sink.CSV.Dir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECONCILER_SHOPIFY_STORE_DOMAIN", "acme.myshopify.com")
	t.Setenv("RECONCILER_SHOPIFY_ACCESS_TOKEN", "shpat_test")
	t.Setenv("RECONCILER_SHIPROCKET_EMAIL", "ops@acme.test")
	t.Setenv("RECONCILER_SHIPROCKET_PASSWORD", "secret")
	t.Setenv("RECONCILER_SINK_SHEETS_SPREADSHEET_ID", "sheet-123")
	t.Setenv("RECONCILER_RUN_TIMEOUT", "10s")
	t.Setenv("RECONCILER_REDIS_ADDRESS", "localhost:6379")

	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("ValidateRun() error = %v", err)
	}

	if cfg.Shopify.StoreDomain != "acme.myshopify.com" || cfg.Shopify.AccessToken != "shpat_test" {
		t.Errorf("shopify settings not read from environment: %+v", cfg.Shopify)
	}
	if cfg.Shiprocket.Email != "ops@acme.test" {
		t.Errorf("expected shiprocket email from environment, got %q", cfg.Shiprocket.Email)
	}
	if cfg.Sink.Kind != "sheets" || cfg.Sink.Sheets.SpreadsheetID != "sheet-123" {
		t.Errorf("unexpected sink settings: %+v", cfg.Sink)
	}
	if cfg.Run.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Run.Timeout)
	}
	if !cfg.Redis.Enabled() {
		t.Error("expected redis enabled")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	yaml := `
files:
  orders: orders.csv
  settlements: settlements.csv
  delimiter: ";"
sink:
  kind: xlsx
  excel:
    path: out/recon.xlsx
run:
  output_format: json
  fee_breakdown: false
`
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sink.Kind != "xlsx" || cfg.Sink.Excel.Path != "out/recon.xlsx" {
		t.Errorf("unexpected sink settings: %+v", cfg.Sink)
	}
	if cfg.Run.OutputFormat != "json" || cfg.Run.FeeBreakdown {
		t.Errorf("unexpected run settings: %+v", cfg.Run)
	}
	if Delimiter(cfg.Files.Delimiter) != ';' {
		t.Errorf("expected ';' delimiter, got %q", cfg.Files.Delimiter)
	}
}

func TestLoad_SnapshotOnlyNeedsNoCredentials(t *testing.T) {
	if _, err := Load(viper.New()); err != nil {
		t.Fatalf("Load() without credentials should succeed, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		set         map[string]interface{}
		wantSetting string
		wantCode    errors.ErrorCode
	}{
		{
			name:        "unknown sink",
			set:         map[string]interface{}{"sink.kind": "bigquery"},
			wantSetting: "sink.kind",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "zero timeout",
			set:         map[string]interface{}{"run.timeout": "0s"},
			wantSetting: "run.timeout",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "bad output format",
			set:         map[string]interface{}{"run.output_format": "xml"},
			wantSetting: "run.output_format",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "shopify page size above maximum",
			set:         map[string]interface{}{"shopify.page_size": 1000},
			wantSetting: "shopify.page_size",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "malformed since date",
			set:         map[string]interface{}{"shopify.since": "01/02/2024"},
			wantSetting: "shopify.since",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "missing shopify credentials",
			set:         map[string]interface{}{"files.orders": ""},
			wantSetting: "shopify.store_domain",
			wantCode:    errors.CodeMissingConfig,
		},
		{
			name:        "missing shiprocket credentials",
			set:         map[string]interface{}{"files.settlements": ""},
			wantSetting: "shiprocket.email",
			wantCode:    errors.CodeMissingConfig,
		},
		{
			name: "inverted remittance window",
			set: map[string]interface{}{
				"shiprocket.from": "2024-03-01",
				"shiprocket.to":   "2024-02-01",
			},
			wantSetting: "shiprocket.from",
			wantCode:    errors.CodeInvalidConfig,
		},
		{
			name:        "sheets sink without spreadsheet",
			set:         map[string]interface{}{"sink.kind": "sheets"},
			wantSetting: "sink.sheets.spreadsheet_id",
			wantCode:    errors.CodeMissingConfig,
		},
		{
			name:        "csv sink without directory",
			set:         map[string]interface{}{"sink.csv.dir": ""},
			wantSetting: "sink.csv.dir",
			wantCode:    errors.CodeMissingConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := fileBacked()
			for key, value := range tt.set {
				v.Set(key, value)
			}

			cfg, err := Load(v)
			if err == nil {
				err = cfg.ValidateRun()
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %T: %v", err, err)
			}
			if rerr.Category != errors.CategoryConfiguration {
				t.Errorf("expected configuration category, got %s", rerr.Category)
			}
			if rerr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, rerr.Code)
			}
			if got := rerr.Context["setting"]; got != tt.wantSetting {
				t.Errorf("expected setting %q, got %v", tt.wantSetting, got)
			}
		})
	}
}

func TestValidate_DryRunNeedsNoSink(t *testing.T) {
	v := fileBacked()
	v.Set("sink.kind", "sheets")
	v.Set("run.dry_run", true)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("dry run should not require sink settings: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.February || d.Day() != 29 {
		t.Errorf("unexpected date %v", d)
	}

	zero, err := ParseDate("")
	if err != nil || !zero.IsZero() {
		t.Errorf("expected zero time for empty input, got %v, %v", zero, err)
	}
}

func TestDelimiter(t *testing.T) {
	if Delimiter("") != ',' {
		t.Error("empty delimiter should default to ','")
	}
	if Delimiter("\t") != '\t' {
		t.Error("expected tab delimiter")
	}
}
