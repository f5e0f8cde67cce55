// Package config loads the reconciler's settings from flags, a config file
// and the environment (prefix RECONCILER_, nested keys joined with "_").
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"cod-reconciliation-service/pkg/errors"
)

// EnvPrefix prefixes every environment variable, e.g. RECONCILER_SHOPIFY_ACCESS_TOKEN
const EnvPrefix = "RECONCILER"

// AppConfig is the complete, validated configuration of one invocation
type AppConfig struct {
	Shopify    ShopifyConfig    `mapstructure:"shopify"`
	Shiprocket ShiprocketConfig `mapstructure:"shiprocket"`
	Files      FilesConfig      `mapstructure:"files"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Run        RunConfig        `mapstructure:"run"`
	Log        LogConfig        `mapstructure:"log"`
}

type ShopifyConfig struct {
	StoreDomain string `mapstructure:"store_domain"`
	AccessToken string `mapstructure:"access_token"`
	APIVersion  string `mapstructure:"api_version"`
	PageSize    int    `mapstructure:"page_size" validate:"gte=0,lte=250"`
	// Since is a YYYY-MM-DD lower bound on order creation
	Since string `mapstructure:"since" validate:"omitempty,datetime=2006-01-02"`
}

type ShiprocketConfig struct {
	Email           string        `mapstructure:"email" validate:"omitempty,email"`
	Password        string        `mapstructure:"password"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	SettlementsPath string        `mapstructure:"settlements_path"`
	ShipmentsPath   string        `mapstructure:"shipments_path"`
	PageSize        int           `mapstructure:"page_size" validate:"gte=0,lte=500"`
	TokenTTL        time.Duration `mapstructure:"token_ttl" validate:"gte=0"`
	From            string        `mapstructure:"from" validate:"omitempty,datetime=2006-01-02"`
	To              string        `mapstructure:"to" validate:"omitempty,datetime=2006-01-02"`
}

// FilesConfig replaces the live sources with CSV exports when set
type FilesConfig struct {
	Orders      string `mapstructure:"orders"`
	Settlements string `mapstructure:"settlements"`
	Delimiter   string `mapstructure:"delimiter" validate:"omitempty,len=1"`
}

type SinkConfig struct {
	Kind   string       `mapstructure:"kind" validate:"oneof=sheets xlsx csv"`
	Sheets SheetsConfig `mapstructure:"sheets"`
	Excel  ExcelConfig  `mapstructure:"excel"`
	CSV    CSVConfig    `mapstructure:"csv"`
}

type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

type ExcelConfig struct {
	Path string `mapstructure:"path"`
}

type CSVConfig struct {
	Dir       string `mapstructure:"dir"`
	Delimiter string `mapstructure:"delimiter" validate:"omitempty,len=1"`
}

// RedisConfig enables dataset snapshots when URL or Address is set
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	TTL          time.Duration `mapstructure:"ttl" validate:"gte=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// Enabled reports whether a Redis endpoint is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type MetricsConfig struct {
	PushURL string `mapstructure:"push_url" validate:"omitempty,url"`
	Job     string `mapstructure:"job"`
}

type RunConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	DryRun       bool          `mapstructure:"dry_run"`
	FeeBreakdown bool          `mapstructure:"fee_breakdown"`
	OutputFormat string        `mapstructure:"output_format" validate:"oneof=console json"`
	OutputFile   string        `mapstructure:"output_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// defaults lists every key so that AutomaticEnv can resolve it during
// Unmarshal.
var defaults = map[string]interface{}{
	"shopify.store_domain":         "",
	"shopify.access_token":         "",
	"shopify.api_version":          "2024-04",
	"shopify.page_size":            250,
	"shopify.since":                "",
	"shiprocket.email":             "",
	"shiprocket.password":          "",
	"shiprocket.base_url":          "",
	"shiprocket.settlements_path":  "",
	"shiprocket.shipments_path":    "",
	"shiprocket.page_size":         100,
	"shiprocket.token_ttl":         "216h",
	"shiprocket.from":              "",
	"shiprocket.to":                "",
	"files.orders":                 "",
	"files.settlements":            "",
	"files.delimiter":              ",",
	"sink.kind":                    "sheets",
	"sink.sheets.spreadsheet_id":   "",
	"sink.sheets.credentials_file": "",
	"sink.sheets.credentials_json": "",
	"sink.excel.path":              "reconciliation.xlsx",
	"sink.csv.dir":                 "reconciliation",
	"sink.csv.delimiter":           ",",
	"redis.url":                    "",
	"redis.address":                "",
	"redis.password":               "",
	"redis.db":                     0,
	"redis.ttl":                    "24h",
	"redis.dial_timeout":           "5s",
	"redis.read_timeout":           "3s",
	"redis.write_timeout":          "3s",
	"metrics.push_url":             "",
	"metrics.job":                  "cod-reconciliation",
	"run.timeout":                  "25s",
	"run.dry_run":                  false,
	"run.fee_breakdown":            true,
	"run.output_format":            "console",
	"run.output_file":              "",
	"log.level":                    "info",
	"log.format":                   "text",
}

// SetDefaults registers defaults and environment binding on v
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v
func Load(v *viper.Viper) (*AppConfig, error) {
	SetDefaults(v)

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Validate checks field constraints
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// ValidateRun checks the settings each source and the chosen sink need.
// Commands that only read snapshots skip it.
func (c *AppConfig) ValidateRun() error {
	if c.Files.Orders == "" {
		if c.Shopify.StoreDomain == "" {
			return missing("shopify.store_domain", "set it or pass --orders-file")
		}
		if c.Shopify.AccessToken == "" {
			return missing("shopify.access_token", "set RECONCILER_SHOPIFY_ACCESS_TOKEN or pass --orders-file")
		}
	}
	if c.Files.Settlements == "" {
		if c.Shiprocket.Email == "" || c.Shiprocket.Password == "" {
			return missing("shiprocket.email", "set RECONCILER_SHIPROCKET_EMAIL and RECONCILER_SHIPROCKET_PASSWORD or pass --settlements-file")
		}
	}
	if c.Shiprocket.From != "" && c.Shiprocket.To != "" && c.Shiprocket.From > c.Shiprocket.To {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "shiprocket.from", c.Shiprocket.From,
			fmt.Errorf("from date %s is after to date %s", c.Shiprocket.From, c.Shiprocket.To))
	}

	if c.Run.DryRun {
		return nil
	}
	switch c.Sink.Kind {
	case "sheets":
		if c.Sink.Sheets.SpreadsheetID == "" {
			return missing("sink.sheets.spreadsheet_id", "set RECONCILER_SINK_SHEETS_SPREADSHEET_ID or choose another --sink")
		}
	case "xlsx":
		if c.Sink.Excel.Path == "" {
			return missing("sink.excel.path", "set the workbook path")
		}
	case "csv":
		if c.Sink.CSV.Dir == "" {
			return missing("sink.csv.dir", "set the output directory")
		}
	}
	return nil
}

func missing(setting, suggestion string) error {
	return errors.ConfigurationError(errors.CodeMissingConfig, setting, nil, nil).WithSuggestion(suggestion)
}

func formatValidationErrors(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	fe := errs[0]
	setting := strings.TrimPrefix(fe.Namespace(), "AppConfig.")
	return errors.ConfigurationError(errors.CodeInvalidConfig, setting, fe.Value(),
		fmt.Errorf("%s %s", setting, validationMessage(fe)))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	case "len":
		return fmt.Sprintf("must be exactly %s character(s)", fe.Param())
	}
	return "is invalid"
}

// ParseDate parses an optional YYYY-MM-DD value. Empty yields the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

// Delimiter returns the first rune of value, or ',' when empty
func Delimiter(value string) rune {
	for _, r := range value {
		return r
	}
	return ','
}
