package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cod-reconciliation-service/cmd/reconciler/config"
	"cod-reconciliation-service/internal/cache"
	"cod-reconciliation-service/internal/metrics"
	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/parsers"
	"cod-reconciliation-service/internal/reconciler"
	"cod-reconciliation-service/internal/reporter"
	"cod-reconciliation-service/internal/sink"
	"cod-reconciliation-service/internal/sources/shiprocket"
	"cod-reconciliation-service/internal/sources/shopify"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

const metricsPushTimeout = 5 * time.Second

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile storefront orders with COD remittances",
	Long: `Reconcile fetches every storefront order and every COD settlement, matches
them by channel order id, settlement order id or secondary id, and replaces the
Shopify Orders, Shiprocket Settlements, Reconciliation and Fee Breakdown tables
of the configured sink.

Orders and settlements come from the live APIs unless a CSV export is given.

Examples:
  # Live sources, Google Sheets sink
  reconciler reconcile

  # Offline run from exports into a CSV directory
  reconciler reconcile --orders-file orders.csv --settlements-file remittances.csv \
    --sink csv --csv-dir out/

  # Merge and print the summary without writing anything
  reconciler reconcile --dry-run --output-format json

  # Longer budget for large stores
  reconciler reconcile --timeout 60s`,

	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()

	// Source flags
	flags.String("orders-file", "", "read orders from a CSV export instead of the Shopify API")
	flags.String("settlements-file", "", "read settlements from a CSV export instead of the Shiprocket API")
	flags.String("delimiter", ",", "field delimiter of the CSV exports")
	flags.String("since", "", "only fetch orders created on or after this date (YYYY-MM-DD)")
	flags.String("from", "", "remittance window start (YYYY-MM-DD)")
	flags.String("to", "", "remittance window end (YYYY-MM-DD)")

	// Sink flags
	flags.String("sink", "sheets", "sink: sheets, xlsx, csv")
	flags.String("spreadsheet-id", "", "Google Sheets spreadsheet id")
	flags.String("credentials-file", "", "service account credentials for the sheets sink")
	flags.String("xlsx-path", "reconciliation.xlsx", "workbook path for the xlsx sink")
	flags.String("csv-dir", "reconciliation", "output directory for the csv sink")

	// Run flags
	flags.StringP("output-format", "f", "console", "summary format: console, json")
	flags.StringP("output-file", "o", "", "summary output file (default: stdout)")
	flags.Duration("timeout", reconciler.DefaultTimeout, "wall-clock budget of the run")
	flags.Bool("dry-run", false, "fetch and merge without writing to the sink")
	flags.Bool("fee-breakdown", true, "write the fee breakdown table when the settlement source supports it")

	bindings := map[string]string{
		"orders-file":      "files.orders",
		"settlements-file": "files.settlements",
		"delimiter":        "files.delimiter",
		"since":            "shopify.since",
		"from":             "shiprocket.from",
		"to":               "shiprocket.to",
		"sink":             "sink.kind",
		"spreadsheet-id":   "sink.sheets.spreadsheet_id",
		"credentials-file": "sink.sheets.credentials_file",
		"xlsx-path":        "sink.excel.path",
		"csv-dir":          "sink.csv.dir",
		"output-format":    "run.output_format",
		"output-file":      "run.output_file",
		"timeout":          "run.timeout",
		"dry-run":          "run.dry_run",
		"fee-breakdown":    "run.fee_breakdown",
	}
	for flag, key := range bindings {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("reconcile")

	orders, err := buildOrderSource(cfg, log)
	if err != nil {
		return err
	}
	settlements, err := buildSettlementSource(cfg, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	opts := []reconciler.Option{
		reconciler.WithLogger(log),
		reconciler.WithObserver(metrics.NewRunMetrics(registry)),
	}

	if cfg.Redis.Enabled() {
		store, err := cache.New(ctx, cacheConfig(cfg.Redis), log)
		if err != nil {
			return err
		}
		defer store.Close()

		orders = cache.WrapOrders(orders, store)
		settlements = cache.WrapSettlements(settlements, store)
		opts = append(opts, reconciler.WithSnapshots(store))
	}

	var target reconciler.Sink
	if !cfg.Run.DryRun {
		target, err = buildSink(ctx, cfg, log)
		if err != nil {
			return err
		}
	}

	orch, err := reconciler.NewOrchestrator(orders, settlements, target, &reconciler.Config{
		Timeout:             cfg.Run.Timeout,
		DryRun:              cfg.Run.DryRun,
		FeeBreakdown:        cfg.Run.FeeBreakdown,
		MaxConcurrentWrites: reconciler.DefaultConfig().MaxConcurrentWrites,
	}, opts...)
	if err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		orch.AddProgressCallback(func(p *reconciler.Progress) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s (%.0f%% complete)\n",
				p.CompletedSteps, p.TotalSteps, p.State, p.PercentComplete)
		})
	}

	result, runErr := orch.Run(ctx)

	if cfg.Metrics.PushURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), metricsPushTimeout)
		if err := metrics.Push(pushCtx, cfg.Metrics.PushURL, cfg.Metrics.Job, registry); err != nil {
			log.WithError(err).WithField("url", cfg.Metrics.PushURL).Warn("Failed to push run metrics")
		}
		cancel()
	}

	if result != nil {
		if err := writeSummary(result, cfg.Run.OutputFormat, cfg.Run.OutputFile); err != nil {
			if runErr == nil {
				return err
			}
			log.WithError(err).Warn("Failed to write run summary")
		}
	}

	return runErr
}

func buildOrderSource(cfg *config.AppConfig, log logger.Logger) (reconciler.OrderSource, error) {
	if cfg.Files.Orders != "" {
		fileCfg := parsers.DefaultOrderFileConfig()
		fileCfg.Delimiter = config.Delimiter(cfg.Files.Delimiter)
		return parsers.NewOrderFileSource(cfg.Files.Orders, fileCfg, log)
	}

	since, err := config.ParseDate(cfg.Shopify.Since)
	if err != nil {
		return nil, err
	}
	return shopify.NewClient(shopify.Config{
		StoreDomain: cfg.Shopify.StoreDomain,
		AccessToken: cfg.Shopify.AccessToken,
		APIVersion:  cfg.Shopify.APIVersion,
		PageSize:    cfg.Shopify.PageSize,
		Since:       since,
	}, log)
}

func buildSettlementSource(cfg *config.AppConfig, log logger.Logger) (reconciler.SettlementSource, error) {
	if cfg.Files.Settlements != "" {
		fileCfg := parsers.DefaultSettlementFileConfig()
		fileCfg.Delimiter = config.Delimiter(cfg.Files.Delimiter)
		return parsers.NewSettlementFileSource(cfg.Files.Settlements, fileCfg, log)
	}

	from, err := config.ParseDate(cfg.Shiprocket.From)
	if err != nil {
		return nil, err
	}
	to, err := config.ParseDate(cfg.Shiprocket.To)
	if err != nil {
		return nil, err
	}
	return shiprocket.NewClient(shiprocket.Config{
		Email:           cfg.Shiprocket.Email,
		Password:        cfg.Shiprocket.Password,
		BaseURL:         cfg.Shiprocket.BaseURL,
		SettlementsPath: cfg.Shiprocket.SettlementsPath,
		ShipmentsPath:   cfg.Shiprocket.ShipmentsPath,
		PageSize:        cfg.Shiprocket.PageSize,
		TokenTTL:        cfg.Shiprocket.TokenTTL,
		From:            from,
		To:              to,
	}, log)
}

func buildSink(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (reconciler.Sink, error) {
	kind, err := sink.ParseKind(cfg.Sink.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case sink.KindExcel:
		return sink.NewExcelSink(cfg.Sink.Excel.Path, log)
	case sink.KindCSV:
		return sink.NewCSVSink(cfg.Sink.CSV.Dir, config.Delimiter(cfg.Sink.CSV.Delimiter), log)
	default:
		return sink.NewSheetsSink(ctx, sink.SheetsConfig{
			SpreadsheetID:   cfg.Sink.Sheets.SpreadsheetID,
			CredentialsFile: cfg.Sink.Sheets.CredentialsFile,
			CredentialsJSON: cfg.Sink.Sheets.CredentialsJSON,
		}, log)
	}
}

func cacheConfig(r config.RedisConfig) cache.Config {
	return cache.Config{
		URL:          r.URL,
		Address:      r.Address,
		Password:     r.Password,
		DB:           r.DB,
		TTL:          r.TTL,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

func writeSummary(result *models.RunResult, format, outputFile string) error {
	reportConfig := reporter.DefaultReportConfig()
	reportConfig.Format = reporter.OutputFormat(format)
	gen, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	var output io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, outputFile, err)
			}
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer file.Close()
		output = file
	}

	return gen.GenerateReport(result, output)
}
