// Package reconciler merges storefront orders with logistics settlements.
//
// This package holds the merge engine and its orchestration:
//   - order classification (COD or prepaid)
//   - status resolution with a fixed 0.5 tolerance
//   - row building with per-row fault isolation
//   - the Orchestrator, which fetches both datasets, merges them and
//     hands the resulting tables to a sink
//
// The Orchestrator reports state transitions through progress callbacks.
//
// Example usage:
//
//	orch, err := reconciler.NewOrchestrator(orders, settlements, sink, reconciler.DefaultConfig())
//	orch.AddProgressCallback(func(p *reconciler.Progress) {
//		fmt.Printf("%s (%.0f%%)\n", p.State, p.PercentComplete)
//	})
//	result, err := orch.Run(ctx)
package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cod-reconciliation-service/internal/matcher"
	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/reporter"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the wall-clock budget of one run
const DefaultTimeout = 25 * time.Second

// ErrFeeBreakdownUnavailable is returned by settlement sources that cannot
// produce a fee breakdown this run. It is not logged as a failure.
var ErrFeeBreakdownUnavailable = stderrors.New("fee breakdown unavailable")

// OrderSource supplies the complete, ordered list of storefront orders
type OrderSource interface {
	FetchOrders(ctx context.Context) ([]models.OrderRecord, error)
}

// SettlementSource supplies the complete, ordered list of settlements
type SettlementSource interface {
	FetchSettlements(ctx context.Context) ([]models.SettlementRecord, error)
}

// FeeBreakdownSource is optionally implemented by settlement sources
type FeeBreakdownSource interface {
	ComputeFeeBreakdown(ctx context.Context) ([]models.FeeRow, error)
}

// Sink replaces the contents of a named table
type Sink interface {
	Persist(ctx context.Context, table string, rows [][]interface{}) error
}

// RunObserver is notified once per finished run, successful or not
type RunObserver interface {
	ObserveRun(result *models.RunResult)
}

// RowSnapshotter keeps the merged rows of the last run for read-only views
type RowSnapshotter interface {
	SaveReconciliation(ctx context.Context, rows []models.ReconciliationRow) error
}

// Config holds run options
type Config struct {
	Timeout time.Duration

	// DryRun skips the Persisting state
	DryRun bool

	// FeeBreakdown enables the optional fee table when the settlement
	// source supports it
	FeeBreakdown bool

	// MaxConcurrentWrites bounds parallel table writes
	MaxConcurrentWrites int
}

// DefaultConfig returns the default run options
func DefaultConfig() *Config {
	return &Config{
		Timeout:             DefaultTimeout,
		FeeBreakdown:        true,
		MaxConcurrentWrites: 4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentWrites <= 0 {
		return fmt.Errorf("max concurrent writes must be positive, got %d", c.MaxConcurrentWrites)
	}
	return nil
}

// State is a step of a reconciliation run
type State string

const (
	StateIdle                State = "Idle"
	StateFetchingOrders      State = "FetchingOrders"
	StateFetchingSettlements State = "FetchingSettlements"
	StateIndexing            State = "Indexing"
	StateMerging             State = "Merging"
	StatePersisting          State = "Persisting"
	StateDone                State = "Done"
	StateFailed              State = "Failed"
)

// IsTerminal reports whether no further transitions follow
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var stateOrder = map[State]int{
	StateIdle:                0,
	StateFetchingOrders:      1,
	StateFetchingSettlements: 2,
	StateIndexing:            3,
	StateMerging:             4,
	StatePersisting:          5,
	StateDone:                6,
}

const totalSteps = 6

// Progress describes the current state of a run
type Progress struct {
	RunID           string        `json:"run_id"`
	State           State         `json:"state"`
	CompletedSteps  int           `json:"completed_steps"`
	TotalSteps      int           `json:"total_steps"`
	PercentComplete float64       `json:"percent_complete"`
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// ProgressCallback is called on every state transition. Callbacks run
// while the progress lock is held and must not call back into the
// Orchestrator.
type ProgressCallback func(*Progress)

// Orchestrator runs one reconciliation at a time. Callers must not run two
// reconciliations against the same sink concurrently; this is not enforced.
type Orchestrator struct {
	orders      OrderSource
	settlements SettlementSource
	sink        Sink
	config      *Config
	builder     *RowBuilder
	logger      logger.Logger
	observer    RunObserver
	snapshots   RowSnapshotter

	progressCallbacks []ProgressCallback
	currentProgress   *Progress
	progressMutex     sync.Mutex
	// finished is set once Run has returned so that abandoned work cannot
	// emit further transitions
	finished bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log.WithComponent("orchestrator")
		}
	}
}

// WithObserver registers a run observer such as a metrics recorder
func WithObserver(observer RunObserver) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithSnapshots stores merged rows after each successful merge
func WithSnapshots(s RowSnapshotter) Option {
	return func(o *Orchestrator) { o.snapshots = s }
}

// NewOrchestrator creates an orchestrator. sink may be nil only for dry runs.
func NewOrchestrator(orders OrderSource, settlements SettlementSource, sink Sink, config *Config, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "run", config, err)
	}
	if orders == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "order_source", nil, nil)
	}
	if settlements == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "settlement_source", nil, nil)
	}
	if sink == nil && !config.DryRun {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sink", nil, nil).
			WithSuggestion("configure a sink or pass --dry-run")
	}

	o := &Orchestrator{
		orders:      orders,
		settlements: settlements,
		sink:        sink,
		config:      config,
		logger:      logger.GetGlobalLogger().WithComponent("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.builder = NewRowBuilder(o.logger)

	return o, nil
}

// AddProgressCallback adds a progress callback function
func (o *Orchestrator) AddProgressCallback(callback ProgressCallback) {
	o.progressCallbacks = append(o.progressCallbacks, callback)
}

// CurrentProgress returns a copy of the latest progress
func (o *Orchestrator) CurrentProgress() Progress {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	if o.currentProgress == nil {
		return Progress{State: StateIdle, TotalSteps: totalSteps}
	}
	return *o.currentProgress
}

// Run executes one reconciliation within the configured timeout. On failure
// the returned RunResult carries the error message unmodified together with
// the elapsed duration.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.logger.WithField("run_id", runID)

	o.initializeProgress(runID, start)
	log.WithFields(logger.Fields{
		"timeout": o.config.Timeout.String(),
		"dry_run": o.config.DryRun,
	}).Info("Starting reconciliation run")

	runCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	type outcome struct {
		result *models.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.run(runCtx, runID, start, log)
		done <- outcome{result, err}
	}()

	var result *models.RunResult
	var err error
	select {
	case out := <-done:
		result, err = out.result, out.err
		if err != nil && errors.IsTimeout(runCtx.Err()) && !errors.IsCategory(err, errors.CategoryTimeout) {
			err = errors.TimeoutError("reconciliation", err)
		}
	case <-runCtx.Done():
		// In-flight fetches and writes are abandoned; they observe the
		// cancelled context and exit on their own.
		if errors.IsTimeout(runCtx.Err()) {
			err = errors.TimeoutError("reconciliation", runCtx.Err())
		} else {
			err = errors.InternalError("reconciliation", runCtx.Err()).
				WithSuggestion("the run was cancelled by the caller")
		}
	}

	if err != nil {
		result = o.failureResult(runID, start, err)
		o.finish(StateFailed, start)
		log.WithError(err).WithField("duration", result.Duration.String()).Error("Reconciliation run failed")
	} else {
		o.finish(StateDone, start)
		log.WithFields(logger.Fields{
			"duration":        result.Duration.String(),
			"reconciled_rows": result.ReconciledRows,
		}).Info("Reconciliation run completed")
	}

	if o.observer != nil {
		o.observer.ObserveRun(result)
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, runID string, start time.Time, log logger.Logger) (*models.RunResult, error) {
	orders, settlements, fees, err := o.fetch(ctx, log)
	if err != nil {
		return nil, err
	}

	o.transition(StateIndexing, start)
	idx := matcher.BuildIndex(settlements)
	channel, settlementOrder, secondary := idx.Size()
	log.WithFields(logger.Fields{
		"by_channel_id":          channel,
		"by_settlement_order_id": settlementOrder,
		"by_secondary_id":        secondary,
	}).Debug("Built settlement index")
	if idx.Collisions.Total() > 0 {
		log.WithFields(logger.Fields{
			"channel_id":          idx.Collisions.ChannelID,
			"settlement_order_id": idx.Collisions.SettlementOrderID,
			"secondary_id":        idx.Collisions.SecondaryID,
		}).Debug("Duplicate settlement keys overwritten")
	}

	o.transition(StateMerging, start)
	merged := o.builder.Merge(orders, idx)
	if len(merged.Skipped) > 0 {
		summary := merged.ErrorSummary()
		log.WithFields(logger.Fields{
			"skipped": summary.Total,
			"by_code": summary.ByCode,
		}).Warn("Orders skipped during merge")
		o.addWarning(fmt.Sprintf("%d orders skipped: %s", summary.Total, summary.Error()))
	}

	if o.snapshots != nil {
		if err := o.snapshots.SaveReconciliation(ctx, merged.Rows); err != nil {
			log.WithError(err).Warn("Failed to snapshot reconciliation rows")
		}
	}

	if !o.config.DryRun {
		o.transition(StatePersisting, start)
		tables := []tableWrite{
			{reporter.TableOrders, reporter.OrdersTable(orders)},
			{reporter.TableSettlements, reporter.SettlementsTable(settlements)},
			{reporter.TableReconciliation, reporter.ReconciliationTable(merged.Rows)},
		}
		if fees != nil {
			tables = append(tables, tableWrite{reporter.TableFeeBreakdown, reporter.FeeBreakdownTable(fees)})
		}
		if err := o.persist(ctx, tables, log); err != nil {
			return nil, err
		}
	}

	result := &models.RunResult{
		RunID:          runID,
		Status:         models.RunStatusSuccess,
		Timestamp:      start.UTC(),
		DryRun:         o.config.DryRun,
		ShopifyOrders:  len(orders),
		ShiprocketRows: len(settlements),
		ReconciledRows: len(merged.Rows),
		FeeRows:        len(fees),
		Stats:          merged.Stats,
		Rows:           merged.Rows,
	}
	result.SetDuration(time.Since(start))
	return result, nil
}

// fetch loads both datasets concurrently. Either failure cancels the other.
// The fee breakdown runs alongside and never fails the group.
func (o *Orchestrator) fetch(ctx context.Context, log logger.Logger) ([]models.OrderRecord, []models.SettlementRecord, []models.FeeRow, error) {
	start := o.CurrentProgress().StartTime
	o.transition(StateFetchingOrders, start)

	var (
		orders      []models.OrderRecord
		settlements []models.SettlementRecord
		fees        []models.FeeRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = o.orders.FetchOrders(gctx)
		if err != nil {
			return classifySourceError("orders", err)
		}
		log.WithField("orders", len(orders)).Info("Fetched orders")
		o.transition(StateFetchingSettlements, start)
		return nil
	})
	g.Go(func() error {
		var err error
		settlements, err = o.settlements.FetchSettlements(gctx)
		if err != nil {
			return classifySourceError("settlements", err)
		}
		log.WithField("settlements", len(settlements)).Info("Fetched settlements")
		return nil
	})
	if fb, ok := o.settlements.(FeeBreakdownSource); ok && o.config.FeeBreakdown {
		g.Go(func() error {
			rows, err := fb.ComputeFeeBreakdown(gctx)
			switch {
			case err == nil:
				fees = rows
			case stderrors.Is(err, ErrFeeBreakdownUnavailable):
				log.Debug("Fee breakdown not available for this source")
			default:
				log.WithError(err).Warn("Fee breakdown failed; skipping table this run")
				o.addWarning("fee breakdown unavailable: " + err.Error())
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return orders, settlements, fees, nil
}

type tableWrite struct {
	name string
	rows [][]interface{}
}

// persist writes every table concurrently. Each write runs to completion;
// successful writes are not rolled back when another fails.
func (o *Orchestrator) persist(ctx context.Context, tables []tableWrite, log logger.Logger) error {
	semaphore := make(chan struct{}, o.config.MaxConcurrentWrites)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var combined error
	var failed []string

	for _, t := range tables {
		wg.Add(1)
		go func(t tableWrite) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			err := logger.TimedOperation("persist "+t.name, log, func() error {
				return o.sink.Persist(ctx, t.name, t.rows)
			})
			if err != nil {
				err = errors.WrapIfNeeded(err, errors.CategoryPersistence, errors.CodeWriteFailed,
					fmt.Sprintf("failed to write table %q", t.name)).WithContext("table", t.name)
				mu.Lock()
				combined = multierr.Append(combined, err)
				failed = append(failed, t.name)
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	if combined == nil {
		return nil
	}

	errs := multierr.Errors(combined)
	if len(errs) == 1 {
		return errs[0]
	}
	sort.Strings(failed)
	return errors.PersistenceError(errors.CodeWriteFailed, strings.Join(failed, ", "), combined).
		WithContext("failed_tables", len(failed)).
		WithContext("total_tables", len(tables))
}

// classifySourceError keeps categorized errors as they are and marks
// anything else as an unavailable source.
func classifySourceError(source string, err error) error {
	if errors.IsReconcilerError(err) {
		return err
	}
	if errors.IsTimeout(err) {
		return errors.TimeoutError("fetching "+source, err)
	}
	return errors.SourceError(errors.CodeSourceUnavailable, source, err)
}

func (o *Orchestrator) failureResult(runID string, start time.Time, err error) *models.RunResult {
	result := &models.RunResult{
		RunID:     runID,
		Status:    models.RunStatusError,
		Message:   err.Error(),
		Timestamp: start.UTC(),
		DryRun:    o.config.DryRun,
	}
	if rerr, ok := errors.AsReconcilerError(err); ok {
		result.Message = rerr.Message
		result.Code = string(rerr.Code)
		result.Category = string(rerr.Category)
	}
	result.SetDuration(time.Since(start))
	return result
}

func (o *Orchestrator) initializeProgress(runID string, start time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	o.finished = false
	o.currentProgress = &Progress{
		RunID:      runID,
		State:      StateIdle,
		TotalSteps: totalSteps,
		StartTime:  start,
	}
}

// transition moves to state and notifies callbacks. Transitions after the
// run has finished are dropped.
func (o *Orchestrator) transition(state State, start time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	if o.finished || o.currentProgress == nil {
		return
	}
	o.setState(state, start)
}

func (o *Orchestrator) finish(state State, start time.Time) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	if o.currentProgress == nil {
		return
	}
	o.setState(state, start)
	o.finished = true
}

// setState must be called with progressMutex held
func (o *Orchestrator) setState(state State, start time.Time) {
	p := o.currentProgress
	p.State = state
	p.ElapsedTime = time.Since(start)
	if step, ok := stateOrder[state]; ok {
		p.CompletedSteps = step
		p.PercentComplete = float64(step) / float64(totalSteps) * 100
	}

	snapshot := *p
	snapshot.Warnings = append([]string(nil), p.Warnings...)
	for _, callback := range o.progressCallbacks {
		callback(&snapshot)
	}
}

func (o *Orchestrator) addWarning(message string) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()

	if o.currentProgress != nil {
		o.currentProgress.Warnings = append(o.currentProgress.Warnings, message)
	}
}
