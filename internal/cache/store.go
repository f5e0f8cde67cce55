// Package cache keeps snapshots of fetched and merged datasets in Redis so
// the last run can be inspected without calling the providers again.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

const (
	keyNamespace   = "codrecon"
	snapshotPrefix = "snapshot"

	// DefaultTTL keeps snapshots around for a day
	DefaultTTL = 24 * time.Hour
)

// Dataset names a cached table
type Dataset string

const (
	DatasetOrders         Dataset = "orders"
	DatasetSettlements    Dataset = "settlements"
	DatasetReconciliation Dataset = "reconciliation"
	DatasetFees           Dataset = "fees"
)

// Datasets lists every dataset that can be cached
func Datasets() []Dataset {
	return []Dataset{DatasetOrders, DatasetSettlements, DatasetReconciliation, DatasetFees}
}

// ParseDataset validates a dataset name
func ParseDataset(name string) (Dataset, error) {
	for _, d := range Datasets() {
		if string(d) == name {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dataset %q", name)
}

// ErrSnapshotNotFound is returned when a dataset was never cached or expired
var ErrSnapshotNotFound = stderrors.New("snapshot not found")

type cmdable interface {
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Config holds the Redis connection settings
type Config struct {
	URL          string
	Address      string
	Password     string
	DB           int
	TTL          time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store reads and writes dataset snapshots
type Store struct {
	store  cmdable
	raw    *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// New connects to Redis and verifies connectivity
func New(ctx context.Context, cfg Config, log logger.Logger) (*Store, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "redis", cfg.Address, err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		raw.Close()
		return nil, errors.SourceError(errors.CodeSourceUnavailable, "redis", fmt.Errorf("ping redis: %w", err))
	}

	s := newStore(raw, cfg.TTL, log)
	s.raw = raw
	return s, nil
}

func newStore(store cmdable, ttl time.Duration, log logger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Store{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: log.WithComponent("cache"),
	}
}

func optionsFromConfig(cfg Config) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, stderrors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

// SnapshotKey returns the Redis key of a dataset
func SnapshotKey(d Dataset) string {
	return fmt.Sprintf("%s:%s:%s", keyNamespace, snapshotPrefix, d)
}

// Snapshot is the stored form of a dataset
type Snapshot struct {
	Dataset Dataset           `json:"dataset"`
	SavedAt time.Time         `json:"savedAt"`
	Count   int               `json:"count"`
	Items   []json.RawMessage `json:"items"`
}

func (s *Store) save(ctx context.Context, d Dataset, items []json.RawMessage) error {
	snap := Snapshot{
		Dataset: d,
		SavedAt: s.now().UTC(),
		Count:   len(items),
		Items:   items,
	}
	if snap.Items == nil {
		snap.Items = []json.RawMessage{}
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.InternalError("encode "+string(d)+" snapshot", err)
	}
	if err := s.store.Set(ctx, SnapshotKey(d), payload, s.ttl).Err(); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, SnapshotKey(d), err)
	}

	s.logger.WithFields(logger.Fields{
		"dataset": d,
		"items":   len(items),
		"ttl":     s.ttl.String(),
	}).Debug("Saved snapshot")
	return nil
}

func encodeAll[T any](items []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func saveTyped[T any](ctx context.Context, s *Store, d Dataset, items []T) error {
	raw, err := encodeAll(items)
	if err != nil {
		return errors.InternalError("encode "+string(d)+" snapshot", err)
	}
	return s.save(ctx, d, raw)
}

// SaveOrders caches fetched orders
func (s *Store) SaveOrders(ctx context.Context, orders []models.OrderRecord) error {
	return saveTyped(ctx, s, DatasetOrders, orders)
}

// SaveSettlements caches fetched settlements
func (s *Store) SaveSettlements(ctx context.Context, settlements []models.SettlementRecord) error {
	return saveTyped(ctx, s, DatasetSettlements, settlements)
}

// SaveReconciliation caches merged rows
func (s *Store) SaveReconciliation(ctx context.Context, rows []models.ReconciliationRow) error {
	return saveTyped(ctx, s, DatasetReconciliation, rows)
}

// SaveFees caches the fee breakdown
func (s *Store) SaveFees(ctx context.Context, rows []models.FeeRow) error {
	return saveTyped(ctx, s, DatasetFees, rows)
}

// Load returns the snapshot of a dataset, or ErrSnapshotNotFound
func (s *Store) Load(ctx context.Context, d Dataset) (*Snapshot, error) {
	payload, err := s.store.Get(ctx, SnapshotKey(d)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.SourceError(errors.CodeSourceUnavailable, "redis", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, errors.SourceError(errors.CodeMalformedResponse, "redis", err).
			WithContext("key", SnapshotKey(d))
	}
	return &snap, nil
}

// LoadOrders decodes the cached orders
func (s *Store) LoadOrders(ctx context.Context) ([]models.OrderRecord, error) {
	return loadTyped[models.OrderRecord](ctx, s, DatasetOrders)
}

// LoadSettlements decodes the cached settlements
func (s *Store) LoadSettlements(ctx context.Context) ([]models.SettlementRecord, error) {
	return loadTyped[models.SettlementRecord](ctx, s, DatasetSettlements)
}

func loadTyped[T any](ctx context.Context, s *Store, d Dataset) ([]T, error) {
	snap, err := s.Load(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(snap.Items))
	for i, raw := range snap.Items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, errors.SourceError(errors.CodeMalformedResponse, "redis", err).
				WithContext("key", SnapshotKey(d)).
				WithContext("index", i)
		}
		out = append(out, item)
	}
	return out, nil
}

// Clear removes every cached dataset
func (s *Store) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(Datasets()))
	for _, d := range Datasets() {
		keys = append(keys, SnapshotKey(d))
	}
	if err := s.store.Del(ctx, keys...).Err(); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, "snapshots", err)
	}
	return nil
}
