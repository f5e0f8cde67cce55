package cache

import (
	"context"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/reconciler"
	"cod-reconciliation-service/pkg/logger"
)

// OrderSource snapshots every successful fetch of the wrapped source.
// Snapshot failures are logged and never fail the fetch.
type OrderSource struct {
	next  reconciler.OrderSource
	store *Store
}

// WrapOrders decorates src with snapshotting
func WrapOrders(src reconciler.OrderSource, store *Store) *OrderSource {
	return &OrderSource{next: src, store: store}
}

// FetchOrders implements reconciler.OrderSource
func (s *OrderSource) FetchOrders(ctx context.Context) ([]models.OrderRecord, error) {
	orders, err := s.next.FetchOrders(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveOrders(ctx, orders); err != nil {
		s.store.logger.WithError(err).Warn("Failed to snapshot orders")
	}
	return orders, nil
}

// SettlementSource snapshots settlements and, when the wrapped source
// supports it, the fee breakdown.
type SettlementSource struct {
	next  reconciler.SettlementSource
	store *Store
}

// WrapSettlements decorates src with snapshotting
func WrapSettlements(src reconciler.SettlementSource, store *Store) *SettlementSource {
	return &SettlementSource{next: src, store: store}
}

// FetchSettlements implements reconciler.SettlementSource
func (s *SettlementSource) FetchSettlements(ctx context.Context) ([]models.SettlementRecord, error) {
	settlements, err := s.next.FetchSettlements(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSettlements(ctx, settlements); err != nil {
		s.store.logger.WithError(err).Warn("Failed to snapshot settlements")
	}
	return settlements, nil
}

// ComputeFeeBreakdown forwards to the wrapped source, or reports
// reconciler.ErrFeeBreakdownUnavailable when it has no fee breakdown.
func (s *SettlementSource) ComputeFeeBreakdown(ctx context.Context) ([]models.FeeRow, error) {
	fb, ok := s.next.(reconciler.FeeBreakdownSource)
	if !ok {
		return nil, reconciler.ErrFeeBreakdownUnavailable
	}
	rows, err := fb.ComputeFeeBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveFees(ctx, rows); err != nil {
		s.store.logger.WithFields(logger.Fields{"rows": len(rows)}).WithError(err).Warn("Failed to snapshot fee breakdown")
	}
	return rows, nil
}
