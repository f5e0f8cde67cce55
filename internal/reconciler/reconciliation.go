package reconciler

import (
	"cod-reconciliation-service/internal/matcher"
	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// RowBuilder turns an order and its match into a ReconciliationRow
type RowBuilder struct {
	logger logger.Logger
}

// NewRowBuilder creates a row builder. A nil logger uses the global one.
func NewRowBuilder(log logger.Logger) *RowBuilder {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &RowBuilder{logger: log.WithComponent("row_builder")}
}

// SkippedOrder is an order excluded from the output because a field could
// not be processed
type SkippedOrder struct {
	OrderID string `json:"orderId"`
	Err     error  `json:"-"`
	Reason  string `json:"reason"`
}

// MergeResult is the output of merging one run's datasets
type MergeResult struct {
	Rows    []models.ReconciliationRow
	Stats   *models.Stats
	Skipped []SkippedOrder
}

// ErrorSummary groups the skipped orders' errors by category and code
func (r *MergeResult) ErrorSummary() *errors.ErrorSummary {
	errs := make([]*errors.ReconcilerError, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		errs = append(errs, errors.WrapIfNeeded(s.Err, errors.CategoryRow, errors.CodeInvalidFormat,
			"order "+s.OrderID+" could not be reconciled"))
	}
	return errors.NewErrorSummary(errs)
}

// Build assembles the row for one order. Unmatched orders get zero amounts
// and empty settlement fields. A malformed amount yields a row-category
// error naming the order and field.
func (b *RowBuilder) Build(order models.OrderRecord, match matcher.MatchResult) (models.ReconciliationRow, error) {
	total, err := parseAmount(order.OrderID, "orderTotal", order.OrderTotal)
	if err != nil {
		return models.ReconciliationRow{}, err
	}

	row := models.ReconciliationRow{
		OrderID:           order.OrderID,
		OrderNumber:       order.OrderNumber,
		OrderDate:         order.OrderDate,
		CustomerName:      order.CustomerName,
		PaymentMethod:     order.PaymentMethod,
		PaymentType:       ClassifyOrder(order),
		OrderTotal:        total,
		FinancialStatus:   order.FinancialStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		GrossAmount:       decimal.Zero,
		ShippingFee:       decimal.Zero,
		CollectionFee:     decimal.Zero,
		Adjustments:       decimal.Zero,
		ReturnReversalFee: decimal.Zero,
		ShiprocketNet:     decimal.Zero,
		MatchMethod:       match.Method,
	}

	if s := match.Settlement; s != nil {
		amounts := []struct {
			field  string
			raw    models.Amount
			target *decimal.Decimal
		}{
			{"grossAmount", s.GrossAmount, &row.GrossAmount},
			{"shippingFee", s.ShippingFee, &row.ShippingFee},
			{"collectionFee", s.CollectionFee, &row.CollectionFee},
			{"adjustments", s.Adjustments, &row.Adjustments},
			{"returnReversalFee", s.ReturnReversalFee, &row.ReturnReversalFee},
			{"netAmount", s.NetAmount, &row.ShiprocketNet},
		}
		for _, a := range amounts {
			d, err := parseAmount(order.OrderID, a.field, a.raw)
			if err != nil {
				return models.ReconciliationRow{}, err
			}
			*a.target = d
		}
		row.TrackingID = s.TrackingID
		row.SettlementDate = s.SettlementDate
		row.BatchID = s.BatchID
	} else {
		row.MatchMethod = models.MatchNone
	}

	row.Difference = row.OrderTotal.Sub(row.ShiprocketNet)
	row.Status = ResolveStatus(row.PaymentType.IsCOD(), match.Matched(), row.Difference)

	return row, nil
}

// Merge matches every order against idx and builds its row. Output order
// equals input order and orders are never deduplicated. A row that fails to
// build is logged and skipped; the rest of the batch continues.
func (b *RowBuilder) Merge(orders []models.OrderRecord, idx *matcher.SettlementIndex) *MergeResult {
	m := matcher.NewMatcher(idx)
	result := &MergeResult{
		Rows:  make([]models.ReconciliationRow, 0, len(orders)),
		Stats: models.NewStats(),
	}

	for _, order := range orders {
		row, err := b.Build(order, m.Match(order))
		if err != nil {
			b.logger.WithError(err).WithField("order_id", order.OrderID).Warn("Skipping order that could not be reconciled")
			result.Skipped = append(result.Skipped, SkippedOrder{
				OrderID: order.OrderID,
				Err:     err,
				Reason:  err.Error(),
			})
			continue
		}
		result.Rows = append(result.Rows, row)
		result.Stats.Add(row)
	}

	result.Stats.Skipped = len(result.Skipped)
	return result
}

func parseAmount(orderID, field string, raw models.Amount) (decimal.Decimal, error) {
	d, err := raw.Decimal()
	if err != nil {
		return decimal.Zero, errors.RowError(errors.CodeInvalidAmount, orderID, field, string(raw), err)
	}
	return d, nil
}
