package parsers

import (
	"context"
	"fmt"
	"io"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

var orderFields = []string{
	FieldOrderID, FieldOrderNumber, FieldOrderDate, FieldCustomerName, FieldPaymentMethod,
	FieldOrderTotal, FieldFinancialStatus, FieldFulfillmentStatus, FieldPaymentType,
}

// OrderFileSource reads orders from a CSV export
type OrderFileSource struct {
	*BaseParser
	path   string
	config *OrderFileConfig
	stats  *ParseStats
}

// NewOrderFileSource creates an order source backed by a CSV file
func NewOrderFileSource(path string, config *OrderFileConfig, log logger.Logger) (*OrderFileSource, error) {
	if config == nil {
		config = DefaultOrderFileConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "orders_file", path, err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &OrderFileSource{
		BaseParser: NewBaseParser(parseConfig, log),
		path:       path,
		config:     config,
		stats:      NewParseStats(),
	}, nil
}

// Stats returns statistics of the last FetchOrders call
func (s *OrderFileSource) Stats() *ParseStats {
	return s.stats
}

// FetchOrders reads every order in file order. Rows without an order id are
// recorded in Stats and skipped. Consecutive rows repeating the previous
// order id are line-item continuations of that order and are folded into it.
func (s *OrderFileSource) FetchOrders(ctx context.Context) ([]models.OrderRecord, error) {
	file, reader, err := s.OpenFile(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx, s.path)
	s.stats = NewParseStats()

	var positional []string
	if !s.config.HasHeader {
		positional = columnNames(s.config, orderFields)
	}
	if err := s.ReadHeaders(reader, parseCtx, positional); err != nil {
		return nil, err
	}

	cols := buildColumnIndex(parseCtx, s.config, s.config.ColumnAliases, orderFields)
	for _, required := range []string{FieldOrderID, FieldOrderTotal} {
		if cols[required] == -1 {
			return nil, errors.ParseError(
				errors.CodeMissingColumn,
				s.path,
				1,
				s.config.GetColumnName(required),
				"",
				fmt.Errorf("required column for %s not found", required),
			).WithSuggestion(fmt.Sprintf("Add a '%s' column or configure an alias for it", s.config.GetColumnName(required)))
		}
	}

	var orders []models.OrderRecord
	lastID := ""

	for {
		record, err := s.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.IsReconcilerError(err) {
				return nil, err
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, s.path, parseCtx.LineNumber, "", "", err)
		}
		s.stats.RecordsParsed++

		order := models.OrderRecord{
			OrderID:           cols.value(record, FieldOrderID),
			OrderNumber:       cols.value(record, FieldOrderNumber),
			OrderDate:         cols.value(record, FieldOrderDate),
			CustomerName:      cols.value(record, FieldCustomerName),
			PaymentMethod:     cols.value(record, FieldPaymentMethod),
			OrderTotal:        models.Amount(cols.value(record, FieldOrderTotal)),
			FinancialStatus:   cols.value(record, FieldFinancialStatus),
			FulfillmentStatus: cols.value(record, FieldFulfillmentStatus),
			PaymentType:       models.PaymentType(cols.value(record, FieldPaymentType)),
		}

		if order.OrderID == "" {
			s.stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   s.config.GetColumnName(FieldOrderID),
				Message: "order id is empty",
			})
			continue
		}
		if order.OrderID == lastID {
			continue
		}
		lastID = order.OrderID

		s.stats.RecordsValid++
		orders = append(orders, order)
	}

	s.stats.TotalLines = parseCtx.LineNumber

	log := s.logger.WithFields(logger.Fields{
		"file":   s.path,
		"orders": len(orders),
		"errors": s.stats.ErrorCount,
	})
	if s.stats.HasErrors() {
		log.WithField("sample_errors", s.stats.GetSampleErrors(5)).Warn("Order file contained unusable rows")
	} else {
		log.Info("Order file parsed")
	}

	return orders, nil
}
