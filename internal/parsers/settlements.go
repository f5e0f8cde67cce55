package parsers

import (
	"context"
	"fmt"
	"io"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

var settlementFields = []string{
	FieldChannelOrderID, FieldSecondaryID, FieldSettlementOrderID, FieldTrackingID,
	FieldGrossAmount, FieldShippingFee, FieldCollectionFee, FieldAdjustments,
	FieldReturnReversalFee, FieldNetAmount, FieldSettlementDate, FieldBatchID,
}

// SettlementFileSource reads settlements from a CSV remittance export
type SettlementFileSource struct {
	*BaseParser
	path   string
	config *SettlementFileConfig
	stats  *ParseStats
}

// NewSettlementFileSource creates a settlement source backed by a CSV file
func NewSettlementFileSource(path string, config *SettlementFileConfig, log logger.Logger) (*SettlementFileSource, error) {
	if config == nil {
		config = DefaultSettlementFileConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settlements_file", path, err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.HasHeader = config.HasHeader
	parseConfig.Delimiter = config.Delimiter

	return &SettlementFileSource{
		BaseParser: NewBaseParser(parseConfig, log),
		path:       path,
		config:     config,
		stats:      NewParseStats(),
	}, nil
}

// Stats returns statistics of the last FetchSettlements call
func (s *SettlementFileSource) Stats() *ParseStats {
	return s.stats
}

// FetchSettlements reads every settlement in file order. Amounts are kept
// verbatim. Rows carrying none of the three correlation keys can never match
// an order; they are recorded in Stats and skipped.
func (s *SettlementFileSource) FetchSettlements(ctx context.Context) ([]models.SettlementRecord, error) {
	file, reader, err := s.OpenFile(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx, s.path)
	s.stats = NewParseStats()

	var positional []string
	if !s.config.HasHeader {
		positional = columnNames(s.config, settlementFields)
	}
	if err := s.ReadHeaders(reader, parseCtx, positional); err != nil {
		return nil, err
	}

	cols := buildColumnIndex(parseCtx, s.config, s.config.ColumnAliases, settlementFields)
	if cols[FieldNetAmount] == -1 {
		return nil, errors.ParseError(
			errors.CodeMissingColumn,
			s.path,
			1,
			s.config.NetAmountColumn,
			"",
			fmt.Errorf("required column for %s not found", FieldNetAmount),
		).WithSuggestion(fmt.Sprintf("Add a '%s' column or configure an alias for it", s.config.NetAmountColumn))
	}
	if cols[FieldChannelOrderID] == -1 && cols[FieldSettlementOrderID] == -1 && cols[FieldSecondaryID] == -1 {
		return nil, errors.ParseError(
			errors.CodeMissingColumn,
			s.path,
			1,
			"keys",
			"",
			fmt.Errorf("no correlation key column found"),
		).WithSuggestion("Include at least one of the channel order id, settlement order id or secondary id columns")
	}

	var settlements []models.SettlementRecord

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

		settlement := models.SettlementRecord{
			ChannelOrderID:    cols.value(record, FieldChannelOrderID),
			SecondaryID:       cols.value(record, FieldSecondaryID),
			SettlementOrderID: cols.value(record, FieldSettlementOrderID),
			TrackingID:        cols.value(record, FieldTrackingID),
			GrossAmount:       models.Amount(cols.value(record, FieldGrossAmount)),
			ShippingFee:       models.Amount(cols.value(record, FieldShippingFee)),
			CollectionFee:     models.Amount(cols.value(record, FieldCollectionFee)),
			Adjustments:       models.Amount(cols.value(record, FieldAdjustments)),
			ReturnReversalFee: models.Amount(cols.value(record, FieldReturnReversalFee)),
			NetAmount:         models.Amount(cols.value(record, FieldNetAmount)),
			SettlementDate:    cols.value(record, FieldSettlementDate),
			BatchID:           cols.value(record, FieldBatchID),
		}

		if settlement.ChannelOrderID == "" && settlement.SettlementOrderID == "" && settlement.SecondaryID == "" {
			s.stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Field:   "keys",
				Message: "settlement has no correlation key",
			})
			continue
		}

		s.stats.RecordsValid++
		settlements = append(settlements, settlement)
	}

	s.stats.TotalLines = parseCtx.LineNumber

	log := s.logger.WithFields(logger.Fields{
		"file":        s.path,
		"settlements": len(settlements),
		"errors":      s.stats.ErrorCount,
	})
	if s.stats.HasErrors() {
		log.WithField("sample_errors", s.stats.GetSampleErrors(5)).Warn("Settlement file contained unusable rows")
	} else {
		log.Info("Settlement file parsed")
	}

	return settlements, nil
}
