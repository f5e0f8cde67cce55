package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

// SheetsConfig holds the Google Sheets settings
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	// CredentialsJSON takes precedence over CredentialsFile
	CredentialsJSON string
}

// SheetsSink writes each table to a tab of one spreadsheet, creating
// missing tabs on first use.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        logger.Logger

	tabsMu sync.Mutex
	tabs   map[string]bool
}

// NewSheetsSink builds the Sheets client. Extra options are appended after
// the credential options.
func NewSheetsSink(ctx context.Context, cfg SheetsConfig, log logger.Logger, opts ...option.ClientOption) (*SheetsSink, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sheets.spreadsheet_id", "", nil)
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(sheets.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "sheets.credentials", cfg.CredentialsFile,
			fmt.Errorf("failed to create sheets service: %w", err))
	}

	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        log.WithComponent("sheets_sink"),
	}, nil
}

// Persist clears the tab named table and writes rows starting at A1
func (s *SheetsSink) Persist(ctx context.Context, table string, rows [][]interface{}) error {
	if err := s.ensureTab(ctx, table); err != nil {
		return classifySheetsError(table, err)
	}

	rng := quoteSheetName(table)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, rng, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return classifySheetsError(table, err)
	}

	if len(rows) == 0 {
		return nil
	}

	resp, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classifySheetsError(table, err)
	}

	s.logger.WithFields(logger.Fields{
		"table":         table,
		"updated_rows":  resp.UpdatedRows,
		"updated_cells": resp.UpdatedCells,
	}).Debug("Table written")
	return nil
}

// ensureTab creates the tab when the spreadsheet does not have it yet
func (s *SheetsSink) ensureTab(ctx context.Context, table string) error {
	s.tabsMu.Lock()
	defer s.tabsMu.Unlock()

	if s.tabs == nil {
		doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		s.tabs = make(map[string]bool, len(doc.Sheets))
		for _, sh := range doc.Sheets {
			if sh.Properties != nil {
				s.tabs[sh.Properties.Title] = true
			}
		}
	}

	if s.tabs[table] {
		return nil
	}

	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: table},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.tabs[table] = true
	s.logger.WithField("table", table).Info("Created missing tab")
	return nil
}

// quoteSheetName quotes a tab name for A1 notation
func quoteSheetName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func classifySheetsError(table string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.PersistenceError(errors.CodePermissionDenied, table, err)
		case http.StatusNotFound:
			return errors.PersistenceError(errors.CodeTableNotFound, table, err)
		}
	}
	return errors.PersistenceError(errors.CodeWriteFailed, table, err)
}
