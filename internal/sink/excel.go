package sink

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

const defaultSheet = "Sheet1"

// ExcelSink writes each table to a sheet of one workbook on disk. The
// workbook is reopened and saved on every write so earlier tables survive.
type ExcelSink struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// NewExcelSink returns a sink writing to path. Parent directories are
// created on first write.
func NewExcelSink(path string, log logger.Logger) (*ExcelSink, error) {
	if path == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "excel.path", "", nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ExcelSink{path: path, logger: log.WithComponent("excel_sink")}, nil
}

// Persist replaces the sheet named table
func (s *ExcelSink) Persist(ctx context.Context, table string, rows [][]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, created, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	// rows go to a scratch sheet that then takes the table's place, which
	// also works when the table is the workbook's only sheet
	scratch := "~" + table
	if _, err := f.NewSheet(scratch); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, table, err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.PersistenceError(errors.CodeWriteFailed, table, err)
		}
		if err := f.SetSheetRow(scratch, cell, &rows[i]); err != nil {
			return errors.PersistenceError(errors.CodeWriteFailed, table, err)
		}
	}

	if idx, _ := f.GetSheetIndex(table); idx != -1 {
		if err := f.DeleteSheet(table); err != nil {
			return errors.PersistenceError(errors.CodeWriteFailed, table, err)
		}
	}
	if err := f.SetSheetName(scratch, table); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, table, err)
	}
	if created && table != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return errors.PersistenceError(errors.CodeWriteFailed, table, err)
		}
	}
	if idx, _ := f.GetSheetIndex(table); idx != -1 {
		f.SetActiveSheet(idx)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.PersistenceError(errors.CodeWriteFailed, table, err)
	}
	if err := f.SaveAs(s.path); err != nil {
		if os.IsPermission(err) {
			return errors.PersistenceError(errors.CodePermissionDenied, table, err)
		}
		return errors.PersistenceError(errors.CodeWriteFailed, table, err)
	}

	s.logger.WithFields(logger.Fields{"table": table, "rows": len(rows), "path": s.path}).Debug("Sheet written")
	return nil
}

// open loads the workbook, or starts a new one when the file is absent
func (s *ExcelSink) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(s.path)
	if err == nil {
		return f, false, nil
	}
	if os.IsNotExist(err) {
		return excelize.NewFile(), true, nil
	}
	if os.IsPermission(err) {
		return nil, false, errors.PersistenceError(errors.CodePermissionDenied, s.path, err)
	}
	return nil, false, errors.PersistenceError(errors.CodeWriteFailed, s.path, err)
}
