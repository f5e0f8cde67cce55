package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"cod-reconciliation-service/internal/reporter"
	"cod-reconciliation-service/pkg/errors"
	"cod-reconciliation-service/pkg/logger"
)

// CSVSink writes each table to <dir>/<table>.csv
type CSVSink struct {
	dir       string
	delimiter rune
	logger    logger.Logger
}

// NewCSVSink returns a sink writing into dir
func NewCSVSink(dir string, delimiter rune, log logger.Logger) (*CSVSink, error) {
	if dir == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "csv.dir", "", nil)
	}
	if delimiter == 0 {
		delimiter = ','
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CSVSink{dir: dir, delimiter: delimiter, logger: log.WithComponent("csv_sink")}, nil
}

// FileName maps a table name to its file name
func FileName(table string) string {
	name := strings.ToLower(strings.TrimSpace(table))
	name = strings.Join(strings.Fields(name), "_")
	return name + ".csv"
}

// Persist replaces the table's file. The file is written to a temporary
// name first and renamed, so readers never see a half-written table.
func (s *CSVSink) Persist(ctx context.Context, table string, rows [][]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return classifyFileError(table, err)
	}

	target := filepath.Join(s.dir, FileName(table))
	tmp, err := os.CreateTemp(s.dir, ".tmp-*.csv")
	if err != nil {
		return classifyFileError(table, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Comma = s.delimiter
	for _, row := range rows {
		if err := w.Write(reporter.Stringify(row)); err != nil {
			tmp.Close()
			return classifyFileError(table, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return classifyFileError(table, err)
	}
	if err := tmp.Close(); err != nil {
		return classifyFileError(table, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return classifyFileError(table, err)
	}

	s.logger.WithFields(logger.Fields{"table": table, "rows": len(rows), "path": target}).Debug("Table written")
	return nil
}

func classifyFileError(table string, err error) error {
	if os.IsPermission(err) {
		return errors.PersistenceError(errors.CodePermissionDenied, table, err)
	}
	return errors.PersistenceError(errors.CodeWriteFailed, table, err)
}
