// Package sink persists named tables of rows. Every sink replaces the full
// contents of a table on each write; nothing is appended.
package sink

import (
	"fmt"
	"strings"

	"cod-reconciliation-service/internal/reconciler"
)

// Kind selects a sink implementation
type Kind string

const (
	KindSheets Kind = "sheets"
	KindExcel  Kind = "xlsx"
	KindCSV    Kind = "csv"
)

// ParseKind validates a sink name
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindSheets:
		return KindSheets, nil
	case KindExcel:
		return KindExcel, nil
	case KindCSV:
		return KindCSV, nil
	default:
		return "", fmt.Errorf("unknown sink %q (want sheets, xlsx or csv)", name)
	}
}

var (
	_ reconciler.Sink = (*SheetsSink)(nil)
	_ reconciler.Sink = (*ExcelSink)(nil)
	_ reconciler.Sink = (*CSVSink)(nil)
)
