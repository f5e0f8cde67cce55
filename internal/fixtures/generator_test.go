package fixtures

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cod-reconciliation-service/internal/matcher"
	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/parsers"
	"cod-reconciliation-service/internal/reconciler"
	"cod-reconciliation-service/pkg/logger"
)

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(42).Generate(24)
	b := NewGenerator(42).Generate(24)
	if !reflect.DeepEqual(a.Cases, b.Cases) {
		t.Error("same seed should produce the same dataset")
	}

	c := NewGenerator(7).Generate(24)
	if reflect.DeepEqual(a.Cases, c.Cases) {
		t.Error("different seeds should produce different datasets")
	}
}

func TestGenerator_CoversEveryScenario(t *testing.T) {
	ds := NewGenerator(1).Generate(len(Scenarios()) * 2)

	seen := make(map[Scenario]int)
	for _, c := range ds.Cases {
		seen[c.Scenario]++
	}
	for _, s := range Scenarios() {
		if seen[s] != 2 {
			t.Errorf("expected 2 cases of %s, got %d", s, seen[s])
		}
	}

	// pending, prepaid and malformed cases carry no settlement
	if got, want := len(ds.Settlements()), 2*5; got != want {
		t.Errorf("expected %d settlements, got %d", want, got)
	}
}

func TestGenerator_MergeMatchesExpectations(t *testing.T) {
	ds := NewGenerator(2024).Generate(64)

	result := reconciler.NewRowBuilder(logger.Discard()).
		Merge(ds.Orders(), matcher.BuildIndex(ds.Settlements()))

	rows := make(map[string]models.ReconciliationRow, len(result.Rows))
	for _, row := range result.Rows {
		rows[row.OrderID] = row
	}
	skipped := make(map[string]bool, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped[s.OrderID] = true
	}

	for _, c := range ds.Cases {
		if c.WantSkipped {
			if !skipped[c.Order.OrderID] {
				t.Errorf("%s: order %s should be skipped", c.Scenario, c.Order.OrderID)
			}
			continue
		}
		row, ok := rows[c.Order.OrderID]
		if !ok {
			t.Errorf("%s: no row for order %s", c.Scenario, c.Order.OrderID)
			continue
		}
		if row.Status != c.WantStatus {
			t.Errorf("%s: order %s status = %s, want %s", c.Scenario, c.Order.OrderID, row.Status, c.WantStatus)
		}
		if row.MatchMethod != c.WantMethod {
			t.Errorf("%s: order %s method = %s, want %s", c.Scenario, c.Order.OrderID, row.MatchMethod, c.WantMethod)
		}
	}
}

func TestWriteCSV_ReadBackByFileSources(t *testing.T) {
	ds := NewGenerator(99).Generate(16)
	dir := t.TempDir()

	var orders, settlements bytes.Buffer
	if err := WriteOrdersCSV(&orders, ds.Orders()); err != nil {
		t.Fatalf("WriteOrdersCSV() error = %v", err)
	}
	if err := WriteSettlementsCSV(&settlements, ds.Settlements()); err != nil {
		t.Fatalf("WriteSettlementsCSV() error = %v", err)
	}

	ordersPath := filepath.Join(dir, "orders.csv")
	settlementsPath := filepath.Join(dir, "settlements.csv")
	if err := os.WriteFile(ordersPath, orders.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(settlementsPath, settlements.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	orderSrc, err := parsers.NewOrderFileSource(ordersPath, nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewOrderFileSource() error = %v", err)
	}
	gotOrders, err := orderSrc.FetchOrders(context.Background())
	if err != nil {
		t.Fatalf("FetchOrders() error = %v", err)
	}
	if len(gotOrders) != len(ds.Orders()) {
		t.Fatalf("expected %d orders, got %d", len(ds.Orders()), len(gotOrders))
	}
	for i, want := range ds.Orders() {
		if gotOrders[i].OrderID != want.OrderID || gotOrders[i].OrderTotal != want.OrderTotal {
			t.Errorf("order %d = %s/%s, want %s/%s", i,
				gotOrders[i].OrderID, gotOrders[i].OrderTotal, want.OrderID, want.OrderTotal)
		}
	}

	settlementSrc, err := parsers.NewSettlementFileSource(settlementsPath, nil, logger.Discard())
	if err != nil {
		t.Fatalf("NewSettlementFileSource() error = %v", err)
	}
	gotSettlements, err := settlementSrc.FetchSettlements(context.Background())
	if err != nil {
		t.Fatalf("FetchSettlements() error = %v", err)
	}
	if !reflect.DeepEqual(gotSettlements, ds.Settlements()) {
		t.Errorf("settlements changed in the round trip:\n got %+v\nwant %+v", gotSettlements, ds.Settlements())
	}
}
