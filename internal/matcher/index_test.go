package matcher

import (
	"strings"
	"testing"

	"cod-reconciliation-service/internal/models"
)

func TestBuildIndex(t *testing.T) {
	settlements := []models.SettlementRecord{
		{ChannelOrderID: "3272", SettlementOrderID: "SR-1", SecondaryID: "SEC-1", NetAmount: "1040"},
		{ChannelOrderID: " 3273 ", SettlementOrderID: "SR-2", NetAmount: "500"},
		{ChannelOrderID: "", SettlementOrderID: "", SecondaryID: "   ", NetAmount: "10"},
	}

	idx := BuildIndex(settlements)

	channel, settlementOrder, secondary := idx.Size()
	if channel != 2 || settlementOrder != 2 || secondary != 1 {
		t.Fatalf("Unexpected index sizes: channel=%d settlementOrder=%d secondary=%d",
			channel, settlementOrder, secondary)
	}

	if got := idx.ByChannelID["3273"]; got == nil || got.SettlementOrderID != "SR-2" {
		t.Errorf("Expected trimmed key '3273' to point at SR-2, got %v", got)
	}
	if _, ok := idx.ByChannelID[""]; ok {
		t.Error("Expected no entry for empty key")
	}
	if _, ok := idx.BySecondaryID[""]; ok {
		t.Error("Expected whitespace-only key to be skipped")
	}
	if idx.Collisions.Total() != 0 {
		t.Errorf("Expected no collisions, got %d", idx.Collisions.Total())
	}
}

func TestBuildIndex_Empty(t *testing.T) {
	idx := BuildIndex(nil)
	if idx.ByChannelID == nil || idx.BySettlementOrderID == nil || idx.BySecondaryID == nil {
		t.Fatal("Expected non-nil maps for empty input")
	}
	channel, settlementOrder, secondary := idx.Size()
	if channel+settlementOrder+secondary != 0 {
		t.Error("Expected empty index")
	}
}

func TestBuildIndex_LastWriteWins(t *testing.T) {
	settlements := []models.SettlementRecord{
		{ChannelOrderID: "500", SettlementOrderID: "SR-A", SecondaryID: "X", NetAmount: "100"},
		{ChannelOrderID: "501", SettlementOrderID: "SR-B", NetAmount: "200"},
		{ChannelOrderID: "500", SettlementOrderID: "SR-C", SecondaryID: "X", NetAmount: "300"},
	}

	idx := BuildIndex(settlements)

	if got := idx.ByChannelID["500"]; got.SettlementOrderID != "SR-C" {
		t.Errorf("Expected later record SR-C for key 500, got %s", got.SettlementOrderID)
	}
	if got := idx.BySecondaryID["X"]; got.SettlementOrderID != "SR-C" {
		t.Errorf("Expected later record SR-C for secondary X, got %s", got.SettlementOrderID)
	}
	if idx.Collisions.ChannelID != 1 || idx.Collisions.SecondaryID != 1 || idx.Collisions.SettlementOrderID != 0 {
		t.Errorf("Unexpected collisions: %+v", idx.Collisions)
	}
}

// Every non-empty trimmed key maps to the last record carrying it.
func TestBuildIndex_KeysPointAtLastOccurrence(t *testing.T) {
	settlements := []models.SettlementRecord{
		{ChannelOrderID: "1", SettlementOrderID: "a", SecondaryID: "s1", BatchID: "0"},
		{ChannelOrderID: "2", SettlementOrderID: "a", SecondaryID: "", BatchID: "1"},
		{ChannelOrderID: "1 ", SettlementOrderID: "b", SecondaryID: "s2", BatchID: "2"},
		{ChannelOrderID: "3", SettlementOrderID: " b", SecondaryID: "s1", BatchID: "3"},
		{ChannelOrderID: "", SettlementOrderID: "c", SecondaryID: "s2 ", BatchID: "4"},
	}

	idx := BuildIndex(settlements)

	expectLast := func(name string, m map[string]*models.SettlementRecord, key func(models.SettlementRecord) string) {
		want := make(map[string]string)
		for _, s := range settlements {
			k := strings.TrimSpace(key(s))
			if k != "" {
				want[k] = s.BatchID
			}
		}
		if len(m) != len(want) {
			t.Errorf("%s: expected %d keys, got %d", name, len(want), len(m))
		}
		for k, batch := range want {
			got, ok := m[k]
			if !ok {
				t.Errorf("%s: missing key %q", name, k)
				continue
			}
			if got.BatchID != batch {
				t.Errorf("%s: key %q points at batch %s, want %s", name, k, got.BatchID, batch)
			}
		}
	}

	expectLast("channel", idx.ByChannelID, func(s models.SettlementRecord) string { return s.ChannelOrderID })
	expectLast("settlementOrder", idx.BySettlementOrderID, func(s models.SettlementRecord) string { return s.SettlementOrderID })
	expectLast("secondary", idx.BySecondaryID, func(s models.SettlementRecord) string { return s.SecondaryID })
}
