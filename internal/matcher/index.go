package matcher

import (
	"strings"

	"cod-reconciliation-service/internal/models"
)

// SettlementIndex holds the three lookup maps over one run's settlements.
// Keys are trimmed; empty keys are never inserted and a later record
// overwrites an earlier one carrying the same key.
type SettlementIndex struct {
	ByChannelID         map[string]*models.SettlementRecord
	BySettlementOrderID map[string]*models.SettlementRecord
	BySecondaryID       map[string]*models.SettlementRecord

	// Collisions counts overwritten keys per index
	Collisions IndexCollisions
}

// IndexCollisions counts last-write-wins overwrites per index
type IndexCollisions struct {
	ChannelID         int `json:"channelId"`
	SettlementOrderID int `json:"settlementOrderId"`
	SecondaryID       int `json:"secondaryId"`
}

// Total returns the number of overwrites across all indexes
func (c IndexCollisions) Total() int {
	return c.ChannelID + c.SettlementOrderID + c.SecondaryID
}

// BuildIndex indexes settlements by each correlation key. It never fails:
// settlements without any usable key simply produce empty maps.
func BuildIndex(settlements []models.SettlementRecord) *SettlementIndex {
	idx := &SettlementIndex{
		ByChannelID:         make(map[string]*models.SettlementRecord, len(settlements)),
		BySettlementOrderID: make(map[string]*models.SettlementRecord, len(settlements)),
		BySecondaryID:       make(map[string]*models.SettlementRecord),
	}

	for i := range settlements {
		s := &settlements[i]
		idx.Collisions.ChannelID += insert(idx.ByChannelID, s.ChannelOrderID, s)
		idx.Collisions.SettlementOrderID += insert(idx.BySettlementOrderID, s.SettlementOrderID, s)
		idx.Collisions.SecondaryID += insert(idx.BySecondaryID, s.SecondaryID, s)
	}

	return idx
}

// insert stores s under the trimmed key and returns 1 if it replaced an entry
func insert(m map[string]*models.SettlementRecord, key string, s *models.SettlementRecord) int {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0
	}
	_, existed := m[key]
	m[key] = s
	if existed {
		return 1
	}
	return 0
}

// Size returns the number of entries in each index
func (idx *SettlementIndex) Size() (channel, settlementOrder, secondary int) {
	return len(idx.ByChannelID), len(idx.BySettlementOrderID), len(idx.BySecondaryID)
}
