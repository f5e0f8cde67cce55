// Package matcher links storefront orders to logistics settlements.
//
// Settlements are indexed once per run by each of their correlation keys.
// Each order is then looked up through an ordered list of strategies and
// the first hit wins:
//  1. order number without its leading "#" against the channel order id
//  2. order id against the settlement system's own order id
//  3. raw order number against the secondary id
//
// Matching is exact and case-sensitive on trimmed keys. There is no fuzzy
// or partial matching.
//
// Example usage:
//
//	idx := matcher.BuildIndex(settlements)
//	m := matcher.NewMatcher(idx)
//	for _, order := range orders {
//		result := m.Match(order)
//		...
//	}
package matcher

import (
	"strings"

	"cod-reconciliation-service/internal/models"
)

// IndexName selects one of the SettlementIndex maps
type IndexName int

const (
	ChannelIDIndex IndexName = iota
	SettlementOrderIDIndex
	SecondaryIDIndex
)

// Strategy is one step of the fallback chain: a key extracted from the
// order and the index it is looked up in.
type Strategy struct {
	Method models.MatchMethod
	Index  IndexName
	Key    func(order models.OrderRecord) string
}

// DefaultStrategies returns the production priority order
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Method: models.MatchByChannelOrderID,
			Index:  ChannelIDIndex,
			Key: func(o models.OrderRecord) string {
				return StripOrderPrefix(o.OrderNumber)
			},
		},
		{
			Method: models.MatchBySettlementOrderID,
			Index:  SettlementOrderIDIndex,
			Key: func(o models.OrderRecord) string {
				return strings.TrimSpace(o.OrderID)
			},
		},
		{
			Method: models.MatchBySecondaryID,
			Index:  SecondaryIDIndex,
			Key: func(o models.OrderRecord) string {
				return strings.TrimSpace(o.OrderNumber)
			},
		},
	}
}

// StripOrderPrefix removes a single leading "#" from a storefront order
// number and trims surrounding whitespace.
func StripOrderPrefix(orderNumber string) string {
	s := strings.TrimSpace(orderNumber)
	s = strings.TrimPrefix(s, "#")
	return strings.TrimSpace(s)
}
