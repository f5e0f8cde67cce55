package matcher

import (
	"cod-reconciliation-service/internal/models"
)

// MatchResult is the outcome of matching one order. Settlement is nil when
// Method is models.MatchNone.
type MatchResult struct {
	Settlement *models.SettlementRecord
	Method     models.MatchMethod
}

// Matched reports whether a settlement was found
func (r MatchResult) Matched() bool {
	return r.Settlement != nil
}

// Matcher walks the strategy chain for each order against one index
type Matcher struct {
	index      *SettlementIndex
	strategies []Strategy
}

// NewMatcher creates a matcher over idx. With no strategies given it uses
// DefaultStrategies.
func NewMatcher(idx *SettlementIndex, strategies ...Strategy) *Matcher {
	if idx == nil {
		idx = BuildIndex(nil)
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Matcher{index: idx, strategies: strategies}
}

// Match returns the first strategy hit, or MatchNone
func (m *Matcher) Match(order models.OrderRecord) MatchResult {
	for _, s := range m.strategies {
		key := s.Key(order)
		if key == "" {
			continue
		}
		if settlement, ok := m.lookup(s.Index)[key]; ok {
			return MatchResult{Settlement: settlement, Method: s.Method}
		}
	}
	return MatchResult{Method: models.MatchNone}
}

// Strategies returns the chain in evaluation order
func (m *Matcher) Strategies() []Strategy {
	return m.strategies
}

func (m *Matcher) lookup(name IndexName) map[string]*models.SettlementRecord {
	switch name {
	case ChannelIDIndex:
		return m.index.ByChannelID
	case SettlementOrderIDIndex:
		return m.index.BySettlementOrderID
	case SecondaryIDIndex:
		return m.index.BySecondaryID
	default:
		return nil
	}
}
