package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetaData groups every in-memory structure the engine owns. All mutations go
// through the signal engine. The statestore observes them through a dirty-set.
type MetaData struct {
	Strategies       map[string]*Strategy
	TradesOpen       []*TradeOpen
	TradesClosing    map[string]bool
	Markets          map[string]*Market
	MarketsUpdated   time.Time
	Prices           map[string]decimal.Decimal
	PricesUpdated    time.Time
	VirtualBalances  map[WalletType]map[string]decimal.Decimal
	PublicStrategies map[string]*PublicStrategy
	Transactions     []Transaction
}

func NewMetaData() *MetaData {
	return &MetaData{
		Strategies:       make(map[string]*Strategy),
		TradesOpen:       make([]*TradeOpen, 0),
		TradesClosing:    make(map[string]bool),
		Markets:          make(map[string]*Market),
		Prices:           make(map[string]decimal.Decimal),
		VirtualBalances:  make(map[WalletType]map[string]decimal.Decimal),
		PublicStrategies: make(map[string]*PublicStrategy),
	}
}

// FindTradeOpen returns the open trade for the identifying tuple, nil when
// there is none. At most one such trade exists at any time.
func (m *MetaData) FindTradeOpen(strategyID, symbol string, position PositionType) *TradeOpen {
	for _, t := range m.TradesOpen {
		if t.StrategyID == strategyID && t.Symbol == symbol && t.PositionType == position {
			return t
		}
	}
	return nil
}

// FindTradeOpenAny matches without a position type, for signals that arrive
// with none. Returns nil when no trade matches.
func (m *MetaData) FindTradeOpenAny(strategyID, symbol string) *TradeOpen {
	for _, t := range m.TradesOpen {
		if t.StrategyID == strategyID && t.Symbol == symbol {
			return t
		}
	}
	return nil
}

// FindTradeByID looks an open trade up by its short id.
func (m *MetaData) FindTradeByID(id string) *TradeOpen {
	for _, t := range m.TradesOpen {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// AddTradeOpen appends the trade to the open list. The trade is visible to
// sizing decisions before its queue task runs.
func (m *MetaData) AddTradeOpen(t *TradeOpen) {
	m.TradesOpen = append(m.TradesOpen, t)
}

// RemoveTradeOpen drops the trade from the open list and the closing set.
func (m *MetaData) RemoveTradeOpen(t *TradeOpen) {
	kept := m.TradesOpen[:0]
	for _, o := range m.TradesOpen {
		if o != t {
			kept = append(kept, o)
		}
	}
	m.TradesOpen = kept
	delete(m.TradesClosing, t.ID)
}

// IsClosing reports whether the trade has been scheduled for exit but not yet
// executed. The wallet model treats those funds as already released.
func (m *MetaData) IsClosing(t *TradeOpen) bool {
	return m.TradesClosing[t.ID]
}

// CountOpen counts open trades for a position type across all strategies.
func (m *MetaData) CountOpen(position PositionType) int {
	n := 0
	for _, t := range m.TradesOpen {
		if t.PositionType == position {
			n++
		}
	}
	return n
}

// CountOpenForStrategy counts a single strategy's open trades.
func (m *MetaData) CountOpenForStrategy(strategyID string) int {
	n := 0
	for _, t := range m.TradesOpen {
		if t.StrategyID == strategyID {
			n++
		}
	}
	return n
}

// Price returns the cached price for a symbol.
func (m *MetaData) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := m.Prices[symbol]
	return p, ok
}
