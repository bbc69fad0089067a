package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a validated, classified hub event requesting an enter or exit for
// a (strategy, symbol, positionType). Signals synthesized from close or stop
// hub calls may arrive without a position type. It is then resolved from the
// matching open trade.
type Signal struct {
	StrategyID   string
	StrategyName string
	Symbol       string
	EntryType    EntryType
	PositionType PositionType
	Price        decimal.Decimal
	Timestamp    time.Time
	Source       SourceType
}

// NeedsPositionResolve reports whether the position type still has to be
// looked up from the open trade list.
func (s *Signal) NeedsPositionResolve() bool {
	return s.PositionType == ""
}
