package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// scheduleExit reuses the open trade for its exit: records the exit price,
// marks the trade closing so sizing treats its funds as released, and
// enqueues the execute task. Caller holds the lock.
func (e *Engine) scheduleExit(signal *model.Signal) {
	trade := e.findExitTrade(signal)
	if signal.Price.IsPositive() {
		trade.SetExitPrice(signal.Price)
		trade.Cost = trade.Quantity.Mul(signal.Price)
	}
	trade.TimeUpdated = time.Now()

	e.meta.TradesClosing[trade.ID] = true
	e.dirtyTrades()
	e.enqueueExecute(trade, model.EntryExit, signal.Source, nil, decimal.Zero)
}
