package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/history"
	"tradeexecutor/src/hub"
	"tradeexecutor/src/model"
)

// Operator surface. Conflicts are reported to the caller, never to the hub.

var ErrNotFound = fmt.Errorf("not found")

// StrategiesView returns a copy of the followed strategies.
func (e *Engine) StrategiesView() []model.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Strategy, 0, len(e.meta.Strategies))
	for _, s := range e.meta.Strategies {
		out = append(out, *s)
	}
	return out
}

// PublicStrategiesView returns a copy of the observed public strategies.
func (e *Engine) PublicStrategiesView() []model.PublicStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.PublicStrategy, 0, len(e.meta.PublicStrategies))
	for _, s := range e.meta.PublicStrategies {
		out = append(out, *s)
	}
	return out
}

// TradesView returns a copy of the open trades.
func (e *Engine) TradesView() []model.TradeOpen {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.TradeOpen, 0, len(e.meta.TradesOpen))
	for _, t := range e.meta.TradesOpen {
		out = append(out, *t)
	}
	return out
}

// VirtualView returns a copy of the virtual balances.
func (e *Engine) VirtualView() map[model.WalletType]map[string]decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[model.WalletType]map[string]decimal.Decimal, len(e.meta.VirtualBalances))
	for w, assets := range e.meta.VirtualBalances {
		out[w] = make(map[string]decimal.Decimal, len(assets))
		for a, v := range assets {
			out[w][a] = v
		}
	}
	return out
}

// HistoryView returns a deep copy of the balance history.
func (e *Engine) HistoryView() map[model.TradingType]map[string][]history.Day {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[model.TradingType]map[string][]history.Day, len(e.history))
	for mode, quotes := range e.history {
		out[mode] = make(map[string][]history.Day, len(quotes))
		for quote, days := range quotes {
			copied := make([]history.Day, 0, len(days))
			for _, d := range days {
				copied = append(copied, *d)
			}
			out[mode][quote] = copied
		}
	}
	return out
}

// SetStrategyStopped flips the engine-owned stop flag of a strategy.
func (e *Engine) SetStrategyStopped(id string, stopped bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	strategy, ok := e.meta.Strategies[id]
	if !ok {
		return fmt.Errorf("strategy %s: %w", id, ErrNotFound)
	}
	strategy.IsStopped = stopped
	if !stopped {
		strategy.LossTradeRun = 0
		delete(e.lossLimitNoted, id)
	}
	e.dirtyStrategies()
	logger.WithFields(logger.Fields{"strategy": id, "stopped": stopped}).Info("strategy flag changed by operator")
	return nil
}

// SetTradeHodl flips the HODL flag of an open trade.
func (e *Engine) SetTradeHodl(id string, hodl bool) error {
	return e.setTradeFlag(id, func(t *model.TradeOpen) { t.IsHodl = hodl })
}

// SetTradeStopped flips the stop flag of an open trade.
func (e *Engine) SetTradeStopped(id string, stopped bool) error {
	return e.setTradeFlag(id, func(t *model.TradeOpen) { t.IsStopped = stopped })
}

func (e *Engine) setTradeFlag(id string, apply func(*model.TradeOpen)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade := e.meta.FindTradeByID(id)
	if trade == nil {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	apply(trade)
	trade.TimeUpdated = time.Now()
	e.dirtyTrades()
	return nil
}

// CloseTrade schedules a manual close. A stopped or never-executed trade
// cannot run the exchange sequence anymore: the hub gets both traded acks so
// it drops the phantom, and a never-executed trade leaves the open list.
func (e *Engine) CloseTrade(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade := e.meta.FindTradeByID(id)
	if trade == nil {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	if e.meta.IsClosing(trade) {
		return fmt.Errorf("trade %s is already closing", id)
	}

	if trade.IsStopped || !trade.IsExecuted {
		e.emitTraded(hub.ChannelTradedBuy, trade)
		e.emitTraded(hub.ChannelTradedSell, trade)
		if !trade.IsExecuted {
			e.meta.RemoveTradeOpen(trade)
			e.dirtyTrades()
		}
		logger.WithField("trade", trade.ID).Warn("phantom close acknowledged to the hub")
		return nil
	}

	ctx := context.Background()
	price := e.currentSellPrice(ctx, trade)
	if trade.PositionType == model.PositionShort {
		if ticker, err := e.gateway.FetchTicker(ctx, trade.Symbol); err == nil && ticker.Ask.IsPositive() {
			price = ticker.Ask
		}
	}

	e.processSignal(&model.Signal{
		StrategyID:   trade.StrategyID,
		StrategyName: trade.StrategyName,
		Symbol:       trade.Symbol,
		EntryType:    model.EntryExit,
		PositionType: trade.PositionType,
		Price:        price,
		Timestamp:    time.Now(),
		Source:       model.SourceManual,
	})
	return nil
}

// DeleteTrade removes a trade from the open list without touching the
// exchange. Loans stay as they are, this is an operator cleanup tool.
func (e *Engine) DeleteTrade(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trade := e.meta.FindTradeByID(id)
	if trade == nil {
		return fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	e.meta.RemoveTradeOpen(trade)
	e.dirtyTrades()
	logger.WithField("trade", id).Warn("trade deleted by operator")
	return nil
}

// ResetVirtual wipes the virtual ledger. A positive amount becomes the new
// seed for the reference quote.
func (e *Engine) ResetVirtual(funds decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.virtual.Reset(funds)
	e.rebuildVirtualBalances()
	e.dirtyVirtual()
	logger.Info("virtual balances reset by operator")
}

// ResetPnL drops the balance history of one (asset, mode) pair.
func (e *Engine) ResetPnL(asset string, mode model.TradingType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Reset(mode, asset)
	e.dirtyHistory()
	logger.WithFields(logger.Fields{"asset": asset, "mode": mode}).Info("balance history reset by operator")
}

// TopUpFeeToken is the manual top-up trigger.
func (e *Engine) TopUpFeeToken(quote string, walletType model.WalletType) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := context.Background()
	balances, err := e.gateway.FetchBalance(ctx, model.WalletSpot)
	if err != nil {
		return fmt.Errorf("fee token balance unavailable: %w", err)
	}
	return e.topUpFeeToken(ctx, quote, walletType, balances[feeToken].Free)
}

// Transactions exposes the persisted transaction log.
func (e *Engine) Transactions(limit int) ([]model.Transaction, error) {
	return e.store.Transactions(limit)
}
