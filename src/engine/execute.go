package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/exchange"
	"tradeexecutor/src/hub"
	"tradeexecutor/src/model"
)

// enqueueExecute pushes the borrow/order/repay sequence for one trade onto
// the queue. Rebalance children ack on an empty channel, everything else
// reports traded_buy_signal or traded_sell_signal by its order side.
func (e *Engine) enqueueExecute(trade *model.TradeOpen, entry model.EntryType, source model.SourceType, parent *model.TradeOpen, movedCost decimal.Decimal) {
	action := model.TradeAction(entry, trade.PositionType)
	channel := ""
	if source != model.SourceRebalance {
		if action == model.ActionBuy {
			channel = hub.ChannelTradedBuy
		} else {
			channel = hub.ChannelTradedSell
		}
	}

	label := fmt.Sprintf("%s %s %s (%s)", entry, trade.PositionType, trade.Symbol, trade.ID)
	e.queue.Push(label, func() error {
		return e.runExecute(trade, entry, action, source, parent, movedCost, channel)
	})
}

// runExecute is the queue task body: optional borrow, the market order, and
// the optional repay, with explicit compensation on each failure edge.
func (e *Engine) runExecute(trade *model.TradeOpen, entry model.EntryType, action model.ActionType, source model.SourceType, parent *model.TradeOpen, movedCost decimal.Decimal, channel string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := context.Background()
	market := e.meta.Markets[trade.Symbol]
	if market == nil {
		e.abortNew(trade, entry, source, parent, movedCost)
		return fmt.Errorf("market %s unknown at execution time", trade.Symbol)
	}

	borrowDone := false
	if entry == model.EntryEnter && trade.Borrow.IsPositive() {
		asset := market.Quote
		if trade.PositionType == model.PositionShort {
			asset = market.Base
		}
		if err := e.borrow(ctx, trade, asset, trade.Borrow); err != nil {
			e.abortNew(trade, entry, source, parent, movedCost)
			return err
		}
		borrowDone = true
	}

	result, err := e.placeOrder(ctx, trade, action)
	if err != nil || !result.Closed() {
		if err == nil {
			err = fmt.Errorf("order for trade %s finished %s", trade.ID, result.Status)
		}
		if borrowDone {
			// borrowed but nothing bought. the operator has to unwind this
			e.forceStop(trade, "order failed after borrow")
			return err
		}
		e.abortNew(trade, entry, source, parent, movedCost)
		return err
	}

	e.logTransaction(model.Transaction{
		TradeID: trade.ID,
		Action:  model.TransactionOrder,
		Symbol:  trade.Symbol,
		Amount:  result.Quantity,
		Price:   result.Price,
		Level:   "info",
		Message: fmt.Sprintf("%s %s %s filled at %s", action, result.Quantity, trade.Symbol, result.Price),
	})

	now := time.Now()
	if action == model.ActionBuy {
		trade.PriceBuy = result.Price
		trade.TimeBuy = now
	} else {
		trade.PriceSell = result.Price
		trade.TimeSell = now
	}
	trade.TimeUpdated = now

	if entry == model.EntryEnter {
		if result.Quantity.IsPositive() {
			trade.Quantity = result.Quantity
		}
		trade.Cost = result.Cost
		trade.IsExecuted = true
		e.dirtyTrades()
		e.recordOpen(ctx, trade, market, result)
	} else {
		if source == model.SourceRebalance {
			e.settleRebalance(trade, parent, result)
		} else if err := e.finishExit(ctx, trade, market, result); err != nil {
			return err
		}
	}

	e.emitTraded(channel, trade)

	if trade.TradingType == model.TradingReal {
		e.checkFeeToken(ctx)
	}
	return nil
}

// abortNew compensates a sequence that did nothing: a brand new entry is
// removed before anyone saw it, a rebalance child hands its slice back to
// the parent, a failed exit merely leaves the closing set.
func (e *Engine) abortNew(trade *model.TradeOpen, entry model.EntryType, source model.SourceType, parent *model.TradeOpen, movedCost decimal.Decimal) {
	switch {
	case source == model.SourceRebalance && parent != nil:
		parent.Quantity = parent.Quantity.Add(trade.Quantity)
		parent.Cost = parent.Cost.Add(movedCost)
		parent.TimeUpdated = time.Now()
		e.dirtyTrades()
	case entry == model.EntryEnter:
		e.meta.RemoveTradeOpen(trade)
		e.dirtyTrades()
	default:
		delete(e.meta.TradesClosing, trade.ID)
		e.dirtyTrades()
	}
}

// forceStop parks a half-done trade for operator cleanup.
func (e *Engine) forceStop(trade *model.TradeOpen, reason string) {
	trade.IsStopped = true
	trade.TimeUpdated = time.Now()
	delete(e.meta.TradesClosing, trade.ID)
	e.dirtyTrades()
	e.notify.Error("trade has been stopped",
		fmt.Sprintf("trade %s on %s has been stopped: %s", trade.ID, trade.Symbol, reason),
		fmt.Sprintf("trade=%s symbol=%s wallet=%s quantity=%s borrow=%s", trade.ID, trade.Symbol, trade.Wallet, trade.Quantity, trade.Borrow))
}

// settleRebalance propagates the child's actual fill back onto the parent.
func (e *Engine) settleRebalance(child, parent *model.TradeOpen, result *exchange.OrderResult) {
	if parent == nil {
		return
	}
	parent.PriceSell = result.Price
	parent.Cost = parent.Quantity.Mul(parent.PriceBuy)
	parent.TimeUpdated = time.Now()
	e.dirtyTrades()

	market := e.meta.Markets[child.Symbol]
	if market != nil {
		fee := result.Cost.Mul(e.cfg.TakerFee()).Neg()
		e.history.RecordFee(child.TradingType, market.Quote, decimal.Zero, fee, e.meta.CountOpenForStrategy(child.StrategyID), time.Now())
		e.dirtyHistory()
	}
}

// finishExit repays any loan, books the result, and retires the trade.
func (e *Engine) finishExit(ctx context.Context, trade *model.TradeOpen, market *model.Market, result *exchange.OrderResult) error {
	if trade.Borrow.IsPositive() {
		asset := market.Quote
		if trade.PositionType == model.PositionShort {
			asset = market.Base
		}
		amount := trade.Borrow
		if e.cfg.IsPayInterestEnabled && trade.TradingType == model.TradingReal {
			amount = amount.Add(e.accruedInterest(ctx, asset))
		}
		if err := e.repay(ctx, trade, asset, amount); err != nil {
			// the position is flat but the loan is still open
			e.forceStop(trade, fmt.Sprintf("repay of %s %s failed", amount, asset))
			return err
		}
	}

	e.recordClose(ctx, trade, market, result)
	e.meta.RemoveTradeOpen(trade)
	e.dirtyTrades()
	return nil
}

func (e *Engine) accruedInterest(ctx context.Context, asset string) decimal.Decimal {
	balances, err := e.gateway.FetchBalance(ctx, model.WalletMargin)
	if err != nil {
		logger.WithError(err).Warn("could not read accrued interest")
		return decimal.Zero
	}
	return balances[asset].Interest
}

func (e *Engine) placeOrder(ctx context.Context, trade *model.TradeOpen, action model.ActionType) (*exchange.OrderResult, error) {
	if trade.TradingType == model.TradingVirtual {
		result, err := e.virtual.ExecuteOrder(ctx, trade, action, trade.Quantity)
		if err == nil {
			e.dirtyVirtual()
		}
		return result, err
	}
	return e.gateway.CreateMarketOrder(ctx, trade.Symbol, action, trade.Quantity, trade.Wallet)
}

func (e *Engine) borrow(ctx context.Context, trade *model.TradeOpen, asset string, amount decimal.Decimal) error {
	tranID := "virtual"
	if trade.TradingType == model.TradingVirtual {
		e.virtual.Borrow(trade.Wallet, asset, amount)
		e.dirtyVirtual()
	} else {
		id, err := e.gateway.MarginBorrow(ctx, asset, amount)
		if err != nil {
			return err
		}
		tranID = id
	}
	e.logTransaction(model.Transaction{
		TradeID: trade.ID,
		Action:  model.TransactionBorrow,
		Symbol:  trade.Symbol,
		Asset:   asset,
		Amount:  amount,
		TranID:  tranID,
		Level:   "info",
		Message: fmt.Sprintf("borrowed %s %s", amount, asset),
	})
	return nil
}

func (e *Engine) repay(ctx context.Context, trade *model.TradeOpen, asset string, amount decimal.Decimal) error {
	tranID := "virtual"
	if trade.TradingType == model.TradingVirtual {
		e.virtual.Repay(trade.Wallet, asset, amount)
		e.dirtyVirtual()
	} else {
		id, err := e.gateway.MarginRepay(ctx, asset, amount)
		if err != nil {
			return err
		}
		tranID = id
	}
	e.logTransaction(model.Transaction{
		TradeID: trade.ID,
		Action:  model.TransactionRepay,
		Symbol:  trade.Symbol,
		Asset:   asset,
		Amount:  amount,
		TranID:  tranID,
		Level:   "info",
		Message: fmt.Sprintf("repaid %s %s", amount, asset),
	})
	return nil
}

// emitTraded acknowledges the executed signal to the hub. Failures only log,
// the trade itself is already done.
func (e *Engine) emitTraded(channel string, trade *model.TradeOpen) {
	if channel == "" {
		return
	}
	err := e.hub.Emit(channel, hub.TradedPayload{
		Symbol:       trade.Symbol,
		StrategyID:   trade.StrategyID,
		StrategyName: trade.StrategyName,
		Quantity:     trade.Quantity,
		TradingType:  string(trade.TradingType),
	})
	if err != nil {
		logger.WithError(err).WithField("channel", channel).Warn("hub acknowledgement failed")
	}
}
