package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/funding"
	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

// createTradeOpen runs the entry pipeline: wallet candidates, sizing,
// funding, rebalance scheduling, and finally the queue task. Caller holds
// the lock.
func (e *Engine) createTradeOpen(signal *model.Signal) {
	strategy := e.meta.Strategies[signal.StrategyID]
	market := e.meta.Markets[signal.Symbol]
	ctx := context.Background()

	trade := &model.TradeOpen{
		ID:           model.NewTradeID(signal.StrategyID, signal.Symbol, signal.PositionType, signal.Timestamp),
		StrategyID:   signal.StrategyID,
		StrategyName: signal.StrategyName,
		Symbol:       signal.Symbol,
		PositionType: signal.PositionType,
		TradingType:  strategy.TradingType,
		TimeUpdated:  time.Now(),
	}

	if signal.PositionType == model.PositionShort {
		e.fundShort(ctx, trade, strategy, market, signal)
		return
	}
	e.fundLong(ctx, trade, strategy, market, signal)
}

// fundShort sizes a short entry. Shorts always run on margin and borrow the
// full base quantity.
func (e *Engine) fundShort(ctx context.Context, trade *model.TradeOpen, strategy *model.Strategy, market *model.Market, signal *model.Signal) {
	free, err := e.freeBalance(ctx, strategy.TradingType, model.WalletMargin, market.Quote)
	if err != nil {
		e.reportRejection(signal, model.Reject(model.RejectInsufficientFunds, model.RejectionError,
			"cannot read margin balance: %v", err))
		return
	}
	snapshot := wallet.Load(e.meta, model.WalletMargin, market.Quote, free, e.cfg.WalletBufferDec())

	cost := e.initialCost(strategy, snapshot)
	quantity := wallet.LegalQuantity(market, signal.Price, cost, e.cfg.MinCostBufferDec())
	if quantity.IsZero() {
		e.reportRejection(signal, model.Reject(model.RejectCostInvalid, model.RejectionWarn,
			"cost %s cannot fund a legal short on %s", cost, market.Symbol))
		return
	}

	trade.Wallet = model.WalletMargin
	trade.Quantity = quantity
	trade.Cost = quantity.Mul(signal.Price)
	trade.Borrow = quantity
	trade.PriceSell = signal.Price

	e.meta.AddTradeOpen(trade)
	e.dirtyTrades()
	e.enqueueExecute(trade, model.EntryEnter, signal.Source, nil, decimal.Zero)
}

// fundLong sizes a long entry through the configured funding policy.
func (e *Engine) fundLong(ctx context.Context, trade *model.TradeOpen, strategy *model.Strategy, market *model.Market, signal *model.Signal) {
	candidates := make([]*wallet.Data, 0, 2)
	for _, walletType := range e.walletCandidates(market) {
		free, err := e.freeBalance(ctx, strategy.TradingType, walletType, market.Quote)
		if err != nil {
			logger.WithError(err).WithField("wallet", walletType).Warn("balance unavailable, wallet skipped")
			continue
		}
		snapshot := wallet.Load(e.meta, walletType, market.Quote, free, e.cfg.WalletBufferDec())
		e.filterRebalanceCandidates(ctx, snapshot)
		candidates = append(candidates, snapshot)
	}
	if len(candidates) == 0 {
		e.reportRejection(signal, model.Reject(model.RejectInsufficientFunds, model.RejectionError,
			"no wallet available for a long on %s", market.Symbol))
		return
	}

	cost := e.initialCost(strategy, candidates[0])
	plan, err := e.policy(funding.Input{
		Candidates: candidates,
		Cost:       cost,
		PnL:        e.pnlAtCurrentPrice(ctx),
	})
	if err != nil {
		e.reportRejection(signal, model.Reject(model.RejectInsufficientFunds, model.RejectionWarn, "%v", err))
		return
	}

	if plan.Cost.LessThan(market.MinCostWithBuffer(e.cfg.MinCostBufferDec())) {
		e.reportRejection(signal, model.Reject(model.RejectCostInvalid, model.RejectionWarn,
			"cost %s is below the %s minimum", plan.Cost, market.Symbol))
		return
	}

	quantity := wallet.LegalQuantity(market, signal.Price, plan.Cost, e.cfg.MinCostBufferDec())
	if quantity.IsZero() {
		e.reportRejection(signal, model.Reject(model.RejectCostInvalid, model.RejectionWarn,
			"cost %s cannot fund a legal long on %s", plan.Cost, market.Symbol))
		return
	}
	finalCost := quantity.Mul(signal.Price)

	trade.Wallet = plan.Wallet.Type
	trade.Quantity = quantity
	trade.Cost = finalCost
	trade.PriceBuy = signal.Price
	switch e.cfg.TradeLongFunds {
	case "borrow-min":
		if gap := finalCost.Sub(plan.Wallet.Free); gap.IsPositive() {
			trade.Borrow = gap
		}
	case "borrow-all":
		trade.Borrow = finalCost
	}

	// release funds first, then consume them: the children enqueue before
	// the entry task
	for _, parent := range plan.Rebalance {
		e.scheduleRebalance(ctx, parent, plan.Potential)
	}

	e.meta.AddTradeOpen(trade)
	e.dirtyTrades()
	e.enqueueExecute(trade, model.EntryEnter, signal.Source, nil, decimal.Zero)
}

// initialCost interprets the strategy trade amount, either as an absolute
// quote amount or as a fraction of the primary wallet.
func (e *Engine) initialCost(strategy *model.Strategy, primary *wallet.Data) decimal.Decimal {
	if e.cfg.IsBuyQtyFraction {
		return primary.Total.Mul(strategy.TradeAmount)
	}
	return strategy.TradeAmount
}

// freeBalance reads the quote balance of one wallet, from the exchange for
// real strategies and from the virtual ledger otherwise.
func (e *Engine) freeBalance(ctx context.Context, mode model.TradingType, walletType model.WalletType, asset string) (decimal.Decimal, error) {
	if mode == model.TradingVirtual {
		return e.virtual.Balance(walletType, asset), nil
	}
	balances, err := e.gateway.FetchBalance(ctx, walletType)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[asset].Free, nil
}

// filterRebalanceCandidates prunes the wallet's donor set for the sell-*
// policies: HODL trades are protected unless no-loss mode itself protects
// losers, too-small trades cannot be split, and in no-loss mode every donor
// must currently be in profit.
func (e *Engine) filterRebalanceCandidates(ctx context.Context, snapshot *wallet.Data) {
	switch e.cfg.TradeLongFunds {
	case "sell-all", "sell-largest", "sell-largest-pnl":
	default:
		return
	}

	noLoss := e.cfg.IsFundsNoLoss
	if noLoss {
		e.refreshPrices(ctx)
	}
	pnl := e.pnlAtCurrentPrice(ctx)

	kept := snapshot.Trades[:0]
	for _, t := range snapshot.Trades {
		if t.IsHodl && !noLoss {
			continue
		}
		market := e.meta.Markets[t.Symbol]
		if market == nil || wallet.TooSmallToSplit(t, market) {
			continue
		}
		if noLoss && pnl(t).IsNegative() {
			continue
		}
		kept = append(kept, t)
	}
	snapshot.Trades = kept
}

// pnlAtCurrentPrice builds the PnL ranking used by no-loss filtering and the
// sell-largest-pnl policy.
func (e *Engine) pnlAtCurrentPrice(ctx context.Context) func(*model.TradeOpen) decimal.Decimal {
	return func(t *model.TradeOpen) decimal.Decimal {
		price, ok := e.meta.Price(t.Symbol)
		if !ok {
			e.refreshPrices(ctx)
			price = e.meta.Prices[t.Symbol]
		}
		return wallet.CalculatePnL(t.PriceBuy, price, e.cfg.TakerFee())
	}
}

// refreshPrices updates the shared price map through the gateway's cache.
func (e *Engine) refreshPrices(ctx context.Context) {
	prices, err := e.gateway.LoadPrices(ctx)
	if err != nil {
		logger.WithError(err).Warn("price refresh failed")
		return
	}
	e.meta.Prices = prices
	e.meta.PricesUpdated = time.Now()
}

// scheduleRebalance carves a slice out of a parent long so its cost comes
// down to targetCost. An unexecuted parent is reduced in place, an executed
// one gets a child sell task that runs before the new entry.
func (e *Engine) scheduleRebalance(ctx context.Context, parent *model.TradeOpen, targetCost decimal.Decimal) {
	market := e.meta.Markets[parent.Symbol]
	if market == nil {
		logger.WithField("trade", parent.ID).Warn("rebalance skipped, market unknown")
		return
	}

	sellPrice := e.currentSellPrice(ctx, parent)
	if !sellPrice.IsPositive() {
		logger.WithField("trade", parent.ID).Warn("rebalance skipped, no sell price")
		return
	}

	slice, err := wallet.SliceForRebalance(parent, market, targetCost, sellPrice, e.cfg.MinCostBufferDec())
	if err != nil {
		logger.WithError(err).WithField("trade", parent.ID).Warn("rebalance rejected")
		return
	}

	if !parent.IsExecuted {
		parent.Quantity = parent.Quantity.Sub(slice.Quantity)
		parent.Cost = parent.Cost.Sub(slice.Cost)
		parent.TimeUpdated = time.Now()
		e.dirtyTrades()
		return
	}

	child := &model.TradeOpen{
		ID:           model.NewTradeID(parent.StrategyID, parent.Symbol, parent.PositionType, time.Now()),
		StrategyID:   parent.StrategyID,
		StrategyName: parent.StrategyName,
		Symbol:       parent.Symbol,
		PositionType: model.PositionLong,
		TradingType:  parent.TradingType,
		Wallet:       parent.Wallet,
		Quantity:     slice.Quantity,
		Cost:         slice.Cost,
		PriceBuy:     parent.PriceBuy,
		PriceSell:    sellPrice,
		TimeBuy:      parent.TimeBuy,
		TimeUpdated:  time.Now(),
		IsExecuted:   true,
	}

	// optimistic reduction, restored if the child sell fails
	parent.Quantity = parent.Quantity.Sub(slice.Quantity)
	parent.Cost = parent.Cost.Sub(slice.Cost)
	parent.TimeUpdated = time.Now()
	e.dirtyTrades()

	e.enqueueExecute(child, model.EntryExit, model.SourceRebalance, parent, slice.Cost)
}

// currentSellPrice prefers a fresh ticker bid and falls back to the cached
// price map.
func (e *Engine) currentSellPrice(ctx context.Context, trade *model.TradeOpen) decimal.Decimal {
	if ticker, err := e.gateway.FetchTicker(ctx, trade.Symbol); err == nil && ticker.Bid.IsPositive() {
		return ticker.Bid
	}
	if price, ok := e.meta.Price(trade.Symbol); ok {
		return price
	}
	return trade.PriceBuy
}
