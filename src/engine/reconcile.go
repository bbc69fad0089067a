package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/hub"
	"tradeexecutor/src/model"
	"tradeexecutor/src/statestore"
)

const stateVersion = 2

// reconcile rebuilds the engine's state at startup: persisted snapshots
// first, then markets, then the hub's open-trade list. Persisted trades are
// the truth for funding fields, the hub is the truth for presence. Without
// persisted trades everything is reattributed from live balances and loans.
// Caller holds the lock.
func (e *Engine) reconcile(ctx context.Context) error {
	var persistedStrategies map[string]*model.Strategy
	if ok, err := e.store.Load(statestore.KeyStrategies, &persistedStrategies); err != nil {
		logger.WithError(err).Warn("persisted strategies unreadable")
	} else if ok {
		for id, prev := range persistedStrategies {
			if current, here := e.meta.Strategies[id]; here {
				current.IsStopped = prev.IsStopped
				current.LossTradeRun = prev.LossTradeRun
			}
		}
	}

	var persistedTrades []*model.TradeOpen
	if _, err := e.store.Load(statestore.KeyTradesOpen, &persistedTrades); err != nil {
		logger.WithError(err).Warn("persisted trades unreadable")
	}
	if _, err := e.store.Load(statestore.KeyVirtualBalances, &e.meta.VirtualBalances); err != nil {
		logger.WithError(err).Warn("persisted virtual balances unreadable")
	}
	if e.meta.VirtualBalances == nil {
		e.meta.VirtualBalances = make(map[model.WalletType]map[string]decimal.Decimal)
	}
	if _, err := e.store.Load(statestore.KeyBalanceHistory, &e.history); err != nil {
		logger.WithError(err).Warn("persisted balance history unreadable")
	}
	if _, err := e.store.Load(statestore.KeyPublicStrategies, &e.meta.PublicStrategies); err != nil {
		logger.WithError(err).Warn("persisted public strategies unreadable")
	}
	if e.meta.PublicStrategies == nil {
		e.meta.PublicStrategies = make(map[string]*model.PublicStrategy)
	}
	e.migrate()

	markets, err := e.gateway.LoadMarkets(ctx, true)
	if err != nil {
		return fmt.Errorf("cannot load markets: %w", err)
	}
	e.meta.Markets = markets
	e.meta.MarketsUpdated = time.Now()
	e.refreshPrices(ctx)

	hubTrades, err := e.hub.UserTrades(ctx)
	if err != nil {
		return fmt.Errorf("cannot load hub trades: %w", err)
	}

	if len(persistedTrades) > 0 {
		e.meta.TradesOpen = e.mergePersisted(persistedTrades, hubTrades)
	} else if len(hubTrades) > 0 {
		e.meta.TradesOpen = e.rebuildFromBalances(ctx, hubTrades)
	}
	e.dirtyTrades()

	e.rebuildVirtualBalances()
	e.dirtyVirtual()
	return nil
}

// migrate applies version-dependent snapshot fixups. Version 2 introduced
// the estimatedFees field on balance history rows, which decodes to zero on
// older snapshots, so the bump is all that is left to do.
func (e *Engine) migrate() {
	var version int
	if _, err := e.store.Load(statestore.KeyVersion, &version); err != nil {
		logger.WithError(err).Warn("state version unreadable")
	}
	if version < stateVersion {
		logger.WithFields(logger.Fields{"from": version, "to": stateVersion}).Info("state migrated")
		e.store.MarkDirty(statestore.KeyVersion, stateVersion)
	}
}

// mergePersisted reconciles the persisted open trades against the hub list.
func (e *Engine) mergePersisted(persisted []*model.TradeOpen, hubTrades []hub.OpenTradePayload) []*model.TradeOpen {
	matched := make(map[*model.TradeOpen]bool, len(persisted))
	find := func(strategyID, symbol string, position model.PositionType) *model.TradeOpen {
		for _, t := range persisted {
			if t.StrategyID == strategyID && t.Symbol == symbol && t.PositionType == position {
				return t
			}
		}
		return nil
	}

	for _, ht := range hubTrades {
		t := find(ht.StrategyID, ht.Symbol, model.PositionType(ht.PositionType))
		if t == nil {
			e.discardTrade(ht.Symbol, ht.StrategyID, "hub reports a trade the persisted state does not know")
			continue
		}
		matched[t] = true
		if ht.IsStopped && !t.IsStopped {
			// the operator stopped it while we were offline
			t.IsStopped = true
		}
	}

	kept := make([]*model.TradeOpen, 0, len(persisted))
	for _, t := range persisted {
		if !matched[t] {
			if !t.IsExecuted {
				e.discardTrade(t.Symbol, t.StrategyID, "pending trade vanished from the hub")
				continue
			}
			logger.WithFields(logger.Fields{"trade": t.ID, "symbol": t.Symbol}).
				Warn("trade missing from the hub, kept until the next exit signal")
		}
		kept = append(kept, t)
	}
	return kept
}

// rebuildFromBalances reattributes the hub's open trades to wallets, funds
// and loans when no persisted state survived. Shorts bind first since they
// are always margin, longs then compete for the remaining coins.
func (e *Engine) rebuildFromBalances(ctx context.Context, hubTrades []hub.OpenTradePayload) []*model.TradeOpen {
	trades := make([]*model.TradeOpen, 0, len(hubTrades))
	for _, ht := range hubTrades {
		strategy, known := e.meta.Strategies[ht.StrategyID]
		market := e.meta.Markets[ht.Symbol]
		switch {
		case !known:
			e.discardTrade(ht.Symbol, ht.StrategyID, "strategy no longer followed")
			continue
		case market == nil || !market.Active:
			e.discardTrade(ht.Symbol, ht.StrategyID, "symbol no longer tradable")
			continue
		case !ht.Price.IsPositive():
			e.discardTrade(ht.Symbol, ht.StrategyID, "entry price missing")
			continue
		}

		t := &model.TradeOpen{
			ID:           model.NewTradeID(ht.StrategyID, ht.Symbol, model.PositionType(ht.PositionType), time.UnixMilli(ht.Timestamp)),
			StrategyID:   ht.StrategyID,
			StrategyName: ht.StrategyName,
			Symbol:       ht.Symbol,
			PositionType: model.PositionType(ht.PositionType),
			TradingType:  strategy.TradingType,
			Quantity:     ht.Quantity,
			IsStopped:    ht.IsStopped,
			IsExecuted:   true,
			TimeUpdated:  time.Now(),
		}
		if t.PositionType == model.PositionShort {
			t.PriceSell = ht.Price
			t.TimeSell = time.UnixMilli(ht.Timestamp)
		} else {
			t.PriceBuy = ht.Price
			t.TimeBuy = time.UnixMilli(ht.Timestamp)
		}
		trades = append(trades, t)
	}

	marginBalances, err := e.gateway.FetchBalance(ctx, model.WalletMargin)
	if err != nil {
		logger.WithError(err).Warn("margin balance unavailable during rebuild")
		marginBalances = nil
	}
	spotBalances, err := e.gateway.FetchBalance(ctx, model.WalletSpot)
	if err != nil {
		logger.WithError(err).Warn("spot balance unavailable during rebuild")
		spotBalances = nil
	}

	free := map[model.WalletType]map[string]decimal.Decimal{
		model.WalletSpot:   {},
		model.WalletMargin: {},
	}
	borrowed := map[string]decimal.Decimal{}
	for asset, b := range spotBalances {
		free[model.WalletSpot][asset] = b.Free
	}
	for asset, b := range marginBalances {
		free[model.WalletMargin][asset] = b.Free
		borrowed[asset] = b.Borrowed
	}

	kept := make([]*model.TradeOpen, 0, len(trades))

	// shorts first
	for _, t := range trades {
		if t.PositionType != model.PositionShort || t.TradingType == model.TradingVirtual {
			continue
		}
		market := e.meta.Markets[t.Symbol]
		t.Wallet = model.WalletMargin
		t.Cost = t.Quantity.Mul(t.PriceSell)
		t.Borrow = t.Quantity

		free[model.WalletMargin][market.Quote] = free[model.WalletMargin][market.Quote].Sub(t.Cost)
		remaining := borrowed[market.Base].Sub(t.Quantity)
		if remaining.IsNegative() {
			// less is on loan than the short sold, repay only what is owed
			t.Borrow = t.Quantity.Add(remaining)
			remaining = decimal.Zero
		}
		borrowed[market.Base] = remaining
		kept = append(kept, t)
	}

	// longs compete for the remaining coins, grouped per wallet and coin
	type binding struct {
		wallet model.WalletType
		base   string
	}
	groups := make(map[binding][]*model.TradeOpen)
	for _, t := range trades {
		if t.PositionType != model.PositionLong {
			continue
		}
		market := e.meta.Markets[t.Symbol]
		if t.TradingType == model.TradingVirtual {
			t.Wallet = e.cfg.PrimaryWalletType()
			t.Cost = t.Quantity.Mul(t.PriceBuy)
			kept = append(kept, t)
			continue
		}

		candidates := e.walletCandidates(market)
		if len(candidates) == 0 {
			e.discardTrade(t.Symbol, t.StrategyID, "no permitted wallet")
			continue
		}
		chosen := candidates[0]
		for _, w := range candidates {
			if free[w][market.Base].GreaterThanOrEqual(t.Quantity) {
				chosen = w
				break
			}
			if free[w][market.Base].GreaterThan(free[chosen][market.Base]) {
				chosen = w
			}
		}
		t.Wallet = chosen
		t.Cost = t.Quantity.Mul(t.PriceBuy)
		key := binding{chosen, market.Base}
		groups[key] = append(groups[key], t)
	}

	for key, group := range groups {
		available := free[key.wallet][key.base]
		total := decimal.Zero
		for _, t := range group {
			total = total.Add(t.Quantity)
		}
		if total.LessThanOrEqual(available) {
			kept = append(kept, group...)
			continue
		}

		// overflow. level the group to an equal share of what is there
		share := available.Div(decimal.NewFromInt(int64(len(group))))
		for _, t := range group {
			market := e.meta.Markets[t.Symbol]
			qty := market.AmountToPrecision(share)
			if qty.LessThan(market.MinAmount) || qty.Mul(t.PriceBuy).LessThan(market.MinCost) {
				e.discardTrade(t.Symbol, t.StrategyID, "no balance left to cover the trade")
				continue
			}
			t.Quantity = qty
			t.Cost = qty.Mul(t.PriceBuy)
			kept = append(kept, t)
		}
	}

	// whatever loan is still unaccounted for is not ours to manage
	for asset, remaining := range borrowed {
		for _, t := range kept {
			market := e.meta.Markets[t.Symbol]
			if t.PositionType == model.PositionLong && t.Wallet == model.WalletMargin && market.Quote == asset && remaining.IsPositive() {
				t.Borrow = decimal.Min(t.Cost, remaining)
				remaining = remaining.Sub(t.Borrow)
			}
		}
		if remaining.IsPositive() {
			logger.WithFields(logger.Fields{"asset": asset, "amount": remaining}).
				Warn("margin loan not attributable to any trade, treated as an external liability")
		}
	}

	return kept
}

// rebuildVirtualBalances reseeds the virtual ledger and replays every open
// virtual trade's entry against it.
func (e *Engine) rebuildVirtualBalances() {
	e.virtual.Reset(decimal.Zero)
	for _, t := range e.meta.TradesOpen {
		if t.TradingType != model.TradingVirtual || !t.IsExecuted {
			continue
		}
		market := e.meta.Markets[t.Symbol]
		if market == nil {
			continue
		}
		quote := e.virtual.Balance(t.Wallet, market.Quote)
		base := e.virtual.Balance(t.Wallet, market.Base)
		if t.PositionType == model.PositionLong {
			e.meta.VirtualBalances[t.Wallet][market.Quote] = quote.Sub(t.Cost)
			e.meta.VirtualBalances[t.Wallet][market.Base] = base.Add(t.Quantity)
		} else {
			e.meta.VirtualBalances[t.Wallet][market.Quote] = quote.Add(t.Cost)
		}
	}
}

func (e *Engine) discardTrade(symbol, strategyID, reason string) {
	logger.WithFields(logger.Fields{"symbol": symbol, "strategy": strategyID}).Warn("open trade discarded: " + reason)
	e.notify.Warn("open trade discarded",
		fmt.Sprintf("discarded the open trade on %s for strategy %s: %s", symbol, strategyID, reason), "")
}
