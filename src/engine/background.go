package engine

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

const marketsRefreshAge = 24 * time.Hour

// StartBackground runs the periodic tick: market refresh, the validity sweep
// and the auto-close pass.
func (e *Engine) StartBackground() {
	e.bgDone.Add(1)
	go func() {
		defer e.bgDone.Done()
		ticker := time.NewTicker(e.cfg.BackgroundInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopBG:
				return
			case <-ticker.C:
				e.backgroundTick()
			}
		}
	}()
}

func (e *Engine) backgroundTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.operational {
		return
	}
	ctx := context.Background()

	if time.Since(e.meta.MarketsUpdated) > marketsRefreshAge {
		markets, err := e.gateway.LoadMarkets(ctx, true)
		if err != nil {
			logger.WithError(err).Warn("market refresh failed")
		} else {
			e.meta.Markets = markets
			e.meta.MarketsUpdated = time.Now()
			e.sweepTradeValidity()
		}
	}

	if e.cfg.IsAutoCloseEnabled {
		e.autoClosePass(ctx)
	}
}

// sweepTradeValidity flags open trades whose market went away or stopped
// trading since the last refresh.
func (e *Engine) sweepTradeValidity() {
	for _, t := range e.meta.TradesOpen {
		market, ok := e.meta.Markets[t.Symbol]
		if ok && market.Active {
			continue
		}
		logger.WithFields(logger.Fields{"trade": t.ID, "symbol": t.Symbol}).
			Warn("open trade references a market that is no longer tradable")
		e.notify.Warn("market gone",
			"the market of open trade "+t.ID+" on "+t.Symbol+" is no longer tradable", "")
	}
}

// autoClosePass synthesizes an exit for every HODL or stopped-strategy trade
// that would close in profit at current prices.
func (e *Engine) autoClosePass(ctx context.Context) {
	e.refreshPrices(ctx)
	fee := e.cfg.TakerFee()

	for _, t := range e.meta.TradesOpen {
		if !t.IsExecuted || t.IsStopped || e.meta.IsClosing(t) {
			continue
		}
		strategy := e.meta.Strategies[t.StrategyID]
		stoppedStrategy := strategy != nil && strategy.IsStopped
		if !t.IsHodl && !stoppedStrategy {
			continue
		}
		price, ok := e.meta.Price(t.Symbol)
		if !ok || !price.IsPositive() {
			continue
		}

		var pnl = wallet.CalculatePnL(t.PriceBuy, price, fee)
		if t.PositionType == model.PositionShort {
			pnl = wallet.CalculatePnL(price, t.PriceSell, fee)
		}
		if !pnl.IsPositive() {
			continue
		}

		logger.WithFields(logger.Fields{"trade": t.ID, "pnl": pnl}).Info("auto-closing profitable parked trade")
		e.processSignal(&model.Signal{
			StrategyID:   t.StrategyID,
			StrategyName: t.StrategyName,
			Symbol:       t.Symbol,
			EntryType:    model.EntryExit,
			PositionType: t.PositionType,
			Price:        price,
			Timestamp:    time.Now(),
			Source:       model.SourceAuto,
		})
	}
}
