package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/exchange"
	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

const feeToken = "BNB"

type bnbState int

const (
	bnbOK bnbState = iota
	bnbHigh
	bnbLow
	bnbEmpty
)

// recordOpen books a filled entry into the balance history.
func (e *Engine) recordOpen(ctx context.Context, trade *model.TradeOpen, market *model.Market, result *exchange.OrderResult) {
	balance, _ := e.freeBalance(ctx, trade.TradingType, trade.Wallet, market.Quote)
	open := e.openTradeCount(trade.TradingType, market.Quote)
	fee := result.Cost.Mul(e.cfg.TakerFee()).Neg()

	e.history.RecordOpen(trade.TradingType, market.Quote, balance, open, time.Now())
	e.history.RecordFee(trade.TradingType, market.Quote, balance, fee, open, time.Now())
	e.dirtyHistory()
}

// recordClose computes the realized change of a finished exit, maintains the
// strategy's consecutive-loss count, and books the day record.
func (e *Engine) recordClose(ctx context.Context, trade *model.TradeOpen, market *model.Market, result *exchange.OrderResult) {
	change := decimal.Zero
	if trade.PriceBuy.IsPositive() && trade.PriceSell.IsPositive() {
		change = trade.Quantity.Mul(trade.PriceSell.Sub(trade.PriceBuy))
	}
	fee := result.Cost.Mul(e.cfg.TakerFee()).Neg()
	feeBasis := trade.Quantity.Mul(trade.PriceBuy.Add(trade.PriceSell)).Mul(e.cfg.TakerFee())

	e.updateLossRun(trade, change.Sub(feeBasis))

	balance, _ := e.freeBalance(ctx, trade.TradingType, trade.Wallet, market.Quote)
	open := e.openTradeCount(trade.TradingType, market.Quote) - 1
	if open < 0 {
		open = 0
	}
	e.history.RecordClose(trade.TradingType, market.Quote, balance, change, fee, open, time.Now())
	e.dirtyHistory()

	logger.WithFields(logger.Fields{
		"trade":  trade.ID,
		"symbol": trade.Symbol,
		"change": change,
	}).Info("trade closed")
	e.notify.Success("trade closed",
		fmt.Sprintf("%s %s closed with %s %s", trade.PositionType, trade.Symbol, change, market.Quote),
		fmt.Sprintf("trade=%s buy=%s sell=%s quantity=%s wallet=%s held=%s",
			trade.ID, trade.PriceBuy, trade.PriceSell, trade.Quantity, trade.Wallet, trade.TimeSell.Sub(trade.TimeBuy)))
}

// updateLossRun increments the strategy's consecutive-loss counter on a net
// loss and resets it on a win. Hitting the limit stops the strategy, once.
func (e *Engine) updateLossRun(trade *model.TradeOpen, netChange decimal.Decimal) {
	strategy, ok := e.meta.Strategies[trade.StrategyID]
	if !ok {
		return
	}
	if !netChange.IsNegative() {
		strategy.LossTradeRun = 0
		delete(e.lossLimitNoted, strategy.ID)
		e.dirtyStrategies()
		return
	}

	strategy.LossTradeRun++
	if limit := e.cfg.StrategyLossLimit; limit > 0 && strategy.LossTradeRun >= limit && !strategy.IsStopped {
		strategy.IsStopped = true
		if !e.lossLimitNoted[strategy.ID] {
			e.lossLimitNoted[strategy.ID] = true
			e.notify.Error("strategy stopped",
				fmt.Sprintf("strategy %s hit %d consecutive losses and has been stopped", strategy.ID, strategy.LossTradeRun), "")
		}
	}
	e.dirtyStrategies()
}

func (e *Engine) openTradeCount(mode model.TradingType, quote string) int {
	n := 0
	for _, t := range e.meta.TradesOpen {
		market := e.meta.Markets[t.Symbol]
		if t.TradingType == mode && market != nil && market.Quote == quote {
			n++
		}
	}
	return n
}

// checkFeeToken runs the fee reserve hysteresis after every real sequence:
// one warning on falling under the threshold, another under half of it, an
// error at zero, and a reset once the reserve recovers.
func (e *Engine) checkFeeToken(ctx context.Context) {
	threshold := decimal.NewFromFloat(e.cfg.BNBFreeThreshold)
	if !threshold.IsPositive() {
		return
	}
	balances, err := e.gateway.FetchBalance(ctx, model.WalletSpot)
	if err != nil {
		logger.WithError(err).Warn("fee token balance unavailable")
		return
	}
	free := balances[feeToken].Free
	half := threshold.Div(decimal.NewFromInt(2))

	switch {
	case free.GreaterThanOrEqual(threshold):
		e.bnbState = bnbOK
	case free.LessThanOrEqual(decimal.Zero):
		if e.bnbState != bnbEmpty {
			e.bnbState = bnbEmpty
			e.notify.Error("fee token exhausted",
				fmt.Sprintf("the %s reserve is empty, fees are now paid from trade proceeds", feeToken), "")
		}
	case free.LessThan(half):
		if e.bnbState != bnbLow && e.bnbState != bnbEmpty {
			e.bnbState = bnbLow
			e.notify.Warn("fee token reserve low",
				fmt.Sprintf("the %s reserve %s fell under half the %s threshold", feeToken, free, threshold), "")
			e.autoTopUpFeeToken(ctx, free)
		}
	default:
		if e.bnbState == bnbOK {
			e.bnbState = bnbHigh
			e.notify.Warn("fee token reserve sinking",
				fmt.Sprintf("the %s reserve %s fell under the %s threshold", feeToken, free, threshold), "")
		}
	}
}

// autoTopUpFeeToken buys the reserve back up to the configured float when a
// top-up quote is set.
func (e *Engine) autoTopUpFeeToken(ctx context.Context, free decimal.Decimal) {
	if e.cfg.BNBAutoTopUp == "" {
		return
	}
	if err := e.topUpFeeToken(ctx, e.cfg.BNBAutoTopUp, model.WalletSpot, free); err != nil {
		logger.WithError(err).Error("fee token auto top-up failed")
		e.notify.Error("fee token top-up failed", err.Error(), "")
	}
}

// topUpFeeToken places a spot market buy of the fee token against the given
// quote, sized to reach the configured float. Caller holds the lock.
func (e *Engine) topUpFeeToken(ctx context.Context, quote string, walletType model.WalletType, free decimal.Decimal) error {
	symbol := feeToken + quote
	market, ok := e.meta.Markets[symbol]
	if !ok {
		return fmt.Errorf("no market %s to top the fee token up with", symbol)
	}

	target := decimal.NewFromFloat(e.cfg.BNBFreeFloat)
	missing := target.Sub(free)
	if !missing.IsPositive() {
		return fmt.Errorf("fee token already at its float of %s", target)
	}

	ticker, err := e.gateway.FetchTicker(ctx, symbol)
	if err != nil {
		return fmt.Errorf("no ticker for %s: %w", symbol, err)
	}
	quantity := wallet.LegalQuantity(market, ticker.Ask, missing.Mul(ticker.Ask), e.cfg.MinCostBufferDec())
	if quantity.IsZero() {
		return fmt.Errorf("fee token top-up of %s is below the %s minimum", missing, symbol)
	}

	result, err := e.gateway.CreateMarketOrder(ctx, symbol, model.ActionBuy, quantity, walletType)
	if err != nil {
		return err
	}
	if !result.Closed() {
		return fmt.Errorf("fee token top-up order finished %s", result.Status)
	}

	e.logTransaction(model.Transaction{
		Action:  model.TransactionOrder,
		Symbol:  symbol,
		Amount:  result.Quantity,
		Price:   result.Price,
		Level:   "info",
		Message: fmt.Sprintf("fee token topped up with %s %s", result.Quantity, feeToken),
	})
	e.notify.Success("fee token topped up",
		fmt.Sprintf("bought %s %s for %s %s", result.Quantity, feeToken, result.Cost, quote), "")
	return nil
}
