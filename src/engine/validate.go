package engine

import (
	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

// validateSignal applies every pre-queue check. A nil return means the
// signal may be scheduled. Caller holds the lock.
func (e *Engine) validateSignal(signal *model.Signal) *model.Rejection {
	if !e.operational {
		return model.Reject(model.RejectNotOperational, model.RejectionWarn, "engine is not operational yet")
	}

	if signal.EntryType == model.EntryEnter {
		return e.validateEnter(signal)
	}
	return e.validateExit(signal)
}

func (e *Engine) validateEnter(signal *model.Signal) *model.Rejection {
	strategy, ok := e.meta.Strategies[signal.StrategyID]
	if !ok {
		return model.Reject(model.RejectUnknownStrategy, model.RejectionDebug, "strategy %s is not followed", signal.StrategyID)
	}
	if !strategy.IsActive {
		return model.Reject(model.RejectInactiveStrategy, model.RejectionDebug, "strategy %s is inactive", signal.StrategyID)
	}
	if strategy.IsStopped {
		return model.Reject(model.RejectStoppedStrategy, model.RejectionWarn, "strategy %s is stopped after repeated losses", signal.StrategyID)
	}
	if e.meta.FindTradeOpen(signal.StrategyID, signal.Symbol, signal.PositionType) != nil {
		return model.Reject(model.RejectDuplicateTrade, model.RejectionWarn,
			"strategy %s already has an open %s trade on %s", signal.StrategyID, signal.PositionType, signal.Symbol)
	}

	if limit := e.cfg.StrategyLossLimit; limit > 0 && strategy.LossTradeRun > 0 {
		threshold := float64(limit) * e.cfg.StrategyLimitThreshold
		if float64(strategy.LossTradeRun) >= threshold {
			open := e.meta.CountOpenForStrategy(signal.StrategyID)
			if open >= limit-strategy.LossTradeRun {
				return model.Reject(model.RejectLossLimit, model.RejectionWarn,
					"strategy %s is %d losses from its limit with %d trades open", signal.StrategyID, limit-strategy.LossTradeRun, open)
			}
		}
	}

	market, ok := e.meta.Markets[signal.Symbol]
	if !ok {
		return model.Reject(model.RejectSymbolUnknown, model.RejectionWarn, "symbol %s is not a known market", signal.Symbol)
	}
	if !market.Active {
		return model.Reject(model.RejectSymbolInactive, model.RejectionWarn, "symbol %s is not trading", signal.Symbol)
	}
	if e.cfg.IsExcluded(market.Base, market.Quote) {
		return model.Reject(model.RejectSymbolExcluded, model.RejectionDebug, "symbol %s is excluded by configuration", signal.Symbol)
	}

	if signal.PositionType == model.PositionShort {
		if !e.cfg.IsTradeShortEnabled {
			return model.Reject(model.RejectPositionDisabled, model.RejectionDebug, "short trading is disabled")
		}
		if !e.cfg.IsTradeMarginEnabled {
			return model.Reject(model.RejectMarginDisabled, model.RejectionDebug, "short entry needs margin, which is disabled")
		}
		if !market.SupportsWallet(model.WalletMargin) {
			return model.Reject(model.RejectWalletUnsupported, model.RejectionWarn, "symbol %s does not support margin", signal.Symbol)
		}
		if max := e.cfg.MaxShortTrades; max > 0 && e.meta.CountOpen(model.PositionShort) >= max {
			return model.Reject(model.RejectMaxTrades, model.RejectionWarn, "maximum of %d short trades reached", max)
		}
	} else {
		if max := e.cfg.MaxLongTrades; max > 0 && e.meta.CountOpen(model.PositionLong) >= max {
			return model.Reject(model.RejectMaxTrades, model.RejectionWarn, "maximum of %d long trades reached", max)
		}
		supported := false
		for _, w := range e.walletCandidates(market) {
			if market.SupportsWallet(w) {
				supported = true
				break
			}
		}
		if !supported {
			return model.Reject(model.RejectWalletUnsupported, model.RejectionWarn, "symbol %s trades on no permitted wallet", signal.Symbol)
		}
	}

	e.warnFeeTokenQuote(market)
	return nil
}

func (e *Engine) validateExit(signal *model.Signal) *model.Rejection {
	trade := e.findExitTrade(signal)
	if trade == nil {
		return model.Reject(model.RejectNoOpenTrade, model.RejectionWarn,
			"no open trade for strategy %s on %s", signal.StrategyID, signal.Symbol)
	}
	if e.meta.IsClosing(trade) {
		return model.Reject(model.RejectAlreadyClosing, model.RejectionWarn, "trade %s is already closing", trade.ID)
	}
	if signal.Source == model.SourceAuto {
		if _, known := e.meta.Strategies[signal.StrategyID]; !known {
			// the strategy left the hub list, its trades are paused
			return model.Reject(model.RejectUnknownStrategy, model.RejectionDebug,
				"strategy %s is paused, trade %s is retained", signal.StrategyID, trade.ID)
		}
		if trade.IsStopped {
			return model.Reject(model.RejectTradeStopped, model.RejectionWarn, "trade %s is stopped, automatic close skipped", trade.ID)
		}
		strategy := e.meta.Strategies[signal.StrategyID]
		guarded := trade.IsHodl || (strategy != nil && strategy.IsStopped)
		if guarded {
			priceBuy, priceSell := trade.PriceBuy, trade.PriceSell
			if trade.PositionType == model.PositionLong {
				priceSell = signal.Price
			} else {
				priceBuy = signal.Price
			}
			if wallet.CalculatePnL(priceBuy, priceSell, e.cfg.TakerFee()).IsNegative() {
				return model.Reject(model.RejectHodlAtLoss, model.RejectionDebug, "trade %s is parked and the close would lose", trade.ID)
			}
		}
	}
	return nil
}

func (e *Engine) findExitTrade(signal *model.Signal) *model.TradeOpen {
	if signal.NeedsPositionResolve() {
		return e.meta.FindTradeOpenAny(signal.StrategyID, signal.Symbol)
	}
	return e.meta.FindTradeOpen(signal.StrategyID, signal.Symbol, signal.PositionType)
}

// walletCandidates orders the wallets a long entry may use: the primary one
// first, then the other, both filtered by configuration.
func (e *Engine) walletCandidates(market *model.Market) []model.WalletType {
	primary := e.cfg.PrimaryWalletType()
	other := model.WalletSpot
	if primary == model.WalletSpot {
		other = model.WalletMargin
	}
	candidates := make([]model.WalletType, 0, 2)
	for _, w := range []model.WalletType{primary, other} {
		if w == model.WalletMargin && !e.cfg.IsTradeMarginEnabled {
			continue
		}
		if !market.SupportsWallet(w) {
			continue
		}
		candidates = append(candidates, w)
	}
	return candidates
}

// warnFeeTokenQuote surfaces the untested fee-token-quoted configuration
// once per symbol.
func (e *Engine) warnFeeTokenQuote(market *model.Market) {
	const feeToken = "BNB"
	if market.Quote != feeToken || e.feeTokenWarned[market.Symbol] {
		return
	}
	e.feeTokenWarned[market.Symbol] = true
	e.notify.Warn("fee token quote",
		"trading "+market.Symbol+" is quoted in the fee token, fee accounting for it is untested", "")
}
