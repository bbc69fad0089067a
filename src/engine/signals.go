package engine

import (
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/hub"
	"tradeexecutor/src/model"
)

// OnBuySignal classifies a hub buy: an open short means this is its exit,
// anything else is a long entry.
func (e *Engine) OnBuySignal(payload hub.SignalPayload) {
	e.onActionSignal(payload, model.ActionBuy)
}

// OnSellSignal classifies a hub sell: an open long means this is its exit,
// anything else is a short entry.
func (e *Engine) OnSellSignal(payload hub.SignalPayload) {
	e.onActionSignal(payload, model.ActionSell)
}

func (e *Engine) onActionSignal(payload hub.SignalPayload, action model.ActionType) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signal := signalFromPayload(payload)
	signal.Source = model.SourceAuto

	opposite := model.PositionForSignal(action, model.EntryExit)
	if open := e.meta.FindTradeOpen(signal.StrategyID, signal.Symbol, opposite); open != nil {
		signal.EntryType = model.EntryExit
		signal.PositionType = opposite
	} else {
		signal.EntryType = model.EntryEnter
		signal.PositionType = model.PositionForSignal(action, model.EntryEnter)
	}
	e.processSignal(signal)
}

// OnCloseSignal forces an exit for the matching open trade.
func (e *Engine) OnCloseSignal(payload hub.SignalPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signal := signalFromPayload(payload)
	signal.EntryType = model.EntryExit
	signal.Source = model.SourceManual
	e.processSignal(signal)
}

// OnStopSignal marks the matching open trade stopped. No exchange activity.
func (e *Engine) OnStopSignal(payload hub.SignalPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade := e.meta.FindTradeOpenAny(payload.StrategyID, payload.Symbol)
	if trade == nil {
		logger.WithFields(logger.Fields{
			"strategy": payload.StrategyID,
			"symbol":   payload.Symbol,
		}).Warn("stop signal without a matching open trade")
		return
	}
	trade.IsStopped = true
	e.dirtyTrades()
	logger.WithField("trade", trade.ID).Info("trade stopped by hub signal")
}

func signalFromPayload(p hub.SignalPayload) *model.Signal {
	return &model.Signal{
		StrategyID:   p.StrategyID,
		StrategyName: p.StrategyName,
		Symbol:       p.Symbol,
		Price:        p.Price,
		Timestamp:    p.Time(),
	}
}

// processSignal validates and dispatches one classified signal. Caller holds
// the lock.
func (e *Engine) processSignal(signal *model.Signal) {
	if signal.NeedsPositionResolve() {
		trade := e.meta.FindTradeOpenAny(signal.StrategyID, signal.Symbol)
		if trade != nil {
			signal.PositionType = trade.PositionType
		}
	}

	if rej := e.validateSignal(signal); rej != nil {
		e.reportRejection(signal, rej)
		return
	}

	if signal.EntryType == model.EntryEnter {
		e.createTradeOpen(signal)
		return
	}
	e.scheduleExit(signal)
}

func (e *Engine) reportRejection(signal *model.Signal, rej *model.Rejection) {
	entry := logger.WithFields(logger.Fields{
		"strategy": signal.StrategyID,
		"symbol":   signal.Symbol,
		"entry":    signal.EntryType,
		"position": signal.PositionType,
		"kind":     rej.Kind,
	})
	switch rej.Level {
	case model.RejectionError:
		entry.Error(rej.Reason)
		e.notify.Error("signal rejected", rej.Error(), "")
	case model.RejectionWarn:
		entry.Warn(rej.Reason)
	default:
		entry.Debug(rej.Reason)
	}

	if _, known := e.meta.Strategies[signal.StrategyID]; !known {
		e.trackPublicStrategy(signal)
	}
}
