// Package engine implements the signal-driven trade lifecycle: validation,
// sizing and funding of entries, the multi-step execute task, post-trade
// accounting, and the startup reconciliation of persisted state.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/config"
	"tradeexecutor/src/exchange"
	"tradeexecutor/src/funding"
	"tradeexecutor/src/history"
	"tradeexecutor/src/hub"
	"tradeexecutor/src/model"
	"tradeexecutor/src/notifier"
	"tradeexecutor/src/queue"
	"tradeexecutor/src/statestore"
)

const crossCheckThrottle = 120 * time.Second

// HubAPI is the slice of the hub client the engine talks back through.
type HubAPI interface {
	Emit(channel string, payload hub.TradedPayload) error
	UserTrades(ctx context.Context) ([]hub.OpenTradePayload, error)
	StrategyTrades(ctx context.Context, strategyID string) ([]hub.OpenTradePayload, error)
}

// Engine owns the meta-data. Every mutation happens under its lock: hub
// callbacks, queue tasks, operator actions and the background tick all
// serialize here.
type Engine struct {
	cfg     *config.Config
	gateway exchange.Gateway
	virtual *exchange.VirtualLedger
	store   *statestore.Store
	queue   *queue.TradeQueue
	notify  *notifier.Hub
	hub     HubAPI
	policy  funding.Policy

	mu          sync.Mutex
	meta        *model.MetaData
	history     history.History
	operational bool
	bnbState    bnbState
	stopBG      chan struct{}
	bgDone      sync.WaitGroup

	lastCrossCheck map[string]time.Time
	feeTokenWarned map[string]bool
	lossLimitNoted map[string]bool
}

func New(cfg *config.Config, gateway exchange.Gateway, store *statestore.Store, notify *notifier.Hub, hubAPI HubAPI) (*Engine, error) {
	policy, err := funding.ForModel(cfg.TradeLongFunds)
	if err != nil {
		return nil, err
	}
	meta := model.NewMetaData()
	e := &Engine{
		cfg:            cfg,
		gateway:        gateway,
		store:          store,
		queue:          queue.NewTradeQueue(),
		notify:         notify,
		hub:            hubAPI,
		policy:         policy,
		meta:           meta,
		history:        history.New(),
		stopBG:         make(chan struct{}),
		lastCrossCheck: make(map[string]time.Time),
		feeTokenWarned: make(map[string]bool),
		lossLimitNoted: make(map[string]bool),
	}
	e.virtual = exchange.NewVirtualLedger(meta, gateway, cfg.ReferenceSymbol, decimal.NewFromFloat(cfg.VirtualWalletFunds))
	return e, nil
}

// Operational reports whether the engine accepts signals.
func (e *Engine) Operational() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operational
}

// Shutdown flips the engine non-operational and flushes the dirty state.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.operational = false
	e.mu.Unlock()

	close(e.stopBG)
	e.bgDone.Wait()
	e.queue.Stop()
	if err := e.store.Close(); err != nil {
		logger.WithError(err).Error("final state flush failed")
	}
}

// ----- dirty-set helpers, called with e.mu held -----

func (e *Engine) dirtyStrategies() { e.store.MarkDirty(statestore.KeyStrategies, e.meta.Strategies) }
func (e *Engine) dirtyTrades()     { e.store.MarkDirty(statestore.KeyTradesOpen, e.meta.TradesOpen) }
func (e *Engine) dirtyVirtual() {
	e.store.MarkDirty(statestore.KeyVirtualBalances, e.meta.VirtualBalances)
}
func (e *Engine) dirtyHistory() { e.store.MarkDirty(statestore.KeyBalanceHistory, e.history) }
func (e *Engine) dirtyPublic() {
	e.store.MarkDirty(statestore.KeyPublicStrategies, e.meta.PublicStrategies)
}

// logTransaction appends to the capped exchange mutation log.
func (e *Engine) logTransaction(t model.Transaction) {
	t.CreatedAt = time.Now()
	e.meta.Transactions = append(e.meta.Transactions, t)
	if err := e.store.AppendTransaction(&t); err != nil {
		logger.WithError(err).Error("failed to persist transaction")
	}
}

// OnStrategyList handles the hub's strategy broadcast. The first successful
// call reconciles persisted state and marks the engine operational.
func (e *Engine) OnStrategyList(list []hub.StrategyPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	first := !e.operational
	previous := e.meta.Strategies
	next := make(map[string]*model.Strategy, len(list))

	for _, p := range list {
		tradingType := model.TradingType(p.TradingType)
		if tradingType != model.TradingReal {
			tradingType = model.TradingVirtual
		}
		strat := &model.Strategy{
			ID:          p.StrategyID,
			Name:        p.StrategyName,
			TradeAmount: p.TradeAmount,
			TradingType: tradingType,
			IsActive:    p.IsActive,
		}
		if prev, ok := previous[p.StrategyID]; ok {
			strat.IsStopped = prev.IsStopped
			strat.LossTradeRun = prev.LossTradeRun
			if strat.Name == "" {
				strat.Name = prev.Name
			}
			if prev.IsActive != strat.IsActive {
				// hub toggled the strategy, engine-owned flags start over
				strat.IsStopped = false
				strat.LossTradeRun = 0
				delete(e.lossLimitNoted, strat.ID)
			}
			if prev.TradingType != strat.TradingType {
				logger.WithFields(logger.Fields{
					"strategy": strat.ID,
					"from":     prev.TradingType,
					"to":       strat.TradingType,
				}).Warn("strategy switched trading mode")
			}
		}
		next[p.StrategyID] = strat
	}

	for id := range previous {
		if _, ok := next[id]; !ok {
			logger.WithField("strategy", id).Warn("strategy disappeared from hub list, its open trades are paused")
		}
	}

	e.meta.Strategies = next
	e.dirtyStrategies()

	if first {
		if err := e.reconcile(context.Background()); err != nil {
			logger.WithError(err).Error("startup reconciliation failed, shutting down")
			e.notify.Error("startup failed", err.Error(), "")
			go e.fatal()
			return
		}
		e.operational = true
		logger.WithField("strategies", len(next)).Info("engine operational")
		return
	}

	go e.crossCheckStrategies()
}

// fatal is the forced shutdown path for unrecoverable startup errors.
func (e *Engine) fatal() {
	e.store.Close()
	logger.Fatal("unrecoverable startup state")
}

// crossCheckStrategies compares each active strategy's open trades with the
// hub's view, at most once per strategy per throttle window.
func (e *Engine) crossCheckStrategies() {
	e.mu.Lock()
	var due []*model.Strategy
	now := time.Now()
	for _, s := range e.meta.Strategies {
		if !s.IsActive {
			continue
		}
		if now.Sub(e.lastCrossCheck[s.ID]) < crossCheckThrottle {
			continue
		}
		e.lastCrossCheck[s.ID] = now
		due = append(due, s)
	}
	e.mu.Unlock()

	for _, s := range due {
		trades, err := e.hub.StrategyTrades(context.Background(), s.ID)
		if err != nil {
			logger.WithError(err).WithField("strategy", s.ID).Warn("strategy cross-check failed")
			continue
		}
		e.mu.Lock()
		for _, ht := range trades {
			if e.meta.FindTradeOpen(s.ID, ht.Symbol, model.PositionType(ht.PositionType)) == nil {
				logger.WithFields(logger.Fields{
					"strategy": s.ID,
					"symbol":   ht.Symbol,
				}).Warn("hub reports an open trade the engine does not hold")
			}
		}
		for _, t := range e.meta.TradesOpen {
			if t.StrategyID != s.ID {
				continue
			}
			found := false
			for _, ht := range trades {
				if ht.Symbol == t.Symbol && model.PositionType(ht.PositionType) == t.PositionType {
					found = true
					break
				}
			}
			if !found {
				logger.WithFields(logger.Fields{
					"strategy": s.ID,
					"symbol":   t.Symbol,
					"trade":    t.ID,
				}).Warn("engine holds a trade the hub does not report")
			}
		}
		e.mu.Unlock()
	}
}

// trackPublicStrategy counts signals of strategies we do not follow.
func (e *Engine) trackPublicStrategy(signal *model.Signal) {
	ps, ok := e.meta.PublicStrategies[signal.StrategyID]
	if !ok {
		ps = &model.PublicStrategy{ID: signal.StrategyID, Name: signal.StrategyName}
		e.meta.PublicStrategies[signal.StrategyID] = ps
	}
	if signal.EntryType == model.EntryEnter {
		if signal.PositionType == model.PositionShort {
			ps.ShortOpened++
		} else {
			ps.LongOpened++
		}
	} else {
		ps.Closed++
	}
	e.dirtyPublic()
}
