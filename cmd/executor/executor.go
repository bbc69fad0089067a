package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradeexecutor/src/config"
	"tradeexecutor/src/engine"
	"tradeexecutor/src/exchange"
	"tradeexecutor/src/hub"
	"tradeexecutor/src/notifier"
	"tradeexecutor/src/server"
	"tradeexecutor/src/statestore"
)

// Executor wires the whole application together and runs it until a signal
// arrives.
type Executor struct{}

func (t *Executor) Start() error {
	cfg := config.GetConfig()
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	store, err := statestore.Open(cfg.DatabaseURL, cfg.DatabasePath, cfg.MaxDatabaseRows)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open the state store")
		return err
	}

	notify := notifier.NewHub(notifier.LevelInfo)
	notify.Register(notifier.LogSink{})

	gateway := exchange.NewBinanceGateway(cfg.ExchangeAPIKey, cfg.ExchangeAPISecret, cfg.BalanceSyncDelay)

	var eng *engine.Engine
	hubClient := hub.NewClient(cfg.HubBaseURL, cfg.HubAPIKey, handlerFunc(func() *engine.Engine { return eng }))

	eng, err = engine.New(cfg, gateway, store, notify, hubClient)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build the engine")
		return err
	}

	logs := server.NewLogBuffer()
	srv, err := server.New(eng, logs, cfg.ServerPort, cfg.ServerPassword)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build the operator server")
		return err
	}

	srv.Start()
	eng.StartBackground()
	hubClient.Start()

	logrus.Info("Trade executor started, waiting for the hub strategy list")
	<-ctx.Done()

	logrus.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Shutdown error")
	}
	hubClient.Stop()
	eng.Shutdown()
	return nil
}

// handlerFunc defers the handler resolution until the engine exists, the hub
// client and the engine reference each other.
type handlerFunc func() *engine.Engine

func (f handlerFunc) OnStrategyList(list []hub.StrategyPayload) {
	if e := f(); e != nil {
		e.OnStrategyList(list)
	}
}

func (f handlerFunc) OnBuySignal(s hub.SignalPayload) {
	if e := f(); e != nil {
		e.OnBuySignal(s)
	}
}

func (f handlerFunc) OnSellSignal(s hub.SignalPayload) {
	if e := f(); e != nil {
		e.OnSellSignal(s)
	}
}

func (f handlerFunc) OnCloseSignal(s hub.SignalPayload) {
	if e := f(); e != nil {
		e.OnCloseSignal(s)
	}
}

func (f handlerFunc) OnStopSignal(s hub.SignalPayload) {
	if e := f(); e != nil {
		e.OnStopSignal(s)
	}
}
