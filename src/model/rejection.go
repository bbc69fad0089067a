package model

import "fmt"

// RejectionKind is the closed set of reasons a signal is dropped before or
// during execution. Validation failures are values, not panics. The log path
// and the notifier path consume the same Rejection; nothing is sent to the hub
// for a rejected signal.
type RejectionKind string

const (
	RejectNotOperational    RejectionKind = "not_operational"
	RejectUnknownStrategy   RejectionKind = "unknown_strategy"
	RejectInactiveStrategy  RejectionKind = "inactive_strategy"
	RejectStoppedStrategy   RejectionKind = "stopped_strategy"
	RejectDuplicateTrade    RejectionKind = "duplicate_trade"
	RejectLossLimit         RejectionKind = "loss_limit"
	RejectPositionDisabled  RejectionKind = "position_disabled"
	RejectSymbolExcluded    RejectionKind = "symbol_excluded"
	RejectSymbolInactive    RejectionKind = "symbol_inactive"
	RejectSymbolUnknown     RejectionKind = "symbol_unknown"
	RejectWalletUnsupported RejectionKind = "wallet_unsupported"
	RejectMarginDisabled    RejectionKind = "margin_disabled"
	RejectMaxTrades         RejectionKind = "max_trades"
	RejectNoOpenTrade       RejectionKind = "no_open_trade"
	RejectAlreadyClosing    RejectionKind = "already_closing"
	RejectTradeStopped      RejectionKind = "trade_stopped"
	RejectHodlAtLoss        RejectionKind = "hodl_at_loss"
	RejectCostInvalid       RejectionKind = "cost_invalid"
	RejectInsufficientFunds RejectionKind = "insufficient_funds"
)

// Level classifies how loudly the rejection is reported. Error class
// rejections reach the operator through the notifier, the rest only the log.
type RejectionLevel string

const (
	RejectionDebug RejectionLevel = "debug"
	RejectionWarn  RejectionLevel = "warn"
	RejectionError RejectionLevel = "error"
)

type Rejection struct {
	Kind   RejectionKind
	Level  RejectionLevel
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("signal rejected (%s): %s", r.Kind, r.Reason)
}

func Reject(kind RejectionKind, level RejectionLevel, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Level: level, Reason: fmt.Sprintf(format, args...)}
}
