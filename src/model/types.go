package model

// ----- core enums -----

type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
)

type EntryType string

const (
	EntryEnter EntryType = "enter"
	EntryExit  EntryType = "exit"
)

type TradingType string

const (
	TradingReal    TradingType = "real"
	TradingVirtual TradingType = "virtual"
)

type WalletType string

const (
	WalletSpot   WalletType = "spot"
	WalletMargin WalletType = "margin"
)

type SourceType string

const (
	SourceAuto      SourceType = "auto"
	SourceManual    SourceType = "manual"
	SourceRebalance SourceType = "rebalance"
)

type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionSell ActionType = "SELL"
)

// TradeAction maps an entry/position pair onto the exchange side that has to
// be executed for it.
func TradeAction(entry EntryType, position PositionType) ActionType {
	if (entry == EntryEnter) == (position == PositionLong) {
		return ActionBuy
	}
	return ActionSell
}

// PositionForSignal classifies the hub's buy/sell channels:
// buy+enter=long, buy+exit=short, sell+enter=short, sell+exit=long.
func PositionForSignal(action ActionType, entry EntryType) PositionType {
	if (action == ActionBuy) == (entry == EntryEnter) {
		return PositionLong
	}
	return PositionShort
}
