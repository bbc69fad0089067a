package hub

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyPayload is one entry of the hub's strategy list broadcast.
type StrategyPayload struct {
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName"`
	TradeAmount  decimal.Decimal `json:"tradeAmount"`
	TradingType  string          `json:"tradingType"`
	IsActive     bool            `json:"active"`
}

// SignalPayload is a buy, sell, close or stop event. The signal kind is
// implicit in the channel it arrives on.
type SignalPayload struct {
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Score        string          `json:"score"`
	Timestamp    int64           `json:"timestamp"`
}

// Time converts the millisecond signal timestamp.
func (s *SignalPayload) Time() time.Time {
	if s.Timestamp == 0 {
		return time.Now()
	}
	return time.UnixMilli(s.Timestamp)
}

// TradedPayload acknowledges an executed signal back to the hub.
type TradedPayload struct {
	Symbol       string          `json:"symbol"`
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName"`
	Quantity     decimal.Decimal `json:"quantity"`
	TradingType  string          `json:"tradingType"`
}

// OpenTradePayload is one open trade as the hub sees it, used by the startup
// reconciliation and the throttled cross-check.
type OpenTradePayload struct {
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName"`
	Symbol       string          `json:"symbol"`
	PositionType string          `json:"positionType"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	IsStopped    bool            `json:"stopped"`
	Timestamp    int64           `json:"timestamp"`
}

// Channel names of the hub protocol.
const (
	ChannelStrategies = "strategies"
	ChannelBuy        = "buy_signal"
	ChannelSell       = "sell_signal"
	ChannelClose      = "close_traded_signal"
	ChannelStop       = "stop_traded_signal"
	ChannelTradedBuy  = "traded_buy_signal"
	ChannelTradedSell = "traded_sell_signal"
)
