package model

import "github.com/shopspring/decimal"

// Strategy is a hub strategy the executor follows. Identity and the trade
// amount come from the hub strategy list. IsStopped and LossTradeRun are owned
// by the engine and survive list refreshes unless the hub toggles IsActive.
type Strategy struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TradeAmount  decimal.Decimal `json:"tradeAmount"`
	TradingType  TradingType     `json:"tradingType"`
	IsActive     bool            `json:"isActive"`
	IsStopped    bool            `json:"isStopped"`
	LossTradeRun int             `json:"lossTradeRun"`
}

// PublicStrategy counts signals for strategies we observe but do not follow.
type PublicStrategy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ShortOpened int    `json:"shortOpened"`
	LongOpened  int    `json:"longOpened"`
	Closed      int    `json:"closed"`
}
