package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeOpen is the engine's record of a live position.
//
// For a long, PriceBuy is set at open and PriceSell when the exit signal
// arrives. For a short it is the other way around. Borrow is denominated in
// the base asset for shorts and in the quote asset for longs.
type TradeOpen struct {
	ID           string          `json:"id"`
	StrategyID   string          `json:"strategyId"`
	StrategyName string          `json:"strategyName"`
	Symbol       string          `json:"symbol"`
	PositionType PositionType    `json:"positionType"`
	TradingType  TradingType     `json:"tradingType"`
	Wallet       WalletType      `json:"wallet"`
	Quantity     decimal.Decimal `json:"quantity"`
	Cost         decimal.Decimal `json:"cost"`
	Borrow       decimal.Decimal `json:"borrow"`
	PriceBuy     decimal.Decimal `json:"priceBuy"`
	PriceSell    decimal.Decimal `json:"priceSell"`
	TimeBuy      time.Time       `json:"timeBuy"`
	TimeSell     time.Time       `json:"timeSell"`
	TimeUpdated  time.Time       `json:"timeUpdated"`
	IsStopped    bool            `json:"isStopped"`
	IsHodl       bool            `json:"isHodl"`
	IsExecuted   bool            `json:"isExecuted"`
}

// NewTradeID derives the short trade id from the identifying tuple plus the
// signal timestamp: md5, first 12 hex characters.
func NewTradeID(strategyID, symbol string, position PositionType, at time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s:%d", strategyID, symbol, position, at.UnixNano())))
	return hex.EncodeToString(sum[:])[:12]
}

// EntryPrice returns the price the position was opened at.
func (t *TradeOpen) EntryPrice() decimal.Decimal {
	if t.PositionType == PositionLong {
		return t.PriceBuy
	}
	return t.PriceSell
}

// SetExitPrice records the price the exit will execute against.
func (t *TradeOpen) SetExitPrice(price decimal.Decimal) {
	if t.PositionType == PositionLong {
		t.PriceSell = price
	} else {
		t.PriceBuy = price
	}
}

// ExitPrice returns the recorded exit price, zero when no exit was seen yet.
func (t *TradeOpen) ExitPrice() decimal.Decimal {
	if t.PositionType == PositionLong {
		return t.PriceSell
	}
	return t.PriceBuy
}
