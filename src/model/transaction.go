package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the append-only log of exchange mutations: market
// orders, margin borrows and repays. The statestore keeps the log capped.
type Transaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	TradeID   string          `gorm:"size:32;index" json:"tradeId"`
	Action    string          `gorm:"size:30;not null" json:"action"`
	Symbol    string          `gorm:"size:50" json:"symbol"`
	Asset     string          `gorm:"size:20" json:"asset"`
	Amount    decimal.Decimal `gorm:"type:numeric" json:"amount"`
	Price     decimal.Decimal `gorm:"type:numeric" json:"price"`
	TranID    string          `gorm:"size:64" json:"tranId"`
	Level     string          `gorm:"size:20;not null" json:"level"`
	Message   string          `gorm:"size:1024" json:"message"`
	CreatedAt time.Time       `json:"createdAt"`
}

const (
	TransactionOrder  = "order"
	TransactionBorrow = "borrow"
	TransactionRepay  = "repay"
)
