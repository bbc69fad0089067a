package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// OrderStatusClosed is the only status that counts as a successful fill.
const OrderStatusClosed = "closed"

// OrderResult is the outcome of a market order.
type OrderResult struct {
	Status   string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Cost     decimal.Decimal
}

func (r *OrderResult) Closed() bool { return r.Status == OrderStatusClosed }

// Ticker is the current top of book.
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Balance is one asset inside a wallet. Borrowed and Interest are only
// reported for the margin wallet.
type Balance struct {
	Free     decimal.Decimal
	Borrowed decimal.Decimal
	Interest decimal.Decimal
}

// Gateway is the typed facade over the exchange. Mutating calls invalidate
// the balance cache on both sides of the call, and balance reads settle for
// a configured delay after the most recent mutation.
type Gateway interface {
	LoadMarkets(ctx context.Context, force bool) (map[string]*model.Market, error)
	LoadPrices(ctx context.Context) (map[string]decimal.Decimal, error)
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)
	FetchBalance(ctx context.Context, wallet model.WalletType) (map[string]Balance, error)
	CreateMarketOrder(ctx context.Context, symbol string, side model.ActionType, amount decimal.Decimal, wallet model.WalletType) (*OrderResult, error)
	MarginBorrow(ctx context.Context, asset string, amount decimal.Decimal) (string, error)
	MarginRepay(ctx context.Context, asset string, amount decimal.Decimal) (string, error)
}
