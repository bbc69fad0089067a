package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
)

// VirtualLedger replaces the gateway's mutating calls for virtual trades.
// It keeps per wallet, per asset balances inside the shared meta-data and
// fabricates fills from the latest ticker.
type VirtualLedger struct {
	meta            *model.MetaData
	gateway         Gateway
	referenceSymbol string
	seedFunds       decimal.Decimal
}

func NewVirtualLedger(meta *model.MetaData, gateway Gateway, referenceSymbol string, seedFunds decimal.Decimal) *VirtualLedger {
	return &VirtualLedger{
		meta:            meta,
		gateway:         gateway,
		referenceSymbol: referenceSymbol,
		seedFunds:       seedFunds,
	}
}

// SeedQuote makes sure the (wallet, quote) ledger cell exists. The reference
// quote is seeded with the configured funds. Any other quote is scaled by
// the ratio of minimum notionals so every market starts with a comparable
// number of minimum trades.
func (v *VirtualLedger) SeedQuote(wallet model.WalletType, quote string) decimal.Decimal {
	if v.meta.VirtualBalances[wallet] == nil {
		v.meta.VirtualBalances[wallet] = make(map[string]decimal.Decimal)
	}
	if funds, ok := v.meta.VirtualBalances[wallet][quote]; ok {
		return funds
	}

	// only quote assets receive seed funds, base holdings start empty
	funds := decimal.Zero
	reference, refOK := v.meta.Markets[v.referenceSymbol]
	if refOK && reference.Quote == quote {
		funds = v.seedFunds
	} else if refOK {
		for _, m := range v.meta.Markets {
			if m.Quote != quote || m.MinCost.IsZero() || reference.MinCost.IsZero() {
				continue
			}
			funds = v.seedFunds.Mul(m.MinCost).Div(reference.MinCost)
			break
		}
	}

	v.meta.VirtualBalances[wallet][quote] = funds
	logger.WithFields(logger.Fields{
		"wallet": wallet,
		"asset":  quote,
		"funds":  funds,
	}).Info("virtual balance seeded")
	return funds
}

// Balance returns the ledger balance for one asset, seeding the cell first.
func (v *VirtualLedger) Balance(wallet model.WalletType, asset string) decimal.Decimal {
	return v.SeedQuote(wallet, asset)
}

// Reset wipes the ledger. When funds is positive it becomes the new seed for
// the reference quote.
func (v *VirtualLedger) Reset(funds decimal.Decimal) {
	v.meta.VirtualBalances = make(map[model.WalletType]map[string]decimal.Decimal)
	if funds.IsPositive() {
		v.seedFunds = funds
	}
}

// Borrow credits a virtual margin loan to the ledger.
func (v *VirtualLedger) Borrow(wallet model.WalletType, asset string, amount decimal.Decimal) {
	balance := v.Balance(wallet, asset)
	v.meta.VirtualBalances[wallet][asset] = balance.Add(amount)
}

// Repay debits a virtual margin loan from the ledger.
func (v *VirtualLedger) Repay(wallet model.WalletType, asset string, amount decimal.Decimal) {
	balance := v.Balance(wallet, asset)
	v.meta.VirtualBalances[wallet][asset] = balance.Sub(amount)
}

// ExecuteOrder applies a market order to the ledger and fabricates a closed
// fill. The fill price is the current ask for a buy and bid for a sell,
// falling back to the trade's own recorded price when no ticker is
// available.
func (v *VirtualLedger) ExecuteOrder(ctx context.Context, trade *model.TradeOpen, side model.ActionType, amount decimal.Decimal) (*OrderResult, error) {
	market, ok := v.meta.Markets[trade.Symbol]
	if !ok {
		return nil, fmt.Errorf("unknown market %s", trade.Symbol)
	}

	price := v.fillPrice(ctx, trade, side)
	if !price.IsPositive() {
		return nil, fmt.Errorf("no price available for virtual order on %s", trade.Symbol)
	}
	cost := amount.Mul(price)

	base := v.Balance(trade.Wallet, market.Base)
	quote := v.Balance(trade.Wallet, market.Quote)
	if side == model.ActionBuy {
		v.meta.VirtualBalances[trade.Wallet][market.Base] = base.Add(amount)
		v.meta.VirtualBalances[trade.Wallet][market.Quote] = quote.Sub(cost)
	} else {
		v.meta.VirtualBalances[trade.Wallet][market.Base] = base.Sub(amount)
		v.meta.VirtualBalances[trade.Wallet][market.Quote] = quote.Add(cost)
	}

	return &OrderResult{
		Status:   OrderStatusClosed,
		Price:    price,
		Quantity: amount,
		Cost:     cost,
	}, nil
}

func (v *VirtualLedger) fillPrice(ctx context.Context, trade *model.TradeOpen, side model.ActionType) decimal.Decimal {
	if v.gateway != nil {
		if ticker, err := v.gateway.FetchTicker(ctx, trade.Symbol); err == nil {
			if side == model.ActionBuy && ticker.Ask.IsPositive() {
				return ticker.Ask
			}
			if side == model.ActionSell && ticker.Bid.IsPositive() {
				return ticker.Bid
			}
		}
	}
	if side == model.ActionBuy {
		return trade.PriceBuy
	}
	return trade.PriceSell
}
