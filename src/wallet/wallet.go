package wallet

import (
	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// Data is the transient snapshot of one candidate wallet for a given quote
// asset. Potential is scratch space for the funding policies. Trades holds
// the rebalance candidates.
type Data struct {
	Type      model.WalletType
	Free      decimal.Decimal
	Locked    decimal.Decimal
	Total     decimal.Decimal
	Potential decimal.Decimal
	Trades    []*model.TradeOpen
}

// Load builds the wallet snapshot for (walletType, quote) from the reported
// free balance and the open-trade ledger.
//
// The reported balance is adjusted by the ledger: executed shorts inflate the
// quote balance until they are closed, longs whose base is the quote may be
// sold at any moment, pending longs are reservations, and closing longs are
// about to release their cost.
func Load(meta *model.MetaData, walletType model.WalletType, quote string, reported decimal.Decimal, buffer decimal.Decimal) *Data {
	free := reported
	locked := decimal.Zero
	var candidates []*model.TradeOpen

	for _, t := range meta.TradesOpen {
		market, ok := meta.Markets[t.Symbol]
		if !ok {
			continue
		}

		if t.PositionType == model.PositionShort {
			if t.IsExecuted && t.Wallet == walletType && market.Quote == quote {
				free = free.Sub(t.Cost)
			}
			continue
		}

		// long trades from here on
		if t.IsExecuted && t.Wallet == walletType && market.Base == quote {
			free = free.Sub(t.Quantity)
		}
		if t.Wallet != walletType || market.Quote != quote {
			continue
		}
		if !t.IsExecuted {
			free = free.Sub(t.Cost)
			continue
		}
		if meta.IsClosing(t) {
			free = free.Add(t.Cost)
			continue
		}
		locked = locked.Add(t.Cost)
		if !t.IsStopped {
			candidates = append(candidates, t)
		}
	}

	total := free.Add(locked)
	if buffer.IsPositive() {
		reserve := total.Mul(buffer)
		free = free.Sub(reserve)
		total = total.Sub(reserve)
	}

	return &Data{
		Type:   walletType,
		Free:   free,
		Locked: locked,
		Total:  total,
		Trades: candidates,
	}
}

// CalculatePnL returns the percentage gained between a buy and a sell price
// with the taker fee applied to both legs. fee is a fraction, e.g. 0.001.
// At a flat price the result is exactly the round-trip fee, negative.
func CalculatePnL(priceBuy, priceSell, fee decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	paid := priceBuy.Mul(one.Add(fee))
	received := priceSell.Mul(one.Sub(fee))
	if paid.IsZero() {
		return decimal.Zero
	}
	return received.Sub(paid).Div(paid).Mul(decimal.NewFromInt(100))
}

// LargestTrade returns the candidate with the highest cost, nil on an empty
// set.
func (w *Data) LargestTrade() *model.TradeOpen {
	var largest *model.TradeOpen
	for _, t := range w.Trades {
		if largest == nil || t.Cost.GreaterThan(largest.Cost) {
			largest = t
		}
	}
	return largest
}
