package model

import "github.com/shopspring/decimal"

// Market holds the trading rules for one symbol as reported by the exchange.
type Market struct {
	Symbol          string          `json:"symbol"`
	Base            string          `json:"base"`
	Quote           string          `json:"quote"`
	Active          bool            `json:"active"`
	Spot            bool            `json:"spot"`
	Margin          bool            `json:"margin"`
	StepSize        decimal.Decimal `json:"stepSize"`
	MinAmount       decimal.Decimal `json:"minAmount"`
	MaxAmount       decimal.Decimal `json:"maxAmount"`
	MaxMarketAmount decimal.Decimal `json:"maxMarketAmount"`
	MinCost         decimal.Decimal `json:"minCost"`
	MaxCost         decimal.Decimal `json:"maxCost"`
}

// SupportsWallet reports whether the symbol can trade on the given wallet.
// Margin here means cross margin, enriched from the margin pairs endpoint.
func (m *Market) SupportsWallet(wallet WalletType) bool {
	if wallet == WalletMargin {
		return m.Margin
	}
	return m.Spot
}

// AmountToPrecision snaps a quantity down onto the symbol's step size.
// Snapping down never turns a legal amount illegal, and the operation is
// idempotent.
func (m *Market) AmountToPrecision(qty decimal.Decimal) decimal.Decimal {
	if m.StepSize.IsZero() {
		return qty
	}
	steps := qty.Div(m.StepSize).Floor()
	return steps.Mul(m.StepSize)
}

// MinCostWithBuffer is the minimum notional raised by the configured buffer
// fraction so that a fill a touch below the quoted price still clears the
// exchange filter.
func (m *Market) MinCostWithBuffer(buffer decimal.Decimal) decimal.Decimal {
	return m.MinCost.Mul(decimal.NewFromInt(1).Add(buffer))
}
