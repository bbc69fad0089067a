package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// ceilToStep rounds a quantity up onto the step grid.
func ceilToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}
	steps := qty.Div(step)
	if steps.Equal(steps.Floor()) {
		return qty
	}
	return steps.Floor().Add(decimal.NewFromInt(1)).Mul(step)
}

// LegalQuantity turns a desired cost at a price into a quantity the exchange
// accepts: snapped onto the step grid, raised to the amount minimum and to
// the buffered notional minimum, capped by the amount and cost maxima.
// Returns zero when the inputs cannot produce a legal quantity.
func LegalQuantity(market *model.Market, price, cost, minCostBuffer decimal.Decimal) decimal.Decimal {
	if price.IsZero() || !cost.IsPositive() {
		return decimal.Zero
	}

	qty := market.AmountToPrecision(cost.Div(price))

	if qty.LessThan(market.MinAmount) {
		qty = ceilToStep(market.MinAmount, market.StepSize)
	}
	minCost := market.MinCostWithBuffer(minCostBuffer)
	if qty.Mul(price).LessThan(minCost) {
		qty = ceilToStep(minCost.Div(price), market.StepSize)
	}

	if market.MaxAmount.IsPositive() && qty.GreaterThan(market.MaxAmount) {
		qty = market.AmountToPrecision(market.MaxAmount)
	}
	if market.MaxMarketAmount.IsPositive() && qty.GreaterThan(market.MaxMarketAmount) {
		qty = market.AmountToPrecision(market.MaxMarketAmount)
	}
	if market.MaxCost.IsPositive() && qty.Mul(price).GreaterThan(market.MaxCost) {
		qty = market.AmountToPrecision(market.MaxCost.Div(price))
	}

	// the caps can undercut the minima, in which case there is no legal size
	if qty.LessThan(market.MinAmount) || qty.Mul(price).LessThan(minCost) {
		return decimal.Zero
	}
	return qty
}

// RebalanceSlice is the child sell carved out of a parent long trade to bring
// it down to a target cost.
type RebalanceSlice struct {
	Quantity decimal.Decimal
	Cost     decimal.Decimal
}

// SliceForRebalance computes the sub-trade that reduces parent to targetCost
// at the current sell price. It refuses slices the legalizer inflated past
// twice the requested difference, slices that would close the parent, and
// slices that would leave the parent below its own legal minimum.
func SliceForRebalance(parent *model.TradeOpen, market *model.Market, targetCost, sellPrice, minCostBuffer decimal.Decimal) (*RebalanceSlice, error) {
	diffCost := parent.Cost.Sub(targetCost)
	if !diffCost.IsPositive() {
		return nil, fmt.Errorf("target cost %s does not reduce trade %s", targetCost, parent.ID)
	}

	diffQty := LegalQuantity(market, sellPrice, diffCost, minCostBuffer)
	if diffQty.IsZero() {
		return nil, fmt.Errorf("no legal quantity for rebalance of trade %s", parent.ID)
	}
	actualCost := diffQty.Mul(sellPrice)

	if actualCost.GreaterThan(diffCost.Mul(decimal.NewFromInt(2))) {
		return nil, fmt.Errorf("legal snap inflated rebalance of trade %s from %s to %s", parent.ID, diffCost, actualCost)
	}
	if diffQty.GreaterThanOrEqual(parent.Quantity) {
		return nil, fmt.Errorf("rebalance of trade %s would close it", parent.ID)
	}

	remainingQty := parent.Quantity.Sub(diffQty)
	remainingCost := parent.Cost.Sub(actualCost)
	if remainingQty.LessThan(market.MinAmount) || remainingCost.LessThan(market.MinCostWithBuffer(minCostBuffer)) {
		return nil, fmt.Errorf("rebalance would leave trade %s below the market minimum", parent.ID)
	}

	return &RebalanceSlice{Quantity: diffQty, Cost: actualCost}, nil
}

// TooSmallToSplit reports whether a trade cannot donate funds in a rebalance
// because either half would fall under the market minimum.
func TooSmallToSplit(t *model.TradeOpen, market *model.Market) bool {
	two := decimal.NewFromInt(2)
	return t.Quantity.LessThan(market.MinAmount.Mul(two)) || t.Cost.LessThan(market.MinCost.Mul(two))
}
