package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func ethMarket() *model.Market {
	return &model.Market{
		Symbol:    "ETHBTC",
		Base:      "ETH",
		Quote:     "BTC",
		Active:    true,
		Spot:      true,
		Margin:    true,
		StepSize:  d("0.001"),
		MinAmount: d("0.001"),
		MinCost:   d("0.0001"),
	}
}

func TestLegalQuantityIsIdempotent(t *testing.T) {
	market := ethMarket()
	price := d("0.0314")

	for _, raw := range []string{"0.01", "0.0123456", "1", "0.000123"} {
		qty := LegalQuantity(market, price, d(raw), d("0.02"))
		again := LegalQuantity(market, price, qty.Mul(price), d("0.02"))
		require.True(t, qty.Equal(again), "cost %s: %s != %s", raw, qty, again)
	}
}

func TestAmountToPrecisionIsIdempotent(t *testing.T) {
	market := ethMarket()
	qty := market.AmountToPrecision(d("0.0123456"))
	require.True(t, qty.Equal(market.AmountToPrecision(qty)))
	require.True(t, qty.Equal(d("0.012")), "got %s", qty)
}

func TestLegalQuantityRaisesToMinCost(t *testing.T) {
	market := ethMarket()
	// raw cost under min notional with buffer gets its quantity raised
	qty := LegalQuantity(market, d("0.01"), d("0.00005"), d("0.02"))
	require.True(t, qty.Mul(d("0.01")).GreaterThanOrEqual(d("0.000102")), "cost = %s", qty.Mul(d("0.01")))
}

func TestLegalQuantityZeroOnBadInput(t *testing.T) {
	market := ethMarket()
	assert.True(t, LegalQuantity(market, decimal.Zero, d("1"), decimal.Zero).IsZero())
	assert.True(t, LegalQuantity(market, d("1"), decimal.Zero, decimal.Zero).IsZero())
}

func TestLegalQuantityRespectsCaps(t *testing.T) {
	market := ethMarket()
	market.MaxAmount = d("0.5")
	qty := LegalQuantity(market, d("0.01"), d("1"), decimal.Zero)
	require.True(t, qty.Equal(d("0.5")), "got %s", qty)
}

func TestSliceForRebalance(t *testing.T) {
	market := ethMarket()
	parent := &model.TradeOpen{
		ID:       "parent",
		Symbol:   "ETHBTC",
		Quantity: d("0.2"),
		Cost:     d("0.02"),
		PriceBuy: d("0.1"),
	}

	// reduce 0.02 down to 0.0125 at a sell price of 0.1
	slice, err := SliceForRebalance(parent, market, d("0.0125"), d("0.1"), decimal.Zero)
	require.NoError(t, err)
	require.True(t, slice.Quantity.Equal(d("0.075")), "qty = %s", slice.Quantity)
	require.True(t, slice.Cost.Equal(d("0.0075")), "cost = %s", slice.Cost)
}

func TestSliceForRebalanceFences(t *testing.T) {
	market := ethMarket()
	parent := &model.TradeOpen{
		ID:       "parent",
		Symbol:   "ETHBTC",
		Quantity: d("0.2"),
		Cost:     d("0.02"),
		PriceBuy: d("0.1"),
	}

	// target above current cost is not a reduction
	_, err := SliceForRebalance(parent, market, d("0.03"), d("0.1"), decimal.Zero)
	require.Error(t, err)

	// a slice taking the whole quantity would close the parent
	_, err = SliceForRebalance(parent, market, decimal.Zero, d("0.1"), decimal.Zero)
	require.Error(t, err)

	// the remainder has to stay above the market minimum
	_, err = SliceForRebalance(parent, market, d("0.00005"), d("0.1"), d("0.02"))
	require.Error(t, err)

	// the snap must not inflate the slice past twice the request
	tiny := &model.TradeOpen{ID: "tiny", Symbol: "ETHBTC", Quantity: d("0.2"), Cost: d("0.02")}
	_, err = SliceForRebalance(tiny, market, d("0.01999"), d("0.1"), decimal.Zero)
	require.Error(t, err)
}

func TestTooSmallToSplit(t *testing.T) {
	market := ethMarket()
	assert.True(t, TooSmallToSplit(&model.TradeOpen{Quantity: d("0.0015"), Cost: d("0.01")}, market))
	assert.True(t, TooSmallToSplit(&model.TradeOpen{Quantity: d("0.1"), Cost: d("0.00015")}, market))
	assert.False(t, TooSmallToSplit(&model.TradeOpen{Quantity: d("0.1"), Cost: d("0.01")}, market))
}
