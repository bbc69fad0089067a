package funding

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func marginWallet(free string, trades ...*model.TradeOpen) *wallet.Data {
	return &wallet.Data{Type: model.WalletMargin, Free: d(free), Trades: trades}
}

func spotWallet(free string, trades ...*model.TradeOpen) *wallet.Data {
	return &wallet.Data{Type: model.WalletSpot, Free: d(free), Trades: trades}
}

func TestForModelRejectsUnknown(t *testing.T) {
	_, err := ForModel("yolo")
	require.Error(t, err)

	for _, name := range []string{"none", "borrow-min", "borrow-all", "sell-all", "sell-largest", "sell-largest-pnl"} {
		policy, err := ForModel(name)
		require.NoError(t, err, name)
		require.NotNil(t, policy, name)
	}
}

func TestFundNoneShrinksToFree(t *testing.T) {
	plan, err := FundNone(Input{Candidates: []*wallet.Data{spotWallet("0.004")}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.Equal(t, model.WalletSpot, plan.Wallet.Type)
	assert.True(t, plan.Cost.Equal(d("0.004")), "cost = %s", plan.Cost)
	assert.True(t, plan.Borrow.IsZero())
}

func TestFundNonePrefersPrimaryWhenItCovers(t *testing.T) {
	primary := spotWallet("0.02")
	other := marginWallet("1")
	plan, err := FundNone(Input{Candidates: []*wallet.Data{primary, other}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.Equal(t, model.WalletSpot, plan.Wallet.Type)
	assert.True(t, plan.Cost.Equal(d("0.01")))
}

func TestFundNoneFallsBackToBestPotential(t *testing.T) {
	primary := spotWallet("0.004")
	other := marginWallet("0.008")
	plan, err := FundNone(Input{Candidates: []*wallet.Data{primary, other}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.Equal(t, model.WalletMargin, plan.Wallet.Type)
	assert.True(t, plan.Cost.Equal(d("0.008")), "cost = %s", plan.Cost)
}

func TestFundBorrowMin(t *testing.T) {
	plan, err := FundBorrowMin(Input{Candidates: []*wallet.Data{marginWallet("0.004")}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.True(t, plan.Cost.Equal(d("0.01")))
	assert.True(t, plan.Borrow.Equal(d("0.006")), "borrow = %s", plan.Borrow)

	// free covers everything, nothing to borrow
	plan, err = FundBorrowMin(Input{Candidates: []*wallet.Data{marginWallet("0.02")}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.True(t, plan.Borrow.IsZero())

	_, err = FundBorrowMin(Input{Candidates: []*wallet.Data{spotWallet("1")}, Cost: d("0.01")})
	require.Error(t, err)
}

func TestFundBorrowAll(t *testing.T) {
	plan, err := FundBorrowAll(Input{Candidates: []*wallet.Data{marginWallet("0.004")}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.True(t, plan.Borrow.Equal(d("0.01")))
	assert.True(t, plan.Cost.Equal(d("0.01")))
}

func TestFundSellLargest(t *testing.T) {
	big := &model.TradeOpen{ID: "big", Cost: d("0.02")}
	small := &model.TradeOpen{ID: "small", Cost: d("0.01")}
	w := spotWallet("0.005", big, small)

	plan, err := FundSellLargest(Input{Candidates: []*wallet.Data{w}, Cost: d("0.03")})
	require.NoError(t, err)

	// potential = (0.005 + 0.02) / 2 = 0.0125
	assert.True(t, plan.Potential.Equal(d("0.0125")), "potential = %s", plan.Potential)
	assert.True(t, plan.Cost.Equal(d("0.0125")), "cost = %s", plan.Cost)
	require.Len(t, plan.Rebalance, 1)
	assert.Equal(t, "big", plan.Rebalance[0].ID)
}

func TestFundSellLargestNoRebalanceWhenFreeCovers(t *testing.T) {
	big := &model.TradeOpen{ID: "big", Cost: d("0.02")}
	w := spotWallet("0.03", big)

	plan, err := FundSellLargest(Input{Candidates: []*wallet.Data{w}, Cost: d("0.01")})
	require.NoError(t, err)
	assert.Empty(t, plan.Rebalance)
	assert.True(t, plan.Cost.Equal(d("0.01")))
}

func TestFundSellAllEqualizes(t *testing.T) {
	a := &model.TradeOpen{ID: "a", Cost: d("0.03")}
	b := &model.TradeOpen{ID: "b", Cost: d("0.03")}
	c := &model.TradeOpen{ID: "c", Cost: d("0.001")}
	w := spotWallet("0.002", a, b, c)

	plan, err := FundSellAll(Input{Candidates: []*wallet.Data{w}, Cost: d("1")})
	require.NoError(t, err)

	// c is below the first average and drops out of the donor set,
	// the final level is (0.002 + 0.03 + 0.03) / 3
	require.Len(t, plan.Rebalance, 2)
	expected := d("0.002").Add(d("0.06")).Div(d("3"))
	assert.True(t, plan.Potential.Equal(expected), "potential = %s want %s", plan.Potential, expected)
	assert.True(t, plan.Cost.Equal(expected))
}

func TestFundSellLargestPnLPicksBestAboveAverage(t *testing.T) {
	winner := &model.TradeOpen{ID: "winner", Cost: d("0.02")}
	bigger := &model.TradeOpen{ID: "bigger", Cost: d("0.025")}
	small := &model.TradeOpen{ID: "small", Cost: d("0.001")}
	w := spotWallet("0.005", winner, bigger, small)

	pnl := func(t *model.TradeOpen) decimal.Decimal {
		if t.ID == "winner" {
			return d("5")
		}
		return d("-1")
	}

	plan, err := FundSellLargestPnL(Input{Candidates: []*wallet.Data{w}, Cost: d("0.03"), PnL: pnl})
	require.NoError(t, err)
	require.Len(t, plan.Rebalance, 1)
	assert.Equal(t, "winner", plan.Rebalance[0].ID)
	// potential splits free and the chosen donor
	assert.True(t, plan.Potential.Equal(d("0.0125")), "potential = %s", plan.Potential)
}

func TestFundSellLargestPnLNeedsPnLSource(t *testing.T) {
	_, err := FundSellLargestPnL(Input{Candidates: []*wallet.Data{spotWallet("1")}, Cost: d("0.01")})
	require.Error(t, err)
}
