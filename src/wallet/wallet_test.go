package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testMeta() *model.MetaData {
	meta := model.NewMetaData()
	meta.Markets["ETHBTC"] = &model.Market{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", Active: true, Spot: true, Margin: true}
	meta.Markets["LTCBTC"] = &model.Market{Symbol: "LTCBTC", Base: "LTC", Quote: "BTC", Active: true, Spot: true, Margin: true}
	meta.Markets["BTCUSDT"] = &model.Market{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true, Spot: true, Margin: true}
	return meta
}

func TestCalculatePnLRoundTripIsExactlyTheFee(t *testing.T) {
	fee := d("0.001") // 0.1 percent taker

	// closing at the entry price costs exactly the two fee legs:
	// -2f/(1+f) * 100
	price := d("100")
	got := CalculatePnL(price, price, fee)

	expected := fee.Mul(d("-2")).Div(d("1").Add(fee)).Mul(d("100"))
	require.True(t, got.Equal(expected), "got %s want %s", got, expected)
}

func TestCalculatePnLProfit(t *testing.T) {
	// buy 100, sell 110 at 0.1 percent: 0.011*(1-f) - 0.01*(1+f) per 0.0001
	got := CalculatePnL(d("100"), d("110"), d("0.001"))
	assert.True(t, got.GreaterThan(d("9.7")), "got %s", got)
	assert.True(t, got.LessThan(d("9.9")), "got %s", got)
}

func TestCalculatePnLZeroBuyPrice(t *testing.T) {
	assert.True(t, CalculatePnL(decimal.Zero, d("10"), d("0.001")).IsZero())
}

func TestLoadSubtractsReservationsAndShorts(t *testing.T) {
	meta := testMeta()

	// executed short inflates the margin quote balance until closed
	meta.AddTradeOpen(&model.TradeOpen{
		ID: "short1", Symbol: "ETHBTC", PositionType: model.PositionShort,
		Wallet: model.WalletMargin, Cost: d("0.01"), Quantity: d("0.1"), IsExecuted: true,
	})
	// pending long reserves its cost
	meta.AddTradeOpen(&model.TradeOpen{
		ID: "pending", Symbol: "LTCBTC", PositionType: model.PositionLong,
		Wallet: model.WalletMargin, Cost: d("0.02"), Quantity: d("1"),
	})
	// executed long locks its cost and is a rebalance candidate
	meta.AddTradeOpen(&model.TradeOpen{
		ID: "locked", Symbol: "ETHBTC", PositionType: model.PositionLong,
		Wallet: model.WalletMargin, Cost: d("0.05"), Quantity: d("0.5"), IsExecuted: true,
	})
	// closing long releases its cost back
	closing := &model.TradeOpen{
		ID: "closing", Symbol: "LTCBTC", PositionType: model.PositionLong,
		Wallet: model.WalletMargin, Cost: d("0.03"), Quantity: d("2"), IsExecuted: true,
	}
	meta.AddTradeOpen(closing)
	meta.TradesClosing[closing.ID] = true

	w := Load(meta, model.WalletMargin, "BTC", d("1"), decimal.Zero)

	// 1 - 0.01 (short) - 0.02 (pending) + 0.03 (closing) = 1.00
	require.True(t, w.Free.Equal(d("1")), "free = %s", w.Free)
	require.True(t, w.Locked.Equal(d("0.05")), "locked = %s", w.Locked)
	require.True(t, w.Total.Equal(d("1.05")), "total = %s", w.Total)
	require.Len(t, w.Trades, 1)
	assert.Equal(t, "locked", w.Trades[0].ID)
}

func TestLoadSubtractsLongBaseHoldings(t *testing.T) {
	meta := testMeta()
	// a BTC-base long means those coins may be sold at any moment, they are
	// not free USDT... but they are not free BTC either when BTC is the quote
	meta.AddTradeOpen(&model.TradeOpen{
		ID: "btclong", Symbol: "BTCUSDT", PositionType: model.PositionLong,
		Wallet: model.WalletSpot, Cost: d("30000"), Quantity: d("1"), IsExecuted: true,
	})

	w := Load(meta, model.WalletSpot, "BTC", d("2"), decimal.Zero)
	require.True(t, w.Free.Equal(d("1")), "free = %s", w.Free)
}

func TestLoadAppliesWalletBuffer(t *testing.T) {
	meta := testMeta()
	w := Load(meta, model.WalletSpot, "BTC", d("1"), d("0.1"))

	require.True(t, w.Free.Equal(d("0.9")), "free = %s", w.Free)
	require.True(t, w.Total.Equal(d("0.9")), "total = %s", w.Total)
}

func TestLargestTrade(t *testing.T) {
	w := &Data{Trades: []*model.TradeOpen{
		{ID: "a", Cost: d("0.01")},
		{ID: "b", Cost: d("0.03")},
		{ID: "c", Cost: d("0.02")},
	}}
	require.Equal(t, "b", w.LargestTrade().ID)

	empty := &Data{}
	assert.Nil(t, empty.LargestTrade())
}
