package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func virtualFixture() (*model.MetaData, *VirtualLedger) {
	meta := model.NewMetaData()
	meta.Markets["BNBBTC"] = &model.Market{Symbol: "BNBBTC", Base: "BNB", Quote: "BTC", MinCost: d("0.0001")}
	meta.Markets["ETHBTC"] = &model.Market{Symbol: "ETHBTC", Base: "ETH", Quote: "BTC", MinCost: d("0.0001")}
	meta.Markets["BNBUSDT"] = &model.Market{Symbol: "BNBUSDT", Base: "BNB", Quote: "USDT", MinCost: d("10")}
	ledger := NewVirtualLedger(meta, nil, "BNBBTC", d("0.1"))
	return meta, ledger
}

func TestSeedQuoteUsesReferenceFunds(t *testing.T) {
	_, ledger := virtualFixture()
	funds := ledger.SeedQuote(model.WalletSpot, "BTC")
	require.True(t, funds.Equal(d("0.1")), "funds = %s", funds)

	// seeding is sticky
	assert.True(t, ledger.SeedQuote(model.WalletSpot, "BTC").Equal(d("0.1")))
}

func TestSeedQuoteScalesOtherQuotes(t *testing.T) {
	_, ledger := virtualFixture()
	// USDT minimum notional is 10 against the reference's 0.0001, the seed
	// scales by the same factor
	funds := ledger.SeedQuote(model.WalletSpot, "USDT")
	require.True(t, funds.Equal(d("10000")), "funds = %s", funds)
}

func TestExecuteOrderMovesTheLedger(t *testing.T) {
	meta, ledger := virtualFixture()

	trade := &model.TradeOpen{
		ID: "t1", Symbol: "ETHBTC", PositionType: model.PositionLong,
		TradingType: model.TradingVirtual, Wallet: model.WalletSpot,
		PriceBuy: d("0.05"),
	}

	result, err := ledger.ExecuteOrder(context.Background(), trade, model.ActionBuy, d("0.2"))
	require.NoError(t, err)
	require.True(t, result.Closed())
	// no gateway in the fixture, the fill falls back to the trade price
	require.True(t, result.Price.Equal(d("0.05")))
	require.True(t, result.Cost.Equal(d("0.01")))

	assert.True(t, meta.VirtualBalances[model.WalletSpot]["BTC"].Equal(d("0.09")))
	assert.True(t, meta.VirtualBalances[model.WalletSpot]["ETH"].Equal(d("0.2")))

	trade.PriceSell = d("0.06")
	result, err = ledger.ExecuteOrder(context.Background(), trade, model.ActionSell, d("0.2"))
	require.NoError(t, err)
	require.True(t, result.Cost.Equal(d("0.012")))

	assert.True(t, meta.VirtualBalances[model.WalletSpot]["BTC"].Equal(d("0.102")))
	assert.True(t, meta.VirtualBalances[model.WalletSpot]["ETH"].IsZero())
}

func TestExecuteOrderWithoutPriceFails(t *testing.T) {
	_, ledger := virtualFixture()
	trade := &model.TradeOpen{ID: "t1", Symbol: "ETHBTC", Wallet: model.WalletSpot, TradingType: model.TradingVirtual}
	_, err := ledger.ExecuteOrder(context.Background(), trade, model.ActionBuy, d("1"))
	require.Error(t, err)
}

func TestBorrowAndRepay(t *testing.T) {
	meta, ledger := virtualFixture()
	ledger.Borrow(model.WalletMargin, "ETH", d("0.5"))
	assert.True(t, meta.VirtualBalances[model.WalletMargin]["ETH"].Equal(d("0.5")))
	ledger.Repay(model.WalletMargin, "ETH", d("0.5"))
	assert.True(t, meta.VirtualBalances[model.WalletMargin]["ETH"].IsZero())
}

func TestReset(t *testing.T) {
	_, ledger := virtualFixture()
	ledger.SeedQuote(model.WalletSpot, "BTC")
	ledger.Reset(d("0.5"))
	assert.True(t, ledger.SeedQuote(model.WalletSpot, "BTC").Equal(d("0.5")))
}
