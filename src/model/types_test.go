package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalClassification(t *testing.T) {
	tests := []struct {
		action ActionType
		entry  EntryType
		want   PositionType
	}{
		{ActionBuy, EntryEnter, PositionLong},
		{ActionBuy, EntryExit, PositionShort},
		{ActionSell, EntryEnter, PositionShort},
		{ActionSell, EntryExit, PositionLong},
	}
	for _, tt := range tests {
		got := PositionForSignal(tt.action, tt.entry)
		if got != tt.want {
			t.Fatalf("%s+%s: got %s want %s", tt.action, tt.entry, got, tt.want)
		}
	}
}

func TestTradeAction(t *testing.T) {
	tests := []struct {
		entry    EntryType
		position PositionType
		want     ActionType
	}{
		{EntryEnter, PositionLong, ActionBuy},
		{EntryExit, PositionLong, ActionSell},
		{EntryEnter, PositionShort, ActionSell},
		{EntryExit, PositionShort, ActionBuy},
	}
	for _, tt := range tests {
		got := TradeAction(tt.entry, tt.position)
		if got != tt.want {
			t.Fatalf("%s %s: got %s want %s", tt.entry, tt.position, got, tt.want)
		}
	}
}

func TestNewTradeID(t *testing.T) {
	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	id := NewTradeID("strat-1", "ETHBTC", PositionLong, at)

	require.Len(t, id, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", id)

	// deterministic for the same tuple, distinct otherwise
	assert.Equal(t, id, NewTradeID("strat-1", "ETHBTC", PositionLong, at))
	assert.NotEqual(t, id, NewTradeID("strat-1", "ETHBTC", PositionShort, at))
	assert.NotEqual(t, id, NewTradeID("strat-1", "ETHBTC", PositionLong, at.Add(time.Second)))
}

func TestExitPriceBookkeeping(t *testing.T) {
	long := &TradeOpen{PositionType: PositionLong, PriceBuy: decimal.RequireFromString("100")}
	long.SetExitPrice(decimal.RequireFromString("110"))
	assert.True(t, long.EntryPrice().Equal(decimal.RequireFromString("100")))
	assert.True(t, long.ExitPrice().Equal(decimal.RequireFromString("110")))

	short := &TradeOpen{PositionType: PositionShort, PriceSell: decimal.RequireFromString("100")}
	short.SetExitPrice(decimal.RequireFromString("90"))
	assert.True(t, short.EntryPrice().Equal(decimal.RequireFromString("100")))
	assert.True(t, short.ExitPrice().Equal(decimal.RequireFromString("90")))
}

func TestFindTradeOpenUniqueTuple(t *testing.T) {
	meta := NewMetaData()
	trade := &TradeOpen{ID: "t1", StrategyID: "s1", Symbol: "ETHBTC", PositionType: PositionLong}
	meta.AddTradeOpen(trade)

	assert.Equal(t, trade, meta.FindTradeOpen("s1", "ETHBTC", PositionLong))
	assert.Nil(t, meta.FindTradeOpen("s1", "ETHBTC", PositionShort))
	assert.Equal(t, trade, meta.FindTradeOpenAny("s1", "ETHBTC"))
	assert.Equal(t, trade, meta.FindTradeByID("t1"))

	meta.TradesClosing[trade.ID] = true
	assert.True(t, meta.IsClosing(trade))

	meta.RemoveTradeOpen(trade)
	assert.Nil(t, meta.FindTradeByID("t1"))
	assert.False(t, meta.IsClosing(trade))
}
