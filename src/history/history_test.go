package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 12, 0, 0, 0, time.UTC)
}

func TestCurrentRollsOverDays(t *testing.T) {
	h := New()

	first := h.Current(model.TradingReal, "BTC", d("1"), 2, day(2025, time.March, 1))
	require.True(t, first.OpenBalance.Equal(d("1")))
	assert.Equal(t, 2, first.MinOpenTrades)

	// same day returns the same record
	again := h.Current(model.TradingReal, "BTC", d("5"), 0, day(2025, time.March, 1))
	assert.Same(t, first, again)

	// the next day opens at the previous close
	first.CloseBalance = d("1.2")
	second := h.Current(model.TradingReal, "BTC", d("9"), 0, day(2025, time.March, 2))
	require.True(t, second.OpenBalance.Equal(d("1.2")), "open = %s", second.OpenBalance)

	series := h[model.TradingReal]["BTC"]
	require.Len(t, series, 2)
	assert.True(t, series[0].Date.Before(series[1].Date))
}

func TestRetentionKeepsDayZeroAndRollsFees(t *testing.T) {
	h := New()
	now := day(2025, time.March, 1)

	h.Current(model.TradingReal, "BTC", d("1"), 0, now.AddDate(-2, 0, 0))
	old := h.Current(model.TradingReal, "BTC", d("1"), 0, now.AddDate(-1, -1, 0))
	old.EstimatedFees = d("-0.004")
	h.Current(model.TradingReal, "BTC", d("1"), 0, now.AddDate(0, -1, 0))
	h.Current(model.TradingReal, "BTC", d("1"), 0, now)

	series := h[model.TradingReal]["BTC"]
	require.Len(t, series, 3)

	// exactly one entry older than a year survives and it absorbed the
	// dropped fees
	olderThanYear := 0
	cutoff := now.AddDate(-1, 0, 0)
	for _, entry := range series {
		if entry.Date.Before(cutoff) {
			olderThanYear++
		}
	}
	assert.Equal(t, 1, olderThanYear)
	assert.True(t, series[0].EstimatedFees.Equal(d("-0.004")), "fees = %s", series[0].EstimatedFees)
}

func TestRecordCloseBooksChangeAndFees(t *testing.T) {
	h := New()
	now := day(2025, time.March, 1)

	h.RecordOpen(model.TradingReal, "BTC", d("1"), 1, now)
	h.RecordClose(model.TradingReal, "BTC", d("1"), d("0.001"), d("-0.00001"), 0, now)

	entry := h[model.TradingReal]["BTC"][0]
	assert.Equal(t, 1, entry.TotalOpenedTrades)
	assert.Equal(t, 1, entry.TotalClosedTrades)
	assert.Equal(t, 0, entry.MinOpenTrades)
	assert.Equal(t, 1, entry.MaxOpenTrades)
	assert.True(t, entry.ProfitLoss.Equal(d("0.001")))
	assert.True(t, entry.EstimatedFees.Equal(d("-0.00001")))
	assert.True(t, entry.CloseBalance.Equal(d("1.001")), "close = %s", entry.CloseBalance)
}

func TestReset(t *testing.T) {
	h := New()
	h.RecordOpen(model.TradingVirtual, "BTC", d("1"), 1, day(2025, time.March, 1))
	h.Reset(model.TradingVirtual, "BTC")
	assert.Empty(t, h[model.TradingVirtual]["BTC"])
}
