package history

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// Day is one UTC day of the per-(mode, quote) balance book.
type Day struct {
	Date              time.Time       `json:"date"`
	OpenBalance       decimal.Decimal `json:"openBalance"`
	CloseBalance      decimal.Decimal `json:"closeBalance"`
	EstimatedFees     decimal.Decimal `json:"estimatedFees"`
	ProfitLoss        decimal.Decimal `json:"profitLoss"`
	MinOpenTrades     int             `json:"minOpenTrades"`
	MaxOpenTrades     int             `json:"maxOpenTrades"`
	TotalOpenedTrades int             `json:"totalOpenedTrades"`
	TotalClosedTrades int             `json:"totalClosedTrades"`
}

// History keeps the rolling day records indexed by trading mode and quote
// asset. Day timestamps within one series are strictly increasing.
type History map[model.TradingType]map[string][]*Day

func New() History {
	return make(History)
}

const retention = 365 * 24 * time.Hour

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Current returns today's record for (mode, quote), creating it when the day
// rolled over. A fresh day opens at the previous day's close balance, or at
// the given balance for a brand new series. Old entries are trimmed on every
// roll-over.
func (h History) Current(mode model.TradingType, quote string, balance decimal.Decimal, openTrades int, now time.Time) *Day {
	if h[mode] == nil {
		h[mode] = make(map[string][]*Day)
	}
	series := h[mode][quote]
	today := dayOf(now)

	if n := len(series); n > 0 && series[n-1].Date.Equal(today) {
		return series[n-1]
	}

	open := balance
	if n := len(series); n > 0 {
		open = series[n-1].CloseBalance
	}
	day := &Day{
		Date:          today,
		OpenBalance:   open,
		CloseBalance:  open,
		MinOpenTrades: openTrades,
		MaxOpenTrades: openTrades,
	}
	series = append(series, day)
	h[mode][quote] = trim(series, now)
	return day
}

// trim drops entries older than the retention window. The first entry of the
// series survives forever and absorbs the fees of everything dropped, so the
// running fee total stays intact.
func trim(series []*Day, now time.Time) []*Day {
	if len(series) <= 1 {
		return series
	}
	cutoff := dayOf(now.Add(-retention))
	kept := series[:1]
	for _, day := range series[1:] {
		if day.Date.Before(cutoff) {
			kept[0].EstimatedFees = kept[0].EstimatedFees.Add(day.EstimatedFees)
			continue
		}
		kept = append(kept, day)
	}
	return kept
}

// RecordOpen books a newly opened trade into today's record.
func (h History) RecordOpen(mode model.TradingType, quote string, balance decimal.Decimal, openTrades int, now time.Time) {
	day := h.Current(mode, quote, balance, openTrades, now)
	day.TotalOpenedTrades++
	h.touchOpenTrades(day, openTrades)
}

// RecordClose books a closed trade: realized change, the (negative) fee
// estimate, and the trade count.
func (h History) RecordClose(mode model.TradingType, quote string, balance, change, fee decimal.Decimal, openTrades int, now time.Time) {
	day := h.Current(mode, quote, balance, openTrades, now)
	day.TotalClosedTrades++
	day.ProfitLoss = day.ProfitLoss.Add(change)
	day.EstimatedFees = day.EstimatedFees.Add(fee)
	day.CloseBalance = day.CloseBalance.Add(change)
	h.touchOpenTrades(day, openTrades)
}

// RecordFee books a fee outside of a close, e.g. a rebalance child sell.
func (h History) RecordFee(mode model.TradingType, quote string, balance, fee decimal.Decimal, openTrades int, now time.Time) {
	day := h.Current(mode, quote, balance, openTrades, now)
	day.EstimatedFees = day.EstimatedFees.Add(fee)
}

func (h History) touchOpenTrades(day *Day, openTrades int) {
	if openTrades < day.MinOpenTrades {
		day.MinOpenTrades = openTrades
	}
	if openTrades > day.MaxOpenTrades {
		day.MaxOpenTrades = openTrades
	}
}

// Reset drops the series for one (mode, quote) pair.
func (h History) Reset(mode model.TradingType, quote string) {
	if h[mode] != nil {
		delete(h[mode], quote)
	}
}
