package funding

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
	"tradeexecutor/src/wallet"
)

// Input is everything a policy may look at: the candidate wallets in
// preference order, the desired cost, and a PnL lookup for the policies that
// rank trades by unrealized profit.
type Input struct {
	Candidates []*wallet.Data
	Cost       decimal.Decimal
	PnL        func(*model.TradeOpen) decimal.Decimal
}

// Result is the funding plan for one entry: the chosen wallet, the final
// cost, the borrow to take before the order, and the trades that have to be
// rebalanced down to Potential first.
type Result struct {
	Wallet    *wallet.Data
	Cost      decimal.Decimal
	Borrow    decimal.Decimal
	Rebalance []*model.TradeOpen
	Potential decimal.Decimal
}

// Policy computes a funding plan. Policies are pure over their input, they
// schedule nothing themselves.
type Policy func(in Input) (*Result, error)

// ForModel resolves a TRADE_LONG_FUNDS setting to its policy.
func ForModel(name string) (Policy, error) {
	switch name {
	case "none":
		return FundNone, nil
	case "borrow-min":
		return FundBorrowMin, nil
	case "borrow-all":
		return FundBorrowAll, nil
	case "sell-all":
		return FundSellAll, nil
	case "sell-largest":
		return FundSellLargest, nil
	case "sell-largest-pnl":
		return FundSellLargestPnL, nil
	default:
		return nil, fmt.Errorf("unknown funding model %q", name)
	}
}

// pickWallet applies the shared selection rule: the preferred wallet wins
// when its potential covers the cost, otherwise the wallet with the highest
// potential.
func pickWallet(candidates []*wallet.Data, cost decimal.Decimal) *wallet.Data {
	if len(candidates) == 0 {
		return nil
	}
	if candidates[0].Potential.GreaterThanOrEqual(cost) {
		return candidates[0]
	}
	best := candidates[0]
	for _, w := range candidates[1:] {
		if w.Potential.GreaterThan(best.Potential) {
			best = w
		}
	}
	return best
}

func marginOf(candidates []*wallet.Data) *wallet.Data {
	for _, w := range candidates {
		if w.Type == model.WalletMargin {
			return w
		}
	}
	return nil
}

// FundNone spends free balance only. When no wallet covers the cost the
// trade shrinks to the best wallet's free balance.
func FundNone(in Input) (*Result, error) {
	for _, w := range in.Candidates {
		w.Potential = w.Free
	}
	chosen := pickWallet(in.Candidates, in.Cost)
	if chosen == nil {
		return nil, fmt.Errorf("no candidate wallet")
	}
	cost := in.Cost
	if chosen.Potential.LessThan(cost) {
		cost = chosen.Potential
	}
	return &Result{Wallet: chosen, Cost: cost}, nil
}

// FundBorrowMin borrows on margin exactly the gap between free balance and
// the cost.
func FundBorrowMin(in Input) (*Result, error) {
	margin := marginOf(in.Candidates)
	if margin == nil {
		return nil, fmt.Errorf("borrow-min requires the margin wallet")
	}
	margin.Potential = in.Cost
	borrow := in.Cost.Sub(margin.Free)
	if borrow.IsNegative() {
		borrow = decimal.Zero
	}
	return &Result{Wallet: margin, Cost: in.Cost, Borrow: borrow}, nil
}

// FundBorrowAll borrows the full cost on margin, leaving free balance
// untouched.
func FundBorrowAll(in Input) (*Result, error) {
	margin := marginOf(in.Candidates)
	if margin == nil {
		return nil, fmt.Errorf("borrow-all requires the margin wallet")
	}
	margin.Potential = in.Cost
	return &Result{Wallet: margin, Cost: in.Cost, Borrow: in.Cost}, nil
}

// FundSellAll levels every rebalance candidate down to the equalized average
// so each open trade ends up with the same cost as the new one.
func FundSellAll(in Input) (*Result, error) {
	plans := make(map[*wallet.Data][]*model.TradeOpen, len(in.Candidates))
	for _, w := range in.Candidates {
		largest := w.LargestTrade()
		if largest == nil || w.Free.GreaterThanOrEqual(largest.Cost) {
			w.Potential = w.Free
			continue
		}
		kept, average := equalize(w.Free, w.Trades)
		w.Potential = average
		plans[w] = kept
	}
	chosen := pickWallet(in.Candidates, in.Cost)
	if chosen == nil {
		return nil, fmt.Errorf("no candidate wallet")
	}
	cost := decimal.Min(in.Cost, chosen.Potential)
	return &Result{Wallet: chosen, Cost: cost, Rebalance: plans[chosen], Potential: chosen.Potential}, nil
}

// equalize drops below-average trades until the remaining set's average
// covers every kept trade. The average counts the new trade as one more
// share alongside the kept ones.
func equalize(free decimal.Decimal, trades []*model.TradeOpen) ([]*model.TradeOpen, decimal.Decimal) {
	kept := make([]*model.TradeOpen, len(trades))
	copy(kept, trades)

	for {
		sum := free
		for _, t := range kept {
			sum = sum.Add(t.Cost)
		}
		average := sum.Div(decimal.NewFromInt(int64(len(kept) + 1)))

		remaining := kept[:0]
		for _, t := range kept {
			if t.Cost.GreaterThanOrEqual(average) {
				remaining = append(remaining, t)
			}
		}
		if len(remaining) == len(kept) || len(remaining) == 0 {
			return remaining, average
		}
		kept = remaining
	}
}

// FundSellLargest splits the difference between free balance and the most
// expensive open trade.
func FundSellLargest(in Input) (*Result, error) {
	return fundSellOne(in, func(w *wallet.Data) *model.TradeOpen {
		return w.LargestTrade()
	})
}

// FundSellLargestPnL behaves like sell-largest but reselects the donor among
// the above-average trades as the one with the best current PnL.
func FundSellLargestPnL(in Input) (*Result, error) {
	if in.PnL == nil {
		return nil, fmt.Errorf("sell-largest-pnl requires a PnL source")
	}
	return fundSellOne(in, func(w *wallet.Data) *model.TradeOpen {
		if len(w.Trades) == 0 {
			return nil
		}
		sum := decimal.Zero
		for _, t := range w.Trades {
			sum = sum.Add(t.Cost)
		}
		average := sum.Div(decimal.NewFromInt(int64(len(w.Trades))))

		var best *model.TradeOpen
		var bestPnL decimal.Decimal
		for _, t := range w.Trades {
			if t.Cost.LessThan(average) {
				continue
			}
			pnl := in.PnL(t)
			if best == nil || pnl.GreaterThan(bestPnL) {
				best, bestPnL = t, pnl
			}
		}
		return best
	})
}

func fundSellOne(in Input, choose func(*wallet.Data) *model.TradeOpen) (*Result, error) {
	two := decimal.NewFromInt(2)
	donors := make(map[*wallet.Data]*model.TradeOpen, len(in.Candidates))
	for _, w := range in.Candidates {
		largest := w.LargestTrade()
		if largest == nil || w.Free.GreaterThanOrEqual(largest.Cost) {
			w.Potential = w.Free
			continue
		}
		donor := choose(w)
		if donor == nil {
			w.Potential = w.Free
			continue
		}
		w.Potential = w.Free.Add(donor.Cost).Div(two)
		donors[w] = donor
	}
	chosen := pickWallet(in.Candidates, in.Cost)
	if chosen == nil {
		return nil, fmt.Errorf("no candidate wallet")
	}
	cost := decimal.Min(in.Cost, chosen.Potential)
	result := &Result{Wallet: chosen, Cost: cost, Potential: chosen.Potential}
	if donor, ok := donors[chosen]; ok {
		result.Rebalance = []*model.TradeOpen{donor}
	}
	return result, nil
}
