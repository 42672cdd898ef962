package backtest

import (
	"math"
	"time"
)

// RatioSentinel caps ratios whose denominator is undefined (sortino with
// no losing days, profit factor with no losses, calmar at zero drawdown).
// The engine always returns finite numbers so callers can render them
// without special cases.
const RatioSentinel = 999.0

const tradingDaysPerYear = 252

// CalculateMetrics is a pure transform of (equity curve, trade ledger)
// into the full backtest result. Rebalance-tagged ledger entries are
// excluded from the trade statistics.
func CalculateMetrics(snaps []Snapshot, trades []ClosedTrade) *Result {
	res := &Result{
		EquityCurve:   make([]EquityPoint, 0, len(snaps)),
		YearlyReturns: []YearlyReturn{},
		YearlyMDD:     []YearlyMDD{},
		Trades:        trades,
	}
	if res.Trades == nil {
		res.Trades = []ClosedTrade{}
	}
	if len(snaps) == 0 {
		return res
	}

	for _, sn := range snaps {
		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Date:  sn.Date.Format(dateFormat),
			Value: sn.Value,
		})
	}

	first, last := snaps[0], snaps[len(snaps)-1]

	if first.Value > 0 {
		res.TotalReturn = round2((last.Value/first.Value - 1) * 100)
	}

	days := int(last.Date.Sub(first.Date).Hours() / 24)
	if days > 0 && first.Value > 0 {
		res.CAGR = round2((math.Pow(last.Value/first.Value, 365/float64(days)) - 1) * 100)
	}

	mdd, mddStart, mddEnd := maxDrawdown(snaps)
	res.MDD = round2(mdd)
	if mdd > 0 {
		res.MDDStart = mddStart.Format(dateFormat)
		res.MDDEnd = mddEnd.Format(dateFormat)
	}

	returns := dailyReturns(snaps)
	res.SharpeRatio = round2(sharpe(returns))
	res.SortinoRatio = round2(sortino(returns))
	res.CalmarRatio = round2(calmar(res.CAGR, mdd))

	res.fillTradeStats(trades)
	res.fillYearly(snaps)

	return res
}

// sharpe is mean daily return over sample stdev, annualized by sqrt(252).
// Zero volatility yields 0, not a division error.
func sharpe(returns []float64) float64 {
	sd := sampleStdev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(tradingDaysPerYear)
}

// sortino replaces the denominator with the stdev of negative returns
// only. With no losing days the ratio is undefined and capped.
func sortino(returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}

	sd := sampleStdev(downside)
	if sd == 0 {
		if mean(returns) > 0 {
			return RatioSentinel
		}
		return 0
	}
	return clampRatio(mean(returns) / sd * math.Sqrt(tradingDaysPerYear))
}

func calmar(cagr, mdd float64) float64 {
	if mdd == 0 {
		if cagr > 0 {
			return RatioSentinel
		}
		return 0
	}
	return clampRatio(cagr / math.Abs(mdd))
}

func (r *Result) fillTradeStats(trades []ClosedTrade) {
	var wins, total int
	var totalProfit, totalLoss float64

	for _, t := range trades {
		if t.Direction == TradeRebalance {
			continue
		}
		total++
		if t.PnL > 0 {
			wins++
			totalProfit += t.PnL
		} else {
			totalLoss += -t.PnL
		}
	}

	r.TotalTrades = total
	if total > 0 {
		r.WinRate = round2(float64(wins) / float64(total) * 100)
	}

	switch {
	case totalLoss > 0:
		r.ProfitFactor = round2(clampRatio(totalProfit / totalLoss))
	case totalProfit > 0:
		r.ProfitFactor = RatioSentinel
	}
}

// fillYearly computes each calendar year's return and drawdown against
// that year's own starting value and running peak, not the global peak.
func (r *Result) fillYearly(snaps []Snapshot) {
	start := 0
	for i := 1; i <= len(snaps); i++ {
		if i < len(snaps) && snaps[i].Date.Year() == snaps[start].Date.Year() {
			continue
		}

		group := snaps[start:i]
		year := group[0].Date.Year()

		ret := 0.0
		if group[0].Value > 0 {
			ret = (group[len(group)-1].Value/group[0].Value - 1) * 100
		}
		r.YearlyReturns = append(r.YearlyReturns, YearlyReturn{Year: year, Return: round2(ret)})

		mdd, _, _ := maxDrawdown(group)
		r.YearlyMDD = append(r.YearlyMDD, YearlyMDD{Year: year, MDD: round2(mdd)})

		start = i
	}
}

// maxDrawdown returns the largest peak-to-trough decline in percent
// (0..100) together with the peak and trough dates.
func maxDrawdown(snaps []Snapshot) (mdd float64, start, end time.Time) {
	if len(snaps) == 0 {
		return 0, time.Time{}, time.Time{}
	}

	peak := snaps[0].Value
	peakDate := snaps[0].Date
	start, end = snaps[0].Date, snaps[0].Date

	for _, sn := range snaps {
		if sn.Value > peak {
			peak = sn.Value
			peakDate = sn.Date
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - sn.Value) / peak * 100
		if dd > mdd {
			mdd = dd
			start = peakDate
			end = sn.Date
		}
	}

	return mdd, start, end
}

func dailyReturns(snaps []Snapshot) []float64 {
	if len(snaps) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, snaps[i].Value/prev-1)
	}
	return returns
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdev is the n-1 standard deviation; fewer than two samples
// yield 0.
func sampleStdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	variance := 0.0
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}

func clampRatio(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return RatioSentinel
	}
	if v > RatioSentinel {
		return RatioSentinel
	}
	if v < -RatioSentinel {
		return -RatioSentinel
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
