package backtest

import (
	"fmt"
	"time"

	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/internal/signal"
)

const dateFormat = "2006-01-02"

// Simulator walks the filtered series date by date and maintains the
// position state machine: no position, holding long, holding short.
// It owns the single open Position for the duration of a trade and
// converts it into a ClosedTrade on exit.
type Simulator struct {
	params Params

	cash       float64
	side       signal.Side
	units      float64
	entryPrice float64
	entryDate  time.Time

	snapshots []Snapshot
	trades    []ClosedTrade
}

// NewSimulator creates a simulator funded with the initial cash.
func NewSimulator(p Params) *Simulator {
	return &Simulator{
		params: p,
		cash:   p.InitialCash,
		side:   signal.SideFlat,
	}
}

// Run executes the simulation over the series with one target side per
// date. It returns the equity curve (one snapshot per trading day) and
// the closed-trade ledger. The walk is deterministic: identical inputs
// produce identical output.
func (s *Simulator) Run(ser *series.Series, targets []signal.Side) ([]Snapshot, []ClosedTrade) {
	points := ser.Points()
	s.snapshots = make([]Snapshot, 0, len(points))

	var prevDate time.Time
	for i, pt := range points {
		price, date := pt.Close, pt.Date

		// Yield accrues daily, compounding, on the cash balance while
		// it is not deployed in a long position (idle or short collateral).
		if s.params.EnableYield && s.side != signal.SideLong {
			s.cash *= 1 + s.params.AnnualYield/365
		}

		// Scheduled rebalance on the first trading day of a new month.
		if s.params.EnableRebalance && s.side != signal.SideFlat && i > 0 && newMonth(prevDate, date) {
			s.rebalance(price, date)
		}

		if target := targets[i]; target != s.side {
			if s.side != signal.SideFlat {
				s.close(price, date, s.side.String(), "")
			}
			// Insufficient cash: the signal is ignored, no trade, no error.
			if target != signal.SideFlat && s.cash > 0 {
				s.open(target, price, date)
			}
		}

		equity := s.markToMarket(price)
		if equity <= 0 {
			// Leveraged losses wiped out the account. Record the
			// liquidation and stop the walk.
			s.snapshots = append(s.snapshots, Snapshot{Date: date, Value: 0})
			break
		}
		s.snapshots = append(s.snapshots, Snapshot{Date: date, Value: round2(equity)})

		prevDate = date
	}

	return s.snapshots, s.trades
}

// open enters a position sized from the current cash, never the original
// capital, so leverage compounds across trades. Slippage works against
// the trader: buys fill high, short entries fill low.
func (s *Simulator) open(side signal.Side, price float64, date time.Time) {
	exec := price * (1 + s.params.Slippage)
	if side == signal.SideShort {
		exec = price * (1 - s.params.Slippage)
	}
	if exec <= 0 {
		return
	}

	units := s.cash * s.params.Leverage / exec
	if units <= 0 {
		// Leverage 0 keeps the account out of the market.
		return
	}

	fee := units * exec * s.params.FeeRate
	s.cash -= fee

	s.side = side
	s.units = units
	s.entryPrice = exec
	s.entryDate = date
}

// close realizes the open position at the exit-side execution price and
// appends an immutable ledger entry.
func (s *Simulator) close(price float64, date time.Time, label, note string) {
	exec := price * (1 - s.params.Slippage)
	if s.side == signal.SideShort {
		exec = price * (1 + s.params.Slippage)
	}

	gross := (exec - s.entryPrice) * s.units * s.side.Sign()
	fee := s.units * exec * s.params.FeeRate
	pnl := gross - fee

	cashBefore := s.cash
	s.cash += pnl

	pnlPct := 0.0
	if cashBefore > 0 {
		pnlPct = pnl / cashBefore * 100
	}

	s.trades = append(s.trades, ClosedTrade{
		Direction:  label,
		EntryDate:  s.entryDate.Format(dateFormat),
		ExitDate:   date.Format(dateFormat),
		EntryPrice: round2(s.entryPrice),
		ExitPrice:  round2(exec),
		Units:      round4(s.units),
		CashBefore: round2(cashBefore),
		CashAfter:  round2(s.cash),
		PnL:        round2(pnl),
		PnLPct:     round2(pnlPct),
		Note:       note,
	})

	s.side = signal.SideFlat
	s.units = 0
	s.entryPrice = 0
}

// rebalance models the monthly leverage reset as a synthetic close tagged
// "rebalance" followed by a re-open at the same side, resized to the
// current equity. The ledger entry keeps leverage drift auditable.
func (s *Simulator) rebalance(price float64, date time.Time) {
	side := s.side
	prevUnits := s.units

	s.close(price, date, TradeRebalance, "")
	if s.cash > 0 {
		s.open(side, price, date)
	}

	s.trades[len(s.trades)-1].Note = fmt.Sprintf("leverage reset: %.2f -> %.2f units", prevUnits, s.units)
}

// markToMarket values the account at the unslipped close.
func (s *Simulator) markToMarket(price float64) float64 {
	if s.side == signal.SideFlat {
		return s.cash
	}
	return s.cash + (price-s.entryPrice)*s.units*s.side.Sign()
}

// newMonth reports a calendar month boundary between two trading days.
func newMonth(prev, cur time.Time) bool {
	return prev.Month() != cur.Month() || prev.Year() != cur.Year()
}
