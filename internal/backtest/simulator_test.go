package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/internal/signal"
)

// seriesOf builds a daily series starting at the given date.
func seriesOf(t *testing.T, start string, closes ...float64) *series.Series {
	t.Helper()

	first, err := time.Parse("2006-01-02", start)
	require.NoError(t, err)

	points := make([]series.Point, len(closes))
	for i, c := range closes {
		points[i] = series.Point{Date: first.AddDate(0, 0, i), Close: c}
	}

	ser, err := series.New(points)
	require.NoError(t, err)
	return ser
}

func allSides(side signal.Side, n int) []signal.Side {
	sides := make([]signal.Side, n)
	for i := range sides {
		sides[i] = side
	}
	return sides
}

func TestSimulator_BuyAndHold(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 121)
	params := Params{InitialCash: 1000, Leverage: 1}

	snaps, trades := NewSimulator(params).Run(ser, allSides(signal.SideLong, 3))

	require.Len(t, snaps, 3)
	assert.Equal(t, 1000.0, snaps[0].Value)
	assert.Equal(t, 1100.0, snaps[1].Value)
	assert.Equal(t, 1210.0, snaps[2].Value)
	assert.Empty(t, trades, "a never-closed position stays off the ledger")
}

func TestSimulator_EntryCosts(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100)
	params := Params{InitialCash: 1000, Leverage: 1, FeeRate: 0.001, Slippage: 0.01}

	snaps, _ := NewSimulator(params).Run(ser, allSides(signal.SideLong, 1))

	// Entry fills at 101, units = 1000/101, fee = 1. Marked at the
	// unslipped close of 100 the account is immediately under water.
	require.Len(t, snaps, 1)
	assert.InDelta(t, 989.10, snaps[0].Value, 0.001)
}

func TestSimulator_ShortRoundTrip(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 90)
	params := Params{InitialCash: 1000, Leverage: 1}
	targets := []signal.Side{signal.SideShort, signal.SideFlat}

	snaps, trades := NewSimulator(params).Run(ser, targets)

	require.Len(t, snaps, 2)
	assert.Equal(t, 1000.0, snaps[0].Value)
	assert.Equal(t, 1100.0, snaps[1].Value)

	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, TradeShort, tr.Direction)
	assert.Equal(t, "2024-01-01", tr.EntryDate)
	assert.Equal(t, "2024-01-02", tr.ExitDate)
	assert.Equal(t, 100.0, tr.PnL)
	assert.Equal(t, 10.0, tr.PnLPct)
	assert.Equal(t, 1000.0, tr.CashBefore)
	assert.Equal(t, 1100.0, tr.CashAfter)
}

func TestSimulator_FlipLongToShort(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 100)
	params := Params{InitialCash: 1000, Leverage: 1}
	targets := []signal.Side{signal.SideLong, signal.SideShort, signal.SideShort}

	snaps, trades := NewSimulator(params).Run(ser, targets)

	// Day 2: close the long (+100), open a short at 110 sized from 1100.
	require.Len(t, trades, 1)
	assert.Equal(t, TradeLong, trades[0].Direction)
	assert.Equal(t, 100.0, trades[0].PnL)

	// Day 3: short gains 10 per unit on 10 units.
	require.Len(t, snaps, 3)
	assert.Equal(t, 1100.0, snaps[1].Value)
	assert.Equal(t, 1200.0, snaps[2].Value)
}

func TestSimulator_PositionSizedFromCurrentCash(t *testing.T) {
	// After a profitable close the next entry deploys the grown balance.
	ser := seriesOf(t, "2024-01-01", 100, 200, 200)
	params := Params{InitialCash: 1000, Leverage: 1}
	targets := []signal.Side{signal.SideLong, signal.SideFlat, signal.SideLong}

	snaps, trades := NewSimulator(params).Run(ser, targets)

	require.Len(t, trades, 1)
	assert.Equal(t, 2000.0, trades[0].CashAfter)

	// Re-entry at 200 buys 10 units with the full 2000.
	require.Len(t, snaps, 3)
	assert.Equal(t, 2000.0, snaps[2].Value)
}

func TestSimulator_MonthlyRebalance(t *testing.T) {
	ser, err := series.New([]series.Point{
		{Date: time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), Close: 100},
		{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Close: 100},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Close: 100},
	})
	require.NoError(t, err)

	params := Params{InitialCash: 1000, Leverage: 2, EnableRebalance: true}
	snaps, trades := NewSimulator(params).Run(ser, allSides(signal.SideLong, 3))

	require.Len(t, snaps, 3)
	assert.Equal(t, 1000.0, snaps[2].Value)

	// The reset shows up as a single rebalance-tagged ledger entry.
	require.Len(t, trades, 1)
	assert.Equal(t, TradeRebalance, trades[0].Direction)
	assert.Equal(t, "2024-02-01", trades[0].ExitDate)
	assert.Contains(t, trades[0].Note, "leverage reset")
}

func TestSimulator_NoRebalanceWithinMonth(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 120)
	params := Params{InitialCash: 1000, Leverage: 2, EnableRebalance: true}

	_, trades := NewSimulator(params).Run(ser, allSides(signal.SideLong, 3))
	assert.Empty(t, trades)
}

func TestSimulator_Liquidation(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 40, 80)
	params := Params{InitialCash: 1000, Leverage: 2}

	snaps, _ := NewSimulator(params).Run(ser, allSides(signal.SideLong, 3))

	// 2x long loses 120% on day two: record the wipe-out and stop.
	require.Len(t, snaps, 2)
	assert.Equal(t, 1000.0, snaps[0].Value)
	assert.Equal(t, 0.0, snaps[1].Value)
}

func TestSimulator_YieldOnIdleCash(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 100)
	params := Params{InitialCash: 1000, EnableYield: true, AnnualYield: 0.365}

	snaps, _ := NewSimulator(params).Run(ser, allSides(signal.SideFlat, 2))

	require.Len(t, snaps, 2)
	assert.InDelta(t, 1001.0, snaps[0].Value, 0.001)
	assert.InDelta(t, 1002.0, snaps[1].Value, 0.001)
}

func TestSimulator_NoYieldWhileLong(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 100)
	params := Params{InitialCash: 1000, Leverage: 1, EnableYield: true, AnnualYield: 0.365}

	snaps, _ := NewSimulator(params).Run(ser, allSides(signal.SideLong, 2))

	// Yield accrues on day one while the account is still flat, then
	// stops once the long position is open.
	require.Len(t, snaps, 2)
	assert.InDelta(t, 1001.0, snaps[0].Value, 0.001)
	assert.InDelta(t, 1001.0, snaps[1].Value, 0.001)
}

func TestSimulator_ZeroLeverageStaysOut(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 50)
	params := Params{InitialCash: 1000, Leverage: 0}

	snaps, trades := NewSimulator(params).Run(ser, allSides(signal.SideLong, 2))

	assert.Empty(t, trades)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1000.0, snaps[1].Value)
}
