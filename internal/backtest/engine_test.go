package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/pkg/logger"
)

func TestEngine_Run(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 121)
	params := Params{
		InitialCash:  1000,
		Leverage:     1,
		StrategyMode: "buy_and_hold",
	}

	engine := NewEngine(logger.NewNop(), nil)
	res, err := engine.Run(context.Background(), ser, params)
	require.NoError(t, err)

	assert.Equal(t, 21.0, res.TotalReturn)
	assert.Len(t, res.EquityCurve, 3)
	assert.Zero(t, res.TotalTrades)
}

func TestEngine_Deterministic(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 105, 95, 110, 120, 90, 130, 125, 140, 135)
	params := Params{
		InitialCash:    1000,
		Leverage:       2,
		FeeRate:        0.001,
		Slippage:       0.001,
		StrategyMode:   "dual_ma",
		MAFast:         2,
		MASlow:         3,
		TradeDirection: "long_short",
	}

	engine := NewEngine(logger.NewNop(), nil)

	first, err := engine.Run(context.Background(), ser, params)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), ser, params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEngine_DualMARisingSeries(t *testing.T) {
	// A series that never crosses down opens once at warm-up end and
	// holds: the ledger stays empty, only the equity curve moves.
	ser := seriesOf(t, "2024-01-01", 100, 110, 121, 133, 146)
	params := Params{
		InitialCash:  1000,
		Leverage:     1,
		StrategyMode: "dual_ma",
		MAFast:       2,
		MASlow:       3,
	}

	engine := NewEngine(logger.NewNop(), nil)
	res, err := engine.Run(context.Background(), ser, params)
	require.NoError(t, err)

	assert.Zero(t, res.TotalTrades)
	assert.Empty(t, res.Trades)
	assert.Len(t, res.EquityCurve, 5)
	assert.Greater(t, res.TotalReturn, 0.0)
}

func TestEngine_InvalidParams(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110)
	engine := NewEngine(logger.NewNop(), nil)

	tests := []struct {
		name   string
		params Params
	}{
		{name: "zero cash", params: Params{StrategyMode: "buy_and_hold"}},
		{name: "negative leverage", params: Params{InitialCash: 1000, Leverage: -1, StrategyMode: "buy_and_hold"}},
		{name: "negative fee", params: Params{InitialCash: 1000, FeeRate: -0.1, StrategyMode: "buy_and_hold"}},
		{name: "unknown mode", params: Params{InitialCash: 1000, StrategyMode: "magic"}},
		{name: "dual ma fast above slow", params: Params{InitialCash: 1000, StrategyMode: "dual_ma", MAFast: 60, MASlow: 20}},
		{name: "bad direction", params: Params{InitialCash: 1000, StrategyMode: "buy_and_hold", TradeDirection: "up"}},
		{name: "bad start date", params: Params{InitialCash: 1000, StrategyMode: "buy_and_hold", StartDate: "01/02/2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), ser, tt.params)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestEngine_InsufficientHistory(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 121)
	params := Params{
		InitialCash:  1000,
		StrategyMode: "dual_ma",
		MAFast:       20,
		MASlow:       60,
	}

	engine := NewEngine(logger.NewNop(), nil)
	_, err := engine.Run(context.Background(), ser, params)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEngine_DateWindow(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110, 121, 133)
	engine := NewEngine(logger.NewNop(), nil)

	params := Params{
		InitialCash:  1000,
		Leverage:     1,
		StrategyMode: "buy_and_hold",
		StartDate:    "2024-01-02",
		EndDate:      "2024-01-03",
	}

	res, err := engine.Run(context.Background(), ser, params)
	require.NoError(t, err)

	// Return is measured from the first snapshot inside the window.
	assert.Equal(t, 10.0, res.TotalReturn)
	assert.Len(t, res.EquityCurve, 2)

	params.StartDate, params.EndDate = "2024-01-03", "2024-01-02"
	_, err = engine.Run(context.Background(), ser, params)
	assert.ErrorIs(t, err, series.ErrInvalidRange)

	params.StartDate, params.EndDate = "2025-01-01", "2025-02-01"
	_, err = engine.Run(context.Background(), ser, params)
	assert.ErrorIs(t, err, series.ErrEmpty)
}

func TestEngine_CancelledContext(t *testing.T) {
	ser := seriesOf(t, "2024-01-01", 100, 110)
	engine := NewEngine(logger.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, ser, Params{InitialCash: 1000, StrategyMode: "buy_and_hold"})
	assert.ErrorIs(t, err, context.Canceled)
}
