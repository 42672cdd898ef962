package backtest

import (
	"context"
	"fmt"

	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/internal/signal"
	"github.com/wonny/backlab/pkg/logger"
)

// Engine runs one backtest: signal generation, trade simulation and
// metrics, in that order. An Engine is cheap and bound to one series;
// the optimizer creates one per batch with a shared moving-average cache.
type Engine struct {
	logger *logger.Logger
	cache  *signal.Cache
}

// NewEngine creates a backtest engine. A nil cache gets a private one.
func NewEngine(log *logger.Logger, cache *signal.Cache) *Engine {
	if cache == nil {
		cache = signal.NewCache()
	}
	return &Engine{
		logger: log,
		cache:  cache,
	}
}

// Run executes a single simulation of the series under the given params.
// It is a pure function of its inputs: re-running identical input yields
// identical output.
func (e *Engine) Run(ctx context.Context, ser *series.Series, p Params) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	st, dir, err := p.Strategy()
	if err != nil {
		return nil, err
	}

	start, end, err := p.Window()
	if err != nil {
		return nil, err
	}

	filtered, err := ser.Filter(start, end)
	if err != nil {
		return nil, err
	}

	if filtered.Len() <= st.Warmup() {
		return nil, fmt.Errorf("%w: have %d points, warm-up needs %d",
			ErrInsufficientHistory, filtered.Len(), st.Warmup()+1)
	}

	targets := st.Targets(filtered.Closes(), dir, e.cache)

	sim := NewSimulator(p)
	snaps, trades := sim.Run(filtered, targets)

	result := CalculateMetrics(snaps, trades)

	e.logger.WithFields(map[string]interface{}{
		"mode":         p.StrategyMode,
		"days":         filtered.Len(),
		"total_trades": result.TotalTrades,
		"total_return": result.TotalReturn,
	}).Debug("Backtest completed")

	return result, nil
}
