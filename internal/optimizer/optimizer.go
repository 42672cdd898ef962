package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/internal/signal"
	"github.com/wonny/backlab/pkg/logger"
)

// ErrTimeout is returned when the batch deadline expires. The whole
// batch is aborted; partial rankings are never returned.
var ErrTimeout = errors.New("optimization timed out")

// Result is one ranked grid point: the originating parameter subset
// plus its summary metrics.
type Result struct {
	StrategyType string  `json:"strategy_type"`
	Direction    string  `json:"direction"`
	MAFast       int     `json:"ma_fast"`
	MASlow       *int    `json:"ma_slow"`
	Leverage     float64 `json:"leverage"`
	TotalReturn  float64 `json:"total_return"`
	CAGR         float64 `json:"cagr"`
	MDD          float64 `json:"mdd"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`

	metrics *backtest.Result
	ord     int // input order, final tie-break
}

// Optimizer runs every grid combination through the backtest engine on
// a bounded worker pool and ranks the outcomes.
type Optimizer struct {
	workers int
	logger  *logger.Logger
}

// New creates an optimizer with at most workers simulations in flight.
func New(workers int, log *logger.Logger) *Optimizer {
	if workers < 1 {
		workers = 1
	}
	return &Optimizer{
		workers: workers,
		logger:  log,
	}
}

// Run enumerates the grid, simulates each combination independently and
// returns at most space.TopN results sorted descending by space.SortBy,
// ties broken by total_return, then by stable input order.
//
// Each simulation is a pure function of its inputs; workers share only
// the read-only series and the batch-scoped moving-average cache, so
// the ranking is independent of completion order.
func (o *Optimizer) Run(ctx context.Context, ser *series.Series, space Space) ([]Result, error) {
	if err := space.Normalize(); err != nil {
		return nil, err
	}

	combos := enumerate(space)
	o.logger.WithFields(map[string]interface{}{
		"combinations": len(combos),
		"workers":      o.workers,
		"sort_by":      space.SortBy,
	}).Info("Starting optimization batch")

	cache := signal.NewCache()
	engine := backtest.NewEngine(o.logger, cache)

	slots := make([]*Result, len(combos))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				slots[idx] = o.simulate(ctx, engine, ser, space, combos[idx], idx)
			}
		}()
	}

feed:
	for i := range combos {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Deadline aborts the whole batch rather than mixing in
		// partial results.
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	results := make([]Result, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}

	rank(results, space.SortBy)

	ranked := len(results)
	if len(results) > space.TopN {
		results = results[:space.TopN]
	}

	o.logger.WithFields(map[string]interface{}{
		"ranked":   ranked,
		"returned": len(results),
	}).Info("Optimization batch completed")

	return results, nil
}

// simulate runs one combination. Failures (for example a grid point
// without enough warm-up history) skip the combination without failing
// the batch.
func (o *Optimizer) simulate(ctx context.Context, engine *backtest.Engine, ser *series.Series, space Space, c Combination, ord int) *Result {
	res, err := engine.Run(ctx, ser, space.Params(c))
	if err != nil {
		if ctx.Err() == nil {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"mode":    c.Mode,
				"ma_fast": c.MAFast,
				"ma_slow": c.MASlow,
			}).Warn("Combination skipped")
		}
		return nil
	}

	out := &Result{
		StrategyType: c.Mode,
		Direction:    c.Direction,
		MAFast:       c.MAFast,
		Leverage:     c.Leverage,
		TotalReturn:  res.TotalReturn,
		CAGR:         res.CAGR,
		MDD:          res.MDD,
		SharpeRatio:  res.SharpeRatio,
		SortinoRatio: res.SortinoRatio,
		CalmarRatio:  res.CalmarRatio,
		TotalTrades:  res.TotalTrades,
		WinRate:      res.WinRate,
		ProfitFactor: res.ProfitFactor,
		metrics:      res,
		ord:          ord,
	}
	if c.MASlow > 0 {
		slow := c.MASlow
		out.MASlow = &slow
	}
	return out
}

// rank sorts descending by the chosen metric with the documented
// tie-break: total_return, then stable input order.
func rank(results []Result, sortBy string) {
	sort.SliceStable(results, func(i, j int) bool {
		a, _ := results[i].metrics.Metric(sortBy)
		b, _ := results[j].metrics.Metric(sortBy)
		if a != b {
			return a > b
		}
		if results[i].TotalReturn != results[j].TotalReturn {
			return results[i].TotalReturn > results[j].TotalReturn
		}
		return results[i].ord < results[j].ord
	})
}
