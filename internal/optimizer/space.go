package optimizer

import (
	"fmt"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/internal/signal"
)

// Space is the parameter grid for one optimization batch. The cost
// settings and date window are shared across every combination.
type Space struct {
	StrategyModes []string  `json:"strategy_modes" yaml:"strategy_modes"`
	MAFastRange   []int     `json:"ma_fast_range" yaml:"ma_fast_range"`
	MASlowRange   []int     `json:"ma_slow_range" yaml:"ma_slow_range"`
	LeverageRange []float64 `json:"leverage_range" yaml:"leverage_range"`
	Directions    []string  `json:"directions" yaml:"directions"`
	InitialCash   float64   `json:"initial_cash" yaml:"initial_cash"`
	FeeRate       float64   `json:"fee_rate" yaml:"fee_rate"`
	Slippage      float64   `json:"slippage" yaml:"slippage"`
	StartDate     string    `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate       string    `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	TopN          int       `json:"top_n" yaml:"top_n"`
	SortBy        string    `json:"sort_by" yaml:"sort_by"`
}

var sortableMetrics = map[string]bool{
	"sharpe_ratio":  true,
	"sortino_ratio": true,
	"calmar_ratio":  true,
	"total_return":  true,
	"cagr":          true,
	"win_rate":      true,
	"profit_factor": true,
}

// Normalize applies defaults and validates the grid axes.
func (s *Space) Normalize() error {
	if len(s.StrategyModes) == 0 {
		s.StrategyModes = []string{signal.NameBuyAndHold, signal.NameSingleMA, signal.NameDualMA}
	}
	if len(s.LeverageRange) == 0 {
		s.LeverageRange = []float64{1.0}
	}
	if len(s.Directions) == 0 {
		s.Directions = []string{"long_only"}
	}
	if s.InitialCash <= 0 {
		s.InitialCash = 100000
	}
	if s.TopN <= 0 {
		s.TopN = 10
	}
	if s.SortBy == "" {
		s.SortBy = "sharpe_ratio"
	}

	if !sortableMetrics[s.SortBy] {
		return fmt.Errorf("%w: unknown sort_by %q", backtest.ErrInvalidParameter, s.SortBy)
	}
	for _, mode := range s.StrategyModes {
		switch mode {
		case signal.NameBuyAndHold, signal.NameSingleMA, signal.NameDualMA:
		default:
			return fmt.Errorf("%w: unknown strategy mode %q", backtest.ErrInvalidParameter, mode)
		}
		if mode != signal.NameBuyAndHold && len(s.MAFastRange) == 0 {
			return fmt.Errorf("%w: ma_fast_range is required for %s", backtest.ErrInvalidParameter, mode)
		}
		if mode == signal.NameDualMA && len(s.MASlowRange) == 0 {
			return fmt.Errorf("%w: ma_slow_range is required for %s", backtest.ErrInvalidParameter, mode)
		}
	}
	for _, d := range s.Directions {
		if _, err := signal.ParseDirection(d); err != nil {
			return fmt.Errorf("%w: %v", backtest.ErrInvalidParameter, err)
		}
	}

	return nil
}

// Combination is one point of the grid. MASlow is zero when the mode
// does not use a slow average.
type Combination struct {
	Mode      string
	Direction string
	MAFast    int
	MASlow    int
	Leverage  float64
}

// Params expands a combination into full backtest parameters.
func (s Space) Params(c Combination) backtest.Params {
	return backtest.Params{
		InitialCash:    s.InitialCash,
		Leverage:       c.Leverage,
		FeeRate:        s.FeeRate,
		Slippage:       s.Slippage,
		StrategyMode:   c.Mode,
		MAFast:         c.MAFast,
		MASlow:         c.MASlow,
		TradeDirection: c.Direction,
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
	}
}

// enumerate builds the cartesian product with mode-aware collapsing:
// buy_and_hold ignores the MA and direction axes (one run per leverage),
// single_ma ignores the ma_slow axis, and dual_ma silently skips pairs
// with ma_fast >= ma_slow.
func enumerate(s Space) []Combination {
	var combos []Combination

	for _, mode := range s.StrategyModes {
		for _, lev := range s.LeverageRange {
			switch mode {
			case signal.NameBuyAndHold:
				combos = append(combos, Combination{
					Mode:      mode,
					Direction: "long_only",
					Leverage:  lev,
				})

			case signal.NameSingleMA:
				for _, dir := range s.Directions {
					for _, fast := range s.MAFastRange {
						combos = append(combos, Combination{
							Mode:      mode,
							Direction: dir,
							MAFast:    fast,
							Leverage:  lev,
						})
					}
				}

			case signal.NameDualMA:
				for _, dir := range s.Directions {
					for _, fast := range s.MAFastRange {
						for _, slow := range s.MASlowRange {
							if fast >= slow {
								continue
							}
							combos = append(combos, Combination{
								Mode:      mode,
								Direction: dir,
								MAFast:    fast,
								MASlow:    slow,
								Leverage:  lev,
							})
						}
					}
				}
			}
		}
	}

	return combos
}
