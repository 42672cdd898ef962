package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/wonny/backlab/internal/signal"
)

var (
	// ErrInvalidParameter marks request validation failures. No
	// computation is attempted once one is detected.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientHistory is returned when the filtered series is
	// shorter than the strategy warm-up window.
	ErrInsufficientHistory = errors.New("not enough history for the moving-average warm-up")
)

// Params is the strategy configuration for one simulation.
type Params struct {
	InitialCash     float64 `json:"initial_cash"`
	Leverage        float64 `json:"leverage"`
	FeeRate         float64 `json:"fee_rate"`
	Slippage        float64 `json:"slippage"`
	StrategyMode    string  `json:"strategy_mode"`
	MAFast          int     `json:"ma_fast"`
	MASlow          int     `json:"ma_slow"`
	TradeDirection  string  `json:"trade_direction"`
	EnableRebalance bool    `json:"enable_rebalance"`
	EnableYield     bool    `json:"enable_yield"`
	AnnualYield     float64 `json:"annual_yield"`
	StartDate       string  `json:"start_date,omitempty"`
	EndDate         string  `json:"end_date,omitempty"`
}

// Strategy parses and validates the signal-related fields.
func (p Params) Strategy() (signal.Strategy, signal.Direction, error) {
	st, err := signal.NewStrategy(p.StrategyMode, p.MAFast, p.MASlow)
	if err != nil {
		return signal.Strategy{}, 0, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	dir, err := signal.ParseDirection(p.TradeDirection)
	if err != nil {
		return signal.Strategy{}, 0, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	return st, dir, nil
}

// Validate checks the numeric fields. Signal fields are validated by
// Strategy.
func (p Params) Validate() error {
	if p.InitialCash <= 0 {
		return fmt.Errorf("%w: initial_cash must be positive", ErrInvalidParameter)
	}
	if p.Leverage < 0 {
		return fmt.Errorf("%w: leverage must not be negative", ErrInvalidParameter)
	}
	if p.FeeRate < 0 {
		return fmt.Errorf("%w: fee_rate must not be negative", ErrInvalidParameter)
	}
	if p.Slippage < 0 {
		return fmt.Errorf("%w: slippage must not be negative", ErrInvalidParameter)
	}
	if p.EnableYield && p.AnnualYield < 0 {
		return fmt.Errorf("%w: annual_yield must not be negative", ErrInvalidParameter)
	}
	return nil
}

// Window parses the optional date bounds.
func (p Params) Window() (start, end time.Time, err error) {
	if p.StartDate != "" {
		start, err = time.Parse("2006-01-02", p.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad start_date %q", ErrInvalidParameter, p.StartDate)
		}
	}
	if p.EndDate != "" {
		end, err = time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad end_date %q", ErrInvalidParameter, p.EndDate)
		}
	}
	return start, end, nil
}

// Snapshot is one mark-to-market equity observation. Exactly one is
// recorded per simulated trading day.
type Snapshot struct {
	Date  time.Time
	Value float64
}

// Ledger direction labels.
const (
	TradeLong      = "long"
	TradeShort     = "short"
	TradeRebalance = "rebalance"
)

// ClosedTrade is one immutable entry of the append-only trade ledger.
type ClosedTrade struct {
	Direction  string  `json:"direction"`
	EntryDate  string  `json:"entry_date"`
	ExitDate   string  `json:"exit_date"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Units      float64 `json:"units"`
	CashBefore float64 `json:"cash_before"`
	CashAfter  float64 `json:"cash_after"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	Note       string  `json:"note"`
}

// EquityPoint is the wire form of a Snapshot.
type EquityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// YearlyReturn is the return of one calendar year against its own start.
type YearlyReturn struct {
	Year   int     `json:"year"`
	Return float64 `json:"return"`
}

// YearlyMDD is the max drawdown within one calendar year against that
// year's own running peak.
type YearlyMDD struct {
	Year int     `json:"year"`
	MDD  float64 `json:"mdd"`
}

// Result is the full backtest response.
type Result struct {
	TotalReturn   float64        `json:"total_return"`
	CAGR          float64        `json:"cagr"`
	MDD           float64        `json:"mdd"`
	MDDStart      string         `json:"mdd_start,omitempty"`
	MDDEnd        string         `json:"mdd_end,omitempty"`
	SharpeRatio   float64        `json:"sharpe_ratio"`
	SortinoRatio  float64        `json:"sortino_ratio"`
	CalmarRatio   float64        `json:"calmar_ratio"`
	TotalTrades   int            `json:"total_trades"`
	WinRate       float64        `json:"win_rate"`
	ProfitFactor  float64        `json:"profit_factor"`
	EquityCurve   []EquityPoint  `json:"equity_curve"`
	YearlyReturns []YearlyReturn `json:"yearly_returns"`
	YearlyMDD     []YearlyMDD    `json:"yearly_mdd"`
	Trades        []ClosedTrade  `json:"trades"`
}

// Metric extracts a ranking metric by its wire name. Used by the
// optimizer's sort.
func (r *Result) Metric(name string) (float64, bool) {
	switch name {
	case "sharpe_ratio":
		return r.SharpeRatio, true
	case "sortino_ratio":
		return r.SortinoRatio, true
	case "calmar_ratio":
		return r.CalmarRatio, true
	case "total_return":
		return r.TotalReturn, true
	case "cagr":
		return r.CAGR, true
	case "win_rate":
		return r.WinRate, true
	case "profit_factor":
		return r.ProfitFactor, true
	default:
		return 0, false
	}
}
