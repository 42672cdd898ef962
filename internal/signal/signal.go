package signal

import (
	"errors"
	"fmt"
	"math"
)

// Side is the target market direction for a single date.
type Side int8

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

// String returns the ledger label for a side.
func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns +1 for long, -1 for short and 0 for flat.
func (s Side) Sign() float64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

// Direction controls what happens on a bearish signal.
type Direction int8

const (
	LongOnly Direction = iota
	LongShort
)

// ParseDirection parses the wire representation of a trade direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long_only", "":
		return LongOnly, nil
	case "long_short":
		return LongShort, nil
	default:
		return LongOnly, fmt.Errorf("unknown trade direction %q", s)
	}
}

// Mode identifies the signal rule of a strategy.
type Mode int8

const (
	ModeBuyAndHold Mode = iota
	ModeSingleMA
	ModeDualMA
)

// Wire names of the strategy modes.
const (
	NameBuyAndHold = "buy_and_hold"
	NameSingleMA   = "single_ma"
	NameDualMA     = "dual_ma"
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSingleMA:
		return NameSingleMA
	case ModeDualMA:
		return NameDualMA
	default:
		return NameBuyAndHold
	}
}

// Strategy is the tagged variant of a signal rule: buy-and-hold, a single
// moving average against price, or a fast/slow moving average pair. It is
// dispatched through one pure Targets function instead of string branching
// inside the simulator.
type Strategy struct {
	Mode Mode
	Fast int // single_ma and dual_ma
	Slow int // dual_ma only
}

// ErrInvalidMAPair is returned when a dual_ma strategy has fast >= slow.
var ErrInvalidMAPair = errors.New("ma_fast must be smaller than ma_slow")

// NewStrategy validates and builds a Strategy from wire values.
func NewStrategy(mode string, fast, slow int) (Strategy, error) {
	switch mode {
	case NameBuyAndHold:
		return Strategy{Mode: ModeBuyAndHold}, nil
	case NameSingleMA:
		if fast < 1 {
			return Strategy{}, fmt.Errorf("ma_fast must be at least 1, got %d", fast)
		}
		return Strategy{Mode: ModeSingleMA, Fast: fast}, nil
	case NameDualMA:
		if fast < 1 {
			return Strategy{}, fmt.Errorf("ma_fast must be at least 1, got %d", fast)
		}
		if fast >= slow {
			return Strategy{}, ErrInvalidMAPair
		}
		return Strategy{Mode: ModeDualMA, Fast: fast, Slow: slow}, nil
	default:
		return Strategy{}, fmt.Errorf("unknown strategy mode %q", mode)
	}
}

// Warmup returns the number of leading dates without a defined signal.
func (st Strategy) Warmup() int {
	switch st.Mode {
	case ModeSingleMA:
		return st.Fast - 1
	case ModeDualMA:
		return st.Slow - 1
	default:
		return 0
	}
}

// Targets derives the target side for every date of the series. The
// result always has len(closes) entries; warm-up dates are flat. Exact
// equality (price == MA, or fast MA == slow MA) holds the previous side
// so the signal does not thrash.
func (st Strategy) Targets(closes []float64, dir Direction, cache *Cache) []Side {
	sides := make([]Side, len(closes))

	bear := SideFlat
	if dir == LongShort {
		bear = SideShort
	}

	switch st.Mode {
	case ModeBuyAndHold:
		for i := range sides {
			sides[i] = SideLong
		}

	case ModeSingleMA:
		ma := cache.SMA(closes, st.Fast)
		prev := SideFlat
		for i := range closes {
			if math.IsNaN(ma[i]) {
				sides[i] = SideFlat
				continue
			}
			switch {
			case closes[i] > ma[i]:
				prev = SideLong
			case closes[i] < ma[i]:
				prev = bear
			}
			sides[i] = prev
		}

	case ModeDualMA:
		fast := cache.SMA(closes, st.Fast)
		slow := cache.SMA(closes, st.Slow)
		prev := SideFlat
		for i := range closes {
			if math.IsNaN(slow[i]) {
				sides[i] = SideFlat
				continue
			}
			switch {
			case fast[i] > slow[i]:
				prev = SideLong
			case fast[i] < slow[i]:
				prev = bear
			}
			sides[i] = prev
		}
	}

	return sides
}

// SMA computes a simple moving average. The first window-1 entries are
// NaN because the average is undefined during warm-up.
func SMA(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if window < 1 {
		window = 1
	}

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}

	return out
}
