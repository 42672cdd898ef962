package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/backlab/internal/optimizer"
	"github.com/wonny/backlab/pkg/config"
	"github.com/wonny/backlab/pkg/logger"
)

// optimizeCmd represents the optimize command
var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run an optimization batch",
	Long: `Enumerate a parameter grid, backtest every combination and print
the top results.

The grid is a YAML file:

  strategy_modes: [single_ma, dual_ma]
  ma_fast_range: [10, 20, 50]
  ma_slow_range: [60, 120, 200]
  leverage_range: [1.0, 2.0]
  directions: [long_only]
  initial_cash: 100000
  fee_rate: 0.0005
  slippage: 0.0005
  top_n: 10
  sort_by: sharpe_ratio

Example:
  go run ./cmd/backlab optimize --file btc.csv --grid grid.yaml
  go run ./cmd/backlab optimize --file btc.csv --grid grid.yaml --workers 8 --timeout 5m`,
	RunE: runOptimizeCmd,
}

var (
	optFile    string
	optGrid    string
	optWorkers int
	optTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	// Flags
	optimizeCmd.Flags().StringVar(&optFile, "file", "", "price file id (required)")
	optimizeCmd.Flags().StringVar(&optGrid, "grid", "", "grid YAML file (required)")
	optimizeCmd.Flags().IntVar(&optWorkers, "workers", 0, "parallel simulations (default from config)")
	optimizeCmd.Flags().DurationVar(&optTimeout, "timeout", 0, "batch deadline (default from config)")

	optimizeCmd.MarkFlagRequired("file")
	optimizeCmd.MarkFlagRequired("grid")
}

func runOptimizeCmd(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Backlab Optimizer ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	space, err := loadGrid(optGrid)
	if err != nil {
		return err
	}

	provider, cleanup, err := newProvider(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ser, err := provider.Resolve(cmd.Context(), optFile)
	if err != nil {
		return fmt.Errorf("resolve price series: %w", err)
	}

	workers := cfg.Engine.Workers
	if optWorkers > 0 {
		workers = optWorkers
	}
	timeout := cfg.Engine.OptimizeTimeout
	if optTimeout > 0 {
		timeout = optTimeout
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	opt := optimizer.New(workers, log)

	started := time.Now()
	results, err := opt.Run(ctx, ser, space)
	if err != nil {
		if errors.Is(err, optimizer.ErrTimeout) {
			return fmt.Errorf("batch exceeded the %s deadline", timeout)
		}
		return fmt.Errorf("optimization failed: %w", err)
	}

	printOptimizeResults(results, space.SortBy, time.Since(started))
	return nil
}

// loadGrid parses the grid YAML. Unknown keys are rejected so typos
// fail loudly instead of silently falling back to defaults.
func loadGrid(path string) (optimizer.Space, error) {
	var space optimizer.Space

	f, err := os.Open(path)
	if err != nil {
		return space, fmt.Errorf("open grid file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&space); err != nil {
		return space, fmt.Errorf("parse grid file: %w", err)
	}

	return space, nil
}

func printOptimizeResults(results []optimizer.Result, sortBy string, elapsed time.Duration) {
	fmt.Println("\n✅ Optimization Completed")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Printf("\n%d results, sorted by %s, %.2fs\n\n", len(results), sortBy, elapsed.Seconds())

	for i, r := range results {
		slow := "-"
		if r.MASlow != nil {
			slow = fmt.Sprintf("%d", *r.MASlow)
		}
		fmt.Printf("#%d %s %s fast=%d slow=%s lev=%.1fx\n",
			i+1, r.StrategyType, r.Direction, r.MAFast, slow, r.Leverage)
		fmt.Printf("    return %+8.2f%%  cagr %+7.2f%%  mdd %6.2f%%  sharpe %6.2f  trades %d\n",
			r.TotalReturn, r.CAGR, r.MDD, r.SharpeRatio, r.TotalTrades)
	}
	fmt.Println()
}
