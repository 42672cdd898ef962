package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/backlab/internal/backtest"
	"github.com/wonny/backlab/pkg/config"
	"github.com/wonny/backlab/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest",
	Long: `Simulate one strategy against a price file and print the metrics.

Example:
  go run ./cmd/backlab backtest --file btc.csv --mode buy_and_hold
  go run ./cmd/backlab backtest --file btc.csv --mode dual_ma --fast 20 --slow 60 --leverage 2
  go run ./cmd/backlab backtest --file btc.csv --mode single_ma --fast 50 --direction long_short`,
	RunE: runBacktestCmd,
}

var (
	btFile        string
	btMode        string
	btFast        int
	btSlow        int
	btDirection   string
	btCash        float64
	btLeverage    float64
	btFee         float64
	btSlippage    float64
	btRebalance   bool
	btYield       bool
	btAnnualYield float64
	btFrom        string
	btTo          string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	// Flags
	backtestCmd.Flags().StringVar(&btFile, "file", "", "price file id (required)")
	backtestCmd.Flags().StringVar(&btMode, "mode", "buy_and_hold", "strategy mode (buy_and_hold|single_ma|dual_ma)")
	backtestCmd.Flags().IntVar(&btFast, "fast", 0, "fast moving-average window")
	backtestCmd.Flags().IntVar(&btSlow, "slow", 0, "slow moving-average window")
	backtestCmd.Flags().StringVar(&btDirection, "direction", "long_only", "trade direction (long_only|long_short)")
	backtestCmd.Flags().Float64Var(&btCash, "cash", 100000, "initial cash")
	backtestCmd.Flags().Float64Var(&btLeverage, "leverage", 1.0, "position leverage")
	backtestCmd.Flags().Float64Var(&btFee, "fee", 0.0005, "fee rate per side")
	backtestCmd.Flags().Float64Var(&btSlippage, "slippage", 0.0005, "slippage rate per side")
	backtestCmd.Flags().BoolVar(&btRebalance, "rebalance", false, "reset leverage on month change")
	backtestCmd.Flags().BoolVar(&btYield, "yield", false, "accrue yield on idle cash")
	backtestCmd.Flags().Float64Var(&btAnnualYield, "annual-yield", 0, "annual yield rate for idle cash")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "end date (YYYY-MM-DD)")

	backtestCmd.MarkFlagRequired("file")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Backlab Backtest ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	provider, cleanup, err := newProvider(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ser, err := provider.Resolve(cmd.Context(), btFile)
	if err != nil {
		return fmt.Errorf("resolve price series: %w", err)
	}

	params := backtest.Params{
		InitialCash:     btCash,
		Leverage:        btLeverage,
		FeeRate:         btFee,
		Slippage:        btSlippage,
		StrategyMode:    btMode,
		MAFast:          btFast,
		MASlow:          btSlow,
		TradeDirection:  btDirection,
		EnableRebalance: btRebalance,
		EnableYield:     btYield,
		AnnualYield:     btAnnualYield,
		StartDate:       btFrom,
		EndDate:         btTo,
	}

	engine := backtest.NewEngine(log, nil)
	result, err := engine.Run(cmd.Context(), ser, params)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestResult(btFile, params, result)
	return nil
}

func printBacktestResult(fileID string, params backtest.Params, result *backtest.Result) {
	fmt.Println("\n✅ Backtest Completed")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println()

	fmt.Println("📊 Setup")
	fmt.Printf("File:     %s\n", fileID)
	fmt.Printf("Strategy: %s", params.StrategyMode)
	if params.MAFast > 0 {
		fmt.Printf(" (fast %d", params.MAFast)
		if params.MASlow > 0 {
			fmt.Printf(", slow %d", params.MASlow)
		}
		fmt.Print(")")
	}
	fmt.Println()
	fmt.Printf("Leverage: %.2fx, fee %.4f, slippage %.4f\n", params.Leverage, params.FeeRate, params.Slippage)
	fmt.Println()

	fmt.Println("💰 Performance")
	fmt.Printf("Total Return: %+.2f%%\n", result.TotalReturn)
	fmt.Printf("CAGR:         %+.2f%%\n", result.CAGR)
	fmt.Println()

	fmt.Println("📉 Risk Metrics")
	fmt.Printf("Max Drawdown:  %.2f%%", result.MDD)
	if result.MDDStart != "" {
		fmt.Printf(" (%s ~ %s)", result.MDDStart, result.MDDEnd)
	}
	fmt.Println()
	fmt.Printf("Sharpe Ratio:  %.2f\n", result.SharpeRatio)
	fmt.Printf("Sortino Ratio: %.2f\n", result.SortinoRatio)
	fmt.Printf("Calmar Ratio:  %.2f\n", result.CalmarRatio)
	fmt.Println()

	fmt.Println("💹 Trading Metrics")
	fmt.Printf("Total Trades:  %d\n", result.TotalTrades)
	fmt.Printf("Win Rate:      %.2f%%\n", result.WinRate)
	fmt.Printf("Profit Factor: %.2f\n", result.ProfitFactor)
	fmt.Println()

	if len(result.YearlyReturns) > 0 {
		fmt.Println("📅 Yearly")
		for i, yr := range result.YearlyReturns {
			fmt.Printf("%d: %+8.2f%%  (MDD %.2f%%)\n", yr.Year, yr.Return, result.YearlyMDD[i].MDD)
		}
		fmt.Println()
	}
}
