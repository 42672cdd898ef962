package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backlab",
	Short: "Backlab - leveraged single-asset strategy backtester",
	Long: `Backlab Unified CLI

Backtest moving-average strategies against daily close-price series,
with leverage, fees, slippage, monthly rebalancing and cash yield.

Usage:
  go run ./cmd/backlab [command]

Examples:
  go run ./cmd/backlab api
  go run ./cmd/backlab backtest --file btc.csv --mode dual_ma --fast 20 --slow 60
  go run ./cmd/backlab optimize --file btc.csv --grid grid.yaml`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
