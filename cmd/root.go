package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "mercury",
	Short: "Binary prediction-market arbitrage engine",
	Long: `Mercury is an automated arbitrage engine for binary prediction markets.
It discovers new markets, subscribes to their orderbooks via WebSocket,
detects cross-outcome arbitrage opportunities, sizes and executes hedged
trades under configurable risk limits, and sweeps settled positions for
on-chain redemption.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}
