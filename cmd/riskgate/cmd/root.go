package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "riskgate",
	Short: "Account risk enforcement engine",
	Long: `Riskgate protects a single trading account by evaluating configured risk
rules against the broker event stream and enforcing limits automatically:
closing positions, cancelling orders and locking the account when a rule is
breached.

The trader being protected cannot disable or evade enforcement; lockouts and
cooldowns survive restarts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./riskgate.yaml", "path to config file")

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
