package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgate/config"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/store"
	"github.com/rustyeddy/riskgate/timer"
)

var lockoutsCmd = &cobra.Command{
	Use:   "lockouts",
	Short: "List active lockouts",
	RunE:  runLockouts,
}

var clearSymbol string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Manually clear a lockout (admin)",
	Long: `Clear removes the account-wide lockout, or a single symbol's lockout with
--symbol. This is the manual path for permanent lockouts such as an auth
revocation that the broker has since resolved.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(lockoutsCmd)
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().StringVar(&clearSymbol, "symbol", "", "symbol lockout to clear (default: account-wide)")
}

func openLockouts(path string) (*store.Store, *lockout.Manager, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	timers, err := timer.NewManager(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	lk, err := lockout.NewManager(st, timers)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, lk, nil
}

func runLockouts(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}
	st, lk, err := openLockouts(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	active := lk.Active(cfg.Account.ID)
	if len(active) == 0 {
		fmt.Println("no active lockouts")
		return nil
	}
	for _, l := range active {
		scope := l.Symbol
		if scope == "" {
			scope = "account"
		}
		expiry := "permanent"
		if l.ExpiresAt != nil {
			expiry = l.ExpiresAt.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("%-12s %-8s until %-28s %s\n", scope, l.Kind, expiry, l.Reason)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}
	st, lk, err := openLockouts(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if lk.Info(cfg.Account.ID, clearSymbol) == nil {
		fmt.Println("no matching lockout")
		return nil
	}
	if err := lk.Clear(cfg.Account.ID, clearSymbol); err != nil {
		return err
	}
	fmt.Println("lockout cleared")
	return nil
}
