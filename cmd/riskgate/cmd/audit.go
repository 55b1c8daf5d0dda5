package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgate/config"
	"github.com/rustyeddy/riskgate/store"
)

var auditDay string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the enforcement audit log",
	Long: `Audit prints the append-only enforcement record: every breach, broker
action and lockout change, including attempts that failed.

Examples:
  riskgate audit
  riskgate audit --day 2026-08-21`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVar(&auditDay, "day", "", "day to show (YYYY-MM-DD, default today)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Account.Timezone)
	if err != nil {
		return err
	}

	day := auditDay
	if day == "" {
		day = time.Now().In(loc).Format("2006-01-02")
	}
	start, end, err := dayBounds(loc, day)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListAuditBetween(start, end)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("no audit records for %s\n", day)
		return nil
	}
	for _, r := range recs {
		sym := r.Symbol
		if sym == "" {
			sym = "-"
		}
		fmt.Printf("%s  %-14s %-10s %-40s %s\n",
			r.Time.In(loc).Format("15:04:05"), r.Action, sym, r.Reason, r.Result)
	}
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.Add(24 * time.Hour), nil
}
