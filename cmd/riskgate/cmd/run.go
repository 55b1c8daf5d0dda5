package cmd

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskgate/broker/sim"
	"github.com/rustyeddy/riskgate/config"
	"github.com/rustyeddy/riskgate/enforce"
	"github.com/rustyeddy/riskgate/engine"
	"github.com/rustyeddy/riskgate/lockout"
	"github.com/rustyeddy/riskgate/metrics"
	"github.com/rustyeddy/riskgate/pnl"
	"github.com/rustyeddy/riskgate/sched"
	"github.com/rustyeddy/riskgate/store"
	"github.com/rustyeddy/riskgate/timer"

	brokerpkg "github.com/rustyeddy/riskgate/broker"
)

var runMetricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement engine",
	Long: `Run starts the engine against the configured account. Events are consumed
from the broker adapter; the built-in sim broker is used until a live
adapter is wired in.`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":9109", "address for the Prometheus /metrics endpoint (empty to disable)")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Account.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	resetAt, err := sched.ParseTimeOfDay(cfg.Reset.Time)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	timers, err := timer.NewManager(st)
	if err != nil {
		return err
	}
	lockouts, err := lockout.NewManager(st, timers)
	if err != nil {
		return err
	}
	accumulator := pnl.New(st, loc)
	scheduler, err := sched.New(cfg.Account.ID, resetAt, loc, cfg.Reset.Holidays, st, accumulator, lockouts)
	if err != nil {
		return err
	}

	ruleSet, err := cfg.BuildRules()
	if err != nil {
		return err
	}

	// TODO: replace with the live broker adapter once its SDK settles.
	bk := sim.New(brokerpkg.Account{ID: cfg.Account.ID, CanTrade: true})
	executor := enforce.New(cfg.Account.ID, bk, st, lockouts)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(runMetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	eng, err := engine.New(engine.Options{
		AccountID: cfg.Account.ID,
		Broker:    bk,
		Rules:     ruleSet,
		PnL:       accumulator,
		Lockouts:  lockouts,
		Timers:    timers,
		Scheduler: scheduler,
		Executor:  executor,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return eng.Run(ctx)
}
