package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskgate/rules"
	"github.com/rustyeddy/riskgate/sched"
)

// Config is the complete engine configuration. It is validated as a whole
// at startup; the engine never runs with a partially valid rule set.
type Config struct {
	Account AccountConfig `yaml:"account"`
	Reset   ResetConfig   `yaml:"reset"`
	Store   StoreConfig   `yaml:"store"`
	Rules   []RuleConfig  `yaml:"rules"`
}

type AccountConfig struct {
	ID       string `yaml:"id"`
	Timezone string `yaml:"timezone"` // IANA name, e.g. "America/Chicago"
}

type ResetConfig struct {
	Time     string   `yaml:"time"` // "HH:MM" wall clock in account timezone
	Holidays []string `yaml:"holidays,omitempty"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// RuleConfig is the flat union of every rule kind's parameters; Validate
// checks the fields relevant to Kind. A kind outside the closed set is a
// startup error, never a silently ignored key.
type RuleConfig struct {
	Kind    string `yaml:"kind"`
	Enabled *bool  `yaml:"enabled,omitempty"` // default true

	// max_position / max_total_position
	Limit     float64            `yaml:"limit,omitempty"`
	PerSymbol map[string]float64 `yaml:"per_symbol,omitempty"`

	// daily_profit / unrealized_profit
	Target float64 `yaml:"target,omitempty"`

	// unrealized_loss / unrealized_profit
	Scope   string `yaml:"scope,omitempty"`   // "all" (default) or "position"
	Lockout *bool  `yaml:"lockout,omitempty"` // default true

	// trade_frequency
	PerMinute       int    `yaml:"per_minute,omitempty"`
	PerHour         int    `yaml:"per_hour,omitempty"`
	PerSession      int    `yaml:"per_session,omitempty"`
	CooldownMinute  string `yaml:"cooldown_minute,omitempty"`
	CooldownHour    string `yaml:"cooldown_hour,omitempty"`
	CooldownSession string `yaml:"cooldown_session,omitempty"`

	// loss_cooldown
	Tiers []TierConfig `yaml:"tiers,omitempty"`

	// stop_loss_grace
	Grace string `yaml:"grace,omitempty"`

	// session_hours
	Start    string `yaml:"start,omitempty"`
	End      string `yaml:"end,omitempty"`
	Timezone string `yaml:"timezone,omitempty"` // defaults to account timezone

	// symbol_block
	Symbols []string `yaml:"symbols,omitempty"`

	// trailing_stop
	Activate float64 `yaml:"activate,omitempty"`
	Distance float64 `yaml:"distance,omitempty"`
}

type TierConfig struct {
	Threshold float64 `yaml:"threshold"`
	Duration  string  `yaml:"duration"`
}

func (rc RuleConfig) enabled() bool {
	return rc.Enabled == nil || *rc.Enabled
}

// LoadFromFile loads and validates a YAML config.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("account.id is required")
	}
	if c.Account.Timezone == "" {
		return fmt.Errorf("account.timezone is required")
	}
	if _, err := time.LoadLocation(c.Account.Timezone); err != nil {
		return fmt.Errorf("unknown account.timezone %q: %w", c.Account.Timezone, err)
	}
	if c.Reset.Time == "" {
		return fmt.Errorf("reset.time is required")
	}
	if _, err := sched.ParseTimeOfDay(c.Reset.Time); err != nil {
		return err
	}
	for _, h := range c.Reset.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("invalid holiday %q (want YYYY-MM-DD)", h)
		}
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	for i := range c.Rules {
		if err := c.Rules[i].validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

func (rc *RuleConfig) validate() error {
	switch rules.Kind(rc.Kind) {
	case rules.KindMaxPosition:
		if rc.Limit <= 0 && len(rc.PerSymbol) == 0 {
			return fmt.Errorf("%s: limit or per_symbol required", rc.Kind)
		}
		for sym, lim := range rc.PerSymbol {
			if lim <= 0 {
				return fmt.Errorf("%s: per_symbol[%s] must be positive", rc.Kind, sym)
			}
		}
	case rules.KindMaxTotalPosition:
		if rc.Limit <= 0 {
			return fmt.Errorf("%s: limit must be positive", rc.Kind)
		}
	case rules.KindDailyLoss:
		if rc.Limit >= 0 {
			return fmt.Errorf("%s: limit must be negative", rc.Kind)
		}
	case rules.KindDailyProfit:
		if rc.Target <= 0 {
			return fmt.Errorf("%s: target must be positive", rc.Kind)
		}
	case rules.KindUnrealizedLoss:
		if rc.Limit >= 0 {
			return fmt.Errorf("%s: limit must be negative", rc.Kind)
		}
		if err := validateScope(rc.Scope); err != nil {
			return fmt.Errorf("%s: %w", rc.Kind, err)
		}
	case rules.KindUnrealizedProfit:
		if rc.Target <= 0 {
			return fmt.Errorf("%s: target must be positive", rc.Kind)
		}
		if err := validateScope(rc.Scope); err != nil {
			return fmt.Errorf("%s: %w", rc.Kind, err)
		}
	case rules.KindTradeFrequency:
		if rc.PerMinute <= 0 && rc.PerHour <= 0 && rc.PerSession <= 0 {
			return fmt.Errorf("%s: at least one of per_minute, per_hour, per_session required", rc.Kind)
		}
		for _, pair := range []struct{ cap int; d, name string }{
			{rc.PerMinute, rc.CooldownMinute, "cooldown_minute"},
			{rc.PerHour, rc.CooldownHour, "cooldown_hour"},
			{rc.PerSession, rc.CooldownSession, "cooldown_session"},
		} {
			if pair.cap <= 0 {
				continue
			}
			if _, err := parseDuration(pair.d); err != nil {
				return fmt.Errorf("%s: %s: %w", rc.Kind, pair.name, err)
			}
		}
	case rules.KindLossCooldown:
		if len(rc.Tiers) == 0 {
			return fmt.Errorf("%s: tiers required", rc.Kind)
		}
		for i, t := range rc.Tiers {
			if t.Threshold >= 0 {
				return fmt.Errorf("%s: tiers[%d].threshold must be negative", rc.Kind, i)
			}
			if _, err := parseDuration(t.Duration); err != nil {
				return fmt.Errorf("%s: tiers[%d].duration: %w", rc.Kind, i, err)
			}
		}
	case rules.KindStopLossGrace:
		if _, err := parseDuration(rc.Grace); err != nil {
			return fmt.Errorf("%s: grace: %w", rc.Kind, err)
		}
	case rules.KindSessionHours:
		if _, err := sched.ParseTimeOfDay(rc.Start); err != nil {
			return fmt.Errorf("%s: start: %w", rc.Kind, err)
		}
		if _, err := sched.ParseTimeOfDay(rc.End); err != nil {
			return fmt.Errorf("%s: end: %w", rc.Kind, err)
		}
		if rc.Timezone != "" {
			if _, err := time.LoadLocation(rc.Timezone); err != nil {
				return fmt.Errorf("%s: unknown timezone %q", rc.Kind, rc.Timezone)
			}
		}
	case rules.KindAuthGuard:
		// no parameters
	case rules.KindSymbolBlock:
		if len(rc.Symbols) == 0 {
			return fmt.Errorf("%s: symbols required", rc.Kind)
		}
	case rules.KindTrailingStop:
		if rc.Activate <= 0 || rc.Distance <= 0 {
			return fmt.Errorf("%s: activate and distance must be positive", rc.Kind)
		}
	default:
		return fmt.Errorf("unknown rule kind %q (valid: %v)", rc.Kind, rules.ValidKinds())
	}
	return nil
}

func validateScope(s string) error {
	switch rules.Scope(s) {
	case "", rules.ScopeAll, rules.ScopePosition:
		return nil
	default:
		return fmt.Errorf("scope must be %q or %q", rules.ScopeAll, rules.ScopePosition)
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}
