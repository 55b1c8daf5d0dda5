package config

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskgate/rules"
	"github.com/rustyeddy/riskgate/sched"
)

// BuildRules constructs the enabled rule instances from a validated config.
// Disabled rules are dropped here so the engine only ever sees rules it
// should evaluate.
func (c *Config) BuildRules() ([]rules.Rule, error) {
	loc, err := time.LoadLocation(c.Account.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	var out []rules.Rule
	for i := range c.Rules {
		rc := &c.Rules[i]
		if !rc.enabled() {
			continue
		}
		r, err := rc.build(loc)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (rc *RuleConfig) build(accountLoc *time.Location) (rules.Rule, error) {
	switch rules.Kind(rc.Kind) {
	case rules.KindMaxPosition:
		return &rules.MaxPosition{Limit: rc.Limit, PerSymbol: rc.PerSymbol}, nil

	case rules.KindMaxTotalPosition:
		return &rules.MaxTotalPosition{Limit: rc.Limit}, nil

	case rules.KindDailyLoss:
		return &rules.DailyLoss{Limit: rc.Limit}, nil

	case rules.KindDailyProfit:
		return &rules.DailyProfit{Target: rc.Target}, nil

	case rules.KindUnrealizedLoss:
		return &rules.UnrealizedLoss{
			Limit:      rc.Limit,
			Scope:      scopeOrDefault(rc.Scope),
			SetLockout: rc.Lockout == nil || *rc.Lockout,
		}, nil

	case rules.KindUnrealizedProfit:
		return &rules.UnrealizedProfit{
			Target:     rc.Target,
			Scope:      scopeOrDefault(rc.Scope),
			SetLockout: rc.Lockout == nil || *rc.Lockout,
		}, nil

	case rules.KindTradeFrequency:
		r := &rules.TradeFrequency{
			PerMinute:  rc.PerMinute,
			PerHour:    rc.PerHour,
			PerSession: rc.PerSession,
		}
		var err error
		if rc.PerMinute > 0 {
			if r.CooldownMinute, err = parseDuration(rc.CooldownMinute); err != nil {
				return nil, err
			}
		}
		if rc.PerHour > 0 {
			if r.CooldownHour, err = parseDuration(rc.CooldownHour); err != nil {
				return nil, err
			}
		}
		if rc.PerSession > 0 {
			if r.CooldownSession, err = parseDuration(rc.CooldownSession); err != nil {
				return nil, err
			}
		}
		return r, nil

	case rules.KindLossCooldown:
		r := &rules.LossCooldown{}
		for _, tc := range rc.Tiers {
			d, err := parseDuration(tc.Duration)
			if err != nil {
				return nil, err
			}
			r.Tiers = append(r.Tiers, rules.Tier{Threshold: tc.Threshold, Duration: d})
		}
		r.SortTiers()
		return r, nil

	case rules.KindStopLossGrace:
		grace, err := parseDuration(rc.Grace)
		if err != nil {
			return nil, err
		}
		return &rules.StopLossGrace{Grace: grace}, nil

	case rules.KindSessionHours:
		start, err := sched.ParseTimeOfDay(rc.Start)
		if err != nil {
			return nil, err
		}
		end, err := sched.ParseTimeOfDay(rc.End)
		if err != nil {
			return nil, err
		}
		loc := accountLoc
		if rc.Timezone != "" {
			if loc, err = time.LoadLocation(rc.Timezone); err != nil {
				return nil, err
			}
		}
		return &rules.SessionHours{Session: sched.Session{Start: start, End: end, Loc: loc}}, nil

	case rules.KindAuthGuard:
		return &rules.AuthGuard{}, nil

	case rules.KindSymbolBlock:
		return &rules.SymbolBlock{Symbols: rc.Symbols}, nil

	case rules.KindTrailingStop:
		return &rules.TrailingStop{Activate: rc.Activate, Distance: rc.Distance}, nil

	default:
		return nil, fmt.Errorf("unknown rule kind %q", rc.Kind)
	}
}

func scopeOrDefault(s string) rules.Scope {
	if s == "" {
		return rules.ScopeAll
	}
	return rules.Scope(s)
}
