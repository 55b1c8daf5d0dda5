package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/riskgate/rules"
)

const fullConfig = `
account:
  id: ACC-1
  timezone: America/Chicago
reset:
  time: "17:00"
  holidays:
    - "2026-12-25"
store:
  path: /tmp/riskgate.db
rules:
  - kind: max_position
    limit: 100
    per_symbol:
      XAU_USD: 10
  - kind: max_total_position
    limit: 300
  - kind: daily_loss
    limit: -500
  - kind: daily_profit
    target: 1000
  - kind: unrealized_loss
    limit: -400
    scope: all
  - kind: unrealized_profit
    target: 800
    scope: position
    lockout: false
  - kind: trade_frequency
    per_minute: 3
    cooldown_minute: 5m
  - kind: loss_cooldown
    tiers:
      - threshold: -100
        duration: 5m
      - threshold: -300
        duration: 30m
  - kind: stop_loss_grace
    grace: 2m
  - kind: session_hours
    start: "09:30"
    end: "16:00"
    timezone: America/New_York
  - kind: auth_guard
  - kind: symbol_block
    symbols: [XAU_USD, BTC_USD]
  - kind: trailing_stop
    activate: 0.002
    distance: 0.001
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "riskgate.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile(writeConfig(t, fullConfig))
	assert.NoError(t, err)
	assert.Equal(t, "ACC-1", cfg.Account.ID)
	assert.Equal(t, "17:00", cfg.Reset.Time)
	assert.Len(t, cfg.Rules, 13)
}

func TestBuildRulesSkipsDisabled(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile(writeConfig(t, fullConfig))
	assert.NoError(t, err)

	built, err := cfg.BuildRules()
	assert.NoError(t, err)
	assert.Len(t, built, 12) // trailing_stop is disabled

	names := make(map[string]bool, len(built))
	for _, r := range built {
		names[r.Name()] = true
	}
	assert.True(t, names[string(rules.KindDailyLoss)])
	assert.True(t, names[string(rules.KindTradeFrequency)])
	assert.False(t, names[string(rules.KindTrailingStop)])
}

func TestBuildRuleParameters(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile(writeConfig(t, fullConfig))
	assert.NoError(t, err)
	built, err := cfg.BuildRules()
	assert.NoError(t, err)

	byName := make(map[string]rules.Rule, len(built))
	for _, r := range built {
		byName[r.Name()] = r
	}

	lc, ok := byName[string(rules.KindLossCooldown)].(*rules.LossCooldown)
	assert.True(t, ok)
	// Tiers come back deepest first.
	assert.Equal(t, []rules.Tier{
		{Threshold: -300, Duration: 30 * time.Minute},
		{Threshold: -100, Duration: 5 * time.Minute},
	}, lc.Tiers)

	up, ok := byName[string(rules.KindUnrealizedProfit)].(*rules.UnrealizedProfit)
	assert.True(t, ok)
	assert.Equal(t, rules.ScopePosition, up.Scope)
	assert.False(t, up.SetLockout)

	ul, ok := byName[string(rules.KindUnrealizedLoss)].(*rules.UnrealizedLoss)
	assert.True(t, ok)
	assert.True(t, ul.SetLockout) // defaults on

	sh, ok := byName[string(rules.KindSessionHours)].(*rules.SessionHours)
	assert.True(t, ok)
	assert.Equal(t, "America/New_York", sh.Session.Loc.String())
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, `
account:
  id: ACC-1
  timezone: UTC
reset:
  time: "17:00"
store:
  path: /tmp/riskgate.db
rules:
  - kind: max_drawdown
    limit: -500
`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule kind")
	assert.Contains(t, err.Error(), "max_drawdown")
}

func TestValidateRejectsBadParameters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rule string
		want string
	}{
		{"positive daily loss", "  - kind: daily_loss\n    limit: 500", "limit must be negative"},
		{"missing frequency window", "  - kind: trade_frequency", "at least one of"},
		{"missing cooldown", "  - kind: trade_frequency\n    per_minute: 3", "cooldown_minute"},
		{"positive tier", "  - kind: loss_cooldown\n    tiers:\n      - threshold: 100\n        duration: 5m", "threshold must be negative"},
		{"bad scope", "  - kind: unrealized_loss\n    limit: -400\n    scope: sideways", "scope must be"},
		{"empty symbol block", "  - kind: symbol_block", "symbols required"},
		{"bad session start", "  - kind: session_hours\n    start: \"25:00\"\n    end: \"16:00\"", "out of range"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body := `
account:
  id: ACC-1
  timezone: UTC
reset:
  time: "17:00"
store:
  path: /tmp/riskgate.db
rules:
` + tc.rule + "\n"
			_, err := LoadFromFile(writeConfig(t, body))
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateRejectsMissingSections(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, "account:\n  id: ACC-1\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timezone is required")

	_, err = LoadFromFile(writeConfig(t, `
account:
  id: ACC-1
  timezone: Mars/Olympus
reset:
  time: "17:00"
store:
  path: /tmp/riskgate.db
`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}
