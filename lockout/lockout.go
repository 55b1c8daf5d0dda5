package lockout

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/riskgate/store"
	"github.com/rustyeddy/riskgate/timer"
)

// Kind separates lockouts bound to an absolute wall-clock expiry (hard) from
// lockouts bound to a countdown timer (cooldown).
type Kind string

const (
	Hard     Kind = "hard"
	Cooldown Kind = "cooldown"
)

// Lockout restricts trading for an account, or for one symbol when Symbol is
// non-empty. ExpiresAt == nil means permanent: only a manual or broker-side
// clear removes it.
type Lockout struct {
	AccountID string
	Symbol    string
	Reason    string
	Kind      Kind
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Manager is the one arena holding active lockouts, addressed by
// (account, symbol). No other component holds a reference to the table; the
// engine's gate and every rule go through this interface.
type Manager struct {
	mu     sync.Mutex
	store  *store.Store
	timers *timer.Manager
	active map[lockKey]Lockout
	nowFn  func() time.Time
}

type lockKey struct {
	accountID string
	symbol    string
}

// NewManager reloads active lockouts from the store. If the table somehow
// yields two rows for one key, the more restrictive one is kept and the
// conflict is logged as critical; safety degrades toward more restricted.
func NewManager(st *store.Store, timers *timer.Manager) (*Manager, error) {
	m := &Manager{
		store:  st,
		timers: timers,
		active: make(map[lockKey]Lockout),
		nowFn:  time.Now,
	}

	rows, err := st.DB().Query(`SELECT account_id, symbol, reason, kind, expires_at, created_at FROM lockouts`)
	if err != nil {
		return nil, fmt.Errorf("load lockouts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lk      Lockout
			kind    string
			expires sql.NullTime
		)
		if err := rows.Scan(&lk.AccountID, &lk.Symbol, &lk.Reason, &kind, &expires, &lk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lockout: %w", err)
		}
		lk.Kind = Kind(kind)
		if expires.Valid {
			t := expires.Time
			lk.ExpiresAt = &t
		}

		key := lockKey{lk.AccountID, lk.Symbol}
		if existing, ok := m.active[key]; ok {
			log.Error().
				Str("stage", "lockout_invariant").
				Str("account", lk.AccountID).
				Str("symbol", lk.Symbol).
				Msg("two active lockouts for one key; keeping most restrictive")
			lk = moreRestrictive(existing, lk)
		}
		m.active[key] = lk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lockouts: %w", err)
	}
	return m, nil
}

// SetNowFn overrides the time provider (useful for tests).
func (m *Manager) SetNowFn(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	m.nowFn = fn
}

// moreRestrictive orders lockouts: permanent hard > hard with later expiry >
// cooldown.
func moreRestrictive(a, b Lockout) Lockout {
	rank := func(lk Lockout) int {
		switch {
		case lk.Kind == Hard && lk.ExpiresAt == nil:
			return 3
		case lk.Kind == Hard:
			return 2
		default:
			return 1
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	if rank(b) == rank(a) && a.ExpiresAt != nil && b.ExpiresAt != nil && b.ExpiresAt.After(*a.ExpiresAt) {
		return b
	}
	return a
}

// SetHard installs or replaces a lockout with an absolute expiry. A nil
// until means permanent.
func (m *Manager) SetHard(accountID, symbol, reason string, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(Lockout{
		AccountID: accountID,
		Symbol:    symbol,
		Reason:    reason,
		Kind:      Hard,
		ExpiresAt: until,
		CreatedAt: m.nowFn(),
	})
}

// SetCooldown installs a lockout for d and arms the paired timer whose
// expiry clears exactly this lockout. Cooldown lockouts are never swept by
// SweepExpired; the timer is the single expiry path.
func (m *Manager) SetCooldown(accountID, symbol, reason string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	until := m.nowFn().Add(d)
	if err := m.setLocked(Lockout{
		AccountID: accountID,
		Symbol:    symbol,
		Reason:    reason,
		Kind:      Cooldown,
		ExpiresAt: &until,
		CreatedAt: m.nowFn(),
	}); err != nil {
		return err
	}

	return m.timers.Start(accountID, cooldownTimerName(symbol), d, timer.Action{
		Kind:   timer.ActionClearLockout,
		Symbol: symbol,
	})
}

func cooldownTimerName(symbol string) string {
	if symbol == "" {
		return "cooldown"
	}
	return "cooldown:" + symbol
}

// setLocked replaces any existing lockout for the key. Replacement is total:
// lockouts never accumulate.
func (m *Manager) setLocked(lk Lockout) error {
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var expires interface{}
		if lk.ExpiresAt != nil {
			expires = *lk.ExpiresAt
		}
		_, err := tx.Exec(`
			INSERT INTO lockouts (account_id, symbol, reason, kind, expires_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, symbol) DO UPDATE SET
				reason = excluded.reason,
				kind = excluded.kind,
				expires_at = excluded.expires_at,
				created_at = excluded.created_at`,
			lk.AccountID, lk.Symbol, lk.Reason, string(lk.Kind), expires, lk.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set lockout: %w", err)
	}

	m.active[lockKey{lk.AccountID, lk.Symbol}] = lk

	ev := log.Info().
		Str("stage", "lockout_set").
		Str("account", lk.AccountID).
		Str("symbol", lk.Symbol).
		Str("kind", string(lk.Kind)).
		Str("reason", lk.Reason)
	if lk.ExpiresAt != nil {
		ev = ev.Time("expires_at", *lk.ExpiresAt)
	}
	ev.Msg("lockout installed")
	return nil
}

// IsLockedOut reports whether the account as a whole, or the given symbol,
// is restricted. An account-wide lockout blocks every symbol; a symbol
// lockout blocks only its own.
func (m *Manager) IsLockedOut(accountID, symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[lockKey{accountID, ""}]; ok {
		return true
	}
	if symbol == "" {
		return false
	}
	_, ok := m.active[lockKey{accountID, symbol}]
	return ok
}

// Info returns the active lockout for the exact key, or nil.
func (m *Manager) Info(accountID, symbol string) *Lockout {
	m.mu.Lock()
	defer m.mu.Unlock()

	lk, ok := m.active[lockKey{accountID, symbol}]
	if !ok {
		return nil
	}
	cp := lk
	return &cp
}

// Active lists every active lockout for the account.
func (m *Manager) Active(accountID string) []Lockout {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Lockout
	for _, lk := range m.active {
		if lk.AccountID == accountID {
			out = append(out, lk)
		}
	}
	return out
}

// Clear removes the lockout for the exact key, cancelling its paired
// cooldown timer if one exists. Clearing a missing key is not an error.
func (m *Manager) Clear(accountID, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked(accountID, symbol)
}

func (m *Manager) clearLocked(accountID, symbol string) error {
	key := lockKey{accountID, symbol}
	lk, ok := m.active[key]
	if !ok {
		return nil
	}

	err := m.store.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM lockouts WHERE account_id = ? AND symbol = ?`, accountID, symbol)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	delete(m.active, key)

	if lk.Kind == Cooldown {
		if err := m.timers.Cancel(accountID, cooldownTimerName(symbol)); err != nil {
			return err
		}
	}

	log.Info().
		Str("stage", "lockout_cleared").
		Str("account", accountID).
		Str("symbol", symbol).
		Str("reason", lk.Reason).
		Msg("lockout cleared")
	return nil
}

// ClearDateBound removes every lockout with an expiry for the account; used
// by the daily reset. Permanent lockouts (auth revocation, blocked symbols)
// survive the reset.
func (m *Manager) ClearDateBound(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, lk := range m.active {
		if key.accountID != accountID || lk.ExpiresAt == nil {
			continue
		}
		if err := m.clearLocked(key.accountID, key.symbol); err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired clears hard lockouts whose expiry has passed. Cooldown
// lockouts are left to their paired timer so there is exactly one expiry
// path per lockout.
func (m *Manager) SweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	for key, lk := range m.active {
		if lk.Kind != Hard || lk.ExpiresAt == nil || lk.ExpiresAt.After(now) {
			continue
		}
		if err := m.clearLocked(key.accountID, key.symbol); err != nil {
			log.Error().Err(err).
				Str("stage", "lockout_sweep").
				Str("symbol", key.symbol).
				Msg("clear expired lockout failed")
		}
	}
}
