package timer

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/riskgate/store"
)

// ActionKind is the closed set of things a timer may do on expiry. Actions
// are persisted as data, never as closures, so a restart mid-cooldown
// replays them correctly.
type ActionKind string

const (
	ActionClearLockout ActionKind = "clear_lockout"
	ActionCheckStop    ActionKind = "check_stop"
)

// Action is the bounded work performed when a timer fires. Symbol is the
// lockout key for clear_lockout (empty = account-wide) or the instrument for
// check_stop.
type Action struct {
	Kind   ActionKind
	Symbol string
}

// Timer is one named countdown. Names are unique per account; re-arming a
// name replaces the previous timer.
type Timer struct {
	AccountID string
	Name      string
	ExpiresAt time.Time
	Action    Action
}

// Dispatch receives fired actions. The engine wires this to the lockout
// manager and the stop-loss check.
type Dispatch func(accountID string, a Action)

// Manager owns the timers table and its in-memory mirror. Tick is driven by
// the engine's one-second sweep.
type Manager struct {
	mu       sync.Mutex
	store    *store.Store
	timers   map[timerKey]Timer
	dispatch Dispatch
	nowFn    func() time.Time
}

type timerKey struct {
	accountID string
	name      string
}

// NewManager reloads persisted timers so cooldowns survive a restart with
// their original expiry, not a fresh countdown.
func NewManager(st *store.Store) (*Manager, error) {
	m := &Manager{
		store:  st,
		timers: make(map[timerKey]Timer),
		nowFn:  time.Now,
	}

	rows, err := st.DB().Query(`SELECT account_id, name, expires_at, action, action_symbol FROM timers`)
	if err != nil {
		return nil, fmt.Errorf("load timers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t      Timer
			action string
		)
		if err := rows.Scan(&t.AccountID, &t.Name, &t.ExpiresAt, &action, &t.Action.Symbol); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		t.Action.Kind = ActionKind(action)
		m.timers[timerKey{t.AccountID, t.Name}] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load timers: %w", err)
	}
	return m, nil
}

// SetDispatch installs the expiry handler. Must be called before Tick.
func (m *Manager) SetDispatch(fn Dispatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatch = fn
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

// Start arms (or re-arms) a named timer. Re-starting an existing name
// overwrites it; timers never stack.
func (m *Manager) Start(accountID, name string, d time.Duration, a Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := Timer{
		AccountID: accountID,
		Name:      name,
		ExpiresAt: m.nowFn().Add(d),
		Action:    a,
	}

	err := m.store.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO timers (account_id, name, expires_at, action, action_symbol)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(account_id, name) DO UPDATE SET
				expires_at = excluded.expires_at,
				action = excluded.action,
				action_symbol = excluded.action_symbol`,
			t.AccountID, t.Name, t.ExpiresAt, string(t.Action.Kind), t.Action.Symbol,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("start timer %q: %w", name, err)
	}

	m.timers[timerKey{accountID, name}] = t

	log.Info().
		Str("stage", "timer_started").
		Str("account", accountID).
		Str("timer", name).
		Dur("duration", d).
		Msg("timer armed")
	return nil
}

// Remaining reports time left on a timer, or 0 if it does not exist or has
// already expired.
func (m *Manager) Remaining(accountID, name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[timerKey{accountID, name}]
	if !ok {
		return 0
	}
	d := t.ExpiresAt.Sub(m.nowFn())
	if d < 0 {
		return 0
	}
	return d
}

// Cancel removes a timer without firing its action. Cancelling a missing
// timer is not an error.
func (m *Manager) Cancel(accountID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := timerKey{accountID, name}
	if _, ok := m.timers[key]; !ok {
		return nil
	}

	err := m.store.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM timers WHERE account_id = ? AND name = ?`, accountID, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("cancel timer %q: %w", name, err)
	}
	delete(m.timers, key)
	return nil
}

// Tick fires and removes expired timers. Called at least once per second by
// the engine. Actions are dispatched after the lock is released so a handler
// can call back into the manager.
func (m *Manager) Tick() {
	m.mu.Lock()

	now := m.nowFn()
	var fired []Timer
	for key, t := range m.timers {
		if t.ExpiresAt.After(now) {
			continue
		}
		if err := m.store.WithTx(func(tx *sql.Tx) error {
			_, err := tx.Exec(`DELETE FROM timers WHERE account_id = ? AND name = ?`, t.AccountID, t.Name)
			return err
		}); err != nil {
			// Leave the timer armed; it will fire again next tick.
			log.Error().Err(err).
				Str("stage", "timer_fire").
				Str("timer", t.Name).
				Msg("persist timer removal failed")
			continue
		}
		delete(m.timers, key)
		fired = append(fired, t)
	}

	dispatch := m.dispatch
	m.mu.Unlock()

	for _, t := range fired {
		log.Info().
			Str("stage", "timer_fired").
			Str("account", t.AccountID).
			Str("timer", t.Name).
			Str("action", string(t.Action.Kind)).
			Msg("timer expired")
		if dispatch != nil {
			dispatch(t.AccountID, t.Action)
		}
	}
}

// Active returns the timers currently armed for an account.
func (m *Manager) Active(accountID string) []Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Timer
	for _, t := range m.timers {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}
