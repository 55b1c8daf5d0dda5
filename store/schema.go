// store/schema.go
package store

const Schema = `
CREATE TABLE IF NOT EXISTS daily_pnl (
	account_id TEXT NOT NULL,
	date TEXT NOT NULL,
	realized_pnl REAL NOT NULL DEFAULT 0,
	trade_count INTEGER NOT NULL DEFAULT 0,
	last_trade_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, date)
);

CREATE TABLE IF NOT EXISTS lockouts (
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL,
	kind TEXT NOT NULL,
	expires_at DATETIME,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS timers (
	account_id TEXT NOT NULL,
	name TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	action TEXT NOT NULL,
	action_symbol TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, name)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	account_id TEXT NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL,
	result TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(time);
`
