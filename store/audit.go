package store

import (
	"fmt"
	"time"
)

// AuditRecord is one append-only row describing an enforcement attempt or a
// state transition worth keeping for an operator.
type AuditRecord struct {
	ID        string
	Time      time.Time
	AccountID string
	Action    string
	Symbol    string
	Reason    string
	Result    string
}

func (s *Store) AppendAudit(rec AuditRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_log (id, time, account_id, action, symbol, reason, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time, rec.AccountID, rec.Action, rec.Symbol, rec.Reason, rec.Result,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAuditBetween returns audit rows in [start, end), oldest first.
func (s *Store) ListAuditBetween(start, end time.Time) ([]AuditRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, time, account_id, action, symbol, reason, result
		FROM audit_log
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.AccountID, &rec.Action,
			&rec.Symbol, &rec.Reason, &rec.Result); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
