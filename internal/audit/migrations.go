package audit

import (
	"fmt"
	"strings"
)

func (l *Log) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS key_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			key_id TEXT NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0,
			actor TEXT NOT NULL DEFAULT 'system',
			at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_key_events_key ON key_events(key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_key_events_user ON key_events(user_id)`,

		// detail holds the duration token for issuance events.
		`ALTER TABLE key_events ADD COLUMN detail TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := l.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if the column already exists;
			// skip so migrations stay idempotent.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
