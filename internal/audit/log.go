// Package audit records key mutations in a local SQLite database.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/maxkornevpro/key/internal/model"
)

// Log is an append-only record of key mutations.
type Log struct {
	db *sqlx.DB
}

// Open opens the audit database at path, creating it if needed. Pass an
// empty string for an in-memory log.
func Open(path string) (*Log, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends ev. ev.At defaults to now.
func (l *Log) Record(ctx context.Context, ev model.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	ev.At = ev.At.UTC()
	if ev.Actor == "" {
		ev.Actor = "system"
	}

	const q = `INSERT INTO key_events
		(action, key_id, user_id, actor, detail, at)
		VALUES
		(:action, :key_id, :user_id, :actor, :detail, :at)`

	if _, err := l.db.NamedExecContext(ctx, q, ev); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns the most recent events first. A limit of zero or less returns
// every event.
func (l *Log) List(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	q := "SELECT id, action, key_id, user_id, actor, detail, at FROM key_events ORDER BY id DESC"
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	var events []model.AuditEvent
	if err := l.db.SelectContext(ctx, &events, q, args...); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return localize(events), nil
}

// ListForKey returns the events for one key in the order they happened.
func (l *Log) ListForKey(ctx context.Context, key string) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	err := l.db.SelectContext(ctx, &events,
		"SELECT id, action, key_id, user_id, actor, detail, at FROM key_events WHERE key_id = ? ORDER BY id", key)
	if err != nil {
		return nil, fmt.Errorf("list audit events for key: %w", err)
	}
	return localize(events), nil
}

func localize(events []model.AuditEvent) []model.AuditEvent {
	for i := range events {
		events[i].At = events[i].At.Local()
	}
	return events
}
