package db

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// DefaultRetention is how many journal rows Open keeps.
	DefaultRetention = 1000
	// MaxFieldBytes bounds every stored text column.
	MaxFieldBytes = 1024

	defaultRecent = 50
	maxRecent     = 100
)

type Entry struct {
	ID         int64
	Action     string
	Input      string
	Status     string
	Message    string
	Detail     string
	DurationMS int64
	CreatedAt  time.Time
}

// InsertEntry stores e and prunes everything older than the newest
// Retention rows in the same transaction.
func (db *DB) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO command_log (action, input, status, message, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Action, truncate(e.Input), e.Status, truncate(e.Message), truncate(e.Detail), e.DurationMS, e.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if db.Retention > 0 {
		// AUTOINCREMENT ids never go backwards.
		if _, err := tx.ExecContext(ctx, `DELETE FROM command_log WHERE id <= ?`, id-int64(db.Retention)); err != nil {
			return 0, fmt.Errorf("prune journal: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// RecentEntries returns up to limit of the newest entries in chronological
// order. limit <= 0 means 50; anything above 100 is capped at 100.
func (db *DB) RecentEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecent
	} else if limit > maxRecent {
		limit = maxRecent
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, action, input, status, message, detail, duration_ms, created_at
		FROM command_log
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.Input, &e.Status, &e.Message, &e.Detail, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count returns the number of journal rows.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_log`).Scan(&n)
	return n, err
}

// truncate cuts s to MaxFieldBytes without splitting a UTF-8 sequence.
func truncate(s string) string {
	if len(s) <= MaxFieldBytes {
		return s
	}
	cut := MaxFieldBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
