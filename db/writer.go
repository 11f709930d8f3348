package db

import (
	"context"
	"log/slog"
)

// Writer inserts journal entries from a single goroutine so callers never
// wait on SQLite.
type Writer struct {
	db      *DB
	entries chan Entry
	done    chan struct{}
}

func NewWriter(db *DB, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	return &Writer{
		db:      db,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
}

// Enqueue hands e to the writer. It reports false, dropping e, when the
// buffer is full.
func (w *Writer) Enqueue(e Entry) bool {
	select {
	case w.entries <- e:
		return true
	default:
		return false
	}
}

// Run writes entries until ctx is cancelled, then flushes what is already
// buffered and closes Done.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case e := <-w.entries:
			w.insert(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-w.entries:
					w.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) Done() <-chan struct{} { return w.done }

func (w *Writer) insert(e Entry) {
	if _, err := w.db.InsertEntry(context.Background(), e); err != nil {
		slog.Warn("journal insert failed", "action", e.Action, "err", err)
	}
}
