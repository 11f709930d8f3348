package db

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRetentionCapsRows(t *testing.T) {
	database := openTest(t)
	database.Retention = 10
	ctx := context.Background()

	big := strings.Repeat("9", 60<<10)
	var last int64
	for i := 0; i < 50; i++ {
		id, err := database.InsertEntry(ctx, Entry{Action: "calculate", Input: big, Status: "error", Message: "Invalid expression"})
		if err != nil {
			t.Fatalf("InsertEntry error: %v", err)
		}
		last = id
	}

	n, err := database.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 10 {
		t.Errorf("rows = %d, want 10", n)
	}

	entries, err := database.RecentEntries(ctx, 0)
	if err != nil {
		t.Fatalf("RecentEntries error: %v", err)
	}
	if len(entries) != 10 || entries[9].ID != last || entries[0].ID != last-9 {
		t.Fatalf("kept ids %d..%d, want %d..%d", entries[0].ID, entries[len(entries)-1].ID, last-9, last)
	}
	for _, e := range entries {
		if len(e.Input) != MaxFieldBytes {
			t.Fatalf("stored input is %d bytes, want %d", len(e.Input), MaxFieldBytes)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", MaxFieldBytes-1) + "é"
	got := truncate(s)
	if !utf8.ValidString(got) || len(got) != MaxFieldBytes-1 {
		t.Errorf("truncate gave %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
	if truncate("short") != "short" {
		t.Error("short strings must pass through")
	}
}

func TestRecentEntriesLimits(t *testing.T) {
	database := openTest(t)
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		if _, err := database.InsertEntry(ctx, Entry{Action: "search", Input: "cats", Status: "success", Message: "Searching for cats"}); err != nil {
			t.Fatalf("InsertEntry error: %v", err)
		}
	}

	tests := []struct {
		limit, want int
	}{
		{0, 50},
		{-3, 50},
		{7, 7},
		{100, 100},
		{200, 100},
	}
	for _, tt := range tests {
		entries, err := database.RecentEntries(ctx, tt.limit)
		if err != nil {
			t.Fatalf("RecentEntries(%d) error: %v", tt.limit, err)
		}
		if len(entries) != tt.want {
			t.Errorf("RecentEntries(%d) returned %d, want %d", tt.limit, len(entries), tt.want)
		}
	}
}

func TestWriterFlushesOnStop(t *testing.T) {
	database := openTest(t)
	w := NewWriter(database, 8)
	for i := 0; i < 3; i++ {
		if !w.Enqueue(Entry{Action: "calculate", Input: "1+1", Status: "success", Message: "2"}) {
			t.Fatal("Enqueue rejected an entry with room in the buffer")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	n, err := database.Count(context.Background())
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done not closed after Run returned")
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := NewWriter(openTest(t), 1)
	if !w.Enqueue(Entry{Action: "search"}) {
		t.Fatal("first Enqueue should fit")
	}
	if w.Enqueue(Entry{Action: "search"}) {
		t.Error("Enqueue should not block or accept past the buffer")
	}
}
