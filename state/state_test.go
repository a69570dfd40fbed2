package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"insiderflow/models"
)

func TestSeenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")

	s, err := OpenSeen(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Seen("abc") {
		t.Fatalf("fresh store reports fingerprint as seen")
	}
	if err := s.MarkSeen("abc"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !s.Seen("abc") {
		t.Fatalf("fingerprint not recorded")
	}

	// Reload from disk: durability is write-through.
	reloaded, err := OpenSeen(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reloaded.Seen("abc") {
		t.Fatalf("fingerprint lost across reload")
	}
	if reloaded.Len() != 1 {
		t.Errorf("unexpected length: %d", reloaded.Len())
	}
}

func TestSeenStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	s, err := OpenSeen(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.MarkSeen("b"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkSeen("a"); err != nil {
		t.Fatalf("mark: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var fingerprints []string
	if err := json.Unmarshal(data, &fingerprints); err != nil {
		t.Fatalf("state file is not a JSON string array: %v", err)
	}
	if len(fingerprints) != 2 || fingerprints[0] != "a" || fingerprints[1] != "b" {
		t.Errorf("unexpected contents: %v", fingerprints)
	}
}

func TestPositionStoreAddRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open_positions.json")
	s, err := OpenPositions(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	pos := models.Position{
		Symbol:     "ACME",
		Qty:        2,
		EntryPrice: 41.5,
		EntryTime:  time.Date(2025, 6, 2, 15, 4, 5, 0, time.UTC),
	}
	if err := s.Add(pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.Has("ACME") {
		t.Fatalf("position not recorded")
	}

	reloaded, err := OpenPositions(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	open := reloaded.ListOpen()
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if open[0] != pos {
		t.Errorf("position changed across reload: %+v", open[0])
	}

	if err := reloaded.Remove("ACME"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(reloaded.ListOpen()) != 0 {
		t.Fatalf("position not removed")
	}

	// Removing an absent symbol is a no-op.
	if err := reloaded.Remove("ACME"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestPositionStoreDeterministicOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open_positions.json")
	s, err := OpenPositions(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now().UTC()
	for _, sym := range []string{"ZZZ", "AAA", "MMM"} {
		if err := s.Add(models.Position{Symbol: sym, Qty: 1, EntryPrice: 1, EntryTime: now}); err != nil {
			t.Fatalf("add %s: %v", sym, err)
		}
	}
	open := s.ListOpen()
	if open[0].Symbol != "AAA" || open[1].Symbol != "MMM" || open[2].Symbol != "ZZZ" {
		t.Errorf("positions not sorted by symbol: %+v", open)
	}
}

func TestStatsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticker_stats.json")
	s, err := OpenStats(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, ok := s.SuccessRate("ACME"); ok {
		t.Fatalf("fresh store reports history")
	}

	if err := s.Record("ACME", true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record("ACME", false); err != nil {
		t.Fatalf("record: %v", err)
	}

	reloaded, err := OpenStats(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rate, ok := reloaded.SuccessRate("ACME")
	if !ok || rate != 0.5 {
		t.Errorf("SuccessRate = (%v, %v), want (0.5, true)", rate, ok)
	}
}
