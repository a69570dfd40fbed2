package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// TickerStats tallies closed-trade outcomes for a single symbol.
type TickerStats struct {
	Wins  int `json:"wins"`
	Total int `json:"total"`
}

// StatsStore is the durable per-ticker closed-trade tally backing the
// historical-success filter. It exists so the CSV audit sinks can stay
// write-only: the engine records outcomes here on every close.
type StatsStore struct {
	path  string
	mu    sync.Mutex
	stats map[string]TickerStats
}

// OpenStats loads the tally from path, starting empty when the file does not
// exist yet.
func OpenStats(path string) (*StatsStore, error) {
	s := &StatsStore{path: path, stats: make(map[string]TickerStats)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stats state: %w", err)
	}
	if err := json.Unmarshal(data, &s.stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats state: %w", err)
	}
	return s, nil
}

// Record tallies one closed trade for symbol and persists.
func (s *StatsStore) Record(symbol string, win bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.stats[symbol]
	next := prev
	next.Total++
	if win {
		next.Wins++
	}
	s.stats[symbol] = next
	if err := s.save(); err != nil {
		s.stats[symbol] = prev
		return err
	}
	return nil
}

// SuccessRate returns wins/total for symbol. The second return value is
// false when no history exists, which filters treat as a pass.
func (s *StatsStore) SuccessRate(symbol string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[symbol]
	if !ok || st.Total == 0 {
		return 0, false
	}
	return float64(st.Wins) / float64(st.Total), true
}

func (s *StatsStore) save() error {
	data, err := json.MarshalIndent(s.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode stats state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
