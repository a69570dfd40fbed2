package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"insiderflow/models"
)

// PositionStore is the durable collection of open positions, keyed by symbol.
// Every mutation is persisted before the call returns. The on-disk format is
// a JSON array of position objects with ISO-8601 UTC entry times.
type PositionStore struct {
	path      string
	mu        sync.Mutex
	positions map[string]models.Position
}

// OpenPositions loads the position set from path, starting empty when the
// file does not exist yet.
func OpenPositions(path string) (*PositionStore, error) {
	s := &PositionStore{path: path, positions: make(map[string]models.Position)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read positions state: %w", err)
	}

	var list []models.Position
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse positions state: %w", err)
	}
	for _, p := range list {
		s.positions[p.Symbol] = p
	}
	return s, nil
}

// ListOpen returns all open positions ordered by symbol, so engine iteration
// is deterministic across cycles.
func (s *PositionStore) ListOpen() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Has reports whether an open position exists for symbol.
func (s *PositionStore) Has(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.positions[symbol]
	return ok
}

// Add records a new open position and persists. An existing position for the
// same symbol is replaced; the engine prevents this case by skipping entries
// for symbols it already holds.
func (s *PositionStore) Add(p models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.positions[p.Symbol]
	s.positions[p.Symbol] = p
	if err := s.save(); err != nil {
		if had {
			s.positions[p.Symbol] = prev
		} else {
			delete(s.positions, p.Symbol)
		}
		return err
	}
	return nil
}

// Remove deletes the position for symbol and persists. Removing an absent
// symbol is a no-op.
func (s *PositionStore) Remove(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.positions[symbol]
	if !ok {
		return nil
	}
	delete(s.positions, symbol)
	if err := s.save(); err != nil {
		s.positions[symbol] = prev
		return err
	}
	return nil
}

func (s *PositionStore) snapshot() []models.Position {
	list := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
	return list
}

func (s *PositionStore) save() error {
	list := s.snapshot()
	for i := range list {
		list[i].EntryTime = list[i].EntryTime.UTC()
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode positions state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
