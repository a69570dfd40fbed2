package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// SeenStore is the durable filing-fingerprint set. It grows monotonically and
// every MarkSeen is persisted before the call returns, so the engine can mark
// a filing before acting on it and a crash in between loses at most the
// signal, never produces a duplicate order.
type SeenStore struct {
	path string
	mu   sync.Mutex
	set  map[string]struct{}
}

// OpenSeen loads the fingerprint set from path, starting empty when the file
// does not exist yet. The on-disk format is a JSON array of strings.
func OpenSeen(path string) (*SeenStore, error) {
	s := &SeenStore{path: path, set: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seen state: %w", err)
	}

	var fingerprints []string
	if err := json.Unmarshal(data, &fingerprints); err != nil {
		return nil, fmt.Errorf("failed to parse seen state: %w", err)
	}
	for _, fp := range fingerprints {
		s.set[fp] = struct{}{}
	}
	return s, nil
}

// Seen reports whether the fingerprint has already been processed.
func (s *SeenStore) Seen(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[fingerprint]
	return ok
}

// MarkSeen adds the fingerprint and persists the set immediately
// (write-through, never batched).
func (s *SeenStore) MarkSeen(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[fingerprint]; ok {
		return nil
	}
	s.set[fingerprint] = struct{}{}
	if err := s.save(); err != nil {
		delete(s.set, fingerprint)
		return err
	}
	return nil
}

// Len returns the number of fingerprints on record.
func (s *SeenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

func (s *SeenStore) save() error {
	fingerprints := make([]string, 0, len(s.set))
	for fp := range s.set {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	data, err := json.Marshal(fingerprints)
	if err != nil {
		return fmt.Errorf("failed to encode seen state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
