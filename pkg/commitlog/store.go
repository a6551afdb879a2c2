package commitlog

import "sync"

// Entry is one [offset, message] pair as it appears on the wire.
type Entry [2]uint64

// Store holds per-key append-only logs plus committed consumer offsets.
// Offsets are positions in the key's log, assigned densely from 0.
type Store struct {
	mu      sync.RWMutex
	logs    map[string][]uint64
	commits map[string]uint64
}

func NewStore() *Store {
	return &Store{
		logs:    make(map[string][]uint64),
		commits: make(map[string]uint64),
	}
}

// Append adds msg to key's log and returns its assigned offset.
func (s *Store) Append(key string, msg uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	offset := uint64(len(s.logs[key]))
	s.logs[key] = append(s.logs[key], msg)
	return offset
}

// Read returns the entries of key's log at or after from. The second return
// is false when no log exists for key at all.
func (s *Store) Read(key string, from uint64) ([]Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[key]
	if !ok {
		return nil, false
	}
	entries := make([]Entry, 0, len(log))
	for offset, msg := range log {
		if uint64(offset) >= from {
			entries = append(entries, Entry{uint64(offset), msg})
		}
	}
	return entries, true
}

// Commit stores the given committed offsets, overwriting prior values.
func (s *Store) Commit(offsets map[string]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, offset := range offsets {
		s.commits[key] = offset
	}
}

// Committed returns the stored offsets for the requested keys; keys with no
// committed offset are omitted.
func (s *Store) Committed(keys []string) map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(keys))
	for _, key := range keys {
		if offset, ok := s.commits[key]; ok {
			out[key] = offset
		}
	}
	return out
}

// Len returns the number of keys with a log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}
