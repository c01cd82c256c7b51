package journal

import "sync"

// MemoryStore is an in-process Store with no durability, grounded on the
// teacher's persistence/provider/memory provider used in its own test
// suites. It is the default Store for tests and for callers that don't
// need results to survive a process restart.
type MemoryStore struct {
	mu      sync.Mutex
	order   []uint32
	entries map[uint32]Entry
	step    uint32
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: map[uint32]Entry{},
	}
}

func (s *MemoryStore) put(id uint32, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		s.order = append(s.order, id)
	}

	s.entries[id] = e
	return nil
}

// Replay invokes fn once for every record currently in the store, in the
// order each id was first written.
func (s *MemoryStore) Replay(fn func(Entry) error) error {
	s.mu.Lock()
	order := append([]uint32(nil), s.order...)
	entries := make(map[uint32]Entry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	s.mu.Unlock()

	for _, id := range order {
		if err := fn(entries[id]); err != nil {
			return err
		}
	}

	return nil
}

// PutMissing journals id as Missing.
func (s *MemoryStore) PutMissing(id uint32, keyTag, keyPayload string) error {
	return s.put(id, Entry{
		Id:         id,
		KeyTag:     keyTag,
		KeyPayload: keyPayload,
		Loaded:     false,
	})
}

// PutLoaded journals id as Loaded with the given Result.
func (s *MemoryStore) PutLoaded(id uint32, keyTag, keyPayload string, r Result) error {
	return s.put(id, Entry{
		Id:         id,
		KeyTag:     keyTag,
		KeyPayload: keyPayload,
		Loaded:     true,
		Result:     r,
	})
}

// Step returns the last-journaled Step, or 0 if none has been written.
func (s *MemoryStore) Step() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step, nil
}

// PutStep journals the current Step.
func (s *MemoryStore) PutStep(step uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = step
	return nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
