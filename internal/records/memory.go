package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store, safe for concurrent use.
// Data is lost on restart; it backs local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Put inserts or replaces a record. New records default to StatusPending.
func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return fmt.Errorf("MemoryStore.Put: %w", err)
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = &rec
	return nil
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(ctx context.Context, recordID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordID]
	if !ok {
		return nil, fmt.Errorf("MemoryStore.Get %s: %w", recordID, ErrNotFound)
	}

	recCopy := *rec
	return &recCopy, nil
}

// List returns copies of all records ordered by ID.
func (s *MemoryStore) List(ctx context.Context) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recCopy := *rec
		out = append(out, &recCopy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, recordID string, u Update) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("MemoryStore.Update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordID]
	if !ok {
		return fmt.Errorf("MemoryStore.Update %s: %w", recordID, ErrNotFound)
	}

	rec.Status = u.Status
	rec.LastReadAmount = u.LastReadAmount
	rec.OCRExcerpt = u.OCRExcerpt
	rec.UpdatedAt = s.now()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, recordID string) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("MemoryStore.Delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, recordID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
