package audit

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"energylink/models"
)

// MemoryStore keeps entries in a copy-on-write slice. Readers load the
// current snapshot without locking; writers serialise on mu and publish a new
// slice.
type MemoryStore struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]models.AuditLogEntry]
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	empty := make([]models.AuditLogEntry, 0)
	s.entries.Store(&empty)
	return s
}

func (s *MemoryStore) snapshot() []models.AuditLogEntry {
	return *s.entries.Load()
}

func (s *MemoryStore) Append(ctx context.Context, entry models.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.Details = maps.Clone(entry.Details)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot()
	next := make([]models.AuditLogEntry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry)
	s.entries.Store(&next)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]models.AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur := s.snapshot()
	out := make([]models.AuditLogEntry, 0, len(cur))
	for _, e := range cur {
		if filter.Match(e) {
			e.Details = maps.Clone(e.Details)
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	return len(s.snapshot()), nil
}

func (s *MemoryStore) Truncate(ctx context.Context, marker MarkerFunc) ([]models.AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.snapshot()
	m := marker(removed)
	m.Details = maps.Clone(m.Details)
	next := []models.AuditLogEntry{m}
	s.entries.Store(&next)
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
