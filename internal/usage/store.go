package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Store persists usage records. Records are append-only.
type Store interface {
	Append(ctx context.Context, rec *entity.UsageRecord) error
	// Range returns records with from <= timestamp < to, oldest first
	Range(ctx context.Context, from, to time.Time) ([]entity.UsageRecord, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records []entity.UsageRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec *entity.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) Range(_ context.Context, from, to time.Time) ([]entity.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.UsageRecord
	for _, r := range s.records {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
