package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryKeyRepository keeps idempotency records in process memory. Records
// never expire; it backs single-instance deployments and tests.
type MemoryKeyRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryKeyRepository creates an empty MemoryKeyRepository
func NewMemoryKeyRepository() *MemoryKeyRepository {
	return &MemoryKeyRepository{records: map[string]*Record{}}
}

func (r *MemoryKeyRepository) AcquireLock(ctx context.Context, rec *Record, staleBefore time.Time) (*Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	existing, ok := r.records[rec.ID]
	if !ok {
		copied := *rec
		copied.LockedAt = &now
		r.records[rec.ID] = &copied
		out := copied
		return &out, true, nil
	}
	if !existing.IsCompleted() && (existing.LockedAt == nil || existing.LockedAt.Before(staleBefore)) {
		existing.LockedAt = &now
		out := *existing
		return &out, true, nil
	}
	out := *existing
	return &out, false, nil
}

func (r *MemoryKeyRepository) ReleaseLock(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.LockedAt = nil
	}
	return nil
}

func (r *MemoryKeyRepository) StoreResponse(ctx context.Context, id string, code int, body []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	rec.ResponseCode = code
	rec.ResponseBody = append([]byte(nil), body...)
	rec.ResponseHeaders = headers
	rec.CompletedAt = &now
	rec.LockedAt = nil
	return nil
}
