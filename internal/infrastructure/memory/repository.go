// Package memory holds in-process repositories with the same version
// discipline as the MongoDB ones. The API runs on them with STORAGE_MODE=memory
// and the service tests use them in place of a database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// EventListener observes unit events after a successful save
type EventListener func(unitID string, events []domain.DomainEvent)

// UnitRepository implements domain.UnitRepository and domain.TimelineRepository
type UnitRepository struct {
	mu        sync.RWMutex
	units     map[string]*domain.WorkUnit
	timeline  map[string][]domain.TimelineEntry
	listeners []EventListener
}

func NewUnitRepository() *UnitRepository {
	return &UnitRepository{
		units:    make(map[string]*domain.WorkUnit),
		timeline: make(map[string][]domain.TimelineEntry),
	}
}

// OnEvents registers fn to receive the events of every save
func (r *UnitRepository) OnEvents(fn EventListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *UnitRepository) Save(ctx context.Context, unit *domain.WorkUnit) error {
	return r.SaveAll(ctx, []*domain.WorkUnit{unit})
}

func (r *UnitRepository) SaveAll(ctx context.Context, units []*domain.WorkUnit) error {
	r.mu.Lock()
	for _, u := range units {
		stored, ok := r.units[u.UnitID]
		if (ok && stored.Version != u.Version) || (!ok && u.Version != 0) {
			r.mu.Unlock()
			return fmt.Errorf("%s: %w", u.UnitID, domain.ErrConcurrentModification)
		}
	}

	now := time.Now().UTC()
	type saved struct {
		unitID string
		events []domain.DomainEvent
	}
	batch := make([]saved, 0, len(units))
	for _, u := range units {
		u.Version++
		u.UpdatedAt = now
		r.units[u.UnitID] = u.Clone()
		for _, event := range u.GetDomainEvents() {
			r.timeline[u.UnitID] = append(r.timeline[u.UnitID], timelineEntry(u.UnitID, event))
		}
		batch = append(batch, saved{unitID: u.UnitID, events: u.GetDomainEvents()})
		u.ClearDomainEvents()
	}
	listeners := append([]EventListener(nil), r.listeners...)
	r.mu.Unlock()

	for _, b := range batch {
		if len(b.events) == 0 {
			continue
		}
		for _, fn := range listeners {
			fn(b.unitID, b.events)
		}
	}
	return nil
}

func (r *UnitRepository) FindByID(ctx context.Context, unitID string) (*domain.WorkUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.units[unitID]; ok {
		return u.Clone(), nil
	}
	return nil, nil
}

func (r *UnitRepository) FindByIDs(ctx context.Context, unitIDs []string) ([]*domain.WorkUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.WorkUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		if u, ok := r.units[id]; ok {
			out = append(out, u.Clone())
		}
	}
	domain.SortQueue(out)
	return out, nil
}

func (r *UnitRepository) FindByGroupID(ctx context.Context, groupID string) ([]*domain.WorkUnit, error) {
	return r.filter(func(u *domain.WorkUnit) bool { return u.CombinedGroupID == groupID }), nil
}

func (r *UnitRepository) FindQueue(ctx context.Context, query domain.QueueQuery) ([]*domain.WorkUnit, error) {
	return domain.FilterQueue(r.filter(func(*domain.WorkUnit) bool { return true }), query), nil
}

func (r *UnitRepository) FindNextClaimable(ctx context.Context) (*domain.WorkUnit, error) {
	return domain.NextClaimable(r.filter(func(*domain.WorkUnit) bool { return true })), nil
}

func (r *UnitRepository) FindWithOpenExceptions(ctx context.Context) ([]*domain.WorkUnit, error) {
	return r.filter(func(u *domain.WorkUnit) bool { return u.HasOpenException() }), nil
}

// FindByUnitID returns the unit's timeline oldest first
func (r *UnitRepository) FindByUnitID(ctx context.Context, unitID string) ([]domain.TimelineEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TimelineEntry{}, r.timeline[unitID]...), nil
}

func (r *UnitRepository) filter(keep func(*domain.WorkUnit) bool) []*domain.WorkUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.WorkUnit, 0)
	for _, u := range r.units {
		if keep(u) {
			out = append(out, u.Clone())
		}
	}
	domain.SortQueue(out)
	return out
}

func timelineEntry(unitID string, event domain.DomainEvent) domain.TimelineEntry {
	var data map[string]interface{}
	if raw, err := json.Marshal(event); err == nil {
		_ = json.Unmarshal(raw, &data)
	}
	return domain.TimelineEntry{
		ID:         uuid.New().String(),
		UnitID:     unitID,
		EventType:  event.EventType(),
		ActorID:    event.Actor(),
		Data:       data,
		OccurredAt: event.OccurredAt(),
	}
}

// BinStockRepository implements domain.BinStockRepository
type BinStockRepository struct {
	mu   sync.RWMutex
	bins map[string]domain.BinStock
}

func NewBinStockRepository(bins ...*domain.BinStock) *BinStockRepository {
	r := &BinStockRepository{bins: make(map[string]domain.BinStock)}
	for _, b := range bins {
		stored := *b
		stored.DomainEvents = nil
		r.bins[b.ID] = stored
	}
	return r
}

func (r *BinStockRepository) Save(ctx context.Context, bin *domain.BinStock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.bins[bin.ID]
	if (ok && stored.Version != bin.Version) || (!ok && bin.Version != 0) {
		return fmt.Errorf("bin %s: %w", bin.ID, domain.ErrConcurrentModification)
	}
	bin.Version++
	bin.UpdatedAt = time.Now().UTC()
	bin.ClearDomainEvents()
	copied := *bin
	copied.DomainEvents = nil
	r.bins[bin.ID] = copied
	return nil
}

func (r *BinStockRepository) FindByLocation(ctx context.Context, sku, locationID string) (*domain.BinStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bins[domain.BinID(sku, locationID)]
	if !ok {
		return nil, nil
	}
	if b.LastCountedAt != nil {
		t := *b.LastCountedAt
		b.LastCountedAt = &t
	}
	return &b, nil
}
