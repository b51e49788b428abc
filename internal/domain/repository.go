package domain

import (
	"context"
	"time"
)

// UnitRepository persists work units. Saves are conditional on Version and
// fail with ErrConcurrentModification when another writer got there first.
type UnitRepository interface {
	Save(ctx context.Context, unit *WorkUnit) error
	// SaveAll saves every unit or none
	SaveAll(ctx context.Context, units []*WorkUnit) error
	FindByID(ctx context.Context, unitID string) (*WorkUnit, error)
	FindByIDs(ctx context.Context, unitIDs []string) ([]*WorkUnit, error)
	FindByGroupID(ctx context.Context, groupID string) ([]*WorkUnit, error)
	FindQueue(ctx context.Context, query QueueQuery) ([]*WorkUnit, error)
	FindNextClaimable(ctx context.Context) (*WorkUnit, error)
	FindWithOpenExceptions(ctx context.Context) ([]*WorkUnit, error)
}

// BinStockRepository persists bins with the same version discipline
type BinStockRepository interface {
	Save(ctx context.Context, bin *BinStock) error
	FindByLocation(ctx context.Context, sku, locationID string) (*BinStock, error)
}

// TimelineEntry is one audit record of a unit's history
type TimelineEntry struct {
	ID         string                 `bson:"_id" json:"id"`
	UnitID     string                 `bson:"unitId" json:"unitId"`
	EventType  string                 `bson:"eventType" json:"eventType"`
	ActorID    string                 `bson:"actorId,omitempty" json:"actorId,omitempty"`
	Data       map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	OccurredAt time.Time              `bson:"occurredAt" json:"occurredAt"`
}

// TimelineRepository reads the audit log written alongside unit saves
type TimelineRepository interface {
	FindByUnitID(ctx context.Context, unitID string) ([]TimelineEntry, error)
}

// InventoryGateway is the inventory collaborator. Stock mutation belongs to
// it; the picking floor only sees the resulting ReconciliationContext.
type InventoryGateway interface {
	Deduct(ctx context.Context, sku, locationID string, qty int, actorID string) (*ReconciliationContext, error)
	Restore(ctx context.Context, sku, locationID string, qty int, actorID string) (*ReconciliationContext, error)
	// ReportShort deducts the units picked on a line closed short, which may
	// be none, and reports whether the bin needs a count
	ReportShort(ctx context.Context, sku, locationID string, picked int, reason ShortReason, actorID string) (*ReconciliationContext, error)
	ConfirmCount(ctx context.Context, count BinCount) (*CountResult, error)
	SkipReplenishment(ctx context.Context, count BinCount) (*CountResult, error)
}
