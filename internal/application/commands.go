package application

import "github.com/wms-platform/pick-floor/internal/domain"

// CreateUnitCommand represents the command to ingest an order or batch
type CreateUnitCommand struct {
	UnitID   string
	Kind     string
	OrderIDs []string
	Priority string
	Items    []domain.Item
}

// CombineUnitsCommand represents the command to form a combined group
type CombineUnitsCommand struct {
	UnitIDs      []string
	ParentUnitID string
	ActorID      string
}

// GetUnitQuery represents the query to get a unit by ID
type GetUnitQuery struct {
	UnitID string
}

// GetQueueQuery represents the query for a picker's queue
type GetQueueQuery struct {
	PickerID         string
	Filter           string
	IncludeCompleted bool
}

// ClaimUnitCommand represents the command to claim a unit
type ClaimUnitCommand struct {
	UnitID   string
	PickerID string
}

// ReleaseUnitCommand represents the command for a holder to give up a claim
type ReleaseUnitCommand struct {
	UnitID        string
	PickerID      string
	ResetProgress bool
}

// ForceReleaseCommand represents the privileged release
type ForceReleaseCommand struct {
	UnitID        string
	ActorID       string
	ResetProgress bool
}

// HoldCommand represents both hold and release-hold
type HoldCommand struct {
	UnitID  string
	ActorID string
}

// SetPriorityCommand represents the command to re-rank a unit
type SetPriorityCommand struct {
	UnitID   string
	Priority string
	ActorID  string
}

// UpdateItemCommand carries the absolute picked count for an item. Status
// "short" closes the item short with Reason; any other status is derived.
type UpdateItemCommand struct {
	UnitID         string
	ItemID         string
	PickerID       string
	PickedQuantity int
	Status         string
	Method         string
	Reason         string
	Note           string
}

// ResolveExceptionCommand represents a lead's resolution
type ResolveExceptionCommand struct {
	UnitID     string
	Resolution string
	ActorID    string
	Note       string
}

// ReadyToShipCommand represents the hand-off to shipping
type ReadyToShipCommand struct {
	UnitID  string
	ActorID string
}

// BinCountCommand represents a physical bin count
type BinCountCommand struct {
	SKU            string
	LocationID     string
	ActualQuantity int
	CountedBy      string
}
