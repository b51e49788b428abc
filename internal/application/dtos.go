package application

import (
	"time"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// UnitDTO represents a work unit in responses
type UnitDTO struct {
	UnitID           string        `json:"unitId"`
	Kind             string        `json:"kind"`
	OrderIDs         []string      `json:"orderIds"`
	Items            []ItemDTO     `json:"items"`
	Priority         string        `json:"priority"`
	Status           string        `json:"status"`
	OnHold           bool          `json:"onHold"`
	ClaimedBy        string        `json:"claimedBy,omitempty"`
	ClaimedAt        *time.Time    `json:"claimedAt,omitempty"`
	CombinedGroupID  string        `json:"combinedGroupId,omitempty"`
	ParentUnitID     string        `json:"parentUnitId,omitempty"`
	Exception        *ExceptionDTO `json:"exception,omitempty"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	CompletedBy      string        `json:"completedBy,omitempty"`
	ReadyToShipAt    *time.Time    `json:"readyToShipAt,omitempty"`
	CurrentItemIndex int           `json:"currentItemIndex"`
	PickedUnits      int           `json:"pickedUnits"`
	TotalUnits       int           `json:"totalUnits"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	Version          int64         `json:"version"`
	// Members lists the other units of a combined group, parent first
	Members []UnitDTO `json:"members,omitempty"`
}

// ItemDTO represents one line of a unit
type ItemDTO struct {
	ItemID         string        `json:"itemId"`
	OrderID        string        `json:"orderId"`
	SKU            string        `json:"sku"`
	Barcode        string        `json:"barcode,omitempty"`
	ProductName    string        `json:"productName,omitempty"`
	LocationID     string        `json:"locationId"`
	Quantity       int           `json:"quantity"`
	PickedQuantity int           `json:"pickedQuantity"`
	Status         string        `json:"status"`
	Short          *ShortPickDTO `json:"short,omitempty"`
	LastPickMethod string        `json:"lastPickMethod,omitempty"`
	PickedAt       *time.Time    `json:"pickedAt,omitempty"`
}

// ShortPickDTO represents a short pick record
type ShortPickDTO struct {
	Reason         string    `json:"reason"`
	Note           string    `json:"note,omitempty"`
	PickedQuantity int       `json:"pickedQuantity"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// ExceptionDTO represents a unit exception
type ExceptionDTO struct {
	Status     string     `json:"status"`
	ItemID     string     `json:"itemId"`
	Reason     string     `json:"reason"`
	RaisedBy   string     `json:"raisedBy,omitempty"`
	RaisedAt   time.Time  `json:"raisedAt"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// UpdateItemResultDTO is the response to an item update. Reconciliation is
// computed per call and never stored.
type UpdateItemResultDTO struct {
	Item           ItemDTO                       `json:"item"`
	Unit           *UnitDTO                      `json:"unit"`
	Reconciliation *domain.ReconciliationContext `json:"reconciliation"`
}

// TimelineEntryDTO represents one audit entry
type TimelineEntryDTO struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"eventType"`
	ActorID    string                 `json:"actorId,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// BinCountResultDTO represents the outcome of a bin count
type BinCountResultDTO struct {
	SKU             string `json:"sku"`
	LocationID      string `json:"locationId"`
	Adjustment      int    `json:"adjustment"`
	OnHand          int    `json:"onHand"`
	ReplenTriggered bool   `json:"replenTriggered"`
	ReplenStatus    string `json:"replenStatus"`
	TaskID          string `json:"taskId,omitempty"`
}
