package domain

import (
	"time"

	"github.com/wms-platform/pick-floor/pkg/cloudevents"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	// Actor is the picker or lead who caused the event
	Actor() string
}

// UnitCreatedEvent is published when a work unit enters the queue
type UnitCreatedEvent struct {
	UnitID     string    `json:"unitId"`
	Kind       string    `json:"kind"`
	OrderIDs   []string  `json:"orderIds"`
	Priority   string    `json:"priority"`
	ItemCount  int       `json:"itemCount"`
	TotalUnits int       `json:"totalUnits"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *UnitCreatedEvent) EventType() string     { return cloudevents.UnitCreated }
func (e *UnitCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }
func (e *UnitCreatedEvent) Actor() string         { return "" }

// UnitsCombinedEvent is published on the parent when a combined group forms
type UnitsCombinedEvent struct {
	GroupID       string    `json:"groupId"`
	ParentUnitID  string    `json:"parentUnitId"`
	MemberUnitIDs []string  `json:"memberUnitIds"`
	CombinedAt    time.Time `json:"combinedAt"`
}

func (e *UnitsCombinedEvent) EventType() string     { return cloudevents.UnitsCombined }
func (e *UnitsCombinedEvent) OccurredAt() time.Time { return e.CombinedAt }
func (e *UnitsCombinedEvent) Actor() string         { return "" }

// UnitClaimedEvent is published when a picker takes a unit
type UnitClaimedEvent struct {
	UnitID    string    `json:"unitId"`
	PickerID  string    `json:"pickerId"`
	GroupID   string    `json:"groupId,omitempty"`
	ClaimedAt time.Time `json:"claimedAt"`
}

func (e *UnitClaimedEvent) EventType() string     { return cloudevents.UnitClaimed }
func (e *UnitClaimedEvent) OccurredAt() time.Time { return e.ClaimedAt }
func (e *UnitClaimedEvent) Actor() string         { return e.PickerID }

// UnitReleasedEvent is published when a claim is given up or forced off
type UnitReleasedEvent struct {
	UnitID        string    `json:"unitId"`
	PickerID      string    `json:"pickerId,omitempty"`
	ActorID       string    `json:"actorId"`
	Forced        bool      `json:"forced"`
	ResetProgress bool      `json:"resetProgress"`
	ReleasedAt    time.Time `json:"releasedAt"`
}

func (e *UnitReleasedEvent) EventType() string     { return cloudevents.UnitReleased }
func (e *UnitReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }
func (e *UnitReleasedEvent) Actor() string         { return e.ActorID }

// UnitHeldEvent is published when a unit is put on hold
type UnitHeldEvent struct {
	UnitID  string    `json:"unitId"`
	ActorID string    `json:"actorId"`
	HeldAt  time.Time `json:"heldAt"`
}

func (e *UnitHeldEvent) EventType() string     { return cloudevents.UnitHeld }
func (e *UnitHeldEvent) OccurredAt() time.Time { return e.HeldAt }
func (e *UnitHeldEvent) Actor() string         { return e.ActorID }

// UnitHoldReleasedEvent is published when a hold is lifted
type UnitHoldReleasedEvent struct {
	UnitID     string    `json:"unitId"`
	ActorID    string    `json:"actorId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

func (e *UnitHoldReleasedEvent) EventType() string     { return cloudevents.UnitHoldReleased }
func (e *UnitHoldReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }
func (e *UnitHoldReleasedEvent) Actor() string         { return e.ActorID }

// UnitPriorityChangedEvent is published when a unit is re-ranked
type UnitPriorityChangedEvent struct {
	UnitID    string    `json:"unitId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e *UnitPriorityChangedEvent) EventType() string     { return cloudevents.UnitPriorityChanged }
func (e *UnitPriorityChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
func (e *UnitPriorityChangedEvent) Actor() string         { return e.ActorID }

// ItemPickedEvent is published for every count change short of a short pick
type ItemPickedEvent struct {
	UnitID         string    `json:"unitId"`
	ItemID         string    `json:"itemId"`
	SKU            string    `json:"sku"`
	LocationID     string    `json:"locationId"`
	Delta          int       `json:"delta"`
	PickedQuantity int       `json:"pickedQuantity"`
	Target         int       `json:"target"`
	Status         string    `json:"status"`
	Method         string    `json:"method"`
	PickerID       string    `json:"pickerId"`
	PickedAt       time.Time `json:"pickedAt"`
}

func (e *ItemPickedEvent) EventType() string     { return cloudevents.ItemPicked }
func (e *ItemPickedEvent) OccurredAt() time.Time { return e.PickedAt }
func (e *ItemPickedEvent) Actor() string         { return e.PickerID }

// ItemShortedEvent is published when an item closes below target
type ItemShortedEvent struct {
	UnitID         string    `json:"unitId"`
	ItemID         string    `json:"itemId"`
	OrderID        string    `json:"orderId"`
	SKU            string    `json:"sku"`
	LocationID     string    `json:"locationId"`
	Reason         string    `json:"reason"`
	Note           string    `json:"note,omitempty"`
	PickedQuantity int       `json:"pickedQuantity"`
	Target         int       `json:"target"`
	PickerID       string    `json:"pickerId"`
	ShortedAt      time.Time `json:"shortedAt"`
}

func (e *ItemShortedEvent) EventType() string     { return cloudevents.ItemShorted }
func (e *ItemShortedEvent) OccurredAt() time.Time { return e.ShortedAt }
func (e *ItemShortedEvent) Actor() string         { return e.PickerID }

// UnitExceptionRaisedEvent is published when a unit first goes short
type UnitExceptionRaisedEvent struct {
	UnitID   string    `json:"unitId"`
	ItemID   string    `json:"itemId"`
	OrderID  string    `json:"orderId"`
	Reason   string    `json:"reason"`
	PickerID string    `json:"pickerId"`
	RaisedAt time.Time `json:"raisedAt"`
}

func (e *UnitExceptionRaisedEvent) EventType() string     { return cloudevents.UnitExceptionRaised }
func (e *UnitExceptionRaisedEvent) OccurredAt() time.Time { return e.RaisedAt }
func (e *UnitExceptionRaisedEvent) Actor() string         { return e.PickerID }

// UnitExceptionResolvedEvent is published when a lead resolves an exception
type UnitExceptionResolvedEvent struct {
	UnitID      string          `json:"unitId"`
	Resolution  string          `json:"resolution"`
	ResolvedBy  string          `json:"resolvedBy"`
	Note        string          `json:"note,omitempty"`
	Backordered []BackorderLine `json:"backordered,omitempty"`
	ResolvedAt  time.Time       `json:"resolvedAt"`
}

func (e *UnitExceptionResolvedEvent) EventType() string     { return cloudevents.UnitExceptionResolved }
func (e *UnitExceptionResolvedEvent) OccurredAt() time.Time { return e.ResolvedAt }
func (e *UnitExceptionResolvedEvent) Actor() string         { return e.ResolvedBy }

// UnitCompletedEvent is published when every item of a unit is terminal
type UnitCompletedEvent struct {
	UnitID      string    `json:"unitId"`
	PickerID    string    `json:"pickerId"`
	OrderIDs    []string  `json:"orderIds"`
	TotalUnits  int       `json:"totalUnits"`
	PickedUnits int       `json:"pickedUnits"`
	ShortItems  int       `json:"shortItems"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *UnitCompletedEvent) EventType() string     { return cloudevents.UnitCompleted }
func (e *UnitCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
func (e *UnitCompletedEvent) Actor() string         { return e.PickerID }

// UnitReadyToShipEvent is published when a completed unit is handed to shipping
type UnitReadyToShipEvent struct {
	UnitID   string    `json:"unitId"`
	OrderIDs []string  `json:"orderIds"`
	ActorID  string    `json:"actorId"`
	Partial  bool      `json:"partial"`
	ReadyAt  time.Time `json:"readyAt"`
}

func (e *UnitReadyToShipEvent) EventType() string     { return cloudevents.UnitReadyToShip }
func (e *UnitReadyToShipEvent) OccurredAt() time.Time { return e.ReadyAt }
func (e *UnitReadyToShipEvent) Actor() string         { return e.ActorID }

// BinCountConfirmedEvent is published when a picker counts a bin
type BinCountConfirmedEvent struct {
	SKU          string    `json:"sku"`
	LocationID   string    `json:"locationId"`
	Previous     int       `json:"previous"`
	Counted      int       `json:"counted"`
	Adjustment   int       `json:"adjustment"`
	ReplenStatus string    `json:"replenStatus"`
	CountedBy    string    `json:"countedBy"`
	CountedAt    time.Time `json:"countedAt"`
}

func (e *BinCountConfirmedEvent) EventType() string     { return cloudevents.BinCountConfirmed }
func (e *BinCountConfirmedEvent) OccurredAt() time.Time { return e.CountedAt }
func (e *BinCountConfirmedEvent) Actor() string         { return e.CountedBy }

// ReplenishmentSkippedEvent is published when a picker waves off replenishment
type ReplenishmentSkippedEvent struct {
	SKU             string    `json:"sku"`
	LocationID      string    `json:"locationId"`
	ReplenishmentID string    `json:"replenishmentId,omitempty"`
	Counted         int       `json:"counted"`
	CountedBy       string    `json:"countedBy"`
	SkippedAt       time.Time `json:"skippedAt"`
}

func (e *ReplenishmentSkippedEvent) EventType() string     { return cloudevents.ReplenishmentSkipped }
func (e *ReplenishmentSkippedEvent) OccurredAt() time.Time { return e.SkippedAt }
func (e *ReplenishmentSkippedEvent) Actor() string         { return e.CountedBy }
