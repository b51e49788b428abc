package domain

import (
	"errors"
	"fmt"
	"time"
)

// Work unit errors
var (
	ErrUnitNotFound           = errors.New("work unit not found")
	ErrItemNotFound           = errors.New("item not found in work unit")
	ErrNoItems                = errors.New("work unit must have at least one item")
	ErrAlreadyClaimed         = errors.New("work unit is already claimed by another picker")
	ErrNotClaimHolder         = errors.New("work unit is not claimed by this picker")
	ErrUnitOnHold             = errors.New("work unit is on hold")
	ErrUnitClosed             = errors.New("work unit is already completed or cancelled")
	ErrConcurrentModification = errors.New("work unit was modified concurrently")
	ErrInvalidPriority        = errors.New("invalid priority")
	ErrInvalidKind            = errors.New("invalid unit kind")
	ErrNotReadyToShip         = errors.New("work unit is not ready to ship")
	ErrAlreadyReadyToShip     = errors.New("work unit is already marked ready to ship")
)

// UnitKind distinguishes single orders from batches
type UnitKind string

const (
	UnitKindOrder UnitKind = "order"
	UnitKindBatch UnitKind = "batch"
)

// UnitStatus represents the lifecycle of a work unit
type UnitStatus string

const (
	UnitStatusReady      UnitStatus = "ready"
	UnitStatusInProgress UnitStatus = "in_progress"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusCancelled  UnitStatus = "cancelled"
)

// Priority orders the queue. Rush sorts first.
type Priority string

const (
	PriorityRush   Priority = "rush"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Rank returns the sort rank of the priority, lowest first
func (p Priority) Rank() int {
	switch p {
	case PriorityRush:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	return p == PriorityRush || p == PriorityHigh || p == PriorityNormal
}

// WorkUnit is the aggregate root for the picking floor: an order or a batch
// of orders picked in one pass.
type WorkUnit struct {
	UnitID          string         `bson:"_id" json:"unitId"`
	Kind            UnitKind       `bson:"kind" json:"kind"`
	OrderIDs        []string       `bson:"orderIds" json:"orderIds"`
	Items           []Item         `bson:"items" json:"items"`
	Priority        Priority       `bson:"priority" json:"priority"`
	PriorityRank    int            `bson:"priorityRank" json:"-"`
	Status          UnitStatus     `bson:"status" json:"status"`
	OnHold          bool           `bson:"onHold" json:"onHold"`
	ClaimedBy       string         `bson:"claimedBy,omitempty" json:"claimedBy,omitempty"`
	ClaimedAt       *time.Time     `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`
	CombinedGroupID string         `bson:"combinedGroupId,omitempty" json:"combinedGroupId,omitempty"`
	ParentUnitID    string         `bson:"parentUnitId,omitempty" json:"parentUnitId,omitempty"`
	Exception       *UnitException `bson:"exception,omitempty" json:"exception,omitempty"`
	CompletedAt     *time.Time     `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CompletedBy     string         `bson:"completedBy,omitempty" json:"completedBy,omitempty"`
	ReadyToShipAt   *time.Time     `bson:"readyToShipAt,omitempty" json:"readyToShipAt,omitempty"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time      `bson:"updatedAt" json:"updatedAt"`
	Version         int64          `bson:"version" json:"version"`
	DomainEvents    []DomainEvent  `bson:"-" json:"-"`
}

// NewWorkUnit creates a ready work unit. Items without an ID get one derived
// from the unit ID; items without an order inherit the unit's first order.
func NewWorkUnit(unitID string, kind UnitKind, orderIDs []string, priority Priority, items []Item) (*WorkUnit, error) {
	if unitID == "" {
		return nil, errors.New("unit id is required")
	}
	if kind != UnitKindOrder && kind != UnitKindBatch {
		return nil, ErrInvalidKind
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.IsValid() {
		return nil, ErrInvalidPriority
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	seen := make(map[string]bool, len(items))
	for idx := range items {
		item := &items[idx]
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: %w", idx, ErrInvalidQuantity)
		}
		if item.SKU == "" || item.LocationID == "" {
			return nil, fmt.Errorf("item %d: sku and location are required", idx)
		}
		if item.ItemID == "" {
			item.ItemID = fmt.Sprintf("%s-%02d", unitID, idx+1)
		}
		if seen[item.ItemID] {
			return nil, fmt.Errorf("item %s: duplicate item id is invalid", item.ItemID)
		}
		seen[item.ItemID] = true
		if item.OrderID == "" && len(orderIDs) > 0 {
			item.OrderID = orderIDs[0]
		}
		item.PickedQuantity = 0
		item.Status = ItemStatusPending
		item.Short = nil
		item.PickedAt = nil
	}

	now := time.Now().UTC()
	unit := &WorkUnit{
		UnitID:       unitID,
		Kind:         kind,
		OrderIDs:     orderIDs,
		Items:        items,
		Priority:     priority,
		PriorityRank: priority.Rank(),
		Status:       UnitStatusReady,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	unit.AddDomainEvent(&UnitCreatedEvent{
		UnitID:     unitID,
		Kind:       string(kind),
		OrderIDs:   orderIDs,
		Priority:   string(priority),
		ItemCount:  len(items),
		TotalUnits: unit.TotalUnits(),
		CreatedAt:  now,
	})

	return unit, nil
}

// IsClosed reports whether the unit is completed or cancelled
func (u *WorkUnit) IsClosed() bool {
	return u.Status == UnitStatusCompleted || u.Status == UnitStatusCancelled
}

// IsClaimed reports whether any picker holds the unit
func (u *WorkUnit) IsClaimed() bool {
	return u.ClaimedBy != ""
}

// IsGrouped reports whether the unit belongs to a combined group
func (u *WorkUnit) IsGrouped() bool {
	return u.CombinedGroupID != ""
}

// IsGroupChild reports whether the unit is a non-parent group member
func (u *WorkUnit) IsGroupChild() bool {
	return u.IsGrouped() && u.ParentUnitID != u.UnitID
}

// HasProgress reports whether any item has picked units or is closed
func (u *WorkUnit) HasProgress() bool {
	for i := range u.Items {
		if u.Items[i].PickedQuantity > 0 || u.Items[i].IsTerminal() {
			return true
		}
	}
	return false
}

// AllItemsTerminal reports whether every item is completed or short
func (u *WorkUnit) AllItemsTerminal() bool {
	for i := range u.Items {
		if !u.Items[i].IsTerminal() {
			return false
		}
	}
	return true
}

// CurrentItemIndex returns the first non-terminal item in list order, or -1
func (u *WorkUnit) CurrentItemIndex() int {
	for i := range u.Items {
		if !u.Items[i].IsTerminal() {
			return i
		}
	}
	return -1
}

// TotalUnits returns the sum of item targets
func (u *WorkUnit) TotalUnits() int {
	total := 0
	for _, item := range u.Items {
		total += item.Quantity
	}
	return total
}

// PickedUnits returns the sum of picked counts
func (u *WorkUnit) PickedUnits() int {
	picked := 0
	for _, item := range u.Items {
		picked += item.PickedQuantity
	}
	return picked
}

// ShortItems returns the items closed as short
func (u *WorkUnit) ShortItems() []Item {
	var shorts []Item
	for _, item := range u.Items {
		if item.Status == ItemStatusShort {
			shorts = append(shorts, item)
		}
	}
	return shorts
}

// FindItem returns the item with itemID
func (u *WorkUnit) FindItem(itemID string) (*Item, error) {
	for i := range u.Items {
		if u.Items[i].ItemID == itemID {
			return &u.Items[i], nil
		}
	}
	return nil, ErrItemNotFound
}

// Claimable returns nil when pickerID may claim the unit
func (u *WorkUnit) Claimable(pickerID string) error {
	if u.IsClosed() {
		return ErrUnitClosed
	}
	if u.OnHold {
		return ErrUnitOnHold
	}
	if u.IsClaimed() && u.ClaimedBy != pickerID {
		return ErrAlreadyClaimed
	}
	return nil
}

// Claim gives pickerID ownership of the unit. Claiming a unit already held by
// the same picker is a no-op.
func (u *WorkUnit) Claim(pickerID string) error {
	if pickerID == "" {
		return errors.New("picker id is required")
	}
	if err := u.Claimable(pickerID); err != nil {
		return err
	}
	if u.ClaimedBy == pickerID {
		return nil
	}

	now := time.Now().UTC()
	u.ClaimedBy = pickerID
	u.ClaimedAt = &now
	u.Status = UnitStatusInProgress
	u.UpdatedAt = now

	u.AddDomainEvent(&UnitClaimedEvent{
		UnitID:    u.UnitID,
		PickerID:  pickerID,
		GroupID:   u.CombinedGroupID,
		ClaimedAt: now,
	})
	return nil
}

// Release gives up pickerID's claim. With resetProgress, picked counts on
// non-terminal items go back to zero.
func (u *WorkUnit) Release(pickerID string, resetProgress bool) error {
	if u.ClaimedBy == "" || u.ClaimedBy != pickerID {
		return ErrNotClaimHolder
	}
	u.release(pickerID, pickerID, resetProgress, false)
	return nil
}

// ForceRelease clears the claim whoever holds it
func (u *WorkUnit) ForceRelease(actorID string, resetProgress bool) error {
	if u.IsClosed() {
		return ErrUnitClosed
	}
	u.release(u.ClaimedBy, actorID, resetProgress, true)
	return nil
}

func (u *WorkUnit) release(holder, actorID string, resetProgress, forced bool) {
	now := time.Now().UTC()
	if resetProgress {
		for i := range u.Items {
			u.Items[i].ResetProgress()
		}
	}
	u.ClaimedBy = ""
	u.ClaimedAt = nil
	u.refreshStatus()
	u.UpdatedAt = now

	u.AddDomainEvent(&UnitReleasedEvent{
		UnitID:        u.UnitID,
		PickerID:      holder,
		ActorID:       actorID,
		Forced:        forced,
		ResetProgress: resetProgress,
		ReleasedAt:    now,
	})
}

// refreshStatus derives ready or in_progress for an open unit
func (u *WorkUnit) refreshStatus() {
	if u.IsClosed() {
		return
	}
	if u.IsClaimed() || u.HasProgress() {
		u.Status = UnitStatusInProgress
	} else {
		u.Status = UnitStatusReady
	}
}

// Hold removes the unit from pickable availability without touching the claim
func (u *WorkUnit) Hold(actorID string) error {
	if u.IsClosed() {
		return ErrUnitClosed
	}
	if u.OnHold {
		return nil
	}
	now := time.Now().UTC()
	u.OnHold = true
	u.UpdatedAt = now
	u.AddDomainEvent(&UnitHeldEvent{UnitID: u.UnitID, ActorID: actorID, HeldAt: now})
	return nil
}

// ReleaseHold restores the unit to pickable availability
func (u *WorkUnit) ReleaseHold(actorID string) error {
	if u.Status == UnitStatusCancelled {
		return ErrUnitClosed
	}
	if !u.OnHold {
		return nil
	}
	now := time.Now().UTC()
	u.OnHold = false
	u.UpdatedAt = now
	u.AddDomainEvent(&UnitHoldReleasedEvent{UnitID: u.UnitID, ActorID: actorID, ReleasedAt: now})
	return nil
}

// SetPriority changes the queue ranking
func (u *WorkUnit) SetPriority(priority Priority, actorID string) error {
	if !priority.IsValid() {
		return ErrInvalidPriority
	}
	if u.IsClosed() {
		return ErrUnitClosed
	}
	if u.Priority == priority {
		return nil
	}
	now := time.Now().UTC()
	previous := u.Priority
	u.Priority = priority
	u.PriorityRank = priority.Rank()
	u.UpdatedAt = now
	u.AddDomainEvent(&UnitPriorityChangedEvent{
		UnitID:    u.UnitID,
		From:      string(previous),
		To:        string(priority),
		ActorID:   actorID,
		ChangedAt: now,
	})
	return nil
}

// RecordPick applies a pick of qty units to an item
func (u *WorkUnit) RecordPick(itemID string, qty int, method PickMethod, pickerID string) (*Item, error) {
	return u.applyToItem(itemID, pickerID, func(item *Item) error {
		return item.RecordPick(qty, method)
	})
}

// RecordManualDecrement takes one picked unit back from an item
func (u *WorkUnit) RecordManualDecrement(itemID, pickerID string) (*Item, error) {
	return u.applyToItem(itemID, pickerID, func(item *Item) error {
		return item.RecordManualDecrement()
	})
}

// RecordEdit sets an item's picked count to an absolute value
func (u *WorkUnit) RecordEdit(itemID string, absoluteQty int, method PickMethod, pickerID string) (*Item, error) {
	return u.applyToItem(itemID, pickerID, func(item *Item) error {
		return item.RecordEdit(absoluteQty, method)
	})
}

// RecordShort closes an item as short. The first short on a unit without an
// open exception raises one.
func (u *WorkUnit) RecordShort(itemID string, pickedQty int, reason ShortReason, note, pickerID string) (*Item, error) {
	return u.applyToItem(itemID, pickerID, func(item *Item) error {
		return item.RecordShort(pickedQty, reason, note)
	})
}

func (u *WorkUnit) applyToItem(itemID, pickerID string, apply func(*Item) error) (*Item, error) {
	if u.IsClosed() {
		return nil, ErrUnitClosed
	}
	if u.ClaimedBy != pickerID {
		return nil, ErrNotClaimHolder
	}
	item, err := u.FindItem(itemID)
	if err != nil {
		return nil, err
	}

	before := item.PickedQuantity
	if err := apply(item); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u.UpdatedAt = now

	if item.Status == ItemStatusShort {
		u.AddDomainEvent(&ItemShortedEvent{
			UnitID:         u.UnitID,
			ItemID:         item.ItemID,
			OrderID:        item.OrderID,
			SKU:            item.SKU,
			LocationID:     item.LocationID,
			Reason:         string(item.Short.Reason),
			Note:           item.Short.Note,
			PickedQuantity: item.PickedQuantity,
			Target:         item.Quantity,
			PickerID:       pickerID,
			ShortedAt:      now,
		})
		u.raiseException(item, pickerID, now)
	} else {
		u.AddDomainEvent(&ItemPickedEvent{
			UnitID:         u.UnitID,
			ItemID:         item.ItemID,
			SKU:            item.SKU,
			LocationID:     item.LocationID,
			Delta:          item.PickedQuantity - before,
			PickedQuantity: item.PickedQuantity,
			Target:         item.Quantity,
			Status:         string(item.Status),
			Method:         string(item.LastPickMethod),
			PickerID:       pickerID,
			PickedAt:       now,
		})
	}

	u.checkCompletion(pickerID, now)
	return item, nil
}

// checkCompletion closes the unit once every item is terminal
func (u *WorkUnit) checkCompletion(pickerID string, now time.Time) {
	if u.IsClosed() || !u.AllItemsTerminal() {
		return
	}

	u.Status = UnitStatusCompleted
	u.CompletedAt = &now
	u.CompletedBy = pickerID
	u.ClaimedBy = ""
	u.ClaimedAt = nil
	u.UpdatedAt = now

	u.AddDomainEvent(&UnitCompletedEvent{
		UnitID:      u.UnitID,
		PickerID:    pickerID,
		OrderIDs:    u.OrderIDs,
		TotalUnits:  u.TotalUnits(),
		PickedUnits: u.PickedUnits(),
		ShortItems:  len(u.ShortItems()),
		CompletedAt: now,
	})
}

// MarkReadyToShip hands a completed unit to shipping. A unit with short items
// ships only after a ship_partial resolution.
func (u *WorkUnit) MarkReadyToShip(actorID string) error {
	if u.ReadyToShipAt != nil {
		return ErrAlreadyReadyToShip
	}
	if u.Status != UnitStatusCompleted {
		return ErrNotReadyToShip
	}
	if u.HasOpenException() {
		return ErrExceptionOpen
	}
	partial := len(u.ShortItems()) > 0
	if partial && (u.Exception == nil || u.Exception.Resolution != ResolutionShipPartial) {
		return ErrNotReadyToShip
	}

	now := time.Now().UTC()
	u.ReadyToShipAt = &now
	u.UpdatedAt = now
	u.AddDomainEvent(&UnitReadyToShipEvent{
		UnitID:   u.UnitID,
		OrderIDs: u.OrderIDs,
		ActorID:  actorID,
		Partial:  partial,
		ReadyAt:  now,
	})
	return nil
}

// Clone returns a deep copy without pending domain events
func (u *WorkUnit) Clone() *WorkUnit {
	if u == nil {
		return nil
	}
	c := *u
	c.OrderIDs = append([]string(nil), u.OrderIDs...)
	c.Items = make([]Item, len(u.Items))
	for i, item := range u.Items {
		c.Items[i] = item
		if item.Short != nil {
			short := *item.Short
			c.Items[i].Short = &short
		}
		c.Items[i].PickedAt = copyTime(item.PickedAt)
	}
	if u.Exception != nil {
		ex := *u.Exception
		ex.ResolvedAt = copyTime(u.Exception.ResolvedAt)
		c.Exception = &ex
	}
	c.ClaimedAt = copyTime(u.ClaimedAt)
	c.CompletedAt = copyTime(u.CompletedAt)
	c.ReadyToShipAt = copyTime(u.ReadyToShipAt)
	c.DomainEvents = make([]DomainEvent, 0)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AddDomainEvent adds a domain event
func (u *WorkUnit) AddDomainEvent(event DomainEvent) {
	u.DomainEvents = append(u.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (u *WorkUnit) ClearDomainEvents() {
	u.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (u *WorkUnit) GetDomainEvents() []DomainEvent {
	return u.DomainEvents
}
