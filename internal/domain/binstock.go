package domain

import (
	"errors"
	"time"
)

var (
	ErrBinNotFound    = errors.New("bin stock not found")
	ErrNegativeCount  = errors.New("counted quantity cannot be negative")
	ErrInvalidBinSpec = errors.New("bin requires sku and location")
)

// BinStock is the forward pick quantity of one SKU at one location, with the
// reserve that can refill it.
type BinStock struct {
	ID                     string        `bson:"_id" json:"id"`
	SKU                    string        `bson:"sku" json:"sku"`
	LocationID             string        `bson:"locationId" json:"locationId"`
	OnHand                 int           `bson:"onHand" json:"onHand"`
	Reserve                int           `bson:"reserve" json:"reserve"`
	MinQuantity            int           `bson:"minQuantity" json:"minQuantity"`
	MaxQuantity            int           `bson:"maxQuantity" json:"maxQuantity"`
	BinCountThreshold      int           `bson:"binCountThreshold" json:"binCountThreshold"`
	AutoReplenish          bool          `bson:"autoReplenish" json:"autoReplenish"`
	PendingReplenishmentID string        `bson:"pendingReplenishmentId,omitempty" json:"pendingReplenishmentId,omitempty"`
	LastCountedAt          *time.Time    `bson:"lastCountedAt,omitempty" json:"lastCountedAt,omitempty"`
	LastCountedBy          string        `bson:"lastCountedBy,omitempty" json:"lastCountedBy,omitempty"`
	Version                int64         `bson:"version" json:"version"`
	UpdatedAt              time.Time     `bson:"updatedAt" json:"updatedAt"`
	DomainEvents           []DomainEvent `bson:"-" json:"-"`
}

// BinID returns the storage key of a bin
func BinID(sku, locationID string) string {
	return sku + "@" + locationID
}

// ReplenishmentWorkflowID returns the single workflow ID allowed per bin, so a
// second start while one runs is rejected by the workflow engine
func ReplenishmentWorkflowID(sku, locationID string) string {
	return "replen-" + sku + "-" + locationID
}

// NewBinStock creates a bin
func NewBinStock(sku, locationID string, onHand, reserve, minQty, maxQty, countThreshold int) (*BinStock, error) {
	if sku == "" || locationID == "" {
		return nil, ErrInvalidBinSpec
	}
	if onHand < 0 || reserve < 0 || minQty < 0 {
		return nil, ErrInvalidQuantity
	}
	if maxQty < minQty {
		maxQty = minQty * 2
	}
	return &BinStock{
		ID:                BinID(sku, locationID),
		SKU:               sku,
		LocationID:        locationID,
		OnHand:            onHand,
		Reserve:           reserve,
		MinQuantity:       minQty,
		MaxQuantity:       maxQty,
		BinCountThreshold: countThreshold,
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

// BelowMinimum reports whether the bin needs refilling
func (b *BinStock) BelowMinimum() bool {
	return b.OnHand < b.MinQuantity
}

// ReplenishmentQuantity is how much reserve would refill the bin to max
func (b *BinStock) ReplenishmentQuantity() int {
	want := b.MaxQuantity - b.OnHand
	if want > b.Reserve {
		want = b.Reserve
	}
	if want < 0 {
		return 0
	}
	return want
}

// ReplenishmentStatus classifies the bin's replenishment need
func (b *BinStock) ReplenishmentStatus() ReplenStatus {
	switch {
	case !b.BelowMinimum():
		return ReplenNone
	case b.PendingReplenishmentID != "":
		return ReplenPending
	case b.Reserve <= 0:
		return ReplenStockout
	default:
		return ReplenTriggered
	}
}

// Deduct removes qty picked units from the bin. A deduction larger than the
// recorded quantity empties the bin and asks for a count.
func (b *BinStock) Deduct(qty int) *ReconciliationContext {
	shortOfStock := qty > b.OnHand
	taken := qty
	if shortOfStock {
		taken = b.OnHand
	}
	b.OnHand -= taken
	b.UpdatedAt = time.Now().UTC()

	return &ReconciliationContext{
		Deducted:         true,
		SystemQuantity:   StockLevel(b.OnHand),
		ExpectedQuantity: StockLevel(b.OnHand),
		BinCountNeeded:   shortOfStock || b.OnHand <= b.BinCountThreshold,
	}
}

// ReportShort records that a picker closed a line short at this bin. The bin
// asks for a count whenever the ledger still shows stock there, since the
// picker could not take it.
func (b *BinStock) ReportShort(reason ShortReason) *ReconciliationContext {
	return &ReconciliationContext{
		SystemQuantity:   StockLevel(b.OnHand),
		ExpectedQuantity: StockLevel(b.OnHand),
		BinCountNeeded:   b.OnHand > 0 && reason != ShortReasonDamaged,
	}
}

// Restore returns qty un-picked units to the bin
func (b *BinStock) Restore(qty int) *ReconciliationContext {
	b.OnHand += qty
	b.UpdatedAt = time.Now().UTC()
	return &ReconciliationContext{
		Restored:         true,
		SystemQuantity:   StockLevel(b.OnHand),
		ExpectedQuantity: StockLevel(b.OnHand),
	}
}

// PlanReplenishment records the bin's replenishment state on rc without
// moving any stock. ReplenTriggered tells the caller to refill the bin, either
// from reserve in place or by starting a replenishment.
func (b *BinStock) PlanReplenishment(rc *ReconciliationContext) ReplenStatus {
	status := b.ReplenishmentStatus()
	switch status {
	case ReplenStockout:
		rc.Replen.Stockout = true
		rc.BinCountNeeded = true
	case ReplenPending:
		rc.Replen.TaskID = b.PendingReplenishmentID
	case ReplenTriggered:
		qty := b.ReplenishmentQuantity()
		rc.Replen.Triggered = true
		rc.Replen.Quantity = qty
		rc.ExpectedQuantity = StockLevel(b.OnHand + qty)
	}
	return status
}

// MoveFromReserve moves up to qty units from reserve into the bin
func (b *BinStock) MoveFromReserve(qty int) int {
	if qty > b.Reserve {
		qty = b.Reserve
	}
	if qty < 0 {
		qty = 0
	}
	b.Reserve -= qty
	b.OnHand += qty
	b.UpdatedAt = time.Now().UTC()
	return qty
}

// MarkReplenishmentPending records the running replenishment
func (b *BinStock) MarkReplenishmentPending(id string) {
	b.PendingReplenishmentID = id
	b.UpdatedAt = time.Now().UTC()
}

// ClearPendingReplenishment clears the marker if it still names id
func (b *BinStock) ClearPendingReplenishment(id string) bool {
	if b.PendingReplenishmentID == "" || b.PendingReplenishmentID != id {
		return false
	}
	b.PendingReplenishmentID = ""
	b.UpdatedAt = time.Now().UTC()
	return true
}

// ConfirmCount sets the on-hand quantity to what was physically counted and
// returns the correction. Counting the same quantity twice corrects once.
func (b *BinStock) ConfirmCount(actual int, countedBy string) (int, error) {
	if actual < 0 {
		return 0, ErrNegativeCount
	}
	now := time.Now().UTC()
	previous := b.OnHand
	adjustment := actual - previous
	b.OnHand = actual
	b.LastCountedAt = &now
	b.LastCountedBy = countedBy
	b.UpdatedAt = now

	b.AddDomainEvent(&BinCountConfirmedEvent{
		SKU:          b.SKU,
		LocationID:   b.LocationID,
		Previous:     previous,
		Counted:      actual,
		Adjustment:   adjustment,
		ReplenStatus: string(b.ReplenishmentStatus()),
		CountedBy:    countedBy,
		CountedAt:    now,
	})
	return adjustment, nil
}

// SkipReplenishment records a count and drops any pending replenishment. It
// returns the replenishment that was pending, if any.
func (b *BinStock) SkipReplenishment(actual int, countedBy string) (string, error) {
	if actual < 0 {
		return "", ErrNegativeCount
	}
	now := time.Now().UTC()
	pending := b.PendingReplenishmentID
	b.OnHand = actual
	b.PendingReplenishmentID = ""
	b.LastCountedAt = &now
	b.LastCountedBy = countedBy
	b.UpdatedAt = now

	b.AddDomainEvent(&ReplenishmentSkippedEvent{
		SKU:             b.SKU,
		LocationID:      b.LocationID,
		ReplenishmentID: pending,
		Counted:         actual,
		CountedBy:       countedBy,
		SkippedAt:       now,
	})
	return pending, nil
}

// AddDomainEvent adds a domain event
func (b *BinStock) AddDomainEvent(event DomainEvent) {
	b.DomainEvents = append(b.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (b *BinStock) ClearDomainEvents() {
	b.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (b *BinStock) GetDomainEvents() []DomainEvent {
	return b.DomainEvents
}
