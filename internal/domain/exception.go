package domain

import (
	"errors"
	"time"
)

// Exception errors
var (
	ErrNoException              = errors.New("work unit has no exception")
	ErrExceptionAlreadyResolved = errors.New("exception already resolved")
	ErrExceptionOpen            = errors.New("work unit has an open exception")
	ErrInvalidResolution        = errors.New("invalid resolution")
)

// ExceptionStatus is open until a lead resolves it
type ExceptionStatus string

const (
	ExceptionStatusOpen     ExceptionStatus = "open"
	ExceptionStatusResolved ExceptionStatus = "resolved"
)

// Resolution is the lead's one-shot decision on an exception
type Resolution string

const (
	ResolutionShipPartial Resolution = "ship_partial"
	ResolutionHold        Resolution = "hold"
	ResolutionResolved    Resolution = "resolved"
	ResolutionCancelled   Resolution = "cancelled"
)

// IsValid reports whether r is a known resolution
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionShipPartial, ResolutionHold, ResolutionResolved, ResolutionCancelled:
		return true
	}
	return false
}

// UnitException flags a unit with short items for review
type UnitException struct {
	Status     ExceptionStatus `bson:"status" json:"status"`
	ItemID     string          `bson:"itemId" json:"itemId"`
	Reason     ShortReason     `bson:"reason" json:"reason"`
	RaisedBy   string          `bson:"raisedBy,omitempty" json:"raisedBy,omitempty"`
	RaisedAt   time.Time       `bson:"raisedAt" json:"raisedAt"`
	Resolution Resolution      `bson:"resolution,omitempty" json:"resolution,omitempty"`
	ResolvedAt *time.Time      `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResolvedBy string          `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
	Note       string          `bson:"note,omitempty" json:"note,omitempty"`
}

// BackorderLine is the unpicked remainder of a short item
type BackorderLine struct {
	ItemID   string `json:"itemId"`
	OrderID  string `json:"orderId"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// HasOpenException reports whether the unit awaits review
func (u *WorkUnit) HasOpenException() bool {
	return u.Exception != nil && u.Exception.Status == ExceptionStatusOpen
}

func (u *WorkUnit) raiseException(item *Item, pickerID string, now time.Time) {
	if u.HasOpenException() {
		return
	}
	u.Exception = &UnitException{
		Status:   ExceptionStatusOpen,
		ItemID:   item.ItemID,
		Reason:   item.Short.Reason,
		RaisedBy: pickerID,
		RaisedAt: now,
	}
	u.AddDomainEvent(&UnitExceptionRaisedEvent{
		UnitID:   u.UnitID,
		ItemID:   item.ItemID,
		OrderID:  item.OrderID,
		Reason:   string(item.Short.Reason),
		PickerID: pickerID,
		RaisedAt: now,
	})
}

// ResolveException applies a lead's resolution. Each exception resolves once.
func (u *WorkUnit) ResolveException(resolution Resolution, actorID, note string) error {
	if !resolution.IsValid() {
		return ErrInvalidResolution
	}
	if u.Exception == nil {
		return ErrNoException
	}
	if u.Exception.Status != ExceptionStatusOpen {
		return ErrExceptionAlreadyResolved
	}

	now := time.Now().UTC()
	var backordered []BackorderLine

	switch resolution {
	case ResolutionShipPartial:
		// whatever is still open ships as picked
		for i := range u.Items {
			item := &u.Items[i]
			if !item.IsTerminal() {
				_ = item.RecordShort(item.PickedQuantity, ShortReasonPartial, "closed for partial shipment")
			}
		}
		backordered = u.backorderLines()
		u.checkCompletion(actorID, now)
	case ResolutionHold:
		u.OnHold = true
	case ResolutionResolved:
		for i := range u.Items {
			u.Items[i].Reopen()
		}
		u.ClaimedBy = ""
		u.ClaimedAt = nil
		if u.Status == UnitStatusCompleted && !u.AllItemsTerminal() {
			u.Status = UnitStatusReady
			u.CompletedAt = nil
			u.CompletedBy = ""
		}
		u.refreshStatus()
	case ResolutionCancelled:
		u.Status = UnitStatusCancelled
		u.ClaimedBy = ""
		u.ClaimedAt = nil
	}

	u.Exception.Status = ExceptionStatusResolved
	u.Exception.Resolution = resolution
	u.Exception.ResolvedAt = &now
	u.Exception.ResolvedBy = actorID
	u.Exception.Note = note
	u.UpdatedAt = now

	u.AddDomainEvent(&UnitExceptionResolvedEvent{
		UnitID:      u.UnitID,
		Resolution:  string(resolution),
		ResolvedBy:  actorID,
		Note:        note,
		Backordered: backordered,
		ResolvedAt:  now,
	})
	return nil
}

func (u *WorkUnit) backorderLines() []BackorderLine {
	lines := make([]BackorderLine, 0)
	for _, item := range u.Items {
		if item.Status == ItemStatusShort && item.PickedQuantity < item.Quantity {
			lines = append(lines, BackorderLine{
				ItemID:   item.ItemID,
				OrderID:  item.OrderID,
				SKU:      item.SKU,
				Quantity: item.Quantity - item.PickedQuantity,
			})
		}
	}
	return lines
}
