package domain

import (
	"errors"
	"time"
)

// Item errors
var (
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrQuantityExceedsTarget = errors.New("quantity exceeds target")
	ErrItemTerminal          = errors.New("item is already completed or short")
	ErrItemShort             = errors.New("short item cannot be edited")
	ErrNothingToDecrement    = errors.New("item has no picked units to decrement")
	ErrInvalidPickMethod     = errors.New("invalid pick method")
	ErrInvalidShortReason    = errors.New("invalid short reason")
)

// ItemStatus represents the picking status of a single line
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusShort      ItemStatus = "short"
)

// IsTerminal reports whether picking is closed for the status
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusShort
}

// PickMethod tags how a pick was confirmed. It is carried for audit only.
type PickMethod string

const (
	PickMethodScan    PickMethod = "scan"
	PickMethodManual  PickMethod = "manual"
	PickMethodPickAll PickMethod = "pick_all"
	PickMethodButton  PickMethod = "button"
	PickMethodShort   PickMethod = "short"
)

// IsValid reports whether m is a known pick method
func (m PickMethod) IsValid() bool {
	switch m {
	case PickMethodScan, PickMethodManual, PickMethodPickAll, PickMethodButton, PickMethodShort:
		return true
	}
	return false
}

// ShortReason classifies why an item was closed below target
type ShortReason string

const (
	ShortReasonOutOfStock ShortReason = "out_of_stock"
	ShortReasonNotFound   ShortReason = "not_found"
	ShortReasonDamaged    ShortReason = "damaged"
	ShortReasonWrongItem  ShortReason = "wrong_item"
	ShortReasonPartial    ShortReason = "partial"
)

// IsValid reports whether r is a known short reason
func (r ShortReason) IsValid() bool {
	switch r {
	case ShortReasonOutOfStock, ShortReasonNotFound, ShortReasonDamaged, ShortReasonWrongItem, ShortReasonPartial:
		return true
	}
	return false
}

// ShortPickRecord describes a short pick
type ShortPickRecord struct {
	Reason         ShortReason `bson:"reason" json:"reason"`
	Note           string      `bson:"note,omitempty" json:"note,omitempty"`
	PickedQuantity int         `bson:"pickedQuantity" json:"pickedQuantity"`
	RecordedAt     time.Time   `bson:"recordedAt" json:"recordedAt"`
}

// Item is one line of a work unit
type Item struct {
	ItemID         string           `bson:"itemId" json:"itemId"`
	OrderID        string           `bson:"orderId" json:"orderId"`
	SKU            string           `bson:"sku" json:"sku"`
	Barcode        string           `bson:"barcode,omitempty" json:"barcode,omitempty"`
	ProductName    string           `bson:"productName,omitempty" json:"productName,omitempty"`
	LocationID     string           `bson:"locationId" json:"locationId"`
	Quantity       int              `bson:"quantity" json:"quantity"`
	PickedQuantity int              `bson:"pickedQuantity" json:"pickedQuantity"`
	Status         ItemStatus       `bson:"status" json:"status"`
	Short          *ShortPickRecord `bson:"short,omitempty" json:"short,omitempty"`
	LastPickMethod PickMethod       `bson:"lastPickMethod,omitempty" json:"lastPickMethod,omitempty"`
	PickedAt       *time.Time       `bson:"pickedAt,omitempty" json:"pickedAt,omitempty"`
}

// IsTerminal reports whether the item is completed or short
func (i *Item) IsTerminal() bool {
	return i.Status.IsTerminal()
}

// Remaining returns the units still to pick
func (i *Item) Remaining() int {
	if i.IsTerminal() {
		return 0
	}
	return i.Quantity - i.PickedQuantity
}

// RecordPick adds qty to the picked count. Reaching the target completes the
// item and the count never passes the target.
func (i *Item) RecordPick(qty int, method PickMethod) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.IsTerminal() {
		return ErrItemTerminal
	}
	i.setPicked(i.PickedQuantity+qty, method)
	return nil
}

// RecordManualDecrement takes back one picked unit
func (i *Item) RecordManualDecrement() error {
	if i.IsTerminal() {
		return ErrItemTerminal
	}
	if i.PickedQuantity <= 0 {
		return ErrNothingToDecrement
	}
	i.setPicked(i.PickedQuantity-1, PickMethodManual)
	return nil
}

// RecordShort closes the item as short with pickedQty units in hand
func (i *Item) RecordShort(pickedQty int, reason ShortReason, note string) error {
	if i.IsTerminal() {
		return ErrItemTerminal
	}
	if !reason.IsValid() {
		return ErrInvalidShortReason
	}
	if pickedQty < 0 {
		return ErrInvalidQuantity
	}
	if pickedQty > i.Quantity {
		return ErrQuantityExceedsTarget
	}

	now := time.Now().UTC()
	i.PickedQuantity = pickedQty
	i.Status = ItemStatusShort
	i.LastPickMethod = PickMethodShort
	i.PickedAt = &now
	i.Short = &ShortPickRecord{
		Reason:         reason,
		Note:           note,
		PickedQuantity: pickedQty,
		RecordedAt:     now,
	}
	return nil
}

// RecordEdit sets an absolute picked count, clamped to [0, target]. Completed
// items may be edited to correct an over-count; short items may not.
func (i *Item) RecordEdit(absoluteQty int, method PickMethod) error {
	if i.Status == ItemStatusShort {
		return ErrItemShort
	}
	i.setPicked(absoluteQty, method)
	return nil
}

// Reopen clears a short record and recomputes the status from the count
func (i *Item) Reopen() {
	if i.Status != ItemStatusShort {
		return
	}
	i.Short = nil
	i.Status = statusFor(i.PickedQuantity, i.Quantity)
}

// ResetProgress zeroes a non-terminal item
func (i *Item) ResetProgress() {
	if i.IsTerminal() {
		return
	}
	i.PickedQuantity = 0
	i.Status = ItemStatusPending
	i.PickedAt = nil
}

func (i *Item) setPicked(qty int, method PickMethod) {
	now := time.Now().UTC()
	i.PickedQuantity = clamp(qty, 0, i.Quantity)
	i.Status = statusFor(i.PickedQuantity, i.Quantity)
	if method != "" {
		i.LastPickMethod = method
	}
	i.PickedAt = &now
}

func statusFor(picked, target int) ItemStatus {
	switch {
	case picked <= 0:
		return ItemStatusPending
	case picked >= target:
		return ItemStatusCompleted
	default:
		return ItemStatusInProgress
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
