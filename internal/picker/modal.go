package picker

import "github.com/wms-platform/pick-floor/internal/domain"

// Modal is the one dialog a session may have open. The set is closed: only
// the types in this file implement it.
type Modal interface {
	modal()
}

// ShortPickModal asks why an item cannot be picked in full
type ShortPickModal struct {
	ItemIndex int
	Picked    int
	Target    int
}

// QuantityModal asks how many units of an item were picked at once
type QuantityModal struct {
	ItemIndex int
	Remaining int
}

// BinCountModal asks for a physical count after a pick left a bin low
type BinCountModal struct {
	SKU            string
	LocationID     string
	Reconciliation domain.ReconciliationContext
}

// EditQuantityModal corrects an item's picked count
type EditQuantityModal struct {
	ItemIndex int
	Current   int
	Target    int
}

// ReleaseModal asks whether to keep or discard progress on release
type ReleaseModal struct {
	UnitID      string
	PickedUnits int
}

func (ShortPickModal) modal()    {}
func (QuantityModal) modal()     {}
func (BinCountModal) modal()     {}
func (EditQuantityModal) modal() {}
func (ReleaseModal) modal()      {}
