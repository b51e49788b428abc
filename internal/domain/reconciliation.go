package domain

// ReplenStatus is the replenishment outcome reported to the picker
type ReplenStatus string

const (
	ReplenNone      ReplenStatus = "none"
	ReplenTriggered ReplenStatus = "triggered"
	ReplenPending   ReplenStatus = "pending"
	ReplenStockout  ReplenStatus = "stockout"
)

// ReplenInfo describes replenishment triggered by a pick
type ReplenInfo struct {
	Triggered    bool   `json:"triggered"`
	AutoExecuted bool   `json:"autoExecuted"`
	Stockout     bool   `json:"stockout"`
	Quantity     int    `json:"quantity"`
	TaskID       string `json:"taskId,omitempty"`
}

// ReconciliationContext is produced per pick or short by the inventory side.
// Callers must check Deducted before assuming stock moved. SystemQuantity and
// ExpectedQuantity are nil when the inventory side did not report the bin. It
// is never persisted.
type ReconciliationContext struct {
	Deducted         bool       `json:"deducted"`
	Restored         bool       `json:"restored,omitempty"`
	SKU              string     `json:"sku,omitempty"`
	LocationID       string     `json:"locationId,omitempty"`
	SystemQuantity   *int       `json:"systemQuantity,omitempty"`
	ExpectedQuantity *int       `json:"expectedQuantity,omitempty"`
	BinCountNeeded   bool       `json:"binCountNeeded"`
	Replen           ReplenInfo `json:"replen"`
}

// StockLevel returns a quantity for a ReconciliationContext field
func StockLevel(n int) *int {
	return &n
}

// NotDeducted is the context for a pick the inventory side did not record.
// It carries no quantities.
func NotDeducted(sku, locationID string) *ReconciliationContext {
	return &ReconciliationContext{SKU: sku, LocationID: locationID}
}

// BinCount is a physical count reported by a picker
type BinCount struct {
	SKU            string
	LocationID     string
	ActualQuantity int
	CountedBy      string
}

// CountResult is the outcome of confirming or skipping a bin count
type CountResult struct {
	SKU             string       `json:"sku"`
	LocationID      string       `json:"locationId"`
	Adjustment      int          `json:"adjustment"`
	OnHand          int          `json:"onHand"`
	ReplenTriggered bool         `json:"replenTriggered"`
	ReplenStatus    ReplenStatus `json:"replenStatus"`
	TaskID          string       `json:"taskId,omitempty"`
}
