package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/wms-platform/pick-floor/internal/domain"
)

// ReplenishmentLedger is the stock store the replenishment activities move
// stock in
type ReplenishmentLedger interface {
	MoveReserve(ctx context.Context, sku, locationID string, qty int) (int, error)
	ClearPending(ctx context.Context, sku, locationID, id string) error
}

// ReplenishmentActivities contains the activities of the replenishment workflow
type ReplenishmentActivities struct {
	ledger ReplenishmentLedger
}

// NewReplenishmentActivities creates a new ReplenishmentActivities instance
func NewReplenishmentActivities(ledger ReplenishmentLedger) *ReplenishmentActivities {
	return &ReplenishmentActivities{ledger: ledger}
}

// MoveReserveInput holds the input for moving reserve stock
type MoveReserveInput struct {
	SKU        string `json:"sku"`
	LocationID string `json:"locationId"`
	Quantity   int    `json:"quantity"`
}

// MoveReserveStock refills the forward bin from reserve and returns how many
// units moved
func (a *ReplenishmentActivities) MoveReserveStock(ctx context.Context, input MoveReserveInput) (int, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Moving reserve stock", "sku", input.SKU, "locationId", input.LocationID, "quantity", input.Quantity)

	moved, err := a.ledger.MoveReserve(ctx, input.SKU, input.LocationID, input.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrBinNotFound) {
			return 0, temporal.NewNonRetryableApplicationError("bin not found", "BinNotFound", err)
		}
		logger.Error("Failed to move reserve stock", "sku", input.SKU, "error", err)
		return 0, fmt.Errorf("failed to move reserve stock: %w", err)
	}

	logger.Info("Reserve stock moved", "sku", input.SKU, "locationId", input.LocationID, "moved", moved)
	return moved, nil
}

// ClearPendingInput holds the input for clearing a pending replenishment
type ClearPendingInput struct {
	SKU             string `json:"sku"`
	LocationID      string `json:"locationId"`
	ReplenishmentID string `json:"replenishmentId"`
}

// ClearPendingReplenishment lets the bin trigger replenishment again
func (a *ReplenishmentActivities) ClearPendingReplenishment(ctx context.Context, input ClearPendingInput) error {
	if err := a.ledger.ClearPending(ctx, input.SKU, input.LocationID, input.ReplenishmentID); err != nil {
		return fmt.Errorf("failed to clear pending replenishment: %w", err)
	}
	activity.GetLogger(ctx).Info("Pending replenishment cleared", "replenishmentId", input.ReplenishmentID)
	return nil
}
