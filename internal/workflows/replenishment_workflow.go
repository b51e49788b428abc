package workflows

import (
	"fmt"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/pick-floor/internal/activities"
	"github.com/wms-platform/pick-floor/pkg/temporal"
)

// ReplenishmentInput is the input of ReplenishmentWorkflow
type ReplenishmentInput struct {
	SKU        string `json:"sku"`
	LocationID string `json:"locationId"`
	Quantity   int    `json:"quantity"`
}

// ReplenishmentResult is the outcome of a replenishment
type ReplenishmentResult struct {
	ReplenishmentID string `json:"replenishmentId"`
	Moved           int    `json:"moved"`
	Cancelled       bool   `json:"cancelled"`
}

// ReplenishmentWorkflow refills one forward bin from reserve. There is at most
// one run per bin; its ID is the bin's pending replenishment marker, which is
// cleared however the run ends so the bin can trigger again.
func ReplenishmentWorkflow(ctx workflow.Context, input ReplenishmentInput) (*ReplenishmentResult, error) {
	logger := workflow.GetLogger(ctx)
	id := workflow.GetInfo(ctx).WorkflowExecution.ID
	logger.Info("Starting replenishment", "replenishmentId", id, "sku", input.SKU, "locationId", input.LocationID, "quantity", input.Quantity)

	ctx = workflow.WithActivityOptions(ctx, temporal.DefaultActivityOptions().WorkflowOptions())
	var a *activities.ReplenishmentActivities
	result := &ReplenishmentResult{ReplenishmentID: id}
	clearInput := activities.ClearPendingInput{SKU: input.SKU, LocationID: input.LocationID, ReplenishmentID: id}

	err := workflow.ExecuteActivity(ctx, a.MoveReserveStock, activities.MoveReserveInput{
		SKU:        input.SKU,
		LocationID: input.LocationID,
		Quantity:   input.Quantity,
	}).Get(ctx, &result.Moved)

	if err != nil {
		// cancelled or failed, the marker still has to go
		cleanup, _ := workflow.NewDisconnectedContext(ctx)
		if clearErr := workflow.ExecuteActivity(cleanup, a.ClearPendingReplenishment, clearInput).Get(cleanup, nil); clearErr != nil {
			logger.Warn("Failed to clear pending replenishment", "replenishmentId", id, "error", clearErr)
		}
		if sdktemporal.IsCanceledError(err) {
			logger.Info("Replenishment cancelled", "replenishmentId", id)
			result.Cancelled = true
			return result, err
		}
		return nil, fmt.Errorf("replenishment %s failed: %w", id, err)
	}

	if err := workflow.ExecuteActivity(ctx, a.ClearPendingReplenishment, clearInput).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("replenishment %s moved stock but could not clear: %w", id, err)
	}

	logger.Info("Replenishment completed", "replenishmentId", id, "moved", result.Moved)
	return result, nil
}
