package inventory

import (
	"context"

	"go.temporal.io/sdk/client"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/workflows"
	"github.com/wms-platform/pick-floor/pkg/temporal"
)

// WorkflowClient is the slice of the Temporal client the scheduler needs
type WorkflowClient interface {
	StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string) error
}

// TemporalScheduler runs one replenishment workflow per bin
type TemporalScheduler struct {
	client WorkflowClient
}

func NewTemporalScheduler(c WorkflowClient) *TemporalScheduler {
	return &TemporalScheduler{client: c}
}

func (s *TemporalScheduler) Schedule(ctx context.Context, sku, locationID string, qty int) (string, bool, error) {
	id := domain.ReplenishmentWorkflowID(sku, locationID)
	_, err := s.client.StartWorkflow(ctx, id, temporal.TaskQueues.Replenishment, temporal.WorkflowNames.Replenishment,
		workflows.ReplenishmentInput{SKU: sku, LocationID: locationID, Quantity: qty})
	if err != nil {
		if temporal.IsAlreadyStarted(err) {
			return id, true, nil
		}
		return "", false, err
	}
	return id, false, nil
}

// Cancel cancels the replenishment workflow. One that already finished is
// not an error.
func (s *TemporalScheduler) Cancel(ctx context.Context, id string) error {
	if err := s.client.CancelWorkflow(ctx, id); err != nil && !temporal.IsNotFound(err) {
		return err
	}
	return nil
}
