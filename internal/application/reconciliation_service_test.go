package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/infrastructure/inventory"
	"github.com/wms-platform/pick-floor/internal/infrastructure/memory"
	apperrors "github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/resilience"
)

func newTestReconciliation(t *testing.T) *ReconciliationService {
	t.Helper()
	bin, err := domain.NewBinStock("SKU-A", "A-01-01", 10, 0, 2, 20, 3)
	require.NoError(t, err)
	ledger := inventory.NewLedgerGateway(memory.NewBinStockRepository(bin), nil, logging.Discard(), metrics.New(metrics.DefaultConfig("test")))
	return NewReconciliationService(ledger, logging.Discard())
}

func TestReconciliationService_ConfirmCountIsIdempotent(t *testing.T) {
	service := newTestReconciliation(t)
	cmd := BinCountCommand{SKU: "SKU-A", LocationID: "A-01-01", ActualQuantity: 7, CountedBy: "picker-1"}

	first, err := service.ConfirmCount(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, -3, first.Adjustment)
	assert.Equal(t, 7, first.OnHand)
	assert.Equal(t, "none", first.ReplenStatus)

	second, err := service.ConfirmCount(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Adjustment)
	assert.Equal(t, 7, second.OnHand)
}

func TestReconciliationService_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		cmd      BinCountCommand
		wantCode string
	}{
		{name: "missing location", cmd: BinCountCommand{SKU: "SKU-A", ActualQuantity: 1}, wantCode: apperrors.CodeValidationError},
		{name: "negative count", cmd: BinCountCommand{SKU: "SKU-A", LocationID: "A-01-01", ActualQuantity: -1}, wantCode: apperrors.CodeValidationError},
		{name: "unknown bin", cmd: BinCountCommand{SKU: "SKU-Z", LocationID: "Z-99", ActualQuantity: 1}, wantCode: apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestReconciliation(t).ConfirmCount(context.Background(), tt.cmd)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestReconciliationService_Skip(t *testing.T) {
	service := newTestReconciliation(t)

	result, err := service.SkipReplenishment(context.Background(), BinCountCommand{
		SKU: "SKU-A", LocationID: "A-01-01", ActualQuantity: 1, CountedBy: "picker-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.OnHand)
	assert.False(t, result.ReplenTriggered)
}

type openBreakerInventory struct {
	domain.InventoryGateway
}

func (openBreakerInventory) ConfirmCount(ctx context.Context, count domain.BinCount) (*domain.CountResult, error) {
	return nil, fmt.Errorf("inventory-service: %w", resilience.ErrCircuitOpen)
}

func TestReconciliationService_OpenBreakerIsUnavailable(t *testing.T) {
	service := NewReconciliationService(openBreakerInventory{}, logging.Discard())

	_, err := service.ConfirmCount(context.Background(), BinCountCommand{SKU: "SKU-A", LocationID: "A-01-01", ActualQuantity: 3})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeServiceUnavailable))
}
