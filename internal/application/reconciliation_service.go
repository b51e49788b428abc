package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/resilience"
)

// ReconciliationService handles the bin-count gate raised after a pick
type ReconciliationService struct {
	inventory domain.InventoryGateway
	logger    *logging.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(inventory domain.InventoryGateway, logger *logging.Logger) *ReconciliationService {
	return &ReconciliationService{
		inventory: inventory,
		logger:    logger.WithComponent("reconciliation-service"),
	}
}

// ConfirmCount sets the bin's on-hand to the counted quantity
func (s *ReconciliationService) ConfirmCount(ctx context.Context, cmd BinCountCommand) (*BinCountResultDTO, error) {
	count, err := toBinCount(cmd)
	if err != nil {
		return nil, err
	}

	result, err := s.inventory.ConfirmCount(ctx, count)
	if err != nil {
		return nil, s.failure(err, "Failed to confirm bin count", count)
	}

	s.logger.Audit(ctx, "confirm_count", "bin", domain.BinID(count.SKU, count.LocationID), count.CountedBy, map[string]any{
		"actualQuantity": count.ActualQuantity,
		"adjustment":     result.Adjustment,
		"replenStatus":   string(result.ReplenStatus),
	})
	return ToBinCountResultDTO(result), nil
}

// SkipReplenishment records the count and cancels pending replenishment
func (s *ReconciliationService) SkipReplenishment(ctx context.Context, cmd BinCountCommand) (*BinCountResultDTO, error) {
	count, err := toBinCount(cmd)
	if err != nil {
		return nil, err
	}

	result, err := s.inventory.SkipReplenishment(ctx, count)
	if err != nil {
		return nil, s.failure(err, "Failed to skip replenishment", count)
	}

	s.logger.Audit(ctx, "skip_replenishment", "bin", domain.BinID(count.SKU, count.LocationID), count.CountedBy, map[string]any{
		"actualQuantity": count.ActualQuantity,
		"adjustment":     result.Adjustment,
	})
	return ToBinCountResultDTO(result), nil
}

func toBinCount(cmd BinCountCommand) (domain.BinCount, error) {
	if cmd.SKU == "" || cmd.LocationID == "" {
		return domain.BinCount{}, mapDomainError(domain.ErrInvalidBinSpec)
	}
	if cmd.ActualQuantity < 0 {
		return domain.BinCount{}, mapDomainError(domain.ErrNegativeCount)
	}
	return domain.BinCount{
		SKU:            cmd.SKU,
		LocationID:     cmd.LocationID,
		ActualQuantity: cmd.ActualQuantity,
		CountedBy:      cmd.CountedBy,
	}, nil
}

func (s *ReconciliationService) failure(err error, msg string, count domain.BinCount) error {
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return errors.ErrServiceUnavailable("inventory").Wrap(err)
	}
	if isDomainError(err) {
		return mapDomainError(err)
	}
	s.logger.WithError(err).Error(msg, "sku", count.SKU, "locationId", count.LocationID)
	return fmt.Errorf("%s: %w", msg, err)
}
