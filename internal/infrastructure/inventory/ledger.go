package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/resilience"
)

// ReplenishmentScheduler starts and cancels replenishment for a bin
type ReplenishmentScheduler interface {
	// Schedule starts a replenishment and returns its ID. running reports that
	// one was already in flight for the bin, in which case id names that one.
	Schedule(ctx context.Context, sku, locationID string, qty int) (id string, running bool, err error)
	Cancel(ctx context.Context, id string) error
}

// LedgerGateway is the embedded inventory side. It keeps forward pick stock in
// a BinStockRepository and hands non-automatic replenishment to a scheduler.
type LedgerGateway struct {
	bins      domain.BinStockRepository
	scheduler ReplenishmentScheduler
	retry     *resilience.RetryConfig
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewLedgerGateway creates a ledger gateway
func NewLedgerGateway(bins domain.BinStockRepository, scheduler ReplenishmentScheduler, logger *logging.Logger, m *metrics.Metrics) *LedgerGateway {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.InitialDelay = 10 * time.Millisecond
	retry.Retryable = func(err error) bool {
		return errors.Is(err, domain.ErrConcurrentModification)
	}
	return &LedgerGateway{
		bins:      bins,
		scheduler: scheduler,
		retry:     retry,
		logger:    logger.WithComponent("inventory-ledger"),
		metrics:   m,
	}
}

// update loads the bin, applies fn and saves it, starting over when another
// writer saved the bin first. A missing bin is passed to fn as nil.
func update[T any](ctx context.Context, g *LedgerGateway, sku, locationID string, fn func(bin *domain.BinStock) (T, bool, error)) (T, error) {
	return resilience.RetryWithResult(ctx, g.retry, func() (T, error) {
		var zero T
		bin, err := g.bins.FindByLocation(ctx, sku, locationID)
		if err != nil {
			return zero, fmt.Errorf("failed to load bin %s: %w", domain.BinID(sku, locationID), err)
		}
		result, changed, err := fn(bin)
		if err != nil || !changed {
			return result, err
		}
		if err := g.bins.Save(ctx, bin); err != nil {
			return zero, err
		}
		return result, nil
	})
}

// Deduct takes picked units out of the bin and reports what the floor should
// do about it. Picks at a location the ledger does not know are not deducted.
func (g *LedgerGateway) Deduct(ctx context.Context, sku, locationID string, qty int, actorID string) (*domain.ReconciliationContext, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var (
		status domain.ReplenStatus
		start  bool
	)
	rc, err := update(ctx, g, sku, locationID, func(bin *domain.BinStock) (*domain.ReconciliationContext, bool, error) {
		if bin == nil {
			return domain.NotDeducted(sku, locationID), false, nil
		}
		rc := bin.Deduct(qty)
		rc.SKU, rc.LocationID = sku, locationID
		status, start = g.plan(bin, rc, true)
		return rc, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !rc.Deducted {
		g.logger.WithFields(map[string]any{"sku": sku, "locationId": locationID}).Warn("Pick at unknown bin, stock not deducted")
		return rc, nil
	}
	g.settle(ctx, rc, status, start)
	return rc, nil
}

// ReportShort deducts what was picked on a short line and asks for a count
// when the ledger still shows stock the picker could not take
func (g *LedgerGateway) ReportShort(ctx context.Context, sku, locationID string, picked int, reason domain.ShortReason, actorID string) (*domain.ReconciliationContext, error) {
	if picked < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var (
		status domain.ReplenStatus
		start  bool
	)
	rc, err := update(ctx, g, sku, locationID, func(bin *domain.BinStock) (*domain.ReconciliationContext, bool, error) {
		if bin == nil {
			return domain.NotDeducted(sku, locationID), false, nil
		}
		rc := bin.ReportShort(reason)
		if picked > 0 {
			countNeeded := rc.BinCountNeeded
			rc = bin.Deduct(picked)
			rc.BinCountNeeded = rc.BinCountNeeded || countNeeded
		}
		rc.SKU, rc.LocationID = sku, locationID
		status, start = g.plan(bin, rc, true)
		return rc, picked > 0 || start || rc.Replen.AutoExecuted, nil
	})
	if err != nil {
		return nil, err
	}
	if rc.SystemQuantity == nil {
		g.logger.WithFields(map[string]any{"sku": sku, "locationId": locationID}).Warn("Short at unknown bin")
		return rc, nil
	}
	g.settle(ctx, rc, status, start)
	if rc.BinCountNeeded {
		g.logger.WithFields(map[string]any{
			"sku":        sku,
			"locationId": locationID,
			"reason":     string(reason),
			"onHand":     *rc.SystemQuantity,
		}).Warn("Short pick at a bin the ledger shows stocked")
	}
	return rc, nil
}

// Restore puts un-picked units back
func (g *LedgerGateway) Restore(ctx context.Context, sku, locationID string, qty int, actorID string) (*domain.ReconciliationContext, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return update(ctx, g, sku, locationID, func(bin *domain.BinStock) (*domain.ReconciliationContext, bool, error) {
		if bin == nil {
			return domain.NotDeducted(sku, locationID), false, nil
		}
		rc := bin.Restore(qty)
		rc.SKU, rc.LocationID = sku, locationID
		return rc, true, nil
	})
}

// ConfirmCount replaces the bin quantity with a physical count and reports
// whether the corrected bin needs replenishment. It never moves reserve, so
// counting the same quantity again corrects nothing.
func (g *LedgerGateway) ConfirmCount(ctx context.Context, count domain.BinCount) (*domain.CountResult, error) {
	var (
		rc     *domain.ReconciliationContext
		status domain.ReplenStatus
		start  bool
	)
	result, err := update(ctx, g, count.SKU, count.LocationID, func(bin *domain.BinStock) (*domain.CountResult, bool, error) {
		if bin == nil {
			return nil, false, domain.ErrBinNotFound
		}
		adjustment, err := bin.ConfirmCount(count.ActualQuantity, count.CountedBy)
		if err != nil {
			return nil, false, err
		}
		rc = &domain.ReconciliationContext{
			SKU:              bin.SKU,
			LocationID:       bin.LocationID,
			SystemQuantity:   domain.StockLevel(bin.OnHand),
			ExpectedQuantity: domain.StockLevel(bin.OnHand),
		}
		status, start = g.plan(bin, rc, false)
		return &domain.CountResult{
			SKU:        bin.SKU,
			LocationID: bin.LocationID,
			Adjustment: adjustment,
			OnHand:     bin.OnHand,
		}, true, nil
	})
	if err != nil {
		return nil, err
	}
	result.ReplenStatus = g.settle(ctx, rc, status, start)
	result.ReplenTriggered = rc.Replen.Triggered
	result.TaskID = rc.Replen.TaskID

	outcome := "match"
	if result.Adjustment != 0 {
		outcome = "adjusted"
	}
	g.metrics.RecordBinCount(outcome)
	g.logger.WithFields(map[string]any{
		"sku":        result.SKU,
		"locationId": result.LocationID,
		"adjustment": result.Adjustment,
		"countedBy":  count.CountedBy,
	}).Info("Bin count confirmed")
	return result, nil
}

// SkipReplenishment records the count and drops a pending replenishment,
// cancelling its workflow
func (g *LedgerGateway) SkipReplenishment(ctx context.Context, count domain.BinCount) (*domain.CountResult, error) {
	var pending string
	result, err := update(ctx, g, count.SKU, count.LocationID, func(bin *domain.BinStock) (*domain.CountResult, bool, error) {
		if bin == nil {
			return nil, false, domain.ErrBinNotFound
		}
		previous := bin.OnHand
		id, err := bin.SkipReplenishment(count.ActualQuantity, count.CountedBy)
		if err != nil {
			return nil, false, err
		}
		pending = id
		return &domain.CountResult{
			SKU:          bin.SKU,
			LocationID:   bin.LocationID,
			Adjustment:   count.ActualQuantity - previous,
			OnHand:       bin.OnHand,
			ReplenStatus: domain.ReplenNone,
		}, true, nil
	})
	if err != nil {
		return nil, err
	}

	if pending != "" && g.scheduler != nil {
		if err := g.scheduler.Cancel(ctx, pending); err != nil {
			g.logger.WithError(err).WithFields(map[string]any{"replenishmentId": pending}).Warn("Failed to cancel replenishment")
		}
	}
	g.metrics.RecordBinCount("skipped")
	g.metrics.RecordReplenishment("skipped")
	return result, nil
}

// MoveReserve moves up to qty units from reserve into the bin and returns how
// many moved
func (g *LedgerGateway) MoveReserve(ctx context.Context, sku, locationID string, qty int) (int, error) {
	return update(ctx, g, sku, locationID, func(bin *domain.BinStock) (int, bool, error) {
		if bin == nil {
			return 0, false, domain.ErrBinNotFound
		}
		moved := bin.MoveFromReserve(qty)
		return moved, moved > 0, nil
	})
}

// ClearPending clears the bin's pending replenishment if it still names id
func (g *LedgerGateway) ClearPending(ctx context.Context, sku, locationID, id string) error {
	_, err := update(ctx, g, sku, locationID, func(bin *domain.BinStock) (bool, bool, error) {
		if bin == nil {
			return false, false, nil
		}
		cleared := bin.ClearPendingReplenishment(id)
		return cleared, cleared, nil
	})
	return err
}

// plan records the bin's replenishment state on rc inside a ledger update.
// With move set an auto bin is refilled from reserve in place. A bin that
// needs a task is marked pending before it is saved, and start reports that
// the task must be started once the save went through.
func (g *LedgerGateway) plan(bin *domain.BinStock, rc *domain.ReconciliationContext, move bool) (status domain.ReplenStatus, start bool) {
	status = bin.PlanReplenishment(rc)
	if status != domain.ReplenTriggered {
		return status, false
	}
	if bin.AutoReplenish && move {
		rc.Replen.Quantity = bin.MoveFromReserve(rc.Replen.Quantity)
		rc.Replen.AutoExecuted = true
		rc.ExpectedQuantity = domain.StockLevel(bin.OnHand)
		return status, false
	}
	if g.scheduler == nil {
		return status, false
	}
	id := domain.ReplenishmentWorkflowID(bin.SKU, bin.LocationID)
	bin.MarkReplenishmentPending(id)
	rc.Replen.TaskID = id
	return status, true
}

// settle starts the replenishment plan marked pending, if any, and records
// the outcome. Scheduling failures are logged; the pick itself still counts.
func (g *LedgerGateway) settle(ctx context.Context, rc *domain.ReconciliationContext, status domain.ReplenStatus, start bool) domain.ReplenStatus {
	if start {
		status = g.start(ctx, rc)
	}
	switch {
	case rc.Replen.AutoExecuted:
		g.metrics.RecordReplenishment("auto")
	case status != domain.ReplenNone:
		g.metrics.RecordReplenishment(string(status))
	}
	return status
}

// start runs the replenishment whose marker was just saved. When the start
// fails, or a run with the same ID is still open, nothing will clear the
// marker, so it is cleared here and the next pick can trigger again.
func (g *LedgerGateway) start(ctx context.Context, rc *domain.ReconciliationContext) domain.ReplenStatus {
	id := rc.Replen.TaskID
	fields := map[string]any{"sku": rc.SKU, "locationId": rc.LocationID, "replenishmentId": id}

	_, running, err := g.scheduler.Schedule(ctx, rc.SKU, rc.LocationID, rc.Replen.Quantity)
	if err == nil && !running {
		fields["quantity"] = rc.Replen.Quantity
		g.logger.WithFields(fields).Info("Replenishment triggered")
		return domain.ReplenTriggered
	}

	if clearErr := g.ClearPending(ctx, rc.SKU, rc.LocationID, id); clearErr != nil {
		g.logger.WithError(clearErr).WithFields(fields).Warn("Failed to clear pending replenishment")
	}
	rc.Replen.Triggered = false
	rc.ExpectedQuantity = rc.SystemQuantity
	if err != nil {
		g.logger.WithError(err).WithFields(fields).Error("Failed to schedule replenishment")
		rc.Replen.TaskID = ""
		return domain.ReplenNone
	}
	return domain.ReplenPending
}
