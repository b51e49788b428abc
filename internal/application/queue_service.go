package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/resilience"
)

// QueueService handles the claim, pick and exception use cases of the floor
type QueueService struct {
	units     domain.UnitRepository
	timeline  domain.TimelineRepository
	inventory domain.InventoryGateway
	retry     *resilience.RetryConfig
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewQueueService creates a new QueueService
func NewQueueService(
	units domain.UnitRepository,
	timeline domain.TimelineRepository,
	inventory domain.InventoryGateway,
	logger *logging.Logger,
	m *metrics.Metrics,
) *QueueService {
	return &QueueService{
		units:     units,
		timeline:  timeline,
		inventory: inventory,
		retry:     conflictRetry(),
		logger:    logger.WithComponent("queue-service"),
		metrics:   m,
	}
}

// conflictRetry reruns a load-modify-save cycle that lost a versioned write
func conflictRetry() *resilience.RetryConfig {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 5
	retry.InitialDelay = 10 * time.Millisecond
	retry.MaxDelay = 200 * time.Millisecond
	retry.Retryable = func(err error) bool {
		return stderrors.Is(err, domain.ErrConcurrentModification)
	}
	return retry
}

// modification is the saved result of a load-modify-save cycle
type modification struct {
	unit   *domain.WorkUnit
	group  []*domain.WorkUnit
	events []domain.DomainEvent
}

// modify loads the unit (and its combined group when withGroup is set), lets
// fn change it and saves what fn returns. Nothing is saved when fn raises no
// events. A lost versioned write reloads and runs fn again.
func (s *QueueService) modify(
	ctx context.Context,
	unitID string,
	withGroup bool,
	fn func(unit *domain.WorkUnit, group []*domain.WorkUnit) ([]*domain.WorkUnit, error),
) (*modification, error) {
	return resilience.RetryWithResult(ctx, s.retry, func() (*modification, error) {
		unit, err := s.units.FindByID(ctx, unitID)
		if err != nil {
			return nil, fmt.Errorf("failed to get work unit: %w", err)
		}
		if unit == nil {
			return nil, errors.ErrNotFoundWithID("work unit", unitID)
		}

		var group []*domain.WorkUnit
		if withGroup && unit.IsGrouped() {
			group, err = s.units.FindByGroupID(ctx, unit.CombinedGroupID)
			if err != nil {
				return nil, fmt.Errorf("failed to get combined group: %w", err)
			}
			for _, member := range group {
				if member.UnitID == unitID {
					unit = member
				}
			}
		}

		toSave, err := fn(unit, group)
		if err != nil {
			return &modification{unit: unit, group: group}, err
		}

		var events []domain.DomainEvent
		for _, u := range toSave {
			events = append(events, u.GetDomainEvents()...)
		}
		if len(events) == 0 {
			return &modification{unit: unit, group: group}, nil
		}

		if len(toSave) == 1 {
			err = s.units.Save(ctx, toSave[0])
		} else {
			err = s.units.SaveAll(ctx, toSave)
		}
		if err != nil {
			return &modification{unit: unit, group: group}, err
		}
		return &modification{unit: unit, group: group, events: events}, nil
	})
}

// CreateUnit ingests an order or a batch
func (s *QueueService) CreateUnit(ctx context.Context, cmd CreateUnitCommand) (*UnitDTO, error) {
	unitID := cmd.UnitID
	if unitID == "" {
		unitID = "WU-" + uuid.New().String()
	}

	unit, err := domain.NewWorkUnit(unitID, domain.UnitKind(cmd.Kind), cmd.OrderIDs, domain.Priority(cmd.Priority), cmd.Items)
	if err != nil {
		return nil, mapDomainError(err)
	}

	existing, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get work unit: %w", err)
	}
	if existing != nil {
		return nil, errors.ErrConflict("work unit already exists").WithDetail("unitId", unitID)
	}

	if err := s.units.Save(ctx, unit); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			return nil, errors.ErrConflict("work unit already exists").WithDetail("unitId", unitID)
		}
		s.logger.WithError(err).Error("Failed to create work unit", "unitId", unitID)
		return nil, fmt.Errorf("failed to create work unit: %w", err)
	}

	s.logger.Info("Created work unit", "unitId", unitID, "kind", cmd.Kind, "items", len(unit.Items))
	return ToUnitDTO(unit), nil
}

// CombineUnits links ready units into one combined group under a parent
func (s *QueueService) CombineUnits(ctx context.Context, cmd CombineUnitsCommand) (*UnitDTO, error) {
	ids := make([]string, 0, len(cmd.UnitIDs))
	seen := make(map[string]bool, len(cmd.UnitIDs))
	for _, id := range cmd.UnitIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	units, err := s.units.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get work units: %w", err)
	}
	found := make(map[string]bool, len(units))
	for _, u := range units {
		found[u.UnitID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, errors.ErrNotFoundWithID("work unit", id)
		}
	}

	groupID := "GRP-" + uuid.New().String()
	if err := domain.Combine(groupID, cmd.ParentUnitID, units); err != nil {
		return nil, mapDomainError(err)
	}

	if err := s.units.SaveAll(ctx, units); err != nil {
		if stderrors.Is(err, domain.ErrConcurrentModification) {
			return nil, mapDomainError(err)
		}
		s.logger.WithError(err).Error("Failed to combine work units", "groupId", groupID)
		return nil, fmt.Errorf("failed to combine work units: %w", err)
	}

	s.logger.Audit(ctx, "combine", "work_unit", cmd.ParentUnitID, cmd.ActorID, map[string]any{
		"groupId": groupID,
		"members": ids,
	})

	var parent *domain.WorkUnit
	for _, u := range units {
		if u.UnitID == cmd.ParentUnitID {
			parent = u
		}
	}
	domain.SortQueue(units)
	return ToUnitDTOWithMembers(parent, units), nil
}

// GetUnit returns a unit with the rest of its group
func (s *QueueService) GetUnit(ctx context.Context, query GetUnitQuery) (*UnitDTO, error) {
	unit, err := s.units.FindByID(ctx, query.UnitID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get work unit", "unitId", query.UnitID)
		return nil, fmt.Errorf("failed to get work unit: %w", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("work unit", query.UnitID)
	}

	if !unit.IsGrouped() {
		return ToUnitDTO(unit), nil
	}
	group, err := s.units.FindByGroupID(ctx, unit.CombinedGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get combined group: %w", err)
	}
	return ToUnitDTOWithMembers(unit, group), nil
}

// GetQueue returns the units visible to a picker in queue order
func (s *QueueService) GetQueue(ctx context.Context, query GetQueueQuery) ([]UnitDTO, error) {
	filter := domain.QueueFilter(query.Filter)
	switch filter {
	case "":
		filter = domain.QueueFilterReady
	case domain.QueueFilterReady, domain.QueueFilterAll:
	default:
		return nil, errors.ErrValidation("filter must be ready or all").WithDetail("filter", query.Filter)
	}

	units, err := s.units.FindQueue(ctx, domain.QueueQuery{
		PickerID:         query.PickerID,
		Filter:           filter,
		IncludeCompleted: query.IncludeCompleted,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to get queue", "pickerId", query.PickerID)
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return ToUnitDTOs(units), nil
}

// GrabNext returns the first open, unheld, unclaimed unit. It does not claim.
func (s *QueueService) GrabNext(ctx context.Context) (*UnitDTO, error) {
	unit, err := s.units.FindNextClaimable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get next unit: %w", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFound("claimable work unit")
	}
	return ToUnitDTO(unit), nil
}

// ClaimUnit gives the picker the unit, or every open member of its group
func (s *QueueService) ClaimUnit(ctx context.Context, cmd ClaimUnitCommand) (*UnitDTO, error) {
	if cmd.PickerID == "" {
		return nil, errors.ErrValidation("pickerId is required")
	}

	result, err := s.modify(ctx, cmd.UnitID, true, func(unit *domain.WorkUnit, group []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		if len(group) == 0 {
			return []*domain.WorkUnit{unit}, unit.Claim(cmd.PickerID)
		}
		if err := unit.Claimable(cmd.PickerID); err != nil {
			return nil, err
		}
		for _, member := range group {
			if member.IsClosed() {
				continue
			}
			if err := member.Claim(cmd.PickerID); err != nil {
				return nil, groupClaimError(unit.CombinedGroupID, member, err)
			}
		}
		return group, nil
	})
	if err != nil {
		var unit *domain.WorkUnit
		if result != nil {
			unit = result.unit
		}
		if unit != nil && unit.IsGrouped() && stderrors.Is(err, domain.ErrConcurrentModification) {
			err = errors.ErrGroupClaimFailed(unit.CombinedGroupID).Wrap(err)
		}
		appErr := claimError(unit, err)
		s.recordClaim(appErr)
		if !errors.IsAppError(err) && !isDomainError(err) {
			s.logger.WithError(err).Error("Failed to claim work unit", "unitId", cmd.UnitID)
		}
		return nil, appErr
	}

	s.recordClaim(nil)
	if len(result.events) > 0 {
		s.logger.Audit(ctx, "claim", "work_unit", cmd.UnitID, cmd.PickerID, map[string]any{
			"groupId": result.unit.CombinedGroupID,
			"members": len(result.group),
		})
	}
	return ToUnitDTOWithMembers(result.unit, result.group), nil
}

func groupClaimError(groupID string, member *domain.WorkUnit, err error) error {
	appErr := errors.ErrGroupClaimFailed(groupID).
		WithDetail("unitId", member.UnitID).
		WithDetail("reason", err.Error())
	if member.ClaimedBy != "" {
		appErr.WithDetail("claimedBy", member.ClaimedBy)
	}
	return appErr.Wrap(err)
}

func (s *QueueService) recordClaim(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordClaim("granted")
	case errors.HasCode(err, errors.CodeClaimConflict),
		errors.HasCode(err, errors.CodeGroupClaimFailed),
		errors.HasCode(err, errors.CodeUnitNotClaimable):
		s.metrics.RecordClaim("conflict")
	default:
		s.metrics.RecordClaim("error")
	}
}

// ReleaseUnit gives up the picker's claim on the unit and its group
func (s *QueueService) ReleaseUnit(ctx context.Context, cmd ReleaseUnitCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, true, func(unit *domain.WorkUnit, group []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		if len(group) == 0 {
			return []*domain.WorkUnit{unit}, unit.Release(cmd.PickerID, cmd.ResetProgress)
		}
		if unit.ClaimedBy == "" || unit.ClaimedBy != cmd.PickerID {
			return nil, domain.ErrNotClaimHolder
		}
		for _, member := range group {
			if member.ClaimedBy != cmd.PickerID {
				continue
			}
			if err := member.Release(cmd.PickerID, cmd.ResetProgress); err != nil {
				return nil, err
			}
		}
		return group, nil
	})
	if err != nil {
		return nil, s.failure(err, "Failed to release work unit", cmd.UnitID)
	}

	s.logger.Audit(ctx, "release", "work_unit", cmd.UnitID, cmd.PickerID, map[string]any{
		"resetProgress": cmd.ResetProgress,
	})
	return ToUnitDTOWithMembers(result.unit, result.group), nil
}

// ForceReleaseUnit clears the claim on the unit and its group whoever holds it
func (s *QueueService) ForceReleaseUnit(ctx context.Context, cmd ForceReleaseCommand) (*UnitDTO, error) {
	var holder string
	result, err := s.modify(ctx, cmd.UnitID, true, func(unit *domain.WorkUnit, group []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		holder = unit.ClaimedBy
		if len(group) == 0 {
			return []*domain.WorkUnit{unit}, unit.ForceRelease(cmd.ActorID, cmd.ResetProgress)
		}
		if unit.IsClosed() {
			return nil, domain.ErrUnitClosed
		}
		for _, member := range group {
			if member.IsClosed() || (!member.IsClaimed() && member.UnitID != unit.UnitID) {
				continue
			}
			if err := member.ForceRelease(cmd.ActorID, cmd.ResetProgress); err != nil {
				return nil, err
			}
		}
		return group, nil
	})
	if err != nil {
		return nil, s.failure(err, "Failed to force-release work unit", cmd.UnitID)
	}

	s.logger.Audit(ctx, "force_release", "work_unit", cmd.UnitID, cmd.ActorID, map[string]any{
		"previousHolder": holder,
		"resetProgress":  cmd.ResetProgress,
	})
	return ToUnitDTOWithMembers(result.unit, result.group), nil
}

// HoldUnit takes the unit out of pickable availability
func (s *QueueService) HoldUnit(ctx context.Context, cmd HoldCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		return []*domain.WorkUnit{unit}, unit.Hold(cmd.ActorID)
	})
	if err != nil {
		return nil, s.failure(err, "Failed to hold work unit", cmd.UnitID)
	}
	s.logger.Audit(ctx, "hold", "work_unit", cmd.UnitID, cmd.ActorID, nil)
	return ToUnitDTO(result.unit), nil
}

// ReleaseHold returns a held unit to pickable availability
func (s *QueueService) ReleaseHold(ctx context.Context, cmd HoldCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		return []*domain.WorkUnit{unit}, unit.ReleaseHold(cmd.ActorID)
	})
	if err != nil {
		return nil, s.failure(err, "Failed to release hold", cmd.UnitID)
	}
	s.logger.Audit(ctx, "release_hold", "work_unit", cmd.UnitID, cmd.ActorID, nil)
	return ToUnitDTO(result.unit), nil
}

// SetPriority re-ranks the unit in the queue
func (s *QueueService) SetPriority(ctx context.Context, cmd SetPriorityCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		return []*domain.WorkUnit{unit}, unit.SetPriority(domain.Priority(cmd.Priority), cmd.ActorID)
	})
	if err != nil {
		return nil, s.failure(err, "Failed to set priority", cmd.UnitID)
	}
	s.logger.Audit(ctx, "set_priority", "work_unit", cmd.UnitID, cmd.ActorID, map[string]any{
		"priority": cmd.Priority,
	})
	return ToUnitDTO(result.unit), nil
}

// UpdateItem records the item's new picked count and reconciles the change
// with inventory. A failed inventory call never rolls the pick back.
func (s *QueueService) UpdateItem(ctx context.Context, cmd UpdateItemCommand) (*UpdateItemResultDTO, error) {
	if cmd.PickerID == "" {
		return nil, errors.ErrValidation("pickerId is required")
	}
	method := domain.PickMethodManual
	if cmd.Method != "" {
		method = domain.PickMethod(cmd.Method)
	}
	if !method.IsValid() {
		return nil, mapDomainError(domain.ErrInvalidPickMethod)
	}
	switch domain.ItemStatus(cmd.Status) {
	case "", domain.ItemStatusPending, domain.ItemStatusInProgress, domain.ItemStatusCompleted, domain.ItemStatusShort:
	default:
		return nil, errors.ErrValidation("invalid item status").WithDetail("status", cmd.Status)
	}

	var (
		updated domain.Item
		delta   int
		shorted bool
	)
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		item, err := unit.FindItem(cmd.ItemID)
		if err != nil {
			return nil, err
		}
		if cmd.PickedQuantity < 0 {
			return nil, domain.ErrInvalidQuantity
		}
		if cmd.PickedQuantity > item.Quantity {
			return nil, fmt.Errorf("picked %d of %d: %w", cmd.PickedQuantity, item.Quantity, domain.ErrQuantityExceedsTarget)
		}

		before := item.PickedQuantity
		var changed *domain.Item
		switch {
		case domain.ItemStatus(cmd.Status) == domain.ItemStatusShort:
			changed, err = unit.RecordShort(cmd.ItemID, cmd.PickedQuantity, domain.ShortReason(cmd.Reason), cmd.Note, cmd.PickerID)
			shorted = true
		case cmd.PickedQuantity == before:
			changed = item
		case cmd.PickedQuantity > before && !item.IsTerminal():
			changed, err = unit.RecordPick(cmd.ItemID, cmd.PickedQuantity-before, method, cmd.PickerID)
		case cmd.PickedQuantity == before-1 && method == domain.PickMethodManual && !item.IsTerminal():
			changed, err = unit.RecordManualDecrement(cmd.ItemID, cmd.PickerID)
		default:
			changed, err = unit.RecordEdit(cmd.ItemID, cmd.PickedQuantity, method, cmd.PickerID)
		}
		if err != nil {
			return nil, err
		}

		updated = *changed
		delta = changed.PickedQuantity - before
		return []*domain.WorkUnit{unit}, nil
	})
	if err != nil {
		return nil, s.failure(err, "Failed to update item", cmd.UnitID)
	}
	s.observe(result.events)

	reconciliation := s.reconcile(ctx, updated, delta, shorted, cmd.PickerID)

	if updated.Status == domain.ItemStatusShort && len(result.events) > 0 {
		s.logger.Audit(ctx, "short_pick", "item", updated.ItemID, cmd.PickerID, map[string]any{
			"unitId":         cmd.UnitID,
			"reason":         cmd.Reason,
			"pickedQuantity": updated.PickedQuantity,
			"target":         updated.Quantity,
		})
	} else if delta != 0 {
		s.logger.Audit(ctx, "pick", "item", updated.ItemID, cmd.PickerID, map[string]any{
			"unitId": cmd.UnitID,
			"delta":  delta,
			"method": string(method),
		})
	}

	return &UpdateItemResultDTO{
		Item:           ToItemDTO(updated),
		Unit:           ToUnitDTO(result.unit),
		Reconciliation: reconciliation,
	}, nil
}

// reconcile moves stock for a picked delta and reports a short to inventory
// even when nothing was picked. Inventory failures degrade to a context
// reporting nothing deducted.
func (s *QueueService) reconcile(ctx context.Context, item domain.Item, delta int, shorted bool, pickerID string) *domain.ReconciliationContext {
	if s.inventory == nil || (delta == 0 && !shorted) {
		return domain.NotDeducted(item.SKU, item.LocationID)
	}

	var (
		rc  *domain.ReconciliationContext
		err error
	)
	switch {
	case shorted && delta >= 0:
		rc, err = s.inventory.ReportShort(ctx, item.SKU, item.LocationID, delta, item.Short.Reason, pickerID)
	case delta > 0:
		rc, err = s.inventory.Deduct(ctx, item.SKU, item.LocationID, delta, pickerID)
	default:
		rc, err = s.inventory.Restore(ctx, item.SKU, item.LocationID, -delta, pickerID)
	}
	if err != nil || rc == nil {
		s.logger.WithError(err).Warn("Inventory reconciliation failed, pick kept",
			"sku", item.SKU, "locationId", item.LocationID, "delta", delta, "short", shorted)
		return domain.NotDeducted(item.SKU, item.LocationID)
	}
	return rc
}

// ListExceptions returns the units awaiting review
func (s *QueueService) ListExceptions(ctx context.Context) ([]UnitDTO, error) {
	units, err := s.units.FindWithOpenExceptions(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list exceptions")
		return nil, fmt.Errorf("failed to list exceptions: %w", err)
	}
	return ToUnitDTOs(units), nil
}

// ResolveException applies a lead's one-shot resolution
func (s *QueueService) ResolveException(ctx context.Context, cmd ResolveExceptionCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		return []*domain.WorkUnit{unit}, unit.ResolveException(domain.Resolution(cmd.Resolution), cmd.ActorID, cmd.Note)
	})
	if err != nil {
		return nil, s.failure(err, "Failed to resolve exception", cmd.UnitID)
	}
	s.observe(result.events)

	s.logger.Audit(ctx, "resolve_exception", "work_unit", cmd.UnitID, cmd.ActorID, map[string]any{
		"resolution": cmd.Resolution,
		"note":       cmd.Note,
	})
	return ToUnitDTO(result.unit), nil
}

// MarkReadyToShip hands a completed unit to shipping
func (s *QueueService) MarkReadyToShip(ctx context.Context, cmd ReadyToShipCommand) (*UnitDTO, error) {
	result, err := s.modify(ctx, cmd.UnitID, false, func(unit *domain.WorkUnit, _ []*domain.WorkUnit) ([]*domain.WorkUnit, error) {
		return []*domain.WorkUnit{unit}, unit.MarkReadyToShip(cmd.ActorID)
	})
	if err != nil {
		return nil, s.failure(err, "Failed to mark unit ready to ship", cmd.UnitID)
	}
	s.logger.Audit(ctx, "ready_to_ship", "work_unit", cmd.UnitID, cmd.ActorID, nil)
	return ToUnitDTO(result.unit), nil
}

// GetTimeline returns the unit's audit entries oldest first
func (s *QueueService) GetTimeline(ctx context.Context, query GetUnitQuery) ([]TimelineEntryDTO, error) {
	unit, err := s.units.FindByID(ctx, query.UnitID)
	if err != nil {
		return nil, fmt.Errorf("failed to get work unit: %w", err)
	}
	if unit == nil {
		return nil, errors.ErrNotFoundWithID("work unit", query.UnitID)
	}

	entries, err := s.timeline.FindByUnitID(ctx, query.UnitID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get timeline", "unitId", query.UnitID)
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}
	return ToTimelineDTOs(entries), nil
}

// failure maps a modify error. Store failures are logged; rule violations
// are the caller's problem and are not.
func (s *QueueService) failure(err error, msg, unitID string) error {
	if errors.IsAppError(err) || isDomainError(err) {
		return mapDomainError(err)
	}
	s.logger.WithError(err).Error(msg, "unitId", unitID)
	return fmt.Errorf("%s: %w", msg, err)
}

// observe records the business metrics carried by saved events
func (s *QueueService) observe(events []domain.DomainEvent) {
	if s.metrics == nil {
		return
	}
	for _, event := range events {
		switch e := event.(type) {
		case *domain.ItemPickedEvent:
			if e.Delta > 0 {
				s.metrics.RecordPick(e.Method, e.Delta)
			}
		case *domain.ItemShortedEvent:
			s.metrics.RecordShortPick(e.Reason)
		case *domain.UnitExceptionRaisedEvent:
			s.metrics.RecordExceptionRaised()
		case *domain.UnitExceptionResolvedEvent:
			s.metrics.RecordExceptionResolved(e.Resolution)
		case *domain.UnitCompletedEvent:
			s.metrics.RecordUnitCompleted()
		}
	}
}

var domainErrors = []error{
	domain.ErrUnitNotFound, domain.ErrItemNotFound, domain.ErrNoItems, domain.ErrAlreadyClaimed,
	domain.ErrNotClaimHolder, domain.ErrUnitOnHold, domain.ErrUnitClosed, domain.ErrConcurrentModification,
	domain.ErrInvalidPriority, domain.ErrInvalidKind, domain.ErrNotReadyToShip, domain.ErrAlreadyReadyToShip,
	domain.ErrInvalidQuantity, domain.ErrQuantityExceedsTarget, domain.ErrItemTerminal, domain.ErrItemShort,
	domain.ErrNothingToDecrement, domain.ErrInvalidPickMethod, domain.ErrInvalidShortReason,
	domain.ErrNoException, domain.ErrExceptionAlreadyResolved, domain.ErrExceptionOpen, domain.ErrInvalidResolution,
	domain.ErrGroupTooSmall, domain.ErrParentNotInSet, domain.ErrAlreadyGrouped, domain.ErrNotCombinable,
	domain.ErrBinNotFound, domain.ErrNegativeCount, domain.ErrInvalidBinSpec,
}

// isDomainError reports whether err is one of the domain's sentinels
func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
