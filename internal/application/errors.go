package application

import (
	stderrors "errors"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
)

// mapDomainError turns a domain sentinel into the AppError the API reports.
// Unknown errors fall back to the message heuristics of errors.MapDomainError.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}
	if errors.IsAppError(err) {
		return err
	}

	switch {
	case stderrors.Is(err, domain.ErrNotClaimHolder):
		return errors.ErrNotClaimHolder().Wrap(err)
	case stderrors.Is(err, domain.ErrExceptionAlreadyResolved):
		return errors.ErrExceptionAlreadyResolved().Wrap(err)
	case stderrors.Is(err, domain.ErrNoException):
		return errors.ErrNotFound("open exception").Wrap(err)
	case stderrors.Is(err, domain.ErrItemNotFound):
		return errors.ErrNotFound("item").Wrap(err)
	case stderrors.Is(err, domain.ErrBinNotFound):
		return errors.ErrNotFound("bin stock").Wrap(err)
	case stderrors.Is(err, domain.ErrUnitNotFound):
		return errors.ErrNotFound("work unit").Wrap(err)
	case stderrors.Is(err, domain.ErrUnitClosed),
		stderrors.Is(err, domain.ErrItemTerminal),
		stderrors.Is(err, domain.ErrItemShort),
		stderrors.Is(err, domain.ErrNothingToDecrement),
		stderrors.Is(err, domain.ErrNotReadyToShip),
		stderrors.Is(err, domain.ErrAlreadyReadyToShip),
		stderrors.Is(err, domain.ErrExceptionOpen):
		return errors.ErrInvalidTransition(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrAlreadyGrouped),
		stderrors.Is(err, domain.ErrNotCombinable):
		return errors.ErrConflict(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConflict("work unit was modified concurrently, refresh and retry").Wrap(err)
	case stderrors.Is(err, domain.ErrInvalidQuantity),
		stderrors.Is(err, domain.ErrQuantityExceedsTarget),
		stderrors.Is(err, domain.ErrInvalidPickMethod),
		stderrors.Is(err, domain.ErrInvalidShortReason),
		stderrors.Is(err, domain.ErrInvalidPriority),
		stderrors.Is(err, domain.ErrInvalidKind),
		stderrors.Is(err, domain.ErrInvalidResolution),
		stderrors.Is(err, domain.ErrNoItems),
		stderrors.Is(err, domain.ErrGroupTooSmall),
		stderrors.Is(err, domain.ErrParentNotInSet),
		stderrors.Is(err, domain.ErrNegativeCount),
		stderrors.Is(err, domain.ErrInvalidBinSpec):
		return errors.ErrValidation(err.Error()).Wrap(err)
	}
	return errors.MapDomainError(err)
}

// claimError maps a failed single-unit claim
func claimError(unit *domain.WorkUnit, err error) error {
	if errors.IsAppError(err) {
		return err
	}
	switch {
	case stderrors.Is(err, domain.ErrAlreadyClaimed), stderrors.Is(err, domain.ErrConcurrentModification):
		holder := ""
		if unit != nil {
			holder = unit.ClaimedBy
		}
		return errors.ErrClaimConflict(holder).Wrap(err)
	case stderrors.Is(err, domain.ErrUnitOnHold), stderrors.Is(err, domain.ErrUnitClosed):
		return errors.ErrUnitNotClaimable(err.Error()).Wrap(err)
	}
	return mapDomainError(err)
}
