package picker

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
)

// SessionState is where a picking session stands
type SessionState int

const (
	StateIdle SessionState = iota
	StateClaiming
	StatePicking
	StateCompleted
)

func (s SessionState) String() string {
	switch s {
	case StateClaiming:
		return "claiming"
	case StatePicking:
		return "picking"
	case StateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// Session errors
var (
	ErrSessionBusy  = stderrors.New("session already has a unit")
	ErrNotPicking   = stderrors.New("session is not picking")
	ErrModalOpen    = stderrors.New("another dialog is open")
	ErrNoModal      = stderrors.New("no matching dialog is open")
	ErrItemIndex    = stderrors.New("no item at that position")
	ErrUnexpectedID = stderrors.New("server answered for a different unit")
)

// MutationKind names a change mirrored to the server
type MutationKind string

const (
	MutationUpdateItem   MutationKind = "update_item"
	MutationRelease      MutationKind = "release"
	MutationConfirmCount MutationKind = "confirm_count"
	MutationSkipCount    MutationKind = "skip_count"
)

// Mutation is a locally applied change waiting to be mirrored. ID doubles as
// the idempotency key, so a resend after a transport failure is safe.
type Mutation struct {
	ID            string           `json:"id"`
	Seq           uint64           `json:"seq"`
	Kind          MutationKind     `json:"kind"`
	UnitID        string           `json:"unitId"`
	Update        *ItemUpdate      `json:"update,omitempty"`
	ResetProgress bool             `json:"resetProgress,omitempty"`
	Count         *domain.BinCount `json:"count,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Target identifies what the mutation writes. A later mutation with the same
// target supersedes an earlier one.
func (m Mutation) Target() string {
	switch m.Kind {
	case MutationUpdateItem:
		if m.Update != nil {
			return "item/" + m.Update.UnitID + "/" + m.Update.ItemID
		}
	case MutationConfirmCount, MutationSkipCount:
		if m.Count != nil {
			return "bin/" + m.Count.SKU + "/" + m.Count.LocationID
		}
	}
	return string(m.Kind) + "/" + m.UnitID
}

func newMutation(kind MutationKind, unitID string) *Mutation {
	return &Mutation{
		ID:        uuid.NewString(),
		Kind:      kind,
		UnitID:    unitID,
		CreatedAt: time.Now().UTC(),
	}
}

// PickingSession is one device's work against one unit at a time. It applies
// item transitions locally and hands back the Mutation to mirror; it never
// performs I/O itself. It is not safe for concurrent use.
type PickingSession struct {
	pickerID      string
	minScanLength int

	state    SessionState
	claiming string
	unit     *domain.WorkUnit
	members  []*domain.WorkUnit
	modal    Modal
	deferred *BinCountModal
	notice   string
}

// NewPickingSession creates an idle session for pickerID
func NewPickingSession(pickerID string) *PickingSession {
	return &PickingSession{pickerID: pickerID, minScanLength: DefaultMinScanLength}
}

// SetMinScanLength changes the shortest code the session evaluates
func (s *PickingSession) SetMinScanLength(n int) {
	if n > 0 {
		s.minScanLength = n
	}
}

// State returns the session state
func (s *PickingSession) State() SessionState { return s.state }

// Unit returns the unit being picked, or nil
func (s *PickingSession) Unit() *domain.WorkUnit { return s.unit }

// Units returns the unit and its group members
func (s *PickingSession) Units() []*domain.WorkUnit {
	if s.unit == nil {
		return nil
	}
	return append([]*domain.WorkUnit{s.unit}, s.members...)
}

// Modal returns the open dialog, or nil
func (s *PickingSession) Modal() Modal { return s.modal }

// Notice returns the last operator message and clears it
func (s *PickingSession) Notice() string {
	n := s.notice
	s.notice = ""
	return n
}

// ActiveUnitID is the unit local state wins for during a merge
func (s *PickingSession) ActiveUnitID() string {
	if s.state != StatePicking || s.unit == nil {
		return ""
	}
	return s.unit.UnitID
}

// BeginClaim starts waiting for the server to grant unitID. Picking does not
// start until ClaimSucceeded.
func (s *PickingSession) BeginClaim(unitID string) error {
	if s.state == StateClaiming || s.state == StatePicking {
		return ErrSessionBusy
	}
	s.reset()
	s.state = StateClaiming
	s.claiming = unitID
	return nil
}

// ClaimSucceeded enters picking with the server's copy of the unit
func (s *PickingSession) ClaimSucceeded(view *UnitView) error {
	if s.state != StateClaiming {
		return ErrNotPicking
	}
	if view == nil || view.Unit == nil || view.Unit.UnitID != s.claiming {
		return ErrUnexpectedID
	}
	if view.Unit.ClaimedBy != s.pickerID {
		s.ClaimFailed(errors.ErrClaimConflict(view.Unit.ClaimedBy))
		return errors.ErrClaimConflict(view.Unit.ClaimedBy)
	}
	s.adopt(view)
	return nil
}

// ClaimFailed returns the session to the queue and explains why
func (s *PickingSession) ClaimFailed(err error) string {
	s.reset()
	switch {
	case errors.HasCode(err, errors.CodeClaimConflict):
		holder := ""
		if appErr, ok := errors.AsAppError(err); ok {
			holder = appErr.Details["claimedBy"]
		}
		if holder != "" {
			s.notice = "Claimed by another picker (" + holder + ")"
		} else {
			s.notice = "Claimed by another picker"
		}
	case errors.HasCode(err, errors.CodeGroupClaimFailed):
		s.notice = "Combined group could not be claimed"
	case errors.HasCode(err, errors.CodeUnitNotClaimable):
		s.notice = "Unit is not available: " + err.Error()
	default:
		s.notice = "Claim failed: " + err.Error()
	}
	return s.notice
}

// Reload replaces local state with the server's. It is the explicit refresh
// that reconciles a failed mirror.
func (s *PickingSession) Reload(view *UnitView) {
	if view == nil || view.Unit == nil {
		return
	}
	switch {
	case view.Unit.IsClosed():
		s.unit, s.members = view.Unit, view.Members
		s.modal = nil
		s.state = StateCompleted
	case view.Unit.ClaimedBy == s.pickerID:
		s.adopt(view)
	default:
		s.reset()
		s.notice = "Unit is no longer claimed by you"
	}
}

// Finish leaves a completed unit
func (s *PickingSession) Finish() {
	if s.state == StateCompleted {
		s.reset()
	}
}

func (s *PickingSession) adopt(view *UnitView) {
	s.unit = view.Unit
	s.members = view.Members
	s.claiming = ""
	s.modal = nil
	s.state = StatePicking
	if s.allClosed() {
		s.state = StateCompleted
	}
}

func (s *PickingSession) reset() {
	s.state = StateIdle
	s.claiming = ""
	s.unit = nil
	s.members = nil
	s.modal = nil
}

// PickList is the unit's items, flattened across a combined group
func (s *PickingSession) PickList() []domain.GroupItem {
	if s.unit == nil {
		return nil
	}
	return domain.FlattenItems(s.Units())
}

// CurrentItem is the first non-terminal item in pick list order
func (s *PickingSession) CurrentItem() (int, bool) {
	for i, gi := range s.PickList() {
		if !gi.Item.IsTerminal() {
			return i, true
		}
	}
	return -1, false
}

// Scan matches a code against the open items and records one unit on a hit
func (s *PickingSession) Scan(code string) (ScanResult, *Mutation, error) {
	if s.state != StatePicking {
		return ScanResult{Outcome: Ignored, Index: -1}, nil, ErrNotPicking
	}
	if s.modal != nil {
		return ScanResult{Outcome: Ignored, Index: -1}, nil, ErrModalOpen
	}

	list := s.PickList()
	items := make([]domain.Item, len(list))
	for i, gi := range list {
		items[i] = *gi.Item
	}
	result := Match(items, code, s.minScanLength)
	if result.Outcome != Matched {
		return result, nil, nil
	}
	m, err := s.Pick(result.Index, 1, domain.PickMethodScan)
	return result, m, err
}

// Pick records qty units on the item at index
func (s *PickingSession) Pick(index, qty int, method domain.PickMethod) (*Mutation, error) {
	if qty <= 0 {
		return nil, errors.ErrValidation("quantity must be positive")
	}
	return s.apply(index, "", func(u *domain.WorkUnit, itemID string) (*domain.Item, error) {
		return u.RecordPick(itemID, qty, method, s.pickerID)
	})
}

// PickAll records the item's whole remainder
func (s *PickingSession) PickAll(index int) (*Mutation, error) {
	gi, err := s.item(index)
	if err != nil {
		return nil, err
	}
	if gi.Item.IsTerminal() {
		return nil, errors.ErrInvalidTransition("item is already closed")
	}
	return s.Pick(index, gi.Item.Remaining(), domain.PickMethodPickAll)
}

// Decrement takes one picked unit back
func (s *PickingSession) Decrement(index int) (*Mutation, error) {
	return s.apply(index, "", func(u *domain.WorkUnit, itemID string) (*domain.Item, error) {
		return u.RecordManualDecrement(itemID, s.pickerID)
	})
}

// OpenQuantity asks how many units of an item were picked at once
func (s *PickingSession) OpenQuantity(index int) error {
	gi, err := s.openable(index)
	if err != nil {
		return err
	}
	s.modal = QuantityModal{ItemIndex: index, Remaining: gi.Item.Remaining()}
	return nil
}

// ConfirmQuantity records the entered quantity
func (s *PickingSession) ConfirmQuantity(qty int) (*Mutation, error) {
	m, ok := s.modal.(QuantityModal)
	if !ok {
		return nil, ErrNoModal
	}
	if qty <= 0 || qty > m.Remaining {
		return nil, errors.ErrValidation(fmt.Sprintf("quantity must be between 1 and %d", m.Remaining))
	}
	s.modal = nil
	mutation, err := s.Pick(m.ItemIndex, qty, domain.PickMethodButton)
	s.surfaceDeferred()
	return mutation, err
}

// OpenShort asks why an item cannot be picked in full
func (s *PickingSession) OpenShort(index int) error {
	gi, err := s.openable(index)
	if err != nil {
		return err
	}
	s.modal = ShortPickModal{ItemIndex: index, Picked: gi.Item.PickedQuantity, Target: gi.Item.Quantity}
	return nil
}

// ConfirmShort closes the item as short with picked units in hand
func (s *PickingSession) ConfirmShort(picked int, reason domain.ShortReason, note string) (*Mutation, error) {
	m, ok := s.modal.(ShortPickModal)
	if !ok {
		return nil, ErrNoModal
	}
	if picked < 0 || picked > m.Target {
		return nil, errors.ErrValidation(fmt.Sprintf("picked quantity must be between 0 and %d", m.Target))
	}
	if !reason.IsValid() {
		return nil, errors.ErrValidation("invalid short reason")
	}
	s.modal = nil
	mutation, err := s.apply(m.ItemIndex, domain.ItemStatusShort, func(u *domain.WorkUnit, itemID string) (*domain.Item, error) {
		return u.RecordShort(itemID, picked, reason, note, s.pickerID)
	})
	if mutation != nil {
		mutation.Update.Reason = reason
		mutation.Update.Note = note
	}
	s.surfaceDeferred()
	return mutation, err
}

// OpenEdit starts a correction of an item's picked count
func (s *PickingSession) OpenEdit(index int) error {
	if s.state != StatePicking {
		return ErrNotPicking
	}
	if s.modal != nil {
		return ErrModalOpen
	}
	gi, err := s.item(index)
	if err != nil {
		return err
	}
	if gi.Item.Status == domain.ItemStatusShort {
		return errors.ErrInvalidTransition("short items cannot be edited")
	}
	s.modal = EditQuantityModal{ItemIndex: index, Current: gi.Item.PickedQuantity, Target: gi.Item.Quantity}
	return nil
}

// ConfirmEdit sets the absolute picked count. A count above target is
// rejected here and never sent.
func (s *PickingSession) ConfirmEdit(qty int) (*Mutation, error) {
	m, ok := s.modal.(EditQuantityModal)
	if !ok {
		return nil, ErrNoModal
	}
	if qty < 0 || qty > m.Target {
		return nil, errors.ErrValidation(fmt.Sprintf("picked quantity must be between 0 and %d", m.Target))
	}
	s.modal = nil
	if qty == m.Current {
		s.surfaceDeferred()
		return nil, nil
	}
	mutation, err := s.apply(m.ItemIndex, "", func(u *domain.WorkUnit, itemID string) (*domain.Item, error) {
		return u.RecordEdit(itemID, qty, domain.PickMethodManual, s.pickerID)
	})
	s.surfaceDeferred()
	return mutation, err
}

// RequestRelease releases at once when nothing was picked; otherwise it asks
// whether to keep the progress.
func (s *PickingSession) RequestRelease() (*Mutation, error) {
	if s.state != StatePicking {
		return nil, ErrNotPicking
	}
	if s.modal != nil {
		return nil, ErrModalOpen
	}
	picked, progress := 0, false
	for _, u := range s.Units() {
		picked += u.PickedUnits()
		progress = progress || u.HasProgress()
	}
	if !progress {
		return s.release(false), nil
	}
	s.modal = ReleaseModal{UnitID: s.unit.UnitID, PickedUnits: picked}
	return nil, nil
}

// ConfirmRelease answers the release dialog
func (s *PickingSession) ConfirmRelease(resetProgress bool) (*Mutation, error) {
	if _, ok := s.modal.(ReleaseModal); !ok {
		return nil, ErrNoModal
	}
	return s.release(resetProgress), nil
}

func (s *PickingSession) release(resetProgress bool) *Mutation {
	m := newMutation(MutationRelease, s.unit.UnitID)
	m.ResetProgress = resetProgress
	s.reset()
	return m
}

// ApplyUpdate takes in the server's answer to an item update. A closed server
// copy replaces the local one; a bin count request opens the count dialog, or
// waits behind the dialog already open.
func (s *PickingSession) ApplyUpdate(result *ItemUpdateResult) {
	if result == nil {
		return
	}
	if result.Unit != nil && s.unit != nil {
		s.replace(result.Unit)
	}

	rc := result.Reconciliation
	if rc == nil || !rc.BinCountNeeded {
		return
	}
	if rc.Replen.Stockout {
		s.notice = fmt.Sprintf("Stockout at %s for %s", rc.LocationID, rc.SKU)
	}
	bin := &BinCountModal{SKU: rc.SKU, LocationID: rc.LocationID, Reconciliation: *rc}
	if s.modal == nil {
		s.modal = *bin
		return
	}
	s.deferred = bin
}

func (s *PickingSession) replace(remote *domain.WorkUnit) {
	active := s.ActiveUnitID()
	if s.unit.UnitID == remote.UnitID {
		s.unit = Merge(s.unit, remote, active, nil)
	}
	for i, m := range s.members {
		if m.UnitID == remote.UnitID {
			s.members[i] = Merge(m, remote, active, nil)
		}
	}
	if s.state == StatePicking && s.allClosed() {
		s.state = StateCompleted
	}
}

// ConfirmCount reports the physical count from the bin count dialog
func (s *PickingSession) ConfirmCount(actual int) (*Mutation, error) {
	return s.count(MutationConfirmCount, actual)
}

// SkipCount records the count and cancels pending replenishment
func (s *PickingSession) SkipCount(actual int) (*Mutation, error) {
	return s.count(MutationSkipCount, actual)
}

func (s *PickingSession) count(kind MutationKind, actual int) (*Mutation, error) {
	bin, ok := s.modal.(BinCountModal)
	if !ok {
		return nil, ErrNoModal
	}
	if actual < 0 {
		return nil, errors.ErrValidation("count cannot be negative")
	}
	unitID := ""
	if s.unit != nil {
		unitID = s.unit.UnitID
	}
	m := newMutation(kind, unitID)
	m.Count = &domain.BinCount{
		SKU:            bin.SKU,
		LocationID:     bin.LocationID,
		ActualQuantity: actual,
		CountedBy:      s.pickerID,
	}
	s.DismissModal()
	return m, nil
}

// DismissModal closes the open dialog without acting. Dismissing a bin count
// leaves the pick in place.
func (s *PickingSession) DismissModal() {
	s.modal = nil
	s.surfaceDeferred()
}

func (s *PickingSession) surfaceDeferred() {
	if s.modal == nil && s.deferred != nil {
		s.modal = *s.deferred
		s.deferred = nil
	}
}

// MirrorFailed reports a change the server did not take. Local state stays
// as it is until the operator refreshes.
func (s *PickingSession) MirrorFailed(failure *MirrorFailure) {
	if failure == nil {
		return
	}
	if failure.Retryable {
		s.notice = "Change not saved yet, will retry: " + failure.Err.Error()
		return
	}
	s.notice = "Change rejected, refresh to see the saved state: " + failure.Err.Error()
}

func (s *PickingSession) item(index int) (domain.GroupItem, error) {
	list := s.PickList()
	if index < 0 || index >= len(list) {
		return domain.GroupItem{}, ErrItemIndex
	}
	return list[index], nil
}

func (s *PickingSession) openable(index int) (domain.GroupItem, error) {
	if s.state != StatePicking {
		return domain.GroupItem{}, ErrNotPicking
	}
	if s.modal != nil {
		return domain.GroupItem{}, ErrModalOpen
	}
	gi, err := s.item(index)
	if err != nil {
		return domain.GroupItem{}, err
	}
	if gi.Item.IsTerminal() {
		return domain.GroupItem{}, errors.ErrInvalidTransition("item is already closed")
	}
	return gi, nil
}

func (s *PickingSession) unitByID(unitID string) *domain.WorkUnit {
	for _, u := range s.Units() {
		if u.UnitID == unitID {
			return u
		}
	}
	return nil
}

// apply runs a pick recorder transition on the owning unit and builds the
// mirror for it
func (s *PickingSession) apply(index int, status domain.ItemStatus, fn func(*domain.WorkUnit, string) (*domain.Item, error)) (*Mutation, error) {
	if s.state != StatePicking {
		return nil, ErrNotPicking
	}
	gi, err := s.item(index)
	if err != nil {
		return nil, err
	}
	unit := s.unitByID(gi.UnitID)
	if unit == nil {
		return nil, ErrItemIndex
	}

	item, err := fn(unit, gi.Item.ItemID)
	if err != nil {
		return nil, localError(err)
	}
	unit.ClearDomainEvents()

	m := newMutation(MutationUpdateItem, unit.UnitID)
	m.Update = &ItemUpdate{
		UnitID: unit.UnitID,
		ItemID: item.ItemID,
		Picked: item.PickedQuantity,
		Status: status,
		Method: item.LastPickMethod,
	}

	if s.allClosed() {
		s.state = StateCompleted
		s.modal = nil
		s.notice = "Unit complete"
	}
	return m, nil
}

func (s *PickingSession) allClosed() bool {
	for _, u := range s.Units() {
		if !u.IsClosed() {
			return false
		}
	}
	return s.unit != nil
}

// localError turns a rejected local transition into the same error the
// server would have answered with
func localError(err error) error {
	switch {
	case stderrors.Is(err, domain.ErrInvalidQuantity),
		stderrors.Is(err, domain.ErrQuantityExceedsTarget),
		stderrors.Is(err, domain.ErrInvalidShortReason):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrNotClaimHolder):
		return errors.ErrNotClaimHolder().Wrap(err)
	default:
		return errors.ErrInvalidTransition(err.Error()).Wrap(err)
	}
}
