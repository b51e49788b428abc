package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrGroupTooSmall  = errors.New("a combined group needs at least two units")
	ErrParentNotInSet = errors.New("parent unit must be one of the combined units")
	ErrAlreadyGrouped = errors.New("work unit already belongs to a combined group")
	ErrNotCombinable  = errors.New("only ready, unclaimed, unheld units can be combined")
)

// QueueFilter selects which units a picker sees
type QueueFilter string

const (
	// QueueFilterReady shows open units the picker can work: not on hold and
	// either unclaimed or claimed by the picker
	QueueFilterReady QueueFilter = "ready"
	// QueueFilterAll shows every open unit
	QueueFilterAll QueueFilter = "all"
)

// QueueQuery scopes a queue fetch
type QueueQuery struct {
	PickerID         string
	Filter           QueueFilter
	IncludeCompleted bool
}

// Less orders units by priority rank, then age, then ID
func Less(a, b *WorkUnit) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UnitID < b.UnitID
}

// SortQueue sorts units in place into default queue order
func SortQueue(units []*WorkUnit) {
	sort.SliceStable(units, func(i, j int) bool { return Less(units[i], units[j]) })
}

// Visible reports whether the unit belongs in the query's result
func (q QueueQuery) Visible(u *WorkUnit) bool {
	if u.Status == UnitStatusCancelled || u.IsGroupChild() {
		return false
	}
	if u.Status == UnitStatusCompleted {
		return q.IncludeCompleted
	}
	if q.Filter == QueueFilterAll {
		return true
	}
	if u.OnHold {
		return false
	}
	return !u.IsClaimed() || u.ClaimedBy == q.PickerID
}

// FilterQueue returns the visible units in queue order
func FilterQueue(units []*WorkUnit, q QueueQuery) []*WorkUnit {
	out := make([]*WorkUnit, 0, len(units))
	for _, u := range units {
		if q.Visible(u) {
			out = append(out, u)
		}
	}
	SortQueue(out)
	return out
}

// NextClaimable returns the first open, unheld, unclaimed unit in queue order
func NextClaimable(units []*WorkUnit) *WorkUnit {
	var next *WorkUnit
	for _, u := range units {
		if u.IsClosed() || u.OnHold || u.IsClaimed() || u.IsGroupChild() {
			continue
		}
		if next == nil || Less(u, next) {
			next = u
		}
	}
	return next
}

// Combine links units into one combined group under parentID
func Combine(groupID, parentID string, units []*WorkUnit) error {
	if len(units) < 2 {
		return ErrGroupTooSmall
	}
	parentFound := false
	for _, u := range units {
		if u.IsGrouped() {
			return fmt.Errorf("%s: %w", u.UnitID, ErrAlreadyGrouped)
		}
		if u.Status != UnitStatusReady || u.IsClaimed() || u.OnHold {
			return fmt.Errorf("%s: %w", u.UnitID, ErrNotCombinable)
		}
		if u.UnitID == parentID {
			parentFound = true
		}
	}
	if !parentFound {
		return ErrParentNotInSet
	}

	now := time.Now().UTC()
	members := make([]string, 0, len(units))
	for _, u := range units {
		u.CombinedGroupID = groupID
		u.ParentUnitID = parentID
		u.UpdatedAt = now
		members = append(members, u.UnitID)
	}

	for _, u := range units {
		if u.UnitID == parentID {
			u.AddDomainEvent(&UnitsCombinedEvent{
				GroupID:       groupID,
				ParentUnitID:  parentID,
				MemberUnitIDs: members,
				CombinedAt:    now,
			})
		}
	}
	return nil
}

// GroupItem is an item in a flattened pick list with its unit of origin
type GroupItem struct {
	UnitID string
	Index  int
	Item   *Item
}

// FlattenItems presents the items of several units as one pick list. The
// parent's items come first, then the other members in queue order.
func FlattenItems(units []*WorkUnit) []GroupItem {
	ordered := append([]*WorkUnit(nil), units...)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi := ordered[i].ParentUnitID == ordered[i].UnitID
		pj := ordered[j].ParentUnitID == ordered[j].UnitID
		if pi != pj {
			return pi
		}
		return Less(ordered[i], ordered[j])
	})

	var items []GroupItem
	for _, u := range ordered {
		for idx := range u.Items {
			items = append(items, GroupItem{UnitID: u.UnitID, Index: idx, Item: &u.Items[idx]})
		}
	}
	return items
}
