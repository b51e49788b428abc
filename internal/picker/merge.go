package picker

import "github.com/wms-platform/pick-floor/internal/domain"

// FinishedSet holds the units this device finished that no server snapshot
// has shown closed yet
type FinishedSet map[string]bool

// IDs returns the set's unit IDs
func (f FinishedSet) IDs() []string {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return ids
}

// Merge picks the version of one unit the device should show after a server
// snapshot arrives:
//   - a closed remote unit wins, since it carries completion metadata
//   - a closed local unit is not reopened by an open remote one
//   - a closed local unit missing from the snapshot stays only while it is in
//     finished, that is until a snapshot has shown it closed
//   - the active unit (or a member of its group) wins locally while open
//   - otherwise the remote unit wins
//
// remote is nil when the snapshot does not contain the unit. The result is
// one of the two arguments, or nil when the unit should leave the local view.
func Merge(local, remote *domain.WorkUnit, activeUnitID string, finished FinishedSet) *domain.WorkUnit {
	if local == nil {
		return remote
	}
	if remote != nil && remote.IsClosed() {
		return remote
	}
	if local.IsClosed() {
		if remote == nil && !finished[local.UnitID] {
			return nil
		}
		return local
	}
	if activeUnitID != "" && (local.UnitID == activeUnitID || local.ParentUnitID == activeUnitID) {
		return local
	}
	return remote
}

// MergeQueue merges a whole snapshot into the local queue. Units only present
// locally survive when Merge keeps them. Units the snapshot shows closed
// leave finished. The result is in queue order.
func MergeQueue(local, remote []*domain.WorkUnit, activeUnitID string, finished FinishedSet) []*domain.WorkUnit {
	localByID := make(map[string]*domain.WorkUnit, len(local))
	for _, u := range local {
		localByID[u.UnitID] = u
	}

	merged := make([]*domain.WorkUnit, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if seen[r.UnitID] {
			continue
		}
		seen[r.UnitID] = true
		if r.IsClosed() {
			delete(finished, r.UnitID)
		}
		if u := Merge(localByID[r.UnitID], r, activeUnitID, finished); u != nil {
			merged = append(merged, u)
		}
	}
	for _, l := range local {
		if seen[l.UnitID] {
			continue
		}
		seen[l.UnitID] = true
		if u := Merge(l, nil, activeUnitID, finished); u != nil {
			merged = append(merged, u)
		}
	}

	domain.SortQueue(merged)
	return merged
}
