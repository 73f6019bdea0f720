package engine

import (
	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/models"
)

// The activity resolver restores the relationship-group invariants after
// every inclusion or activity change: among included candidates of one
// (source, target) pair, at most one is active. Every call reports the full
// set of candidates whose flags flipped so the caller can re-render from it.

// GroupStatus summarizes a relationship group for conflict highlighting.
type GroupStatus struct {
	Total          int `json:"total"`
	ActiveIncluded int `json:"active_included"`
}

// Conflicted reports whether the group is in an error state. A conflict
// never persists past a resolver call.
func (g GroupStatus) Conflicted() bool {
	return g.ActiveIncluded > 1
}

// Include marks a candidate included or excluded and re-resolves activity
// across its relationship group. Returns apperrors.ErrNotFound if the
// identity triple is not in the set.
func Include(set *CandidateSet, ref models.CandidateRef, included bool) (models.ChangeSet, error) {
	c, ok := set.Get(ref)
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	group := set.Group(c.SourceTable, c.TargetTable)
	before := snapshotGroup(group)

	if included {
		activate(c, group)
	} else {
		c.IsIncluded = false
		c.IsActive = false
		resolveGroup(group)
	}

	return diffGroup(group, before), nil
}

// ToggleActive handles an explicit "make active" gesture, e.g. a
// double-click. A candidate that is not yet included is included first; a
// toggle that lands on active wins group-wide, while a toggle that lands on
// inactive triggers the same re-resolution as an exclusion.
func ToggleActive(set *CandidateSet, ref models.CandidateRef) (models.ChangeSet, error) {
	c, ok := set.Get(ref)
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	group := set.Group(c.SourceTable, c.TargetTable)
	before := snapshotGroup(group)

	if !c.IsIncluded {
		c.IsIncluded = true
		// Discard any stale ready-state flag so the flip below decides.
		c.IsActive = false
	}

	c.IsActive = !c.IsActive
	if c.IsActive {
		for _, other := range group {
			if other != c {
				other.IsActive = false
			}
		}
	} else {
		resolveGroup(group)
	}

	return diffGroup(group, before), nil
}

// Status returns the conflict-highlight state of a relationship group.
func Status(set *CandidateSet, sourceTable, targetTable string) GroupStatus {
	group := set.Group(sourceTable, targetTable)
	status := GroupStatus{Total: len(group)}
	for _, c := range group {
		if c.IsIncluded && c.IsActive {
			status.ActiveIncluded++
		}
	}
	return status
}

// ResolveGroup re-runs the zero/one/many activity resolution for one
// relationship group and reports what changed. Used after bulk removals
// (revalidation) that can leave a group with zero or many actives.
func ResolveGroup(set *CandidateSet, sourceTable, targetTable string) models.ChangeSet {
	group := set.Group(sourceTable, targetTable)
	before := snapshotGroup(group)
	resolveGroup(group)
	return diffGroup(group, before)
}

// activate makes c the single active candidate of its group. Siblings are
// deactivated whether included or not, so a stale ready-state flag never
// survives an inclusion.
func activate(c *models.RelationshipCandidate, group []*models.RelationshipCandidate) {
	c.IsIncluded = true
	c.IsActive = true
	for _, other := range group {
		if other != c {
			other.IsActive = false
		}
	}
}

// resolveGroup applies the zero/one/many rule:
//
//   - zero included: every candidate in the group is flagged active, so
//     whichever one the user re-includes next is immediately usable without
//     a second gesture (the deliberate ready-state default);
//   - one included: it is forced active;
//   - many included: the first by insertion order is active, the rest are
//     not.
func resolveGroup(group []*models.RelationshipCandidate) {
	var first *models.RelationshipCandidate
	includedCount := 0
	for _, c := range group {
		if c.IsIncluded {
			includedCount++
			if first == nil {
				first = c
			}
		}
	}

	if includedCount == 0 {
		for _, c := range group {
			c.IsActive = true
		}
		return
	}

	for _, c := range group {
		c.IsActive = c == first
	}
}

type flagPair struct {
	included bool
	active   bool
}

func snapshotGroup(group []*models.RelationshipCandidate) []flagPair {
	before := make([]flagPair, len(group))
	for i, c := range group {
		before[i] = flagPair{included: c.IsIncluded, active: c.IsActive}
	}
	return before
}

func diffGroup(group []*models.RelationshipCandidate, before []flagPair) models.ChangeSet {
	var changes models.ChangeSet
	for i, c := range group {
		if before[i].included == c.IsIncluded && before[i].active == c.IsActive {
			continue
		}
		changes = append(changes, models.CandidateChange{
			Ref:         c.Ref(),
			WasIncluded: before[i].included,
			IsIncluded:  c.IsIncluded,
			WasActive:   before[i].active,
			IsActive:    c.IsActive,
		})
	}
	return changes
}
