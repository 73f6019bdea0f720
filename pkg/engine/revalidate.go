package engine

import (
	"strings"

	"github.com/modelforge/star-engine/pkg/models"
)

// Revalidation reconciles a previously persisted selection against freshly
// fetched metadata, preserving user intent where possible: stale entries are
// dropped, required entries are re-added, and affected relationship groups
// are re-resolved.

// RevalidationResult reports what a relationship revalidation removed and
// which surviving candidates changed state during group re-resolution.
type RevalidationResult struct {
	Removed []models.CandidateRef `json:"removed"`
	Changes models.ChangeSet      `json:"changes"`
}

// RevalidateAttributes repairs one table's persisted attribute selection:
// attributes no longer present in current are dropped, required attributes
// (primary id/name plus lookup columns still referenced by included
// relationships) are re-added. Selection order is preserved, required
// attributes are appended in the order given.
func RevalidateAttributes(selected, current, required []string) []string {
	present := make(map[string]bool, len(current))
	for _, name := range current {
		present[strings.ToLower(name)] = true
	}

	kept := make([]string, 0, len(selected)+len(required))
	have := make(map[string]bool)
	for _, name := range selected {
		key := strings.ToLower(name)
		if !present[key] || have[key] {
			continue
		}
		have[key] = true
		kept = append(kept, name)
	}
	for _, name := range required {
		key := strings.ToLower(name)
		if have[key] {
			continue
		}
		have[key] = true
		kept = append(kept, name)
	}
	return kept
}

// RevalidateRelationships drops every candidate whose source attribute no
// longer exists on its source table and re-resolves each affected group.
// currentLookups maps table logical names to the lookup attribute names the
// refreshed metadata still carries. Tables absent from the map were not
// refreshed and their candidates are left untouched.
func RevalidateRelationships(set *CandidateSet, currentLookups map[string][]string) RevalidationResult {
	lookups := make(map[string]map[string]bool, len(currentLookups))
	for table, attrs := range currentLookups {
		attrSet := make(map[string]bool, len(attrs))
		for _, attr := range attrs {
			attrSet[strings.ToLower(attr)] = true
		}
		lookups[models.NormalizeTableName(table)] = attrSet
	}

	var result RevalidationResult
	affected := make(map[string][2]string)
	for _, c := range set.All() {
		attrSet, refreshed := lookups[models.NormalizeTableName(c.SourceTable)]
		if !refreshed || attrSet[strings.ToLower(c.SourceAttribute)] {
			continue
		}
		ref := c.Ref()
		set.Remove(ref)
		result.Removed = append(result.Removed, ref)
		affected[ref.PairKey()] = [2]string{c.SourceTable, c.TargetTable}
	}

	for _, c := range set.All() {
		pair := c.Ref().PairKey()
		if _, hit := affected[pair]; !hit {
			continue
		}
		delete(affected, pair)
		result.Changes = append(result.Changes, ResolveGroup(set, c.SourceTable, c.TargetTable)...)
	}

	return result
}
