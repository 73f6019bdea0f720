package engine

import "github.com/modelforge/star-engine/pkg/models"

// AvailableParents computes the additional snowflake candidates available
// for a dimension that is already part of the model: one candidate per
// (lookup, target) pair, excluding targets that would cycle back to the fact
// table, to the dimension itself, or to a parent already added for this
// dimension. Polymorphic lookups fan out into one candidate per target.
//
// Returned candidates start excluded and inactive; activation happens via
// the resolver once the caller includes them. A parent added this way can
// itself be expanded later, so multi-level snowflakes need no special
// handling here beyond the exclusion list.
func AvailableParents(dimension models.Table, lookups []models.LookupAttribute, factTable string, existingParents []string) []*models.RelationshipCandidate {
	excluded := map[string]bool{
		models.NormalizeTableName(factTable):             true,
		models.NormalizeTableName(dimension.LogicalName): true,
	}
	for _, parent := range existingParents {
		excluded[models.NormalizeTableName(parent)] = true
	}

	var candidates []*models.RelationshipCandidate
	for _, lookup := range lookups {
		for _, target := range lookup.Targets {
			if excluded[models.NormalizeTableName(target)] {
				continue
			}
			candidates = append(candidates, &models.RelationshipCandidate{
				SourceTable:                dimension.LogicalName,
				SourceAttribute:            lookup.LogicalName,
				TargetTable:                target,
				DisplayName:                lookup.DisplayName,
				Kind:                       models.KindSnowflake,
				AssumeReferentialIntegrity: lookup.Required,
			})
		}
	}
	return candidates
}
