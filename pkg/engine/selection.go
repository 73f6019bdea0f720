package engine

import "github.com/modelforge/star-engine/pkg/models"

// BuildSelection turns the currently included candidates into the final
// relationship list plus the closure of tables the model must contain.
//
// The resolver keeps the at-most-one-active invariant during editing; the
// group validation here re-checks it at build time and refuses the build
// outright instead of silently picking a winner. On conflict the returned
// error is a *models.ValidationError.
//
// known maps normalized logical names to loaded table metadata. Targets not
// present there are synthesized as minimal stand-ins rather than failing,
// because a star schema may reference tables outside the loaded solution.
func BuildSelection(fact models.Table, candidates []*models.RelationshipCandidate, known map[string]models.Table) (*models.SelectionResult, error) {
	// Deduplicate by identity triple, insertion order preserved.
	seen := make(map[string]bool)
	var included []*models.RelationshipCandidate
	for _, c := range candidates {
		if !c.IsIncluded {
			continue
		}
		key := c.Ref().Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		included = append(included, c)
	}

	if err := validateGroups(included); err != nil {
		return nil, err
	}

	result := &models.SelectionResult{
		Relationships: make([]models.RelationshipCandidate, 0, len(included)),
	}
	for _, c := range included {
		result.Relationships = append(result.Relationships, *c)
	}

	// Table closure: fact first, then every table a kept relationship pulls
	// in, deduplicated case-insensitively.
	added := map[string]bool{models.NormalizeTableName(fact.LogicalName): true}
	result.Tables = append(result.Tables, fact)
	for _, c := range included {
		name := c.TargetTable
		if c.Kind == models.KindOneToMany {
			name = c.SourceTable
		}
		normalized := models.NormalizeTableName(name)
		if added[normalized] {
			continue
		}
		added[normalized] = true
		if table, ok := known[normalized]; ok {
			result.Tables = append(result.Tables, table)
		} else {
			result.Tables = append(result.Tables, models.SynthesizeTable(name))
		}
	}

	return result, nil
}

// validateGroups checks every (source, target) group of included candidates
// for exactly one active member.
func validateGroups(included []*models.RelationshipCandidate) error {
	type groupCheck struct {
		source, target string
		activeCount    int
	}
	order := make([]string, 0)
	groups := make(map[string]*groupCheck)

	for _, c := range included {
		pair := c.Ref().PairKey()
		g, ok := groups[pair]
		if !ok {
			g = &groupCheck{source: c.SourceTable, target: c.TargetTable}
			groups[pair] = g
			order = append(order, pair)
		}
		if c.IsActive {
			g.activeCount++
		}
	}

	for _, pair := range order {
		g := groups[pair]
		switch {
		case g.activeCount == 0:
			return &models.ValidationError{
				Kind:        models.ValidationNoActiveRelationship,
				SourceTable: g.source,
				TargetTable: g.target,
			}
		case g.activeCount > 1:
			return &models.ValidationError{
				Kind:        models.ValidationMultipleActiveRelationships,
				SourceTable: g.source,
				TargetTable: g.target,
			}
		}
	}
	return nil
}
