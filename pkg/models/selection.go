package models

import "fmt"

// ============================================================================
// Validation Errors
// ============================================================================

// ValidationErrorKind identifies the class of selection-build failure.
type ValidationErrorKind string

const (
	// ValidationNoActiveRelationship means a (source, target) group has
	// included candidates but none marked active.
	ValidationNoActiveRelationship ValidationErrorKind = "no_active_relationship"
	// ValidationMultipleActiveRelationships means a (source, target) group
	// has more than one included candidate marked active.
	ValidationMultipleActiveRelationships ValidationErrorKind = "multiple_active_relationships"
)

// ValidationError is a typed, recoverable selection-build failure. It carries
// enough identity for a caller to render a human message; the engine never
// formats user-facing text itself.
type ValidationError struct {
	Kind        ValidationErrorKind `json:"kind"`
	SourceTable string              `json:"source_table"`
	TargetTable string              `json:"target_table"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", e.Kind, e.SourceTable, e.TargetTable)
}

// ============================================================================
// Selection Result
// ============================================================================

// SelectionResult is the final output of a modeling session: the ordered,
// deduplicated list of included relationships plus the closure of tables the
// model must contain. Constructed fresh on finalize, never mutated after.
type SelectionResult struct {
	Relationships []RelationshipCandidate `json:"relationships"`
	Tables        []Table                 `json:"tables"`
}

// TableNames returns the logical names of the closure, in order.
func (r *SelectionResult) TableNames() []string {
	names := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		names[i] = t.LogicalName
	}
	return names
}
