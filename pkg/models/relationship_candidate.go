package models

import "strings"

// ============================================================================
// Relationship Kinds
// ============================================================================

// RelationshipKind classifies how a candidate links its source to its target.
type RelationshipKind string

const (
	// KindDirect is a fact-to-dimension lookup.
	KindDirect RelationshipKind = "direct"
	// KindSnowflake is a dimension-to-parent-dimension lookup.
	KindSnowflake RelationshipKind = "snowflake"
	// KindOneToMany is a reverse link: child table lookup pointing back at
	// the fact table or a dimension.
	KindOneToMany RelationshipKind = "one_to_many"
)

// ValidRelationshipKinds contains all valid relationship kind values.
var ValidRelationshipKinds = []RelationshipKind{
	KindDirect,
	KindSnowflake,
	KindOneToMany,
}

// IsValidRelationshipKind checks if the given kind is valid.
func IsValidRelationshipKind(k RelationshipKind) bool {
	for _, v := range ValidRelationshipKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ============================================================================
// Candidate Identity
// ============================================================================

// CandidateRef is the identity triple of a relationship candidate. Table and
// attribute names compare case-insensitively.
type CandidateRef struct {
	SourceTable     string `json:"source_table"`
	SourceAttribute string `json:"source_attribute"`
	TargetTable     string `json:"target_table"`
}

// Key returns the canonical map key for the identity triple.
func (r CandidateRef) Key() string {
	return strings.ToLower(r.SourceTable) + "|" + strings.ToLower(r.SourceAttribute) + "|" + strings.ToLower(r.TargetTable)
}

// PairKey returns the canonical key for the (source table, target table)
// relationship group this candidate belongs to.
func (r CandidateRef) PairKey() string {
	return PairKey(r.SourceTable, r.TargetTable)
}

// PairKey returns the canonical key for a (source table, target table) pair.
func PairKey(sourceTable, targetTable string) string {
	return NormalizeTableName(sourceTable) + "|" + NormalizeTableName(targetTable)
}

// ============================================================================
// Candidate State
// ============================================================================

// CandidateState is the lifecycle state of a single candidate.
type CandidateState string

const (
	StateExcluded         CandidateState = "excluded"
	StateIncludedInactive CandidateState = "included_inactive"
	StateIncludedActive   CandidateState = "included_active"
)

// ============================================================================
// Relationship Candidate
// ============================================================================

// RelationshipCandidate is one possible lookup-based link between two tables.
// Candidates are created when metadata is discovered (fact table load, or
// snowflake expansion for a dimension) and dropped when revalidation finds
// the backing lookup column gone.
type RelationshipCandidate struct {
	SourceTable     string           `json:"source_table"`
	SourceAttribute string           `json:"source_attribute"`
	TargetTable     string           `json:"target_table"`
	DisplayName     string           `json:"display_name"`
	Kind            RelationshipKind `json:"kind"`

	// IsActive marks this candidate as the DAX-active path between its
	// source and target, if included. At most one included candidate per
	// (source, target) pair may be active.
	IsActive bool `json:"is_active"`

	// IsIncluded is whether the user has chosen to bring this relationship
	// and its target table into the model.
	IsIncluded bool `json:"is_included"`

	// AssumeReferentialIntegrity is derived from whether the lookup is a
	// required field; it affects downstream join semantics.
	AssumeReferentialIntegrity bool `json:"assume_referential_integrity"`
}

// Ref returns the candidate's identity triple.
func (c *RelationshipCandidate) Ref() CandidateRef {
	return CandidateRef{
		SourceTable:     c.SourceTable,
		SourceAttribute: c.SourceAttribute,
		TargetTable:     c.TargetTable,
	}
}

// State returns the candidate's lifecycle state. The ready-state default
// (excluded but pre-flagged active) still reports as excluded.
func (c *RelationshipCandidate) State() CandidateState {
	switch {
	case !c.IsIncluded:
		return StateExcluded
	case c.IsActive:
		return StateIncludedActive
	default:
		return StateIncludedInactive
	}
}

// ============================================================================
// Change Tracking
// ============================================================================

// CandidateChange records a single candidate whose inclusion or activity
// flipped during a resolver call.
type CandidateChange struct {
	Ref         CandidateRef `json:"ref"`
	WasIncluded bool         `json:"was_included"`
	IsIncluded  bool         `json:"is_included"`
	WasActive   bool         `json:"was_active"`
	IsActive    bool         `json:"is_active"`
}

// ChangeSet is the full set of candidates whose state flipped during one
// resolver call, in repository insertion order.
type ChangeSet []CandidateChange

// Contains reports whether the change set touches the given candidate.
func (cs ChangeSet) Contains(ref CandidateRef) bool {
	key := ref.Key()
	for _, ch := range cs {
		if ch.Ref.Key() == key {
			return true
		}
	}
	return false
}
