package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionSnapshot is the persisted form of a modeling session: the fact
// table, every table the session has metadata for, the candidate pool in
// insertion order, and the per-table attribute selections.
//
// Candidate order is not cosmetic: the resolver's "first by insertion order"
// tie-break depends on it, so any persisted representation must round-trip
// the ordering exactly.
type SessionSnapshot struct {
	ID                 uuid.UUID               `json:"id"`
	Fact               Table                   `json:"fact"`
	Tables             []Table                 `json:"tables"`
	Candidates         []RelationshipCandidate `json:"candidates"`
	SelectedAttributes map[string][]string     `json:"selected_attributes"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}
