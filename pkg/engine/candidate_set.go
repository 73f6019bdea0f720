// Package engine implements the star-schema relationship engine: an ordered
// candidate pool per modeling session, the activity resolver that keeps the
// at-most-one-active invariant, snowflake expansion, selection building, and
// revalidation after metadata refresh. Everything here is pure and
// synchronous; one CandidateSet belongs to exactly one session.
package engine

import "github.com/modelforge/star-engine/pkg/models"

// CandidateSet is the in-memory pool of discovered relationship candidates
// for one modeling session, keyed by identity triple with insertion order
// preserved for stable display and deterministic tie-breaks.
//
// Membership only; the resolver enforces the activity invariants.
type CandidateSet struct {
	ordered []*models.RelationshipCandidate
	index   map[string]int
}

// NewCandidateSet creates an empty candidate set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{index: make(map[string]int)}
}

// Add appends a candidate. Adding an identity triple that is already present
// is a no-op and returns false.
func (s *CandidateSet) Add(c *models.RelationshipCandidate) bool {
	key := c.Ref().Key()
	if _, exists := s.index[key]; exists {
		return false
	}
	s.index[key] = len(s.ordered)
	s.ordered = append(s.ordered, c)
	return true
}

// Remove deletes the candidate with the given identity triple. Returns false
// if it was not present.
func (s *CandidateSet) Remove(ref models.CandidateRef) bool {
	key := ref.Key()
	pos, exists := s.index[key]
	if !exists {
		return false
	}
	s.ordered = append(s.ordered[:pos], s.ordered[pos+1:]...)
	delete(s.index, key)
	for i := pos; i < len(s.ordered); i++ {
		s.index[s.ordered[i].Ref().Key()] = i
	}
	return true
}

// Get returns the candidate with the given identity triple.
func (s *CandidateSet) Get(ref models.CandidateRef) (*models.RelationshipCandidate, bool) {
	pos, exists := s.index[ref.Key()]
	if !exists {
		return nil, false
	}
	return s.ordered[pos], true
}

// Group returns all candidates sharing the (source table, target table)
// pair, in insertion order.
func (s *CandidateSet) Group(sourceTable, targetTable string) []*models.RelationshipCandidate {
	pair := models.PairKey(sourceTable, targetTable)
	var group []*models.RelationshipCandidate
	for _, c := range s.ordered {
		if c.Ref().PairKey() == pair {
			group = append(group, c)
		}
	}
	return group
}

// All returns every candidate in insertion order. The returned slice is a
// copy; the candidates themselves are shared.
func (s *CandidateSet) All() []*models.RelationshipCandidate {
	out := make([]*models.RelationshipCandidate, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of candidates in the set.
func (s *CandidateSet) Len() int {
	return len(s.ordered)
}
