package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelforge/star-engine/pkg/models"
)

func TestCandidateSet_AddIsIdempotent(t *testing.T) {
	set := NewCandidateSet()
	a := newCandidate("opportunity", "customerid", "account", models.KindDirect)

	assert.True(t, set.Add(a))
	assert.Equal(t, 1, set.Len())

	// Same identity triple, different casing.
	dup := newCandidate("Opportunity", "CustomerId", "Account", models.KindDirect)
	assert.False(t, set.Add(dup))
	assert.Equal(t, 1, set.Len())
}

func TestCandidateSet_RemoveReindexes(t *testing.T) {
	set := NewCandidateSet()
	a := newCandidate("opportunity", "customerid", "account", models.KindDirect)
	b := newCandidate("opportunity", "primarycontactid", "contact", models.KindDirect)
	c := newCandidate("contact", "parentaccountid", "account", models.KindSnowflake)
	for _, cand := range []*models.RelationshipCandidate{a, b, c} {
		require.True(t, set.Add(cand))
	}

	assert.True(t, set.Remove(a.Ref()))
	assert.False(t, set.Remove(a.Ref()))

	got, ok := set.Get(c.Ref())
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, []*models.RelationshipCandidate{b, c}, set.All())
}

func TestCandidateSet_GroupPreservesInsertionOrder(t *testing.T) {
	set := NewCandidateSet()
	first := newCandidate("opportunity", "primarycontactid", "contact", models.KindDirect)
	other := newCandidate("opportunity", "customerid", "account", models.KindDirect)
	second := newCandidate("opportunity", "billingcontactid", "contact", models.KindDirect)
	for _, cand := range []*models.RelationshipCandidate{first, other, second} {
		require.True(t, set.Add(cand))
	}

	group := set.Group("OPPORTUNITY", "Contact")
	require.Len(t, group, 2)
	assert.Same(t, first, group[0])
	assert.Same(t, second, group[1])
}
