package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelforge/star-engine/pkg/models"
)

func TestRevalidateAttributes(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		current  []string
		required []string
		want     []string
	}{
		{
			name:     "stale attribute dropped",
			selected: []string{"name", "revenue", "oldcolumn"},
			current:  []string{"name", "revenue", "accountid"},
			required: []string{"accountid", "name"},
			want:     []string{"name", "revenue", "accountid"},
		},
		{
			name:     "required re-added even when deselected",
			selected: []string{"revenue"},
			current:  []string{"name", "revenue", "accountid"},
			required: []string{"accountid", "name"},
			want:     []string{"revenue", "accountid", "name"},
		},
		{
			name:     "case-insensitive matching",
			selected: []string{"Revenue", "OldColumn"},
			current:  []string{"revenue"},
			required: nil,
			want:     []string{"Revenue"},
		},
		{
			name:     "empty selection gets required",
			selected: nil,
			current:  []string{"accountid", "name"},
			required: []string{"accountid", "name"},
			want:     []string{"accountid", "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RevalidateAttributes(tt.selected, tt.current, tt.required)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRevalidateRelationships_DropsStaleCandidates(t *testing.T) {
	set := NewCandidateSet()
	kept := newCandidate("opportunity", "customerid", "account", models.KindDirect)
	stale := newCandidate("opportunity", "droppedlookupid", "contact", models.KindDirect)
	unrefreshed := newCandidate("contact", "parentaccountid", "account", models.KindSnowflake)
	for _, c := range []*models.RelationshipCandidate{kept, stale, unrefreshed} {
		require.True(t, set.Add(c))
	}
	_, err := Include(set, kept.Ref(), true)
	require.NoError(t, err)

	result := RevalidateRelationships(set, map[string][]string{
		"opportunity": {"customerid"},
	})

	require.Len(t, result.Removed, 1)
	assert.Equal(t, stale.Ref(), result.Removed[0])
	_, ok := set.Get(stale.Ref())
	assert.False(t, ok)

	// Unrelated pairs and unrefreshed tables survive untouched.
	_, ok = set.Get(kept.Ref())
	assert.True(t, ok)
	assert.True(t, kept.IsIncluded)
	assert.True(t, kept.IsActive)
	_, ok = set.Get(unrefreshed.Ref())
	assert.True(t, ok)
}

func TestRevalidateRelationships_ReResolvesAffectedGroups(t *testing.T) {
	set := NewCandidateSet()
	a := newCandidate("opportunity", "primarycontactid", "contact", models.KindDirect)
	b := newCandidate("opportunity", "billingcontactid", "contact", models.KindDirect)
	for _, c := range []*models.RelationshipCandidate{a, b} {
		require.True(t, set.Add(c))
	}
	// a active, b included-inactive
	_, err := Include(set, b.Ref(), true)
	require.NoError(t, err)
	_, err = Include(set, a.Ref(), true)
	require.NoError(t, err)

	// Refresh removed a's lookup: b is the sole survivor and must be forced
	// active.
	result := RevalidateRelationships(set, map[string][]string{
		"opportunity": {"billingcontactid"},
	})

	require.Equal(t, []models.CandidateRef{a.Ref()}, result.Removed)
	assert.True(t, b.IsIncluded)
	assert.True(t, b.IsActive)
	assert.True(t, result.Changes.Contains(b.Ref()))
}

func TestRevalidateRelationships_RemovalCanEmptyGroup(t *testing.T) {
	set := NewCandidateSet()
	only := newCandidate("opportunity", "customerid", "account", models.KindDirect)
	require.True(t, set.Add(only))
	_, err := Include(set, only.Ref(), true)
	require.NoError(t, err)

	result := RevalidateRelationships(set, map[string][]string{
		"opportunity": nil,
	})

	require.Len(t, result.Removed, 1)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, result.Changes)
}
