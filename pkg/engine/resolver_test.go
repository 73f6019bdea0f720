package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/models"
)

func newCandidate(source, attribute, target string, kind models.RelationshipKind) *models.RelationshipCandidate {
	return &models.RelationshipCandidate{
		SourceTable:     source,
		SourceAttribute: attribute,
		TargetTable:     target,
		DisplayName:     attribute,
		Kind:            kind,
	}
}

// contactGroup builds a set with n lookups from opportunity to contact,
// mirroring the common "two Contact lookups on one fact table" shape.
func contactGroup(t *testing.T, attrs ...string) (*CandidateSet, []*models.RelationshipCandidate) {
	t.Helper()
	set := NewCandidateSet()
	candidates := make([]*models.RelationshipCandidate, 0, len(attrs))
	for _, attr := range attrs {
		c := newCandidate("opportunity", attr, "contact", models.KindDirect)
		require.True(t, set.Add(c))
		candidates = append(candidates, c)
	}
	return set, candidates
}

func TestInclude_UnknownCandidate(t *testing.T) {
	set, _ := contactGroup(t, "primarycontactid")

	_, err := Include(set, models.CandidateRef{
		SourceTable:     "opportunity",
		SourceAttribute: "missing",
		TargetTable:     "contact",
	}, true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = ToggleActive(set, models.CandidateRef{
		SourceTable:     "opportunity",
		SourceAttribute: "missing",
		TargetTable:     "contact",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInclude_FirstBecomesActive(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")

	changes, err := Include(set, cands[0].Ref(), true)
	require.NoError(t, err)

	assert.True(t, cands[0].IsIncluded)
	assert.True(t, cands[0].IsActive)
	assert.False(t, cands[1].IsActive)
	assert.Len(t, changes, 1)
}

func TestInclude_SecondSilentlyDeactivatesFirst(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")

	_, err := Include(set, cands[0].Ref(), true)
	require.NoError(t, err)

	changes, err := Include(set, cands[1].Ref(), true)
	require.NoError(t, err)

	assert.True(t, cands[0].IsIncluded, "first stays included")
	assert.False(t, cands[0].IsActive, "first loses activity without error or prompt")
	assert.True(t, cands[1].IsActive)
	assert.True(t, changes.Contains(cands[0].Ref()))
	assert.True(t, changes.Contains(cands[1].Ref()))
}

func TestInclude_ZeroThenOneRecovery(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	a, b := cands[0], cands[1]

	_, err := Include(set, a.Ref(), true)
	require.NoError(t, err)
	_, err = Include(set, b.Ref(), true)
	require.NoError(t, err)
	_, err = Include(set, a.Ref(), true)
	require.NoError(t, err)
	// a active, b included-inactive

	changes, err := Include(set, a.Ref(), false)
	require.NoError(t, err)

	assert.False(t, a.IsIncluded)
	assert.False(t, a.IsActive)
	assert.True(t, b.IsIncluded)
	assert.True(t, b.IsActive, "sole remaining included candidate is forced active")
	assert.True(t, changes.Contains(a.Ref()))
	assert.True(t, changes.Contains(b.Ref()))
}

func TestInclude_AllExcludedResetsToReadyState(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	a, b := cands[0], cands[1]

	_, err := Include(set, a.Ref(), true)
	require.NoError(t, err)
	_, err = Include(set, b.Ref(), true)
	require.NoError(t, err)

	_, err = Include(set, a.Ref(), false)
	require.NoError(t, err)
	_, err = Include(set, b.Ref(), false)
	require.NoError(t, err)

	// Ready-state default: everything pre-flagged active so the next check
	// needs no second gesture.
	for _, c := range cands {
		assert.False(t, c.IsIncluded)
		assert.True(t, c.IsActive)
	}
}

func TestInclude_ReIncludeAfterResetLeavesSiblingsInactive(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	a, b := cands[0], cands[1]

	for _, c := range cands {
		_, err := Include(set, c.Ref(), true)
		require.NoError(t, err)
	}
	for _, c := range cands {
		_, err := Include(set, c.Ref(), false)
		require.NoError(t, err)
	}

	_, err := Include(set, a.Ref(), true)
	require.NoError(t, err)

	assert.True(t, a.IsIncluded)
	assert.True(t, a.IsActive)
	assert.False(t, b.IsIncluded)
	assert.False(t, b.IsActive, "stale ready-state flag cleared on re-include")
}

func TestInclude_ManyRemainingPicksFirstByInsertionOrder(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid", "shippingcontactid")
	a, b, c := cands[0], cands[1], cands[2]

	for _, cand := range cands {
		_, err := Include(set, cand.Ref(), true)
		require.NoError(t, err)
	}
	// c is active after the last include

	_, err := Include(set, c.Ref(), false)
	require.NoError(t, err)

	assert.True(t, a.IsActive, "first by insertion order wins the ambiguous case")
	assert.False(t, b.IsActive)
	assert.False(t, c.IsActive)
}

func TestToggleActive_WinsGroupWide(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid", "shippingcontactid")
	a, b, c := cands[0], cands[1], cands[2]

	changes, err := ToggleActive(set, c.Ref())
	require.NoError(t, err)

	assert.True(t, c.IsIncluded)
	assert.True(t, c.IsActive)
	assert.False(t, a.IsIncluded)
	assert.False(t, a.IsActive)
	assert.False(t, b.IsIncluded)
	assert.False(t, b.IsActive)
	assert.True(t, changes.Contains(c.Ref()))
}

func TestToggleActive_WinsOverReadyStateFlags(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	a, b := cands[0], cands[1]

	// Drive the group into the all-active ready state.
	_, err := Include(set, a.Ref(), true)
	require.NoError(t, err)
	_, err = Include(set, a.Ref(), false)
	require.NoError(t, err)
	require.True(t, a.IsActive)
	require.True(t, b.IsActive)

	_, err = ToggleActive(set, b.Ref())
	require.NoError(t, err)

	assert.True(t, b.IsIncluded)
	assert.True(t, b.IsActive)
	assert.False(t, a.IsActive, "toggle-to-active deactivates the whole group")
}

func TestToggleActive_SoleIncludedForcedBackActive(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	a := cands[0]

	_, err := Include(set, a.Ref(), true)
	require.NoError(t, err)

	changes, err := ToggleActive(set, a.Ref())
	require.NoError(t, err)

	assert.True(t, a.IsIncluded)
	assert.True(t, a.IsActive, "sole included candidate cannot go inactive")
	assert.Empty(t, changes)
}

func TestStatus(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")

	status := Status(set, "Opportunity", "CONTACT")
	assert.Equal(t, GroupStatus{Total: 2, ActiveIncluded: 0}, status)
	assert.False(t, status.Conflicted())

	_, err := Include(set, cands[0].Ref(), true)
	require.NoError(t, err)
	status = Status(set, "opportunity", "contact")
	assert.Equal(t, GroupStatus{Total: 2, ActiveIncluded: 1}, status)

	// Conflict states can transiently exist when the resolver is bypassed;
	// Status must still report them.
	cands[1].IsIncluded = true
	cands[1].IsActive = true
	status = Status(set, "opportunity", "contact")
	assert.True(t, status.Conflicted())
}

// TestResolverInvariant replays a gesture sequence and checks the
// at-most-one-active invariant after every single call.
func TestResolverInvariant(t *testing.T) {
	set := NewCandidateSet()
	var all []*models.RelationshipCandidate
	add := func(source, attr, target string) *models.RelationshipCandidate {
		c := newCandidate(source, attr, target, models.KindDirect)
		require.True(t, set.Add(c))
		all = append(all, c)
		return c
	}

	a := add("opportunity", "primarycontactid", "contact")
	b := add("opportunity", "billingcontactid", "contact")
	c := add("opportunity", "customerid", "account")
	d := add("contact", "parentaccountid", "account")

	checkInvariant := func() {
		t.Helper()
		for _, cand := range all {
			status := Status(set, cand.SourceTable, cand.TargetTable)
			assert.LessOrEqual(t, status.ActiveIncluded, 1,
				"group %s -> %s", cand.SourceTable, cand.TargetTable)
		}
	}

	gestures := []func() (models.ChangeSet, error){
		func() (models.ChangeSet, error) { return Include(set, a.Ref(), true) },
		func() (models.ChangeSet, error) { return Include(set, b.Ref(), true) },
		func() (models.ChangeSet, error) { return ToggleActive(set, a.Ref()) },
		func() (models.ChangeSet, error) { return Include(set, c.Ref(), true) },
		func() (models.ChangeSet, error) { return Include(set, a.Ref(), false) },
		func() (models.ChangeSet, error) { return Include(set, b.Ref(), false) },
		func() (models.ChangeSet, error) { return ToggleActive(set, d.Ref()) },
		func() (models.ChangeSet, error) { return Include(set, b.Ref(), true) },
		func() (models.ChangeSet, error) { return ToggleActive(set, b.Ref()) },
		func() (models.ChangeSet, error) { return Include(set, c.Ref(), false) },
	}
	for i, gesture := range gestures {
		_, err := gesture()
		require.NoError(t, err, "gesture %d", i)
		checkInvariant()
	}
}
