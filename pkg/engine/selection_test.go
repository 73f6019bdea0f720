package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelforge/star-engine/pkg/models"
)

func included(source, attr, target string, kind models.RelationshipKind, active bool) *models.RelationshipCandidate {
	c := newCandidate(source, attr, target, kind)
	c.IsIncluded = true
	c.IsActive = active
	return c
}

func TestBuildSelection_Closure(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity", DisplayName: "Opportunity"}
	known := map[string]models.Table{
		"opportunity": fact,
		"account":     {LogicalName: "account", DisplayName: "Account"},
		"territory":   {LogicalName: "territory", DisplayName: "Territory"},
	}

	candidates := []*models.RelationshipCandidate{
		included("opportunity", "customerid", "account", models.KindDirect, true),
		included("account", "territoryid", "territory", models.KindSnowflake, true),
	}

	result, err := BuildSelection(fact, candidates, known)
	require.NoError(t, err)
	assert.Equal(t, []string{"opportunity", "account", "territory"}, result.TableNames())
	assert.Len(t, result.Relationships, 2)
}

func TestBuildSelection_OneToManyPullsInSourceTable(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	candidates := []*models.RelationshipCandidate{
		included("opportunityproduct", "opportunityid", "opportunity", models.KindOneToMany, true),
	}

	result, err := BuildSelection(fact, candidates, map[string]models.Table{})
	require.NoError(t, err)
	assert.Equal(t, []string{"opportunity", "opportunityproduct"}, result.TableNames())
}

func TestBuildSelection_SynthesizesStandIns(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	candidates := []*models.RelationshipCandidate{
		included("opportunity", "contoso_regionid", "contoso_sales_regions", models.KindDirect, true),
	}

	result, err := BuildSelection(fact, candidates, map[string]models.Table{})
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)

	standIn := result.Tables[1]
	assert.Equal(t, "contoso_sales_regions", standIn.LogicalName)
	assert.Equal(t, "Sales Region", standIn.DisplayName)
	assert.Equal(t, "contoso_sales_regionsid", standIn.PrimaryIDAttribute)
	assert.Equal(t, "name", standIn.PrimaryNameAttribute)
}

func TestBuildSelection_SkipsExcludedCandidates(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	ready := newCandidate("opportunity", "customerid", "account", models.KindDirect)
	ready.IsActive = true // ready-state flag on an excluded candidate

	result, err := BuildSelection(fact, []*models.RelationshipCandidate{ready}, map[string]models.Table{})
	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
	assert.Equal(t, []string{"opportunity"}, result.TableNames())
}

func TestBuildSelection_DeduplicatesByIdentity(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	candidates := []*models.RelationshipCandidate{
		included("opportunity", "customerid", "account", models.KindDirect, true),
		included("Opportunity", "CustomerId", "Account", models.KindDirect, true),
	}

	result, err := BuildSelection(fact, candidates, map[string]models.Table{})
	require.NoError(t, err)
	assert.Len(t, result.Relationships, 1)
}

func TestBuildSelection_NoActiveRelationship(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	candidates := []*models.RelationshipCandidate{
		included("opportunity", "customerid", "account", models.KindDirect, false),
	}

	_, err := BuildSelection(fact, candidates, map[string]models.Table{})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.ValidationNoActiveRelationship, verr.Kind)
	assert.Equal(t, "opportunity", verr.SourceTable)
	assert.Equal(t, "account", verr.TargetTable)
}

// Two included, both-active candidates for the same pair can only be built
// by bypassing the resolver; the builder is the defensive final gate.
func TestBuildSelection_MultipleActiveRelationships(t *testing.T) {
	fact := models.Table{LogicalName: "opportunity"}
	candidates := []*models.RelationshipCandidate{
		included("opportunity", "primarycontactid", "contact", models.KindDirect, true),
		included("opportunity", "billingcontactid", "contact", models.KindDirect, true),
	}

	_, err := BuildSelection(fact, candidates, map[string]models.Table{})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.ValidationMultipleActiveRelationships, verr.Kind)
}

// When every mutation went through the resolver the gate never fires.
func TestBuildSelection_ResolverDrivenStateAlwaysBuilds(t *testing.T) {
	set, cands := contactGroup(t, "primarycontactid", "billingcontactid")
	for _, c := range cands {
		_, err := Include(set, c.Ref(), true)
		require.NoError(t, err)
	}
	_, err := ToggleActive(set, cands[0].Ref())
	require.NoError(t, err)

	fact := models.Table{LogicalName: "opportunity"}
	result, err := BuildSelection(fact, set.All(), map[string]models.Table{})
	require.NoError(t, err)
	assert.Len(t, result.Relationships, 2)
}
