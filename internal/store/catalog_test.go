package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/testutil"
)

func TestCollection_CreateGetUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := testutil.Collection("", testutil.TextAttr("title"), testutil.SelectAttr("state", false, "open", "done"))
	c.Rules = []ir.Rule{testutil.ScriptRule("r1", ir.TimingUpdate, "1")}
	require.NoError(t, s.CreateCollection(ctx, c))
	assert.Equal(t, "id-0001", c.ID)

	got, err := s.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Attributes, 2)
	assert.Equal(t, ir.ConstraintSelect, got.Attributes[1].Constraint.Type)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, ir.TimingUpdate, got.Rules[0].Timing)

	got.Name = "Tasks"
	got.Rules = nil
	require.NoError(t, s.UpdateCollection(ctx, got))

	again, err := s.GetCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tasks", again.Name)
	assert.Empty(t, again.Rules)
}

func TestCollection_SaveCounters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := testutil.Collection("tasks", testutil.TextAttr("title"))
	require.NoError(t, s.CreateCollection(ctx, c))

	c.DocumentsCount = 7
	c.AdjustUsage("title", 3)
	require.NoError(t, s.SaveCollectionCounters(ctx, c))

	got, err := s.GetCollection(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.DocumentsCount)
	assert.Equal(t, int64(3), got.Attribute("title").UsageCount)

	missing := testutil.Collection("missing")
	assert.ErrorIs(t, s.SaveCollectionCounters(ctx, missing), ErrNotFound)
}

func TestCollection_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetCollection(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCollections_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, s.CreateCollection(ctx, testutil.Collection(id)))
	}

	list, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestLinkType_CRUDAndCounters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	lt := testutil.LinkType("assignee", "tasks", "people", testutil.NumberAttr("weight"))
	require.NoError(t, s.CreateLinkType(ctx, lt))
	require.NoError(t, s.CreateLinkType(ctx, testutil.LinkType("other", "x", "y")))

	lt.LinksCount = 2
	lt.AdjustUsage("weight", 1)
	require.NoError(t, s.SaveLinkTypeCounters(ctx, lt))

	got, err := s.GetLinkType(ctx, "assignee")
	require.NoError(t, err)
	assert.Equal(t, [2]string{"tasks", "people"}, got.CollectionIDs)
	assert.Equal(t, int64(2), got.LinksCount)
	assert.Equal(t, int64(1), got.Attribute("weight").UsageCount)

	forPeople, err := s.LinkTypesForCollection(ctx, "people")
	require.NoError(t, err)
	require.Len(t, forPeople, 1)
	assert.Equal(t, "assignee", forPeople[0].ID)

	got.CollectionIDs = [2]string{"tasks", "teams"}
	require.NoError(t, s.UpdateLinkType(ctx, got))
	all, err := s.ListLinkTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetLinkType(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
