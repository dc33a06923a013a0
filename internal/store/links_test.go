package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

func TestCreateLink_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestDocument(t, s, "tasks", nil)
	b := createTestDocument(t, s, "people", nil)

	link, err := s.CreateLink(ctx, &ir.LinkInstance{
		LinkTypeID:  "assignee",
		DocumentIDs: [2]string{a.ID, b.ID},
		Data:        ir.IRObject{"role": ir.IRString("owner")},
	})
	require.NoError(t, err)

	got, err := s.GetLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, [2]string{a.ID, b.ID}, got.DocumentIDs)
	assert.Equal(t, ir.IRString("owner"), got.Data["role"])
	assert.Equal(t, b.ID, got.Other(a.ID))
}

func TestGetLink_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetLink(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLinksForDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := createTestDocument(t, s, "tasks", nil)
	b := createTestDocument(t, s, "people", nil)
	c := createTestDocument(t, s, "people", nil)

	l1 := createTestLink(t, s, "assignee", a.ID, b.ID)
	l2 := createTestLink(t, s, "reviewer", c.ID, a.ID)
	createTestLink(t, s, "assignee", c.ID, c.ID)

	all, err := s.LinksForDocument(ctx, a.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, l1.ID, all[0].ID)
	assert.Equal(t, l2.ID, all[1].ID)

	scoped, err := s.LinksForDocument(ctx, a.ID, "reviewer")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, l2.ID, scoped[0].ID)
}

func TestPatchLinkData_Merges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	link := createTestLink(t, s, "assignee", "d1", "d2")

	_, err := s.PatchLinkData(ctx, link.ID, ir.IRObject{"weight": ir.IRInt(2)})
	require.NoError(t, err)
	patched, err := s.PatchLinkData(ctx, link.ID, ir.IRObject{"note": ir.IRString("x")})
	require.NoError(t, err)

	assert.Equal(t, ir.IRInt(2), patched.Data["weight"])
	assert.Equal(t, ir.IRString("x"), patched.Data["note"])
}

func TestUpdateLinkMetaAndDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	link := createTestLink(t, s, "assignee", "d1", "d2")

	got, err := s.UpdateLinkMeta(ctx, link.ID, "u9")
	require.NoError(t, err)
	assert.Equal(t, "u9", got.UpdatedBy)

	require.NoError(t, s.DeleteLink(ctx, link.ID))
	assert.ErrorIs(t, s.DeleteLink(ctx, link.ID), ErrNotFound)
	_, err = s.UpdateLinkMeta(ctx, link.ID, "u9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchLinks_AttributeFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	l1, err := s.CreateLink(ctx, &ir.LinkInstance{LinkTypeID: "lt", DocumentIDs: [2]string{"a", "b"}, Data: ir.IRObject{"w": ir.IRInt(1)}})
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, &ir.LinkInstance{LinkTypeID: "lt", DocumentIDs: [2]string{"a", "c"}, Data: ir.IRObject{"w": ir.IRInt(5)}})
	require.NoError(t, err)

	links, err := s.SearchLinks(ctx, query.Links{
		LinkTypeID: "lt",
		Filter: query.AllOf(
			query.LinkedTo{DocumentID: "a"},
			query.Attr{AttributeID: "w", Condition: query.LowerThan, Values: []ir.IRValue{ir.IRInt(3)}},
		),
	})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, l1.ID, links[0].ID)
}
