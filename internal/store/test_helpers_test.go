package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/testutil"
)

// createTestStore creates a new store in a temp dir with deterministic ids
// (id-0001, id-0002, ...) and a stepping clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(ids.NewSequenceGenerator("id")),
		WithClock(testutil.NewStepClock().Now),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument persists a document in the given collection.
func createTestDocument(t *testing.T, s *Store, collectionID string, data ir.IRObject) *ir.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), testutil.Doc(collectionID, data))
	require.NoError(t, err)
	return doc
}

// createTestLink persists a link between two documents.
func createTestLink(t *testing.T, s *Store, linkTypeID, doc1, doc2 string) *ir.LinkInstance {
	t.Helper()
	link, err := s.CreateLink(context.Background(), &ir.LinkInstance{
		LinkTypeID:  linkTypeID,
		DocumentIDs: [2]string{doc1, doc2},
		Data:        ir.IRObject{},
	})
	require.NoError(t, err)
	return link
}
