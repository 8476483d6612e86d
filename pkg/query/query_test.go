package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontracts/corpuscore/pkg/authority"
	"github.com/opencontracts/corpuscore/pkg/blobstore"
	"github.com/opencontracts/corpuscore/pkg/content"
	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/pathtree"
	"github.com/opencontracts/corpuscore/pkg/query"
	"github.com/opencontracts/corpuscore/pkg/store"
)

func newTestPlane(t *testing.T) (*query.Plane, *pathtree.Tree) {
	t.Helper()
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	tree := pathtree.New(s, blobstore.NewMemory(), authority.AllowAll{})
	plane := query.New(s.DB, authority.AllowAll{})
	return plane, tree
}

func TestCurrentFilesystemExcludesDeletedAndHistorical(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	_, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	_, _, _, err = tree.Import(ctx, 1, "/a.pdf", []byte("v2"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	_, _, _, err = tree.Import(ctx, 1, "/b.pdf", []byte("x"), "alice", nil, content.Metadata{Title: "B"})
	require.NoError(t, err)
	_, err = tree.Delete(ctx, 1, "/b.pdf", "alice")
	require.NoError(t, err)

	paths, err := plane.CurrentFilesystem(ctx, 1, "alice")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "/a.pdf", paths[0].Path)
	assert.Equal(t, 2, paths[0].VersionNumber)
}

func TestDeletedPathsShowsTrash(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	_, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	_, err = tree.Delete(ctx, 1, "/a.pdf", "alice")
	require.NoError(t, err)

	deleted, err := plane.DeletedPaths(ctx, 1, "alice")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].IsDeleted)
}

func TestContentHistoryIsOldestFirst(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	doc1, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	doc2, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v2"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	history, err := plane.ContentHistory(ctx, doc2.ID, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, doc1.ID, history[0].ID)
	assert.Equal(t, doc2.ID, history[1].ID)
}

func TestPathHistoryLabelsTransitions(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	_, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	_, _, _, err = tree.Import(ctx, 1, "/a.pdf", []byte("v2"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	deleted, err := tree.Delete(ctx, 1, "/a.pdf", "alice")
	require.NoError(t, err)
	restored, err := tree.Restore(ctx, 1, "/a.pdf", "alice")
	require.NoError(t, err)

	history, err := plane.PathHistory(ctx, restored.ID, "alice")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, query.ActionCreated, history[0].Action)
	assert.Equal(t, query.ActionUpdated, history[1].Action)
	assert.Equal(t, query.ActionDeleted, history[2].Action)
	assert.Equal(t, query.ActionRestored, history[3].Action)
	_ = deleted
}

func TestContentHistoryDeniedByAuthorityOracleReturnsEmpty(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file::memory:?cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	tree := pathtree.New(s, blobstore.NewMemory(), authority.AllowAll{})
	ctx := context.Background()

	doc, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	plane := query.New(s.DB, authority.DenyAll{})
	history, err := plane.ContentHistory(ctx, doc.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, history, "denied reads must return an empty result, not an error (IDOR protection)")
}

func TestPathHistoryDeniedByAuthorityOracleReturnsEmpty(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file::memory:?cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	tree := pathtree.New(s, blobstore.NewMemory(), authority.AllowAll{})
	ctx := context.Background()

	_, _, node, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	plane := query.New(s.DB, authority.DenyAll{})
	history, err := plane.PathHistory(ctx, node.ID, "alice")
	require.NoError(t, err)
	assert.Nil(t, history, "denied reads must return an empty result, not an error (IDOR protection)")
}

func TestIsContentTrulyDeleted(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	doc, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	truly, err := plane.IsContentTrulyDeleted(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.False(t, truly)

	_, err = tree.Delete(ctx, 1, "/a.pdf", "alice")
	require.NoError(t, err)

	truly, err = plane.IsContentTrulyDeleted(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.True(t, truly)
}

func TestIsContentTrulyDeletedIsCorpusScoped(t *testing.T) {
	plane, tree := newTestPlane(t)
	ctx := context.Background()

	docA, _, _, err := tree.Import(ctx, 1, "/s.pdf", []byte("shared"), "alice", nil, content.Metadata{Title: "S"})
	require.NoError(t, err)
	docB, _, _, err := tree.Import(ctx, 2, "/s.pdf", []byte("shared"), "alice", nil, content.Metadata{Title: "S"})
	require.NoError(t, err)

	_, err = tree.Delete(ctx, 1, "/s.pdf", "alice")
	require.NoError(t, err)

	truly, err := plane.IsContentTrulyDeleted(ctx, docA.ID, 1)
	require.NoError(t, err)
	assert.True(t, truly)

	truly, err = plane.IsContentTrulyDeleted(ctx, docB.ID, 2)
	require.NoError(t, err)
	assert.False(t, truly)
}
