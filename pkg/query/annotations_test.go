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
	"github.com/opencontracts/corpuscore/pkg/model"
	"github.com/opencontracts/corpuscore/pkg/pathtree"
	"github.com/opencontracts/corpuscore/pkg/query"
	"github.com/opencontracts/corpuscore/pkg/store"
)

func TestAnnotationsCurrentVersionOnlyExemptsStructural(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	tree := pathtree.New(s, blobstore.NewMemory(), authority.AllowAll{})
	plane := query.New(s.DB, authority.AllowAll{})
	ctx := context.Background()

	oldDoc, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)
	newDoc, _, _, err := tree.Import(ctx, 1, "/a.pdf", []byte("v2"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &oldDoc.ID, RawText: "old-only", Creator: "alice"}).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &newDoc.ID, RawText: "current", Creator: "alice"}).Error)

	set := &model.StructuralAnnotationSet{ContentHash: "h1"}
	require.NoError(t, s.DB.Create(set).Error)
	require.NoError(t, s.DB.Model(newDoc).Update("structural_annotation_set_id", set.ID).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{StructuralSetID: &set.ID, RawText: "structural", Structural: true}).Error)

	docID := newDoc.ID
	rows, err := plane.Annotations(ctx, query.AnnotationFilter{DocumentID: &docID, UserID: "alice"})
	require.NoError(t, err)

	texts := map[string]bool{}
	for _, r := range rows {
		texts[r.RawText] = true
	}
	assert.True(t, texts["current"])
	assert.True(t, texts["structural"], "structural annotations are returned even though they have no current document")
	assert.False(t, texts["old-only"], "non-current, non-structural annotations must be excluded by default")
}

func TestAnnotationsVisibilityForAnonymous(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	plane := query.New(s.DB, authority.AllowAll{})
	ctx := context.Background()

	doc := &model.Document{Title: "D", VersionTreeID: "vt", IsCurrent: true, Creator: "alice"}
	require.NoError(t, s.DB.Create(doc).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &doc.ID, RawText: "private", Creator: "alice", IsPublic: false}).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &doc.ID, RawText: "public", Creator: "alice", IsPublic: true}).Error)

	docID := doc.ID
	rows, err := plane.Annotations(ctx, query.AnnotationFilter{DocumentID: &docID, Anonymous: true})
	require.NoError(t, err)

	texts := map[string]bool{}
	for _, r := range rows {
		texts[r.RawText] = true
	}
	assert.True(t, texts["public"])
	assert.False(t, texts["private"])
}

// writeDeniedForCorpus grants every document-level check but refuses
// CanWrite/CanDelete on the corpus object, so a test can tell whether
// EffectivePermission actually folds the corpus-level decision in rather
// than stopping at the document-level one.
type writeDeniedForCorpus struct{ corpusObjectID string }

func (o writeDeniedForCorpus) CanRead(context.Context, string, string) (bool, error) {
	return true, nil
}
func (o writeDeniedForCorpus) CanWrite(_ context.Context, _ string, objectID string) (bool, error) {
	return objectID != o.corpusObjectID, nil
}
func (o writeDeniedForCorpus) CanDelete(_ context.Context, _ string, objectID string) (bool, error) {
	return objectID != o.corpusObjectID, nil
}

func TestEffectivePermissionIsMinOfDocumentAndCorpus(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	tree := pathtree.New(s, blobstore.NewMemory(), authority.AllowAll{})
	ctx := context.Background()

	doc, _, _, err := tree.Import(ctx, 7, "/a.pdf", []byte("v1"), "alice", nil, content.Metadata{Title: "A"})
	require.NoError(t, err)

	authz := writeDeniedForCorpus{corpusObjectID: "corpus:7"}
	plane := query.New(s.DB, authz)

	docID := doc.ID
	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &docID, RawText: "note", Creator: "alice"}).Error)
	rows, err := plane.Annotations(ctx, query.AnnotationFilter{DocumentID: &docID, UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Permissions.CanRead)
	assert.False(t, rows[0].Permissions.CanUpdate, "corpus-level denial must bring the document's own permission down")
	assert.False(t, rows[0].Permissions.CanDelete)
}

func TestAnnotationsStructuralRowsNeverGetWriteFlags(t *testing.T) {
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	plane := query.New(s.DB, authority.AllowAll{})
	ctx := context.Background()

	doc := &model.Document{Title: "D", VersionTreeID: "vt", IsCurrent: true, Creator: "alice"}
	require.NoError(t, s.DB.Create(doc).Error)
	set := &model.StructuralAnnotationSet{ContentHash: "h2"}
	require.NoError(t, s.DB.Create(set).Error)
	require.NoError(t, s.DB.Model(doc).Update("structural_annotation_set_id", set.ID).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{StructuralSetID: &set.ID, RawText: "structural", Structural: true}).Error)

	docID := doc.ID
	rows, err := plane.Annotations(ctx, query.AnnotationFilter{DocumentID: &docID, UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Permissions.CanUpdate)
	assert.False(t, rows[0].Permissions.CanDelete)
}
