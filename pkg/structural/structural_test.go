package structural_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/model"
	"github.com/opencontracts/corpuscore/pkg/store"
	"github.com/opencontracts/corpuscore/pkg/structural"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(dbconf.Database{Engine: "sqlite", DBName: "file::memory:?cache=shared"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestGetOrCreateCreatesThenReuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ss := structural.New(s.DB)
	set1, created, err := ss.GetOrCreate(ctx, "hash-1", "pdfplumber", "1.0", 10, 100, "", "", "alice")
	require.NoError(t, err)
	assert.True(t, created)

	set2, created2, err := ss.GetOrCreate(ctx, "hash-1", "pdfplumber", "1.0", 10, 100, "", "", "alice")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, set1.ID, set2.ID)
}

func TestMigrateDocumentMovesStructuralAnnotations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hash := "content-hash-abc"

	doc := &model.Document{Title: "D", PDFFileHash: &hash, VersionTreeID: "vt-1", IsCurrent: true, Creator: "alice"}
	require.NoError(t, s.DB.Create(doc).Error)

	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &doc.ID, RawText: "structural text", Structural: true, Creator: "alice"}).Error)
	require.NoError(t, s.DB.Create(&model.Annotation{DocumentID: &doc.ID, RawText: "user text", Structural: false, Creator: "alice"}).Error)

	ss := structural.New(s.DB)
	result, err := ss.MigrateDocument(ctx, doc, "pdfplumber", "1.0", false)
	require.NoError(t, err)
	assert.True(t, result.SetCreated)
	assert.Equal(t, int64(1), result.AnnotationsMigrated)

	var reloaded model.Document
	require.NoError(t, s.DB.First(&reloaded, doc.ID).Error)
	require.NotNil(t, reloaded.StructuralAnnotationSetID)

	var structuralAnnot model.Annotation
	require.NoError(t, s.DB.Where("raw_text = ?", "structural text").First(&structuralAnnot).Error)
	assert.Nil(t, structuralAnnot.DocumentID)
	assert.Equal(t, *reloaded.StructuralAnnotationSetID, *structuralAnnot.StructuralSetID)

	var userAnnot model.Annotation
	require.NoError(t, s.DB.Where("raw_text = ?", "user text").First(&userAnnot).Error)
	require.NotNil(t, userAnnot.DocumentID)
	assert.Equal(t, doc.ID, *userAnnot.DocumentID)
}

func TestMigrateDocumentWithoutHashRequiresForce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &model.Document{Title: "D", VersionTreeID: "vt-2", IsCurrent: true, Creator: "alice"}
	require.NoError(t, s.DB.Create(doc).Error)

	ss := structural.New(s.DB)
	_, err := ss.MigrateDocument(ctx, doc, "", "", false)
	require.Error(t, err)

	result, err := ss.MigrateDocument(ctx, doc, "", "", true)
	require.NoError(t, err)
	assert.True(t, result.SetCreated)
}

func TestMigrateDocumentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	hash := "content-hash-xyz"

	doc := &model.Document{Title: "D", PDFFileHash: &hash, VersionTreeID: "vt-3", IsCurrent: true, Creator: "alice"}
	require.NoError(t, s.DB.Create(doc).Error)

	ss := structural.New(s.DB)
	_, err := ss.MigrateDocument(ctx, doc, "p", "1", false)
	require.NoError(t, err)

	var reloaded model.Document
	require.NoError(t, s.DB.First(&reloaded, doc.ID).Error)

	result, err := ss.MigrateDocument(ctx, &reloaded, "p", "1", false)
	require.NoError(t, err)
	assert.Equal(t, &structural.MigrationResult{}, result)
}
