// Package content implements the ContentTree (C3): the per-version-tree
// lineage of Document rows. It exposes no external mutators beyond the
// ones PathTree calls internally — a Gateway never talks to this package
// directly.
package content

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opencontracts/corpuscore/pkg/errtypes"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// Metadata carries the document attributes an import supplies beyond its
// bytes and hash: title, file type and any inherited blob handles.
type Metadata struct {
	Title          string
	FileType       string
	PDFFile        string
	TxtExtractFile string
	PawlsParseFile string
	MDSummaryFile  string
	Icon           string
	PageCount      int
	IsPublic       bool
}

// Tree is the ContentTree, bound to one transaction-scoped *gorm.DB.
type Tree struct {
	db *gorm.DB
}

// New returns a ContentTree bound to tx. Callers always construct one per
// transaction; the type holds no state of its own beyond the handle.
func New(tx *gorm.DB) *Tree {
	return &Tree{db: tx}
}

// FindInCorpusByHash scans any DocumentPath in corpusID (current or
// historical) for a Document whose PDFFileHash equals hash, returning the
// first such Document. This lets content be reused within a corpus even
// after it was deleted and re-imported.
func (t *Tree) FindInCorpusByHash(ctx context.Context, corpusID uint, hash string) (*model.Document, error) {
	var path model.DocumentPath
	err := t.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = document_paths.document_id").
		Where("document_paths.corpus_id = ? AND documents.pdf_file_hash = ?", corpusID, hash).
		Order("document_paths.id ASC").
		First(&path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc model.Document
	if err := t.db.WithContext(ctx).First(&doc, path.DocumentID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindGlobalByHash scans across every corpus for a Document whose
// PDFFileHash equals hash. It is used only to inherit provenance
// (source_document) and shared parsing artifacts when bringing content
// into a new corpus for the first time.
func (t *Tree) FindGlobalByHash(ctx context.Context, hash string) (*model.Document, error) {
	var doc model.Document
	err := t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pdf_file_hash = ?", hash).
		Order("id ASC").
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// NewVersion flips is_current=false on every Document sharing
// oldDoc.VersionTreeID, then inserts a new Document with parent=oldDoc,
// the same version_tree_id, is_current=true, inheriting
// structural_annotation_set from oldDoc (C2, C3).
func (t *Tree) NewVersion(ctx context.Context, oldDoc *model.Document, hash string, m Metadata) (*model.Document, error) {
	if err := t.db.WithContext(ctx).Model(&model.Document{}).
		Where("version_tree_id = ?", oldDoc.VersionTreeID).
		Update("is_current", false).Error; err != nil {
		return nil, errors.Wrap(err, "content: failed to flip is_current on version tree")
	}

	newDoc := &model.Document{
		Title:                     pick(m.Title, oldDoc.Title),
		FileType:                  pick(m.FileType, oldDoc.FileType),
		PDFFile:                   pick(m.PDFFile, oldDoc.PDFFile),
		TxtExtractFile:            pick(m.TxtExtractFile, oldDoc.TxtExtractFile),
		PawlsParseFile:            pick(m.PawlsParseFile, oldDoc.PawlsParseFile),
		MDSummaryFile:             pick(m.MDSummaryFile, oldDoc.MDSummaryFile),
		Icon:                      pick(m.Icon, oldDoc.Icon),
		PageCount:                 m.PageCount,
		PDFFileHash:               &hash,
		VersionTreeID:             oldDoc.VersionTreeID,
		ParentID:                  &oldDoc.ID,
		IsCurrent:                 true,
		StructuralAnnotationSetID: oldDoc.StructuralAnnotationSetID,
		SourceDocumentID:          oldDoc.SourceDocumentID,
		Creator:                   oldDoc.Creator,
	}
	if err := t.db.WithContext(ctx).Create(newDoc).Error; err != nil {
		return nil, wrapIntegrity(err, "content: new_version insert failed")
	}
	return newDoc, nil
}

// NewIsolated inserts a new root Document with a fresh version tree,
// parent=nil, is_current=true. sourceDocumentID and structuralSetID are
// nil for brand-new content, or set when the content is being carried into
// a new corpus from elsewhere (cross-corpus dedup, §4.3.1 Case B).
func (t *Tree) NewIsolated(ctx context.Context, hash string, m Metadata, sourceDocumentID, structuralSetID *uint, creator string) (*model.Document, error) {
	doc := &model.Document{
		Title:                     m.Title,
		FileType:                  m.FileType,
		PDFFile:                   m.PDFFile,
		TxtExtractFile:            m.TxtExtractFile,
		PawlsParseFile:            m.PawlsParseFile,
		MDSummaryFile:             m.MDSummaryFile,
		Icon:                      m.Icon,
		PageCount:                 m.PageCount,
		PDFFileHash:               &hash,
		VersionTreeID:             uuid.NewString(),
		ParentID:                  nil,
		IsCurrent:                 true,
		SourceDocumentID:          sourceDocumentID,
		StructuralAnnotationSetID: structuralSetID,
		IsPublic:                  m.IsPublic,
		Creator:                   creator,
	}
	if err := t.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, wrapIntegrity(err, "content: new_isolated insert failed")
	}
	return doc, nil
}

// History walks doc's parent chain and returns the list oldest-first.
func (t *Tree) History(ctx context.Context, doc *model.Document) ([]model.Document, error) {
	var chain []model.Document
	cur := doc
	for cur != nil {
		chain = append(chain, *cur)
		if cur.ParentID == nil {
			break
		}
		var parent model.Document
		if err := t.db.WithContext(ctx).First(&parent, *cur.ParentID).Error; err != nil {
			return nil, err
		}
		cur = &parent
	}
	// chain is newest-first (we walked up from doc); reverse to oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CountAncestors returns the 1-based depth of doc within its content tree
// (a root document has depth 1), used to assign version_number when a
// path is linked to pre-existing content (§4.3.1 Case B "linked").
func (t *Tree) CountAncestors(ctx context.Context, doc *model.Document) (int, error) {
	chain, err := t.History(ctx, doc)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

func wrapIntegrity(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errtypes.IntegrityError(errors.Wrap(err, msg).Error())
}
