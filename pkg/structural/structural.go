// Package structural implements the StructuralSetStore (C2): the
// content-hash-keyed pool of parser-produced annotations and relationships
// shared across every Document whose bytes hash the same. It also carries
// the one-time migration path that moves a Document's structural
// Annotation/Relationship rows out of its own row and into a shared
// StructuralAnnotationSet, grounded directly on the source system's
// migrate_structural_annotations management command.
package structural

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/opencontracts/corpuscore/pkg/errtypes"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// Store is the StructuralSetStore, bound to one transaction-scoped *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New returns a StructuralSetStore bound to tx.
func New(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// GetOrCreate returns the StructuralAnnotationSet keyed by contentHash,
// creating it with the supplied parser metadata if none exists yet.
func (s *Store) GetOrCreate(ctx context.Context, contentHash string, parserName, parserVersion string, pageCount, tokenCount int, pawlsParseFile, txtExtractFile, creator string) (*model.StructuralAnnotationSet, bool, error) {
	var set model.StructuralAnnotationSet
	err := s.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&set).Error
	if err == nil {
		return &set, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	set = model.StructuralAnnotationSet{
		ContentHash:    contentHash,
		ParserName:     parserName,
		ParserVersion:  parserVersion,
		PageCount:      pageCount,
		TokenCount:     tokenCount,
		PawlsParseFile: pawlsParseFile,
		TxtExtractFile: txtExtractFile,
		Creator:        creator,
	}
	if err := s.db.WithContext(ctx).Create(&set).Error; err != nil {
		// A concurrent GetOrCreate may have won the race against the
		// content_hash unique index; treat that as "already exists".
		if isUniqueViolation(err) {
			if err := s.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&set).Error; err != nil {
				return nil, false, err
			}
			return &set, false, nil
		}
		return nil, false, errtypes.IntegrityError(errors.Wrap(err, "structural: get_or_create insert failed").Error())
	}
	return &set, true, nil
}

// AttachToDocument links doc to set, the final step of migrating a
// document's own structural annotations into the shared pool.
func (s *Store) AttachToDocument(ctx context.Context, documentID uint, setID uint) error {
	return s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", documentID).
		Update("structural_annotation_set_id", setID).Error
}

// CountAnnotations returns how many structural Annotation rows still hang
// directly off documentID (not yet migrated to a StructuralAnnotationSet).
func (s *Store) CountAnnotations(ctx context.Context, documentID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Annotation{}).
		Where("document_id = ? AND structural", documentID).
		Count(&n).Error
	return n, err
}

// CountRelationships is CountAnnotations' counterpart for Relationship rows.
func (s *Store) CountRelationships(ctx context.Context, documentID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Relationship{}).
		Where("document_id = ? AND structural", documentID).
		Count(&n).Error
	return n, err
}

// MigrationResult tallies one document's MigrateDocument outcome.
type MigrationResult struct {
	SetCreated           bool
	SetReused            bool
	AnnotationsMigrated  int64
	RelationshipsMigrated int64
}

// MigrateDocument moves doc's structural Annotation/Relationship rows into
// the StructuralAnnotationSet keyed by its content hash, then links doc to
// that set. It is idempotent: a document already linked to a set is a no-op.
// When doc has no PDFFileHash, force must be true and the fallback hash
// "doc-<id>" is used instead, matching the --force escape hatch in the
// source migration command. All of its writes run in one transaction.
func (s *Store) MigrateDocument(ctx context.Context, doc *model.Document, parserName, parserVersion string, force bool) (*MigrationResult, error) {
	var result *MigrationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = New(tx).migrateDocument(ctx, doc, parserName, parserVersion, force)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) migrateDocument(ctx context.Context, doc *model.Document, parserName, parserVersion string, force bool) (*MigrationResult, error) {
	if doc.StructuralAnnotationSetID != nil {
		return &MigrationResult{}, nil
	}

	hash := ""
	if doc.PDFFileHash != nil {
		hash = *doc.PDFFileHash
	}
	if hash == "" {
		if !force {
			return nil, errtypes.PreconditionFailed(fmt.Sprintf("document %d has no content hash; pass force to use a fallback key", doc.ID))
		}
		hash = fmt.Sprintf("doc-%d", doc.ID)
	}

	set, created, err := s.GetOrCreate(ctx, hash, parserName, parserVersion, doc.PageCount, 0, doc.PawlsParseFile, doc.TxtExtractFile, doc.Creator)
	if err != nil {
		return nil, err
	}

	annotResult := s.db.WithContext(ctx).Model(&model.Annotation{}).
		Where("document_id = ? AND structural", doc.ID).
		Updates(map[string]any{"structural_set_id": set.ID, "document_id": nil})
	if annotResult.Error != nil {
		return nil, annotResult.Error
	}

	relResult := s.db.WithContext(ctx).Model(&model.Relationship{}).
		Where("document_id = ? AND structural", doc.ID).
		Updates(map[string]any{"structural_set_id": set.ID, "document_id": nil})
	if relResult.Error != nil {
		return nil, relResult.Error
	}

	if err := s.AttachToDocument(ctx, doc.ID, set.ID); err != nil {
		return nil, err
	}

	return &MigrationResult{
		SetCreated:            created,
		SetReused:             !created,
		AnnotationsMigrated:   annotResult.RowsAffected,
		RelationshipsMigrated: relResult.RowsAffected,
	}, nil
}

// EligibleForMigration returns the IDs of Documents that have at least one
// structural Annotation still attached directly (not yet in a shared set).
// An optional corpusID restricts the scan to documents with an active path
// in that corpus, mirroring the source command's --corpus-id filter.
func EligibleForMigration(ctx context.Context, db *gorm.DB, corpusID *uint) ([]uint, error) {
	q := db.WithContext(ctx).Model(&model.Document{}).
		Distinct("documents.id").
		Joins("JOIN annotations ON annotations.document_id = documents.id AND annotations.structural").
		Where("documents.structural_annotation_set_id IS NULL")

	if corpusID != nil {
		q = q.Where("documents.id IN (?)", db.Model(&model.DocumentPath{}).
			Select("document_id").
			Where("corpus_id = ? AND is_current AND NOT is_deleted", *corpusID))
	}

	var ids []uint
	if err := q.Order("documents.id").Pluck("documents.id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"UNIQUE constraint", "duplicate key", "Duplicate entry"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
