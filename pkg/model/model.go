// Package model publishes the relational schema shared by every component
// of the core. Components (content, pathtree, structural, query) all take
// their row types from this one package, so the schema is published once
// here and no component imports another's models, avoiding the cyclic
// model imports of the source this core was distilled from.
package model

import (
	"time"

	"gorm.io/gorm"
)

// Corpus is a named collection of documents with its own folder tree and
// path space. The corpus itself is not versioned by this core.
type Corpus struct {
	ID        uint   `gorm:"primarykey"`
	Title     string `gorm:"size:512;not null"`
	IsPublic  bool   `gorm:"not null;default:false"`
	Creator   string `gorm:"size:256;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CorpusFolder is a node in a corpus's folder tree. Sibling names are
// unique per parent.
type CorpusFolder struct {
	ID        uint  `gorm:"primarykey"`
	CorpusID  uint  `gorm:"not null;uniqueIndex:u_corpus_folder_sibling;index"`
	ParentID  *uint `gorm:"uniqueIndex:u_corpus_folder_sibling;index"`
	Name      string `gorm:"size:255;not null;uniqueIndex:u_corpus_folder_sibling"`
	Creator   string `gorm:"size:256"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a content node: one version of a document's bytes. Rows are
// inserted on first-seen content within a corpus and on every content
// change thereafter; they are never hard-deleted (PathTree references them
// with an implicit PROTECT discipline — the core never deletes a Document
// row that any DocumentPath still references).
type Document struct {
	ID                       uint    `gorm:"primarykey"`
	Title                    string  `gorm:"size:512"`
	FileType                 string  `gorm:"size:128"`
	PDFFile                  string  `gorm:"size:1024"`
	TxtExtractFile           string  `gorm:"size:1024"`
	PawlsParseFile           string  `gorm:"size:1024"`
	MDSummaryFile            string  `gorm:"size:1024"`
	Icon                     string  `gorm:"size:1024"`
	PDFFileHash              *string `gorm:"size:64;index"`
	PageCount                int
	VersionTreeID            string `gorm:"size:36;not null;index"`
	ParentID                 *uint  `gorm:"index"`
	IsCurrent                bool   `gorm:"not null;default:true"`
	SourceDocumentID         *uint  `gorm:"index"`
	StructuralAnnotationSetID *uint `gorm:"index"`
	IsPublic                 bool   `gorm:"not null;default:false"`
	Creator                  string `gorm:"size:256"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// DocumentPath is a lifecycle node: one state of a named location inside a
// corpus.
type DocumentPath struct {
	ID            uint   `gorm:"primarykey"`
	DocumentID    uint   `gorm:"not null;index"`
	CorpusID      uint   `gorm:"not null;index:idx_path_corpus_current_deleted"`
	FolderID      *uint  `gorm:"index"`
	Path          string `gorm:"size:1024;not null;index"`
	VersionNumber int    `gorm:"not null;index"`
	ParentID      *uint  `gorm:"index"`
	IsCurrent     bool   `gorm:"not null;default:true;index:idx_path_corpus_current_deleted"`
	IsDeleted     bool   `gorm:"not null;default:false;index:idx_path_corpus_current_deleted"`
	Creator       string `gorm:"size:256"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

// StructuralAnnotationSet is the shared, content-hash-keyed container for
// parser-produced, content-intrinsic structural annotations.
type StructuralAnnotationSet struct {
	ID             uint   `gorm:"primarykey"`
	ContentHash    string `gorm:"size:64;not null;uniqueIndex"`
	ParserName     string `gorm:"size:128"`
	ParserVersion  string `gorm:"size:64"`
	PageCount      int
	TokenCount     int
	PawlsParseFile string `gorm:"size:1024"`
	TxtExtractFile string `gorm:"size:1024"`
	Creator        string `gorm:"size:256"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Annotation carries exactly one of DocumentID or StructuralSetID (the XOR
// invariant), enforced at the database level outside of gorm's AutoMigrate
// by a CHECK constraint on postgres and by triggers on sqlite; mysql gets
// neither (see pkg/store).
type Annotation struct {
	ID                uint    `gorm:"primarykey"`
	DocumentID        *uint   `gorm:"index"`
	StructuralSetID   *uint   `gorm:"index"`
	CorpusID          *uint   `gorm:"index"`
	RawText           string  `gorm:"type:text"`
	Page              int
	AnnotationLabel   string `gorm:"size:255;index"`
	Structural        bool   `gorm:"not null;default:false"`
	IsPublic          bool   `gorm:"not null;default:false"`
	Creator           string `gorm:"size:256;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Relationship connects two sets of annotations (by join table) via a
// label. It carries the same XOR and structural-implies-flag invariants as
// Annotation.
type Relationship struct {
	ID                uint    `gorm:"primarykey"`
	DocumentID        *uint   `gorm:"index"`
	StructuralSetID   *uint   `gorm:"index"`
	CorpusID          *uint   `gorm:"index"`
	RelationshipLabel string  `gorm:"size:255;index"`
	Structural        bool    `gorm:"not null;default:false"`
	IsPublic          bool    `gorm:"not null;default:false"`
	Creator           string  `gorm:"size:256;index"`
	SourceAnnotations []Annotation `gorm:"many2many:relationship_source_annotations;"`
	TargetAnnotations []Annotation `gorm:"many2many:relationship_target_annotations;"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Tables lists every model AutoMigrate must create, in dependency order
// (referenced tables first) so that foreign keys resolve.
func Tables() []any {
	return []any{
		&Corpus{},
		&CorpusFolder{},
		&StructuralAnnotationSet{},
		&Document{},
		&DocumentPath{},
		&Annotation{},
		&Relationship{},
	}
}

// AutoMigrate runs gorm's schema migration for every model. Partial unique
// indexes and CHECK constraints that AutoMigrate cannot express are applied
// separately; see pkg/store.Migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Tables()...)
}
