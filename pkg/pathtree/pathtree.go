// Package pathtree implements the PathTree (C4): the only write surface an
// external caller uses (import, move, delete, restore). Every operation
// runs inside a single transaction with row-level locking on the affected
// DocumentPath, and is atomic: either it commits one new path node (and at
// most one new Document, and at most one flipped is_current), or nothing.
package pathtree

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opencontracts/corpuscore/pkg/authority"
	"github.com/opencontracts/corpuscore/pkg/blobstore"
	"github.com/opencontracts/corpuscore/pkg/content"
	"github.com/opencontracts/corpuscore/pkg/errtypes"
	"github.com/opencontracts/corpuscore/pkg/hashutil"
	"github.com/opencontracts/corpuscore/pkg/model"
	"github.com/opencontracts/corpuscore/pkg/store"
)

// Status is the outcome of an Import call.
type Status string

const (
	StatusCreated             Status = "created"
	StatusUpdated             Status = "updated"
	StatusUnchanged           Status = "unchanged"
	StatusLinked              Status = "linked"
	StatusCreatedFromExisting Status = "created_from_existing"
)

// FolderChangeKind distinguishes "keep current folder" from "explicitly
// set to root" from "set to a given folder" on Move, replacing the
// source's "UNSET" sentinel (Open Question decision 3 in DESIGN.md).
type FolderChangeKind int

const (
	FolderUnchanged FolderChangeKind = iota
	FolderMoveToRoot
	FolderMoveTo
)

// FolderChange is the typed replacement for Move's "UNSET" sentinel.
type FolderChange struct {
	Kind     FolderChangeKind
	FolderID uint
}

// KeepFolder leaves the line's current folder untouched.
func KeepFolder() FolderChange { return FolderChange{Kind: FolderUnchanged} }

// MoveToRoot clears the line's folder.
func MoveToRoot() FolderChange { return FolderChange{Kind: FolderMoveToRoot} }

// MoveTo sets the line's folder to folderID.
func MoveTo(folderID uint) FolderChange { return FolderChange{Kind: FolderMoveTo, FolderID: folderID} }

func (f FolderChange) resolve(current *uint) *uint {
	switch f.Kind {
	case FolderMoveToRoot:
		return nil
	case FolderMoveTo:
		id := f.FolderID
		return &id
	default:
		return current
	}
}

// Tree is the PathTree write surface.
type Tree struct {
	store *store.Store
	blobs blobstore.Store
	authz authority.Oracle
}

// New returns a PathTree backed by s, storing blobs in blobs and checking
// permissions against authz.
func New(s *store.Store, blobs blobstore.Store, authz authority.Oracle) *Tree {
	return &Tree{store: s, blobs: blobs, authz: authz}
}

func writeObjectID(corpusID uint, path string) string {
	return fmt.Sprintf("corpus:%d:path:%s", corpusID, path)
}

func (t *Tree) checkWrite(ctx context.Context, userID string, objectID string) error {
	ok, err := t.authz.CanWrite(ctx, userID, objectID)
	if err != nil {
		return err
	}
	if !ok {
		return errtypes.PermissionDenied(objectID)
	}
	return nil
}

func (t *Tree) checkDelete(ctx context.Context, userID string, objectID string) error {
	ok, err := t.authz.CanDelete(ctx, userID, objectID)
	if err != nil {
		return err
	}
	if !ok {
		return errtypes.PermissionDenied(objectID)
	}
	return nil
}

// Import implements §4.3.1. It hashes content and acquires a blob handle
// before opening the transaction, so blob I/O never happens under the
// DocumentPath row lock.
func (t *Tree) Import(ctx context.Context, corpusID uint, path string, data []byte, userID string, folderID *uint, meta content.Metadata) (*model.Document, Status, *model.DocumentPath, error) {
	if err := t.checkWrite(ctx, userID, writeObjectID(corpusID, path)); err != nil {
		return nil, "", nil, err
	}

	hash := hashutil.SHA256(data)
	handle, err := t.blobs.Put(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, "", nil, errors.Wrap(err, "pathtree: failed to store blob")
	}
	meta.PDFFile = string(handle)

	var (
		doc    *model.Document
		status Status
		node   *model.DocumentPath
	)

	err = t.store.Transaction(ctx, func(tx *gorm.DB) error {
		ct := content.New(tx)

		var current model.DocumentPath
		findErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("corpus_id = ? AND path = ? AND is_current AND NOT is_deleted", corpusID, path).
			First(&current).Error

		switch {
		case findErr == nil:
			// Case A: an active path already exists at this location.
			var oldDoc model.Document
			if err := tx.First(&oldDoc, current.DocumentID).Error; err != nil {
				return err
			}
			if oldDoc.PDFFileHash != nil && *oldDoc.PDFFileHash == hash {
				doc, status, node = &oldDoc, StatusUnchanged, &current
				return nil
			}

			reused, err := ct.FindInCorpusByHash(ctx, corpusID, hash)
			if err != nil {
				return err
			}
			var newDoc *model.Document
			if reused != nil {
				newDoc = reused
			} else {
				newDoc, err = ct.NewVersion(ctx, &oldDoc, hash, meta)
				if err != nil {
					return err
				}
			}

			if err := tx.Model(&current).Update("is_current", false).Error; err != nil {
				return err
			}

			newFolder := current.FolderID
			if folderID != nil {
				newFolder = folderID
			}
			newNode := &model.DocumentPath{
				DocumentID:    newDoc.ID,
				CorpusID:      corpusID,
				FolderID:      newFolder,
				Path:          path,
				VersionNumber: current.VersionNumber + 1,
				ParentID:      &current.ID,
				IsCurrent:     true,
				IsDeleted:     false,
				Creator:       userID,
			}
			if err := tx.Create(newNode).Error; err != nil {
				return wrapIntegrity(err, "pathtree: import update insert failed")
			}
			doc, status, node = newDoc, StatusUpdated, newNode
			return nil

		case errors.Is(findErr, gorm.ErrRecordNotFound):
			// Case B: no active path at this location yet.
			reused, err := ct.FindInCorpusByHash(ctx, corpusID, hash)
			if err != nil {
				return err
			}

			var (
				newDoc        *model.Document
				version       int
				resultStatus  Status
			)
			if reused != nil {
				newDoc = reused
				version, err = ct.CountAncestors(ctx, reused)
				if err != nil {
					return err
				}
				resultStatus = StatusLinked
			} else {
				global, err := ct.FindGlobalByHash(ctx, hash)
				if err != nil {
					return err
				}
				if global != nil {
					newDoc, err = ct.NewIsolated(ctx, hash, content.Metadata{
						Title:          pickTitle(meta.Title, global.Title, path),
						FileType:       pickTitle(meta.FileType, global.FileType, "application/pdf"),
						PDFFile:        string(handle),
						TxtExtractFile: global.TxtExtractFile,
						PawlsParseFile: global.PawlsParseFile,
						MDSummaryFile:  global.MDSummaryFile,
						Icon:           global.Icon,
						PageCount:      global.PageCount,
						IsPublic:       global.IsPublic,
					}, &global.ID, global.StructuralAnnotationSetID, userID)
					if err != nil {
						return err
					}
					resultStatus = StatusCreatedFromExisting
				} else {
					if meta.Title == "" {
						meta.Title = fmt.Sprintf("Document at %s", path)
					}
					if meta.FileType == "" {
						meta.FileType = "application/pdf"
					}
					newDoc, err = ct.NewIsolated(ctx, hash, meta, nil, nil, userID)
					if err != nil {
						return err
					}
					resultStatus = StatusCreated
				}
				version = 1
			}

			newNode := &model.DocumentPath{
				DocumentID:    newDoc.ID,
				CorpusID:      corpusID,
				FolderID:      folderID,
				Path:          path,
				VersionNumber: version,
				ParentID:      nil,
				IsCurrent:     true,
				IsDeleted:     false,
				Creator:       userID,
			}
			if err := tx.Create(newNode).Error; err != nil {
				return wrapIntegrity(err, "pathtree: import create insert failed")
			}
			doc, status, node = newDoc, resultStatus, newNode
			return nil

		default:
			return findErr
		}
	})
	if err != nil {
		return nil, "", nil, err
	}
	return doc, status, node, nil
}

// Move implements §4.3.2. The new (corpus, new_path) must not already be
// active; P4's partial unique index turns a conflicting concurrent move
// into an IntegrityError, which this call reports as PathOccupied.
func (t *Tree) Move(ctx context.Context, corpusID uint, oldPath, newPath string, userID string, folder FolderChange) (*model.DocumentPath, error) {
	if err := t.checkWrite(ctx, userID, writeObjectID(corpusID, oldPath)); err != nil {
		return nil, err
	}

	var node *model.DocumentPath
	err := t.store.Transaction(ctx, func(tx *gorm.DB) error {
		var current model.DocumentPath
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("corpus_id = ? AND path = ? AND is_current AND NOT is_deleted", corpusID, oldPath).
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.NotFound(oldPath)
			}
			return err
		}

		var conflict model.DocumentPath
		err := tx.Where("corpus_id = ? AND path = ? AND is_current AND NOT is_deleted", corpusID, newPath).
			First(&conflict).Error
		if err == nil {
			return errtypes.PathOccupied(newPath)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Model(&current).Update("is_current", false).Error; err != nil {
			return err
		}

		newNode := &model.DocumentPath{
			DocumentID:    current.DocumentID,
			CorpusID:      corpusID,
			FolderID:      folder.resolve(current.FolderID),
			Path:          newPath,
			VersionNumber: current.VersionNumber,
			ParentID:      &current.ID,
			IsCurrent:     true,
			IsDeleted:     false,
			Creator:       userID,
		}
		if err := tx.Create(newNode).Error; err != nil {
			if isUniqueViolation(err) {
				return errtypes.PathOccupied(newPath)
			}
			return wrapIntegrity(err, "pathtree: move insert failed")
		}
		node = newNode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Delete implements §4.3.3: a soft, reversible delete.
func (t *Tree) Delete(ctx context.Context, corpusID uint, path string, userID string) (*model.DocumentPath, error) {
	if err := t.checkDelete(ctx, userID, writeObjectID(corpusID, path)); err != nil {
		return nil, err
	}

	var node *model.DocumentPath
	err := t.store.Transaction(ctx, func(tx *gorm.DB) error {
		var current model.DocumentPath
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("corpus_id = ? AND path = ? AND is_current AND NOT is_deleted", corpusID, path).
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.NotFound(path)
			}
			return err
		}

		if err := tx.Model(&current).Update("is_current", false).Error; err != nil {
			return err
		}

		newNode := &model.DocumentPath{
			DocumentID:    current.DocumentID,
			CorpusID:      corpusID,
			FolderID:      current.FolderID,
			Path:          current.Path,
			VersionNumber: current.VersionNumber,
			ParentID:      &current.ID,
			IsCurrent:     true,
			IsDeleted:     true,
			Creator:       userID,
		}
		if err := tx.Create(newNode).Error; err != nil {
			return wrapIntegrity(err, "pathtree: delete insert failed")
		}
		node = newNode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Restore implements §4.3.4.
func (t *Tree) Restore(ctx context.Context, corpusID uint, path string, userID string) (*model.DocumentPath, error) {
	if err := t.checkWrite(ctx, userID, writeObjectID(corpusID, path)); err != nil {
		return nil, err
	}

	var node *model.DocumentPath
	err := t.store.Transaction(ctx, func(tx *gorm.DB) error {
		var deleted model.DocumentPath
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("corpus_id = ? AND path = ? AND is_current AND is_deleted", corpusID, path).
			First(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.PreconditionFailed(path)
			}
			return err
		}

		if err := tx.Model(&deleted).Update("is_current", false).Error; err != nil {
			return err
		}

		newNode := &model.DocumentPath{
			DocumentID:    deleted.DocumentID,
			CorpusID:      corpusID,
			FolderID:      deleted.FolderID,
			Path:          deleted.Path,
			VersionNumber: deleted.VersionNumber,
			ParentID:      &deleted.ID,
			IsCurrent:     true,
			IsDeleted:     false,
			Creator:       userID,
		}
		if err := tx.Create(newNode).Error; err != nil {
			return wrapIntegrity(err, "pathtree: restore insert failed")
		}
		node = newNode
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func pickTitle(preferred, fallback, def string) string {
	if preferred != "" {
		return preferred
	}
	if fallback != "" {
		return fallback
	}
	return def
}

func wrapIntegrity(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return errtypes.IntegrityError(errors.Wrap(err, msg).Error())
	}
	return errors.Wrap(err, msg)
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
