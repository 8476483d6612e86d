// Package corpus implements the folder-tree half of the schema:
// CorpusFolder CRUD, and the folder assignment of DocumentPath rows. It is grounded on the source system's DocumentFolderService, pared
// down to the folder-tree operations this core owns — document lifecycle
// (import/move/delete/restore) belongs to pkg/pathtree, which is the only
// thing that ever writes a DocumentPath's path, version or deletion state.
package corpus

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/opencontracts/corpuscore/pkg/authority"
	"github.com/opencontracts/corpuscore/pkg/errtypes"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// Service is the folder-tree write/read surface, bound to a *gorm.DB and an
// AuthorityOracle. Unlike content.Tree and structural.Store, which are
// constructed per-transaction by their callers, Service opens its own
// transactions directly — callers never see a *gorm.DB.
type Service struct {
	db    *gorm.DB
	authz authority.Oracle
}

// New returns a corpus/folder Service backed by db, gating every write
// through authz.
func New(db *gorm.DB, authz authority.Oracle) *Service {
	return &Service{db: db, authz: authz}
}

func corpusObjectID(corpusID uint) string {
	return "corpus:" + strconv.FormatUint(uint64(corpusID), 10)
}

func (s *Service) checkWrite(ctx context.Context, userID string, corpusID uint) error {
	ok, err := s.authz.CanWrite(ctx, userID, corpusObjectID(corpusID))
	if err != nil {
		return err
	}
	if !ok {
		return errtypes.PermissionDenied(corpusObjectID(corpusID))
	}
	return nil
}

func (s *Service) checkDelete(ctx context.Context, userID string, corpusID uint) error {
	ok, err := s.authz.CanDelete(ctx, userID, corpusObjectID(corpusID))
	if err != nil {
		return err
	}
	if !ok {
		return errtypes.PermissionDenied(corpusObjectID(corpusID))
	}
	return nil
}

// CreateFolder creates a folder under parentID (nil for root). Sibling
// names must be unique within the parent, matching CorpusFolder's
// u_corpus_folder_sibling index.
func (s *Service) CreateFolder(ctx context.Context, corpusID uint, name string, parentID *uint, userID string) (*model.CorpusFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errtypes.PreconditionFailed("folder name must not be empty")
	}
	if err := s.checkWrite(ctx, userID, corpusID); err != nil {
		return nil, err
	}

	var folder *model.CorpusFolder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentID != nil {
			var parent model.CorpusFolder
			if err := tx.First(&parent, *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errtypes.NotFound("parent folder")
				}
				return err
			}
			if parent.CorpusID != corpusID {
				return errtypes.PreconditionFailed("parent folder must be in the same corpus")
			}
		}

		exists := tx.Where("corpus_id = ? AND parent_id IS NOT DISTINCT FROM ? AND name = ?", corpusID, parentID, name).
			Find(&model.CorpusFolder{}).RowsAffected > 0
		if exists {
			return errtypes.AlreadyExists("folder " + name)
		}

		f := &model.CorpusFolder{CorpusID: corpusID, ParentID: parentID, Name: name, Creator: userID}
		if err := tx.Create(f).Error; err != nil {
			return errtypes.IntegrityError(errors.Wrap(err, "corpus: create_folder insert failed").Error())
		}
		folder = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// RenameFolder changes a folder's name, re-checking sibling uniqueness.
func (s *Service) RenameFolder(ctx context.Context, folderID uint, newName string, userID string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errtypes.PreconditionFailed("folder name must not be empty")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder model.CorpusFolder
		if err := tx.First(&folder, folderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.NotFound("folder")
			}
			return err
		}
		if err := s.checkWrite(ctx, userID, folder.CorpusID); err != nil {
			return err
		}

		if newName != folder.Name {
			exists := tx.Where("corpus_id = ? AND parent_id IS NOT DISTINCT FROM ? AND name = ? AND id != ?",
				folder.CorpusID, folder.ParentID, newName, folder.ID).
				Find(&model.CorpusFolder{}).RowsAffected > 0
			if exists {
				return errtypes.AlreadyExists("folder " + newName)
			}
		}

		return tx.Model(&folder).Update("name", newName).Error
	})
}

// MoveFolder reparents folderID under newParentID (nil for root). It
// refuses to create a cycle: a folder can never move into itself or one of
// its own descendants.
func (s *Service) MoveFolder(ctx context.Context, folderID uint, newParentID *uint, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder model.CorpusFolder
		if err := tx.First(&folder, folderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.NotFound("folder")
			}
			return err
		}
		if err := s.checkWrite(ctx, userID, folder.CorpusID); err != nil {
			return err
		}

		if newParentID != nil {
			if *newParentID == folderID {
				return errtypes.PreconditionFailed("cannot move a folder into itself")
			}
			var newParent model.CorpusFolder
			if err := tx.First(&newParent, *newParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errtypes.NotFound("new parent folder")
				}
				return err
			}
			if newParent.CorpusID != folder.CorpusID {
				return errtypes.PreconditionFailed("cannot move folder to a different corpus")
			}
			isDescendant, err := s.isDescendant(tx, folder.CorpusID, folderID, *newParentID)
			if err != nil {
				return err
			}
			if isDescendant {
				return errtypes.PreconditionFailed("cannot move a folder into one of its descendants")
			}
		}

		return tx.Model(&folder).Update("parent_id", newParentID).Error
	})
}

func (s *Service) isDescendant(tx *gorm.DB, corpusID uint, ancestorID, candidateID uint) (bool, error) {
	// Walk candidateID's parent chain up to the root; if it passes through
	// ancestorID, moving ancestorID under candidateID would create a cycle.
	cur := candidateID
	for {
		var f model.CorpusFolder
		if err := tx.First(&f, cur).Error; err != nil {
			return false, err
		}
		if f.ParentID == nil {
			return false, nil
		}
		if *f.ParentID == ancestorID {
			return true, nil
		}
		cur = *f.ParentID
	}
}

// DeleteFolder removes a folder. Children are reparented to the deleted
// folder's own parent (never cascade-deleted). Documents whose DocumentPath
// pointed at this folder have their folder assignment cleared (set NULL),
// never their path or lifecycle state touched — P6.
func (s *Service) DeleteFolder(ctx context.Context, folderID uint, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder model.CorpusFolder
		if err := tx.First(&folder, folderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errtypes.NotFound("folder")
			}
			return err
		}
		if err := s.checkDelete(ctx, userID, folder.CorpusID); err != nil {
			return err
		}

		if err := tx.Model(&model.CorpusFolder{}).
			Where("parent_id = ?", folder.ID).
			Update("parent_id", folder.ParentID).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.DocumentPath{}).
			Where("folder_id = ?", folder.ID).
			Update("folder_id", nil).Error; err != nil {
			return err
		}

		return tx.Delete(&folder).Error
	})
}

// ListChildren returns the direct children of parentID (nil for root).
func (s *Service) ListChildren(ctx context.Context, corpusID uint, parentID *uint) ([]model.CorpusFolder, error) {
	var folders []model.CorpusFolder
	err := s.db.WithContext(ctx).
		Where("corpus_id = ? AND parent_id IS NOT DISTINCT FROM ?", corpusID, parentID).
		Order("name").
		Find(&folders).Error
	return folders, err
}

// FolderPath returns the "/"-joined path from root to folderID, inclusive.
func (s *Service) FolderPath(ctx context.Context, folderID uint) (string, error) {
	var segments []string
	cur := folderID
	for {
		var f model.CorpusFolder
		if err := s.db.WithContext(ctx).First(&f, cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", errtypes.NotFound("folder")
			}
			return "", err
		}
		segments = append([]string{f.Name}, segments...)
		if f.ParentID == nil {
			break
		}
		cur = *f.ParentID
	}
	return "/" + strings.Join(segments, "/"), nil
}
