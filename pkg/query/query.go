package query

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/opencontracts/corpuscore/pkg/authority"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// Plane is the QueryPlane: the only read surface an external caller uses.
// Every method that takes a caller gates on the AuthorityOracle first and
// returns a zero-value (empty slice, nil) result on denial rather than an
// error — reads never surface PermissionDenied (§4.5, IDOR protection).
// IsContentTrulyDeleted takes no caller and is not gated.
type Plane struct {
	db    *gorm.DB
	authz authority.Oracle
}

// New returns a QueryPlane backed by db, gating every read through authz.
func New(db *gorm.DB, authz authority.Oracle) *Plane {
	return &Plane{db: db, authz: authz}
}

func (p *Plane) canRead(ctx context.Context, userID string, corpusID uint) bool {
	ok, err := p.authz.CanRead(ctx, userID, corpusObjectID(corpusID))
	return err == nil && ok
}

func corpusObjectID(corpusID uint) string {
	return "corpus:" + strconv.FormatUint(uint64(corpusID), 10)
}

// CurrentFilesystem implements §4.5.1 current_filesystem: the only
// non-historical view.
func (p *Plane) CurrentFilesystem(ctx context.Context, corpusID uint, userID string) ([]model.DocumentPath, error) {
	if !p.canRead(ctx, userID, corpusID) {
		return nil, nil
	}
	var paths []model.DocumentPath
	err := p.db.WithContext(ctx).
		Where("corpus_id = ? AND is_current AND NOT is_deleted", corpusID).
		Order("path").
		Find(&paths).Error
	return paths, err
}

// FilesystemAt implements §4.5.1 filesystem_at: exact time-travel. For each
// distinct path, select the DocumentPath with created <= at and maximal
// created, then exclude rows that are deleted as of that snapshot.
func (p *Plane) FilesystemAt(ctx context.Context, corpusID uint, at time.Time, userID string) ([]model.DocumentPath, error) {
	if !p.canRead(ctx, userID, corpusID) {
		return nil, nil
	}

	sub := p.db.WithContext(ctx).Model(&model.DocumentPath{}).
		Select("path, MAX(created_at) AS max_created").
		Where("corpus_id = ? AND created_at <= ?", corpusID, at).
		Group("path")

	var paths []model.DocumentPath
	err := p.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.path = document_paths.path AND latest.max_created = document_paths.created_at", sub).
		Where("document_paths.corpus_id = ? AND document_paths.created_at <= ? AND NOT document_paths.is_deleted", corpusID, at).
		Order("document_paths.path").
		Find(&paths).Error
	return paths, err
}

// DeletedPaths implements §4.5.1 deleted_documents: renders "trash".
func (p *Plane) DeletedPaths(ctx context.Context, corpusID uint, userID string) ([]model.DocumentPath, error) {
	if !p.canRead(ctx, userID, corpusID) {
		return nil, nil
	}
	var paths []model.DocumentPath
	err := p.db.WithContext(ctx).
		Where("corpus_id = ? AND is_current AND is_deleted", corpusID).
		Order("updated_at DESC").
		Find(&paths).Error
	return paths, err
}

// ContentHistory implements §4.5.2 content_history: iterate parent upward,
// return oldest-first. Gated on the caller's read access to documentID
// (via its current corpus, if any) before any row is returned — all read
// APIs apply the permission gate first (§4.5).
func (p *Plane) ContentHistory(ctx context.Context, documentID uint, userID string) ([]model.Document, error) {
	if !EffectivePermission(ctx, p.db, p.authz, userID, &documentID, nil).CanRead {
		return nil, nil
	}

	var chain []model.Document
	cur := documentID
	for {
		var doc model.Document
		if err := p.db.WithContext(ctx).First(&doc, cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, doc)
		if doc.ParentID == nil {
			break
		}
		cur = *doc.ParentID
	}
	reverse(chain)
	return chain, nil
}

func reverse(docs []model.Document) {
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
}

// PathHistoryEntry pairs a DocumentPath node with the action label derived
// from its transition out of its parent (§4.5.2).
type PathHistoryEntry struct {
	Node   model.DocumentPath
	Action string
}

const (
	ActionCreated  = "CREATED"
	ActionRestored = "RESTORED"
	ActionDeleted  = "DELETED"
	ActionMoved    = "MOVED"
	ActionUpdated  = "UPDATED"
	ActionUnknown  = "UNKNOWN"
)

// PathHistory implements §4.5.2 path_history: iterate parent upward and
// label each transition. Gated on the caller's read access to the corpus
// that owns pathNodeID before any row is returned (§4.5).
func (p *Plane) PathHistory(ctx context.Context, pathNodeID uint, userID string) ([]PathHistoryEntry, error) {
	var head model.DocumentPath
	if err := p.db.WithContext(ctx).First(&head, pathNodeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !p.canRead(ctx, userID, head.CorpusID) {
		return nil, nil
	}

	var chain []model.DocumentPath
	cur := pathNodeID
	for {
		var node model.DocumentPath
		if err := p.db.WithContext(ctx).First(&node, cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, node)
		if node.ParentID == nil {
			break
		}
		cur = *node.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	entries := make([]PathHistoryEntry, len(chain))
	for i, node := range chain {
		if i == 0 {
			entries[i] = PathHistoryEntry{Node: node, Action: ActionCreated}
			continue
		}
		parent := chain[i-1]
		entries[i] = PathHistoryEntry{Node: node, Action: actionFor(parent, node)}
	}
	return entries, nil
}

func actionFor(parent, current model.DocumentPath) string {
	switch {
	case parent.IsDeleted && !current.IsDeleted:
		return ActionRestored
	case !parent.IsDeleted && current.IsDeleted:
		return ActionDeleted
	case parent.Path != current.Path:
		return ActionMoved
	case parent.DocumentID != current.DocumentID:
		return ActionUpdated
	default:
		return ActionUnknown
	}
}

// IsContentTrulyDeleted answers the predicate named in spec.md's
// Non-goals: "truly deleted" is a query, not an action. A Document is truly
// deleted in corpusID when it has no active DocumentPath there — no row
// with (document, corpus, is_current, not is_deleted). The same Document
// can be truly deleted in one corpus while still active in another
// (Scenario F), so the check is always corpus-scoped.
func (p *Plane) IsContentTrulyDeleted(ctx context.Context, documentID, corpusID uint) (bool, error) {
	var n int64
	err := p.db.WithContext(ctx).Model(&model.DocumentPath{}).
		Where("document_id = ? AND corpus_id = ? AND is_current AND NOT is_deleted", documentID, corpusID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
