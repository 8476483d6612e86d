package query

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/opencontracts/corpuscore/pkg/authority"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// AnnotationFilter carries the version-aware annotation/relationship query
// parameters from §4.5.3: scope by document or corpus, restrict to current
// versions, and apply caller visibility.
type AnnotationFilter struct {
	DocumentID     *uint
	CorpusID       *uint
	UserID         string
	Anonymous      bool
	// IncludeAllVersions opts out of the default current-version-only
	// restriction (§4.5.3 rule 1 defaults to current-only); structural
	// rows are always exempt from this filter regardless of its value.
	IncludeAllVersions bool
	RestrictToCorpusActivePaths bool
}

// PermissionFlags are the access flags QueryPlane stamps on every returned
// row, computed once per (document, corpus, user) rather than per-row.
// Structural rows never receive write flags even when the caller has write
// access to the document they're shared from (§4.5.3 rule 6).
type PermissionFlags struct {
	CanRead   bool
	CanUpdate bool
	CanDelete bool
}

// AnnotationRow pairs an Annotation with its computed permission flags.
type AnnotationRow struct {
	model.Annotation
	Permissions PermissionFlags
}

// structuralOr unions a structural-rows escape hatch with scope onto the
// given table: a structural row (structural_set_id NOT NULL) always
// satisfies a document/corpus/visibility scope regardless of scope, per the
// recurring "structural rows are exempt" shape in §4.5.3 rules 1, 2, 4, 5.
func structuralOr(table string, scope Predicate) Predicate {
	return Union{NotNull{table + ".structural_set_id"}, scope}
}

// annotationPredicates realizes §4.5.3 rules 1-5 as composed Predicate
// nodes, one per rule, left to And to conjoin — the predicate-AST
// replacement for the source's dynamic queryset chaining (design note 1).
func annotationPredicates(db *gorm.DB, table string, f AnnotationFilter) And {
	var preds And

	// Rule 1: current-version-only, with a structural exemption.
	if !f.IncludeAllVersions {
		currentDocs := db.Session(&gorm.Session{NewDB: true}).Model(&model.Document{}).
			Select("id").Where("is_current")
		preds = append(preds, structuralOr(table, InSubquery{Column: table + ".document_id", Subquery: currentDocs}))
	}

	// Rule 2: restrict to documents with an active path in corpus_id.
	if f.RestrictToCorpusActivePaths && f.CorpusID != nil {
		activeDocs := db.Session(&gorm.Session{NewDB: true}).Model(&model.DocumentPath{}).
			Select("document_id").
			Where("corpus_id = ? AND is_current AND NOT is_deleted", *f.CorpusID)
		preds = append(preds, structuralOr(table, InSubquery{Column: table + ".document_id", Subquery: activeDocs}))
	}

	// Rule 3/4: scope by document_id (with its structural set) or by corpus_id.
	switch {
	case f.DocumentID != nil:
		preds = append(preds, Union{
			Eq{Column: table + ".document_id", Value: *f.DocumentID},
			And{
				Raw{SQL: table + ".structural_set_id = (SELECT structural_annotation_set_id FROM documents WHERE id = ?)", Args: []any{*f.DocumentID}},
				Eq{Column: table + ".structural", Value: true},
			},
		})
	case f.CorpusID != nil:
		preds = append(preds, structuralOr(table, Eq{Column: table + ".corpus_id", Value: *f.CorpusID}))
	}

	// Rule 5: visibility.
	if f.Anonymous {
		preds = append(preds, structuralOr(table, Eq{Column: table + ".is_public", Value: true}))
	} else if f.UserID != "" {
		preds = append(preds, structuralOr(table, Eq{Column: table + ".creator", Value: f.UserID}))
	}

	return preds
}

// buildAnnotationQuery applies annotationPredicates to the annotations table.
func buildAnnotationQuery(db *gorm.DB, f AnnotationFilter) *gorm.DB {
	q := db.Model(&model.Annotation{})
	return Plan(q, annotationPredicates(db, "annotations", f))
}

// Annotations implements §4.5.3 for the Annotation table.
func (p *Plane) Annotations(ctx context.Context, f AnnotationFilter) ([]AnnotationRow, error) {
	flags := p.permissionFlags(ctx, f)
	if (f.CorpusID != nil || f.DocumentID != nil) && !flags.CanRead {
		return nil, nil
	}

	var rows []model.Annotation
	if err := buildAnnotationQuery(p.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]AnnotationRow, len(rows))
	for i, r := range rows {
		perm := flags
		if r.StructuralSetID != nil {
			perm = PermissionFlags{CanRead: flags.CanRead}
		}
		out[i] = AnnotationRow{Annotation: r, Permissions: perm}
	}
	return out, nil
}

// RelationshipRow pairs a Relationship with its computed permission flags.
type RelationshipRow struct {
	model.Relationship
	Permissions PermissionFlags
}

// Relationships implements §4.5.3's rules adapted to the Relationship table.
func (p *Plane) Relationships(ctx context.Context, f AnnotationFilter) ([]RelationshipRow, error) {
	flags := p.permissionFlags(ctx, f)
	if (f.CorpusID != nil || f.DocumentID != nil) && !flags.CanRead {
		return nil, nil
	}

	db := p.db.WithContext(ctx)
	q := Plan(db.Model(&model.Relationship{}), annotationPredicates(db, "relationships", f))

	var rows []model.Relationship
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]RelationshipRow, len(rows))
	for i, r := range rows {
		perm := flags
		if r.StructuralSetID != nil {
			perm = PermissionFlags{CanRead: flags.CanRead}
		}
		out[i] = RelationshipRow{Relationship: r, Permissions: perm}
	}
	return out, nil
}

// permissionFlags computes the (document, corpus, user) flags once, per
// §4.5.3 rule 6, by delegating to EffectivePermission.
func (p *Plane) permissionFlags(ctx context.Context, f AnnotationFilter) PermissionFlags {
	return EffectivePermission(ctx, p.db, p.authz, f.UserID, f.DocumentID, f.CorpusID)
}

func documentObjectID(documentID uint) string {
	return "document:" + strconv.FormatUint(uint64(documentID), 10)
}

// EffectivePermission carries forward the original's "effective permission =
// MIN(document_permission, corpus_permission)" least-privilege pattern
// (query_optimizer.py, see SPEC_FULL.md's supplemented features): when a row
// is reachable through both a document and the corpus it is currently filed
// under, the caller's access is the most restrictive of the two object-level
// decisions, not just whichever one happened to be checked. If corpusID is
// nil but documentID isn't, the document's current active corpus (if any) is
// looked up and folded in the same way.
func EffectivePermission(ctx context.Context, db *gorm.DB, authz authority.Oracle, userID string, documentID, corpusID *uint) PermissionFlags {
	if documentID == nil && corpusID == nil {
		return PermissionFlags{}
	}

	resolvedCorpus := corpusID
	if resolvedCorpus == nil && documentID != nil {
		var path model.DocumentPath
		err := db.WithContext(ctx).
			Where("document_id = ? AND is_current AND NOT is_deleted", *documentID).
			Order("id").
			First(&path).Error
		if err == nil {
			resolvedCorpus = &path.CorpusID
		}
	}

	var have bool
	var flags PermissionFlags
	fold := func(objectID string) {
		canRead, _ := authz.CanRead(ctx, userID, objectID)
		canWrite, _ := authz.CanWrite(ctx, userID, objectID)
		canDelete, _ := authz.CanDelete(ctx, userID, objectID)
		if !have {
			flags = PermissionFlags{CanRead: canRead, CanUpdate: canWrite, CanDelete: canDelete}
			have = true
			return
		}
		flags.CanRead = flags.CanRead && canRead
		flags.CanUpdate = flags.CanUpdate && canWrite
		flags.CanDelete = flags.CanDelete && canDelete
	}

	if documentID != nil {
		fold(documentObjectID(*documentID))
	}
	if resolvedCorpus != nil {
		fold(corpusObjectID(*resolvedCorpus))
	}
	return flags
}
