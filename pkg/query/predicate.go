// Package query implements the QueryPlane (C5): the sole read surface.
// Every read that takes a caller applies the permission gate first and
// returns an empty result
// rather than an error on denial, deliberately conflating "doesn't exist"
// with "no access" (IDOR protection, per spec.md's design note on
// replacing dynamic queryset chaining with an explicit predicate AST).
package query

import "gorm.io/gorm"

// Predicate is a composable node in the small query-builder AST that
// replaces the source's dynamic, reflection-driven queryset chaining
// ("from dynamic dispatch / duck-typed queryset chaining to explicit plan
// nodes", per the design notes). Every node knows how to apply itself to a
// *gorm.DB; composition is just nesting nodes, never runtime branching on
// attribute kinds.
type Predicate interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Eq matches column = value.
type Eq struct {
	Column string
	Value  any
}

func (p Eq) Apply(db *gorm.DB) *gorm.DB { return db.Where(p.Column+" = ?", p.Value) }

// In matches column IN (values...).
type In struct {
	Column string
	Values []any
}

func (p In) Apply(db *gorm.DB) *gorm.DB { return db.Where(p.Column+" IN ?", p.Values) }

// IsNull matches column IS NULL.
type IsNull struct{ Column string }

func (p IsNull) Apply(db *gorm.DB) *gorm.DB { return db.Where(p.Column + " IS NULL") }

// NotNull matches column IS NOT NULL.
type NotNull struct{ Column string }

func (p NotNull) Apply(db *gorm.DB) *gorm.DB { return db.Where(p.Column + " IS NOT NULL") }

// Raw wraps a literal SQL fragment with bind args, an escape hatch for
// conditions the other nodes don't cover (e.g. timestamp comparisons).
type Raw struct {
	SQL  string
	Args []any
}

func (p Raw) Apply(db *gorm.DB) *gorm.DB { return db.Where(p.SQL, p.Args...) }

// InSubquery matches column IN (subquery), the predicate form needed when
// the candidate set itself comes from another table (e.g. "documents whose
// is_current is true" or "document ids with an active path in a corpus")
// rather than a literal value list.
type InSubquery struct {
	Column   string
	Subquery *gorm.DB
}

func (p InSubquery) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(p.Column+" IN (?)", p.Subquery)
}

// And requires every child predicate to hold.
type And []Predicate

func (p And) Apply(db *gorm.DB) *gorm.DB {
	for _, child := range p {
		db = child.Apply(db)
	}
	return db
}

// Or requires at least one child predicate to hold. It is realized as a
// single grouped OR clause (gorm's nested-*gorm.DB condition support) so it
// composes correctly when nested inside And.
type Or []Predicate

func (p Or) Apply(db *gorm.DB) *gorm.DB {
	if len(p) == 0 {
		return db
	}
	group := p[0].Apply(db.Session(&gorm.Session{NewDB: true}))
	for _, child := range p[1:] {
		clause := child.Apply(db.Session(&gorm.Session{NewDB: true}))
		group = group.Or(clause)
	}
	return db.Where(group)
}

// Union names the "rows satisfying A ∪ rows satisfying B" shape that shows
// up throughout §4.5.3: a structural row (no document, no corpus of its
// own) always belongs to the result regardless of a document/corpus/
// visibility scope, so every such rule unions a structural-rows predicate
// with a scope-specific one. It is Or under the hood but kept as a distinct
// name because it composes two independently-built predicates, not an
// arbitrary list of conditions (design note 1, "And/Or/Eq/In/IsNull/Union").
type Union [2]Predicate

func (p Union) Apply(db *gorm.DB) *gorm.DB { return Or{p[0], p[1]}.Apply(db) }

// Plan applies a Predicate to db and returns the resulting query.
func Plan(db *gorm.DB, p Predicate) *gorm.DB {
	if p == nil {
		return db
	}
	return p.Apply(db)
}
