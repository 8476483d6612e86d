package store

// invariantDDL holds the raw SQL statements that realize the invariants
// gorm's AutoMigrate cannot express as struct tags: partial unique
// indexes (C3, P4) and CHECK constraints (XOR, structural-implies-flag).
// sqlite and postgres both support partial indexes and table-level CHECK
// constraints with the same syntax; mysql supports neither, which is why
// it is absent from this map (see Store.Migrate's fallback warning).
var invariantDDL = map[string][]string{
	"sqlite": {
		`CREATE UNIQUE INDEX IF NOT EXISTS u_document_version_tree_current ON documents(version_tree_id) WHERE is_current`,
		`CREATE UNIQUE INDEX IF NOT EXISTS u_document_path_corpus_path_active ON document_paths(corpus_id, path) WHERE is_current AND NOT is_deleted`,
		// sqlite has no ALTER TABLE ADD CONSTRAINT; the XOR and
		// structural-implies-flag invariants are enforced with triggers
		// instead of table-level CHECKs.
		`CREATE TRIGGER IF NOT EXISTS trg_annotation_xor_ins BEFORE INSERT ON annotations
			WHEN (NEW.document_id IS NOT NULL) = (NEW.structural_set_id IS NOT NULL)
			BEGIN SELECT RAISE(ABORT, 'annotation: exactly one of document_id/structural_set_id must be set'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_annotation_xor_upd BEFORE UPDATE ON annotations
			WHEN (NEW.document_id IS NOT NULL) = (NEW.structural_set_id IS NOT NULL)
			BEGIN SELECT RAISE(ABORT, 'annotation: exactly one of document_id/structural_set_id must be set'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_annotation_structural_flag_ins BEFORE INSERT ON annotations
			WHEN NEW.structural_set_id IS NOT NULL AND NOT NEW.structural
			BEGIN SELECT RAISE(ABORT, 'annotation: structural_set_id requires structural=true'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_annotation_structural_flag_upd BEFORE UPDATE ON annotations
			WHEN NEW.structural_set_id IS NOT NULL AND NOT NEW.structural
			BEGIN SELECT RAISE(ABORT, 'annotation: structural_set_id requires structural=true'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_relationship_xor_ins BEFORE INSERT ON relationships
			WHEN (NEW.document_id IS NOT NULL) = (NEW.structural_set_id IS NOT NULL)
			BEGIN SELECT RAISE(ABORT, 'relationship: exactly one of document_id/structural_set_id must be set'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_relationship_xor_upd BEFORE UPDATE ON relationships
			WHEN (NEW.document_id IS NOT NULL) = (NEW.structural_set_id IS NOT NULL)
			BEGIN SELECT RAISE(ABORT, 'relationship: exactly one of document_id/structural_set_id must be set'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_relationship_structural_flag_ins BEFORE INSERT ON relationships
			WHEN NEW.structural_set_id IS NOT NULL AND NOT NEW.structural
			BEGIN SELECT RAISE(ABORT, 'relationship: structural_set_id requires structural=true'); END`,
		`CREATE TRIGGER IF NOT EXISTS trg_relationship_structural_flag_upd BEFORE UPDATE ON relationships
			WHEN NEW.structural_set_id IS NOT NULL AND NOT NEW.structural
			BEGIN SELECT RAISE(ABORT, 'relationship: structural_set_id requires structural=true'); END`,
	},
	"postgres": {
		`CREATE UNIQUE INDEX IF NOT EXISTS u_document_version_tree_current ON documents(version_tree_id) WHERE is_current`,
		`CREATE UNIQUE INDEX IF NOT EXISTS u_document_path_corpus_path_active ON document_paths(corpus_id, path) WHERE is_current AND NOT is_deleted`,
		`ALTER TABLE annotations DROP CONSTRAINT IF EXISTS chk_annotation_xor`,
		`ALTER TABLE annotations ADD CONSTRAINT chk_annotation_xor CHECK ((document_id IS NOT NULL) <> (structural_set_id IS NOT NULL))`,
		`ALTER TABLE annotations DROP CONSTRAINT IF EXISTS chk_annotation_structural_flag`,
		`ALTER TABLE annotations ADD CONSTRAINT chk_annotation_structural_flag CHECK (structural_set_id IS NULL OR structural)`,
		`ALTER TABLE relationships DROP CONSTRAINT IF EXISTS chk_relationship_xor`,
		`ALTER TABLE relationships ADD CONSTRAINT chk_relationship_xor CHECK ((document_id IS NOT NULL) <> (structural_set_id IS NOT NULL))`,
		`ALTER TABLE relationships DROP CONSTRAINT IF EXISTS chk_relationship_structural_flag`,
		`ALTER TABLE relationships ADD CONSTRAINT chk_relationship_structural_flag CHECK (structural_set_id IS NULL OR structural)`,
	},
}
