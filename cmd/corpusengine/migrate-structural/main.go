// Copyright 2018-2026 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Command migrate-structural walks Document rows that still carry their
// own structural Annotation/Relationship rows and moves them into a shared
// StructuralAnnotationSet keyed by content hash, reimplementing
// migrate_structural_annotations.py's semantics (spec.md §4.4, SPEC_FULL.md
// §0). It is a standalone flag-based main, grounded directly on
// pkg/favorite/sql/migrator/migrator.go's shape in the teacher repository.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/model"
	"github.com/opencontracts/corpuscore/pkg/structural"
)

func main() {
	dbEngine := flag.String("db-engine", "sqlite", "database engine (sqlite, mysql, postgres)")
	dbName := flag.String("db-name", "corpus.db", "database name (or DSN path for sqlite)")
	dbHost := flag.String("db-host", "", "database host (mysql, postgres)")
	dbPort := flag.Int("db-port", 0, "database port (mysql, postgres)")
	dbUser := flag.String("db-username", "", "database username (mysql, postgres)")
	dbPass := flag.String("db-password", "", "database password (mysql, postgres)")
	corpusID := flag.Uint("corpus-id", 0, "restrict migration to documents with an active path in this corpus (0 = all corpora)")
	parserName := flag.String("parser-name", "legacy", "parser_name recorded on newly created StructuralAnnotationSets")
	parserVersion := flag.String("parser-version", "", "parser_version recorded on newly created StructuralAnnotationSets")
	force := flag.Bool("force", false, "use a \"doc-<id>\" fallback key for documents with no content hash")
	dryRun := flag.Bool("dry-run", false, "report what would be migrated without writing")
	batchSize := flag.Int("batch-size", 100, "log progress every N documents")
	flag.Parse()

	db, err := dbconf.Open(dbconf.Database{
		Engine:     *dbEngine,
		DBName:     *dbName,
		DBHost:     *dbHost,
		DBPort:     *dbPort,
		DBUsername: *dbUser,
		DBPassword: *dbPass,
	})
	if err != nil {
		log.Fatalf("migrate-structural: failed to open database: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("migrate-structural: automigrate failed: %v", err)
	}

	var corpusFilter *uint
	if *corpusID != 0 {
		corpusFilter = corpusID
	}

	ctx := context.Background()
	ids, err := structural.EligibleForMigration(ctx, db, corpusFilter)
	if err != nil {
		log.Fatalf("migrate-structural: failed to list eligible documents: %v", err)
	}
	fmt.Printf("migrate-structural: %d document(s) eligible for migration\n", len(ids))
	if *dryRun {
		fmt.Println("migrate-structural: dry-run, no changes written")
		return
	}

	var migrated, skipped, failed int
	for i, id := range ids {
		var doc model.Document
		if err := db.First(&doc, id).Error; err != nil {
			log.Printf("migrate-structural: failed to load document %d: %v", id, err)
			failed++
			continue
		}

		s := structural.New(db)
		result, err := s.MigrateDocument(ctx, &doc, *parserName, *parserVersion, *force)
		if err != nil {
			log.Printf("migrate-structural: document %d failed: %v", id, err)
			failed++
			continue
		}
		if result.AnnotationsMigrated == 0 && result.RelationshipsMigrated == 0 && !result.SetCreated && !result.SetReused {
			skipped++
		} else {
			migrated++
		}

		if (i+1)%*batchSize == 0 {
			fmt.Printf("migrate-structural: processed %d/%d\n", i+1, len(ids))
		}
	}

	fmt.Printf("migrate-structural: done — migrated=%d skipped=%d failed=%d\n", migrated, skipped, failed)
	if failed > 0 {
		log.Fatalf("migrate-structural: %d document(s) failed", failed)
	}
}
