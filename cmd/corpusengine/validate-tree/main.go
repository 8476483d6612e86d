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

// Command validate-tree re-derives invariants C3, P4 and the
// Annotation/Relationship XOR rule over a live database and reports any
// violation it finds. It never mutates, in the spirit of
// validate_v3_migration.py: a read-only second opinion alongside the
// partial unique indexes and CHECK constraints pkg/store installs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/opencontracts/corpuscore/pkg/dbconf"
)

type violation struct {
	Rule   string
	Detail string
}

func main() {
	dbEngine := flag.String("db-engine", "sqlite", "database engine (sqlite, mysql, postgres)")
	dbName := flag.String("db-name", "corpus.db", "database name (or DSN path for sqlite)")
	dbHost := flag.String("db-host", "", "database host (mysql, postgres)")
	dbPort := flag.Int("db-port", 0, "database port (mysql, postgres)")
	dbUser := flag.String("db-username", "", "database username (mysql, postgres)")
	dbPass := flag.String("db-password", "", "database password (mysql, postgres)")
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
		log.Fatalf("validate-tree: failed to open database: %v", err)
	}

	var violations []violation

	// C3: at most one is_current=true Document per version_tree_id.
	type treeCount struct {
		VersionTreeID string
		N             int64
	}
	var c3 []treeCount
	if err := db.Table("documents").
		Select("version_tree_id, COUNT(*) AS n").
		Where("is_current").
		Group("version_tree_id").
		Having("COUNT(*) > 1").
		Scan(&c3).Error; err != nil {
		log.Fatalf("validate-tree: C3 query failed: %v", err)
	}
	for _, r := range c3 {
		violations = append(violations, violation{"C3", fmt.Sprintf("version_tree_id=%s has %d current documents", r.VersionTreeID, r.N)})
	}

	// P4: at most one active DocumentPath per (corpus, path).
	type pathCount struct {
		CorpusID uint
		Path     string
		N        int64
	}
	var p4 []pathCount
	if err := db.Table("document_paths").
		Select("corpus_id, path, COUNT(*) AS n").
		Where("is_current AND NOT is_deleted").
		Group("corpus_id, path").
		Having("COUNT(*) > 1").
		Scan(&p4).Error; err != nil {
		log.Fatalf("validate-tree: P4 query failed: %v", err)
	}
	for _, r := range p4 {
		violations = append(violations, violation{"P4", fmt.Sprintf("corpus_id=%d path=%q has %d active paths", r.CorpusID, r.Path, r.N)})
	}

	// XOR: exactly one of document_id/structural_set_id set, on both
	// annotations and relationships, plus structural_set => structural.
	for _, table := range []string{"annotations", "relationships"} {
		var xorCount int64
		if err := db.Table(table).
			Where("(document_id IS NOT NULL AND structural_set_id IS NOT NULL) OR (document_id IS NULL AND structural_set_id IS NULL)").
			Count(&xorCount).Error; err != nil {
			log.Fatalf("validate-tree: %s XOR query failed: %v", table, err)
		}
		if xorCount > 0 {
			violations = append(violations, violation{"XOR", fmt.Sprintf("%s has %d rows violating the document/structural_set XOR", table, xorCount)})
		}

		var flagCount int64
		if err := db.Table(table).
			Where("structural_set_id IS NOT NULL AND NOT structural").
			Count(&flagCount).Error; err != nil {
			log.Fatalf("validate-tree: %s structural-flag query failed: %v", table, err)
		}
		if flagCount > 0 {
			violations = append(violations, violation{"STRUCTURAL_FLAG", fmt.Sprintf("%s has %d structural_set rows with structural=false", table, flagCount)})
		}
	}

	if len(violations) == 0 {
		fmt.Println("validate-tree: no invariant violations found")
		return
	}

	fmt.Printf("validate-tree: %d invariant violation(s) found\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  [%s] %s\n", v.Rule, v.Detail)
	}
	os.Exit(1)
}
