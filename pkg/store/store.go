// Copyright 2018-2024 CERN
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

// Package store wires the data model, schema migration and a *gorm.DB
// handle into a single Store that every component (content, pathtree,
// structural, query) is constructed from.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/opencontracts/corpuscore/pkg/appctx"
	"github.com/opencontracts/corpuscore/pkg/dbconf"
	"github.com/opencontracts/corpuscore/pkg/model"
)

// Store owns the *gorm.DB shared by every component.
type Store struct {
	DB *gorm.DB
}

// Open connects to the configured database and returns an un-migrated
// Store. Call Migrate before using it.
func Open(c dbconf.Database) (*Store, error) {
	db, err := dbconf.Open(c)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Migrate runs gorm's AutoMigrate for every model and then applies the
// partial unique indexes and CHECK constraints AutoMigrate cannot express:
// C3 (one current Document per version tree), P4 (one active path per
// corpus+path), the Annotation/Relationship XOR invariant, and the
// "structural_set implies structural" invariant.
func (s *Store) Migrate(ctx context.Context) error {
	log := appctx.GetLogger(ctx)

	if err := model.AutoMigrate(s.DB); err != nil {
		return errors.Wrap(err, "store: automigrate failed")
	}

	dialect := s.DB.Dialector.Name()
	stmts, ok := invariantDDL[dialect]
	if !ok {
		log.Warn().Str("dialect", dialect).Msg("store: no partial-index/check DDL known for this dialect; C3/P4/XOR invariants are enforced only by application code")
		return nil
	}

	for _, stmt := range stmts {
		if err := s.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrapf(err, "store: migration statement failed: %s", stmt)
		}
	}
	return nil
}

// Transaction runs fn inside a single gorm transaction, matching the
// all-or-nothing write semantics every PathTree/StructuralSetStore
// operation requires.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}
