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

// Package dbconf opens the gorm.DB the rest of the core persists to,
// following the engine-switch idiom of pkg/favorite/sql in the teacher
// repository (sqlite for tests and single-node deployments, mysql and
// postgres for production).
package dbconf

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the connection parameters for the relational store. It is
// decoded via pkg/cfg from the Gateway-supplied config map.
type Database struct {
	Engine     string `mapstructure:"engine"`
	DBName     string `mapstructure:"db_name"`
	DBUsername string `mapstructure:"db_username"`
	DBPassword string `mapstructure:"db_password"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
}

// ApplyDefaults fills in a usable sqlite-in-memory configuration when no
// engine is specified, so the zero value is immediately usable in tests.
func (c *Database) ApplyDefaults() {
	if c.Engine == "" {
		c.Engine = "sqlite"
	}
	if c.Engine == "sqlite" && c.DBName == "" {
		c.DBName = "file::memory:?cache=shared"
	}
}

// Open connects to the configured engine and returns the *gorm.DB. Schema
// migration is a separate step (pkg/store.Migrate) so callers can control
// when DDL runs.
func Open(c Database) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	switch c.Engine {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(c.DBName), gcfg)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
		db, err = gorm.Open(mysql.Open(dsn), gcfg)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUsername, c.DBPassword, c.DBName)
		db, err = gorm.Open(postgres.Open(dsn), gcfg)
	default:
		return nil, errors.Errorf("dbconf: unsupported engine %q", c.Engine)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dbconf: failed to connect using engine %s", c.Engine)
	}
	return db, nil
}
