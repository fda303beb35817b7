// Copyright 2025 Quantstamp, Inc.
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

// Package metadata opens the relational journal backends
package metadata

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/metadata/mysql"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/metadata/postgres"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/metadata/sqlite"
)

const (
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMysql    = "mysql"
)

var ErrUnknownBackend = errors.New("unknown metadata backend")

type MetadataStore interface {
	Close() error
	DB() *gorm.DB
}

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// Backend is one of sqlite (default), postgres or mysql
	Backend string
	// DataDir is used by sqlite only
	DataDir string
	// DSN is the connection string of the postgres and mysql backends
	DSN string
}

// New opens and migrates the configured metadata backend
func New(cfg Config) (MetadataStore, error) {
	switch cfg.Backend {
	case "", BackendSqlite:
		return sqlite.New(cfg.DataDir, cfg.Logger, cfg.PromRegistry)
	case BackendPostgres:
		store := postgres.NewWithOptions(
			postgres.WithDSN(cfg.DSN),
			postgres.WithLogger(cfg.Logger),
			postgres.WithPromRegistry(cfg.PromRegistry),
		)
		if err := store.Start(); err != nil {
			return nil, fmt.Errorf("start postgres metadata store: %w", err)
		}
		return store, nil
	case BackendMysql:
		store := mysql.NewWithOptions(
			mysql.WithDSN(cfg.DSN),
			mysql.WithLogger(cfg.Logger),
			mysql.WithPromRegistry(cfg.PromRegistry),
		)
		if err := store.Start(); err != nil {
			return nil, fmt.Errorf("start mysql metadata store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
