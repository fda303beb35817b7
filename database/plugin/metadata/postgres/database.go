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

package postgres

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
)

// ErrMissingDSN is returned by Start when no connection string was given
var ErrMissingDSN = errors.New("postgres journal requires a dsn")

const (
	maxIdleConns    = 4
	maxOpenConns    = 16
	connMaxLifetime = time.Hour
)

// MetadataStorePostgres keeps the market journal in Postgres
type MetadataStorePostgres struct {
	promRegistry prometheus.Registerer
	poolStats    prometheus.Collector
	db           *gorm.DB
	logger       *slog.Logger
	dsn          string
}

// NewWithOptions creates a new store. The connection is opened by Start.
func NewWithOptions(opts ...PostgresOptionFunc) *MetadataStorePostgres {
	d := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d
}

// Target parses the configured DSN without connecting
func (d *MetadataStorePostgres) Target() (*pgconn.Config, error) {
	if d.dsn == "" {
		return nil, ErrMissingDSN
	}
	cfg, err := pgconn.ParseConfig(d.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return cfg, nil
}

// Start connects to the database and applies migrations
func (d *MetadataStorePostgres) Start() error {
	target, err := d.Target()
	if err != nil {
		return err
	}
	db, err := gorm.Open(
		postgres.Open(d.dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return fmt.Errorf("connect to %s/%s: %w", target.Host, target.Database, err)
	}
	d.db = db
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	if d.promRegistry != nil {
		stats := collectors.NewDBStatsCollector(sqlDB, "journal")
		if err := d.promRegistry.Register(stats); err != nil {
			return fmt.Errorf("register journal pool metrics: %w", err)
		}
		d.poolStats = stats
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	if err := db.AutoMigrate(models.MigrateModels...); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	d.logger.Info(
		"connected to postgres journal",
		"component", "database",
		"host", target.Host,
		"port", target.Port,
		"database", target.Database,
	)
	return nil
}

// DB returns the underlying GORM database handle, nil before Start
func (d *MetadataStorePostgres) DB() *gorm.DB {
	return d.db
}

// Close closes the connection pool
func (d *MetadataStorePostgres) Close() error {
	if d.poolStats != nil {
		d.promRegistry.Unregister(d.poolStats)
		d.poolStats = nil
	}
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
