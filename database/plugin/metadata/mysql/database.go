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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
)

// ErrMissingDSN is returned by Start when no connection string was given
var ErrMissingDSN = errors.New("mysql journal requires a dsn")

const (
	maxIdleConns    = 4
	maxOpenConns    = 16
	connMaxLifetime = time.Hour
)

// MetadataStoreMysql stores the market journal in MySQL
type MetadataStoreMysql struct {
	promRegistry prometheus.Registerer
	poolStats    prometheus.Collector
	db           *gorm.DB
	logger       *slog.Logger
	dsn          string
}

// NewWithOptions creates a new store. The connection is opened by Start.
func NewWithOptions(opts ...MysqlOptionFunc) *MetadataStoreMysql {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db
}

// Target parses the configured DSN. Journal timestamps are always read back
// as UTC time values.
func (d *MetadataStoreMysql) Target() (*mysql.Config, error) {
	if d.dsn == "" {
		return nil, ErrMissingDSN
	}
	cfg, err := mysql.ParseDSN(d.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// Start connects to the database and applies migrations
func (d *MetadataStoreMysql) Start() error {
	target, err := d.Target()
	if err != nil {
		return err
	}
	metadataDb, err := gorm.Open(
		gormmysql.Open(target.FormatDSN()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return fmt.Errorf("connect to %s/%s: %w", target.Addr, target.DBName, err)
	}
	d.db = metadataDb
	sqlDB, err := d.db.DB()
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
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	for _, model := range models.MigrateModels {
		d.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := d.db.AutoMigrate(model); err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql journal",
		"component", "database",
		"addr", target.Addr,
		"database", target.DBName,
	)
	return nil
}

// DB returns the underlying GORM database handle, nil before Start
func (d *MetadataStoreMysql) DB() *gorm.DB {
	return d.db
}

// Close closes the connection pool
func (d *MetadataStoreMysql) Close() error {
	if d.poolStats != nil {
		d.promRegistry.Unregister(d.poolStats)
		d.poolStats = nil
	}
	if d.db == nil {
		return nil
	}
	db, err := d.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
