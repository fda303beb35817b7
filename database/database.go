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

// Package database persists the market journal and report payloads. The
// journal mirrors market events for querying and auditing; the in-memory
// market state stays authoritative.
package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/blob/badger"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/metadata"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir enables persistence. Both stores are in-memory when empty.
	DataDir string
	// MetadataBackend is sqlite (default), postgres or mysql
	MetadataBackend string
	// MetadataDSN is the connection string of the postgres and mysql backends
	MetadataDSN   string
	BlobCacheSize uint64
}

type Database struct {
	logger   *slog.Logger
	blob     *badger.BlobStoreBadger
	metadata metadata.MetadataStore
	dataDir  string
}

// Blob returns the report blob store
func (d *Database) Blob() *badger.BlobStoreBadger {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance with optional persistence using the provided data directory
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	metadataDb, err := metadata.New(metadata.Config{
		Logger:       logger,
		PromRegistry: config.PromRegistry,
		Backend:      config.MetadataBackend,
		DataDir:      config.DataDir,
		DSN:          config.MetadataDSN,
	})
	if err != nil {
		return nil, err
	}
	blobOpts := []badger.BlobStoreBadgerOptionFunc{
		badger.WithLogger(logger),
		badger.WithPromRegistry(config.PromRegistry),
		badger.WithDataDir(config.DataDir),
	}
	if config.BlobCacheSize > 0 {
		blobOpts = append(blobOpts, badger.WithBlockCacheSize(config.BlobCacheSize))
	}
	blobDb, err := badger.New(blobOpts...)
	if err != nil {
		return nil, errors.Join(err, metadataDb.Close())
	}
	return &Database{
		logger:   logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  config.DataDir,
	}, nil
}
