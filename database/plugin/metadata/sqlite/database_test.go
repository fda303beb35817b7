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

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/plugin/metadata/sqlite"
)

func TestInMemoryStoresAreIsolated(t *testing.T) {
	first, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer first.Close()
	second, err := sqlite.New("", nil, nil)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.DB().Create(&models.AuditRequest{ID: 1, State: "queued"}).Error)
	var count int64
	require.NoError(t, second.DB().Model(&models.AuditRequest{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, first.DB().Model(&models.AuditRequest{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOnDiskStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := sqlite.New(dir, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, store.DataDir())
	require.NoError(t, store.DB().Create(&models.Settlement{RequestID: 3, Kind: "refund", Amount: 12}).Error)
	require.NoError(t, store.Close())
	// Closing twice is a no-op
	require.NoError(t, store.Close())
	_, err = os.Stat(filepath.Join(dir, "metadata.sqlite"))
	require.NoError(t, err)

	store, err = sqlite.New(dir, nil, nil)
	require.NoError(t, err)
	defer store.Close()
	var got models.Settlement
	require.NoError(t, store.DB().Where("request_id = ?", 3).First(&got).Error)
	assert.Equal(t, "refund", got.Kind)
	assert.EqualValues(t, 12, got.Amount)
}
