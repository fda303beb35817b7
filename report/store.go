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

// Package report stores audit and police report payloads
package report

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

var ErrNotFound = errors.New("report not found")

// Store persists report payloads by key. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Close() error
}

// AuditKey is the key of the report an auditor submitted for a request
func AuditKey(id types.RequestID) string {
	return fmt.Sprintf("audit/%020d", uint64(id))
}

// PoliceKey is the key of the report a police node submitted for a request
func PoliceKey(id types.RequestID, node types.Address) string {
	return fmt.Sprintf("police/%020d/%s", uint64(id), node)
}

// MemoryStore keeps reports in a map
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(data)
	return nil
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
