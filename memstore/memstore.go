// Copyright 2020-2021 Dolthub, Inc.
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

// Package memstore is a process-local txdb.Database backed by a guarded
// map, the reference backend used by tests and the cmd/counter example.
// Every key starts at version 0 holding none (spec.md §6), and CPut
// installs changes atomically under a single mutex, the simplest possible
// faithful implementation of the CAS contract.
package memstore

import (
	"context"
	"sync"

	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

// Store is an in-memory txdb.Database.
type Store struct {
	mu   sync.Mutex
	data map[string]value.Revision
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]value.Revision)}
}

// Get performs a bulk snapshot read under the store's mutex; missing keys
// map to the zero Revision (version 0, value none).
func (s *Store) Get(_ context.Context, keys []string) (map[string]value.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]value.Revision, len(keys))
	for _, k := range keys {
		if rev, ok := s.data[k]; ok {
			out[k] = rev
		} else {
			out[k] = value.ZeroRevision()
		}
	}
	return out, nil
}

// CPut checks every depends[k] against the key's current version under one
// critical section, and installs all of changes only if every check
// passes (spec.md §4.4's compare-and-swap step). The first key found stale
// is reported as the conflict key.
func (s *Store) CPut(_ context.Context, depends map[string]uint64, changes map[string]*value.Literal) (txdb.CommitStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, wantVersion := range depends {
		if s.data[k].Version != wantVersion {
			return txdb.Conflict, k, nil
		}
	}

	for k, v := range changes {
		rev := s.data[k]
		s.data[k] = value.Revision{Version: rev.Version + 1, Value: v}
	}
	return txdb.Committed, "", nil
}

// Close is a no-op; Store owns no external resources.
func (s *Store) Close() error { return nil }
