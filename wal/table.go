// Copyright 2026 The vxdb Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wal

import (
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// tableState is the Manager's per-table bookkeeping (spec §4.5:
// "create_table(table_id): per-table in-memory bookkeeping; emits no
// record"). It carries no durable state of its own — table existence
// and contents live in the external catalog and storage engine — only
// insert and delete counters. The Manager does not reject operations on
// a table that was never registered; they are appended but not counted.
type tableState struct {
	id            string
	insertedCount uint64
	deletedCount  uint64
}

// tableRegistry tracks tableState by table_id. The map is sharded
// across buckets keyed by xxhash.Sum64String(table_id) so that
// concurrent create_table/insert/delete calls from different goroutines
// (funneled through the Manager before they ever reach the
// single-writer Buffer) don't all serialize on one mutex. This is a
// convenience over correctness: LSN order is always established by the
// Buffer's own writer lock, never by this registry.
type tableRegistry struct {
	shards []tableShard
	mask   uint64
}

type tableShard struct {
	mu     sync.Mutex
	tables map[string]*tableState
}

func newTableRegistry() *tableRegistry {
	n := nextPowerOfTwo(runtime.GOMAXPROCS(0))
	r := &tableRegistry{
		shards: make([]tableShard, n),
		mask:   uint64(n - 1),
	}
	for i := range r.shards {
		r.shards[i].tables = make(map[string]*tableState)
	}
	return r
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (r *tableRegistry) shardFor(tableID string) *tableShard {
	h := xxhash.Sum64String(tableID)
	return &r.shards[h&r.mask]
}

// create registers tableID if absent and returns its state.
func (r *tableRegistry) create(tableID string) *tableState {
	s := r.shardFor(tableID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[tableID]; ok {
		return t
	}
	t := &tableState{id: tableID}
	s.tables[tableID] = t
	return t
}

// get returns the table's state, or nil if create_table was never
// called for it.
func (r *tableRegistry) get(tableID string) *tableState {
	s := r.shardFor(tableID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[tableID]
}

func (r *tableRegistry) recordInsert(tableID string, n int) {
	s := r.shardFor(tableID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[tableID]; ok {
		t.insertedCount += uint64(n)
	}
}

func (r *tableRegistry) recordDelete(tableID string, n int) {
	s := r.shardFor(tableID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[tableID]; ok {
		t.deletedCount += uint64(n)
	}
}
