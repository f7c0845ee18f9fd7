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
	"crypto/rand"
	"math"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/oklog/ulid"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures a Manager. MxlogPath, BufferSize and
// RecoveryErrorIgnore correspond directly to spec §6; the rest are
// ambient additions documented in SPEC_FULL.md §6.2.
type Options struct {
	// MxlogPath is the directory holding <file_no>.wal segments.
	MxlogPath string
	// BufferSize is the requested slab size in bytes; clamped into
	// [WALBufferMinSize, WALBufferMaxSize].
	BufferSize int
	// RecoveryErrorIgnore resets the buffer to empty at lsn=0 on a
	// recovery failure instead of failing Init.
	RecoveryErrorIgnore bool
	// FsyncOnFlush fsyncs the current segment's tail after a Flush
	// record's bytes are handed to the OS.
	FsyncOnFlush bool

	// MetaHandler persists the applied checkpoint. Defaults to a
	// FileMetaHandler rooted at MxlogPath/checkpoint if nil.
	MetaHandler MetaHandler
	// Logger receives structured lifecycle and error events. Defaults
	// to a no-op logger.
	Logger log.Logger
	// Registerer receives the module's internal metrics. Nil disables
	// instrumentation.
	Registerer prometheus.Registerer
	// MetricsNamespace prefixes metric names (default "vectordb").
	MetricsNamespace string
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.Logger == nil {
		out.Logger = log.NewNopLogger()
	}
	if out.MetricsNamespace == "" {
		out.MetricsNamespace = "vectordb"
	}
	return &out
}

var ulidEntropyMu sync.Mutex
var ulidEntropy = ulid.Monotonic(rand.Reader, 0)

// NewTableID returns a ULID-based identifier for callers that don't
// already have an external catalog-assigned table_id (spec §4.5's
// create_table accepts any UTF-8 string ≤ 65535 bytes; this is purely a
// convenience constructor, never required).
func NewTableID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy)
	return id.String()
}

// maxDim bounds the caller-supplied dimension so the len(ids)*dim
// arithmetic used by InsertVectors validation can't overflow.
const maxDim = math.MaxUint16
