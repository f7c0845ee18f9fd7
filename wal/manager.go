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
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Manager is the public façade described in spec §4.5: it accepts
// Insert/Delete/Flush/CreateTable from the vector storage engine,
// drives the Buffer, surfaces the apply iterator, and coordinates with
// the MetaHandler on startup and checkpoint.
type Manager struct {
	opts   *Options
	buffer *Buffer
	meta   MetaHandler
	tables *tableRegistry
	logger log.Logger
}

// NewManager constructs a Manager from opts. It does not touch disk or
// the meta handler yet — call Init for that.
func NewManager(opts Options) (*Manager, error) {
	const op = "manager.new"

	o := opts.withDefaults()
	if o.MxlogPath == "" {
		return nil, errf(op, KindInvalidArgument, "mxlog_path is required")
	}
	if err := os.MkdirAll(o.MxlogPath, 0o755); err != nil {
		return nil, wrapErr(op, KindIO, err, o.MxlogPath)
	}

	meta := o.MetaHandler
	if meta == nil {
		meta = NewFileMetaHandler(filepath.Join(o.MxlogPath, "checkpoint"), o.Logger)
	}

	buf := NewBuffer(o.MxlogPath, o.BufferSize, o.Logger)
	if o.Registerer != nil {
		buf.SetMetrics(NewMetrics(o.Registerer, o.MetricsNamespace))
	}

	return &Manager{
		opts:   o,
		buffer: buf,
		meta:   meta,
		tables: newTableRegistry(),
		logger: o.Logger,
	}, nil
}

// Init obtains the applied checkpoint from the MetaHandler, inspects
// the segment directory to determine the end LSN, and drives the
// Buffer's recovery. tableIDs pre-registers per-table bookkeeping for
// tables the catalog already knows about, mirroring create_table being
// called once per table at startup.
func (m *Manager) Init(tableIDs []string) error {
	const op = "manager.init"

	for _, id := range tableIDs {
		m.tables.create(id)
	}

	applied, ok, err := m.meta.Get()
	if err != nil {
		return err
	}
	if !ok {
		applied = 0
	}

	end, err := m.scanEndLSN(applied)
	if err != nil {
		return err
	}

	if err := m.buffer.Init(applied, end); err != nil {
		if m.opts.RecoveryErrorIgnore {
			level.Warn(m.logger).Log("msg", "wal recovery failed, resetting to empty", "err", err)
			return m.buffer.Reset(0)
		}
		return err
	}
	return nil
}

// scanEndLSN determines the highest LSN implied by the segment
// directory's contents: the highest-numbered segment file's size,
// packed with its ordinal. If no segments exist yet, it falls back to
// the applied checkpoint itself (no progress beyond it has been made).
func (m *Manager) scanEndLSN(applied LSN) (LSN, error) {
	entries, err := os.ReadDir(m.opts.MxlogPath)
	if err != nil {
		return 0, wrapErr("manager.scan", KindIO, err, m.opts.MxlogPath)
	}

	var maxFileNo uint32
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".wal") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".wal"), 10, 32)
		if err != nil {
			continue
		}
		fileNo := uint32(n)
		if !found || fileNo > maxFileNo {
			maxFileNo = fileNo
			found = true
		}
	}
	if !found {
		return applied, nil
	}

	_, size, err := segmentExists(m.opts.MxlogPath, maxFileNo)
	if err != nil {
		return 0, err
	}
	return MakeLSN(maxFileNo, uint32(size)), nil
}

// CreateTable records per-table in-memory bookkeeping for table_id. It
// emits no WAL record (spec §4.5).
func (m *Manager) CreateTable(tableID string) {
	m.tables.create(tableID)
}

// InsertVectors appends an InsertVector record. len(ids) must equal
// len(vectors)/dim.
func (m *Manager) InsertVectors(tableID, partitionTag string, ids []int64, vectors []float32, dim int) (LSN, error) {
	const op = "manager.insert_vectors"

	if dim <= 0 || dim > maxDim {
		return 0, errf(op, KindInvalidArgument, "invalid dimension %d", dim)
	}
	if len(ids) == 0 {
		return 0, errf(op, KindInvalidArgument, "ids must be non-empty")
	}
	if len(vectors) != len(ids)*dim {
		return 0, errf(op, KindInvalidArgument, "ids length %d * dim %d does not match vectors length %d", len(ids), dim, len(vectors))
	}

	data := make([]byte, len(vectors)*4)
	for i, f := range vectors {
		putFloat32(data[i*4:], f)
	}

	rec := &Record{
		Type:         RecordInsertVector,
		TableID:      tableID,
		PartitionTag: partitionTag,
		Length:       uint32(len(ids)),
		Ids:          ids,
		Data:         data,
	}
	lsn, err := m.buffer.Append(rec)
	if err != nil {
		return 0, err
	}
	m.tables.recordInsert(tableID, len(ids))
	return lsn, nil
}

// InsertBinary appends an InsertBinary record carrying raw payload
// bytes rather than float vectors.
func (m *Manager) InsertBinary(tableID, partitionTag string, ids []int64, data []byte) (LSN, error) {
	const op = "manager.insert_binary"

	if len(ids) == 0 {
		return 0, errf(op, KindInvalidArgument, "ids must be non-empty")
	}

	rec := &Record{
		Type:         RecordInsertBinary,
		TableID:      tableID,
		PartitionTag: partitionTag,
		Length:       uint32(len(ids)),
		Ids:          ids,
		Data:         data,
	}
	lsn, err := m.buffer.Append(rec)
	if err != nil {
		return 0, err
	}
	m.tables.recordInsert(tableID, len(ids))
	return lsn, nil
}

// DeleteByID appends a Delete record for ids, carrying no payload.
func (m *Manager) DeleteByID(tableID string, ids []int64) (LSN, error) {
	const op = "manager.delete_by_id"

	if len(ids) == 0 {
		return 0, errf(op, KindInvalidArgument, "ids must be non-empty")
	}

	rec := &Record{
		Type:    RecordDelete,
		TableID: tableID,
		Length:  uint32(len(ids)),
		Ids:     ids,
	}
	lsn, err := m.buffer.Append(rec)
	if err != nil {
		return 0, err
	}
	m.tables.recordDelete(tableID, len(ids))
	return lsn, nil
}

// Flush appends a Flush record. tableID may be empty to mean "all
// tables". Consumption of this record by the apply loop is expected to
// trigger a storage flush downstream. If FsyncOnFlush is set, the
// current segment is fsynced once the record's bytes are appended.
func (m *Manager) Flush(tableID string) (LSN, error) {
	rec := &Record{
		Type:    RecordFlush,
		TableID: tableID,
	}
	lsn, err := m.buffer.Append(rec)
	if err != nil {
		return 0, err
	}
	if m.opts.FsyncOnFlush {
		if err := m.buffer.Sync(); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

// Next consumes one record from the buffer for the apply loop. It
// returns (nil, nil) when there is nothing new to apply. The caller is
// expected to call ApplyDone(lsn) once the record has been applied.
func (m *Manager) Next() (*Record, error) {
	return m.buffer.Next()
}

// ApplyDone persists lsn as the new checkpoint and asks the buffer to
// reclaim segments fully below it.
func (m *Manager) ApplyDone(lsn LSN) error {
	if err := m.meta.Set(lsn); err != nil {
		return err
	}
	return m.buffer.RemoveOldFiles(lsn)
}

// Close releases the manager's open resources.
func (m *Manager) Close() error {
	return m.buffer.Close()
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

// listSegments returns the file_no of every "<file_no>.wal" segment in
// dir, in ascending order. Export uses it to enumerate segments.
func listSegments(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapErr("manager.listSegments", KindIO, err, dir)
	}
	var nums []uint32
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wal") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".wal"), 10, 32)
		if err != nil {
			continue
		}
		nums = append(nums, uint32(n))
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}
