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

import "encoding/binary"

// RecordType identifies the mutating operation a Record represents. The
// numeric values are part of the on-disk format (spec §6) and must never
// change.
type RecordType uint8

const (
	RecordNone         RecordType = 0
	RecordInsertVector RecordType = 1
	RecordInsertBinary RecordType = 2
	RecordDelete       RecordType = 3
	RecordFlush        RecordType = 4
)

func (t RecordType) valid() bool {
	return t <= RecordFlush
}

func (t RecordType) String() string {
	switch t {
	case RecordNone:
		return "None"
	case RecordInsertVector:
		return "InsertVector"
	case RecordInsertBinary:
		return "InsertBinary"
	case RecordDelete:
		return "Delete"
	case RecordFlush:
		return "Flush"
	default:
		return "Invalid"
	}
}

// recordHeaderSize is the fixed 25-byte header described in spec §4.3.
const recordHeaderSize = 25

// Record is a single WAL entry: an insert, a delete, or a flush marker.
//
// Fields mirror spec §3 exactly. Ids holds `Length` 64-bit signed
// identifiers; Data holds the data_size bytes of opaque payload (dimension *
// Length float32s for vector inserts, raw bytes for binary inserts,
// empty for deletes and flushes).
type Record struct {
	LSN          LSN
	Type         RecordType
	TableID      string
	PartitionTag string
	Length       uint32
	Ids          []int64
	Data         []byte

	// SeqInBatch is never serialized; it exists only so a single Insert
	// call can be expanded into more than one Record in the future
	// without a wire-format change. Always 0 today.
	SeqInBatch int
}

// EncodedSize returns the number of bytes Encode will write for r,
// including the 4-byte record_size header field itself. It follows
// spec §4.3's formula exactly: the id array is sized by Length, not by
// len(Ids), so callers must keep the two in agreement.
func (r *Record) EncodedSize() int {
	return recordHeaderSize + len(r.TableID) + len(r.PartitionTag) + int(r.Length)*8 + len(r.Data)
}

// Encode serializes r into buf[0:r.EncodedSize()]. buf must be at least
// that long. The LSN written is r.LSN, which the caller (the Buffer) is
// expected to have already assigned.
func (r *Record) Encode(buf []byte) int {
	size := r.EncodedSize()
	_ = buf[size-1] // bounds check hint, like encoding/binary callers do

	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.LSN))
	buf[12] = byte(r.Type)
	binary.LittleEndian.PutUint16(buf[13:15], uint16(len(r.TableID)))
	binary.LittleEndian.PutUint16(buf[15:17], uint16(len(r.PartitionTag)))
	binary.LittleEndian.PutUint32(buf[17:21], r.Length)
	binary.LittleEndian.PutUint32(buf[21:25], uint32(len(r.Data)))

	off := recordHeaderSize
	off += copy(buf[off:], r.TableID)
	off += copy(buf[off:], r.PartitionTag)
	for i := 0; i < int(r.Length); i++ {
		var id int64
		if i < len(r.Ids) {
			id = r.Ids[i]
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(id))
		off += 8
	}
	copy(buf[off:], r.Data)
	return size
}

// DecodeRecord decodes a single Record starting at buf[0]. It fails with
// a KindCorrupt error if any length field would run past the end of buf,
// if the type byte is unrecognized, or if the recomputed size disagrees
// with the record_size header field.
func DecodeRecord(buf []byte) (*Record, int, error) {
	const op = "record.decode"

	if len(buf) < recordHeaderSize {
		return nil, 0, errf(op, KindCorrupt, "buffer too short for header: %d bytes", len(buf))
	}

	recordSize := binary.LittleEndian.Uint32(buf[0:4])
	lsn := LSN(binary.LittleEndian.Uint64(buf[4:12]))
	typ := RecordType(buf[12])
	tableIDLen := int(binary.LittleEndian.Uint16(buf[13:15]))
	partitionTagLen := int(binary.LittleEndian.Uint16(buf[15:17]))
	length := binary.LittleEndian.Uint32(buf[17:21])
	dataSize := binary.LittleEndian.Uint32(buf[21:25])

	if !typ.valid() {
		return nil, 0, errf(op, KindCorrupt, "unknown record type %d", typ)
	}

	want := recordHeaderSize + tableIDLen + partitionTagLen + int(length)*8 + int(dataSize)
	if want > len(buf) {
		return nil, 0, errf(op, KindCorrupt, "record of size %d exceeds remaining buffer %d", want, len(buf))
	}
	if uint32(want) != recordSize {
		return nil, 0, errf(op, KindCorrupt, "record_size field %d does not match recomputed size %d", recordSize, want)
	}

	off := recordHeaderSize
	tableID := string(buf[off : off+tableIDLen])
	off += tableIDLen
	partitionTag := string(buf[off : off+partitionTagLen])
	off += partitionTagLen

	var ids []int64
	if length > 0 {
		ids = make([]int64, length)
	}
	for i := range ids {
		ids[i] = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}

	var data []byte
	if dataSize > 0 {
		data = make([]byte, dataSize)
		copy(data, buf[off:off+int(dataSize)])
	}
	off += int(dataSize)

	r := &Record{
		LSN:          lsn,
		Type:         typ,
		TableID:      tableID,
		PartitionTag: partitionTag,
		Length:       length,
		Ids:          ids,
		Data:         data,
	}
	return r, off, nil
}
