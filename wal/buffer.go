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
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	// WALBufferMinSize is the smallest slab size Buffer will honor,
	// resolving spec §9 Open Question 2.
	WALBufferMinSize = 64 * 1024 * 1024
	// WALBufferMaxSize is the largest slab size Buffer will honor.
	WALBufferMaxSize = 4 * 1024 * 1024 * 1024
)

// clampBufferSize bounds a requested slab size into
// [WALBufferMinSize, WALBufferMaxSize].
func clampBufferSize(n int) uint32 {
	if n < WALBufferMinSize {
		return WALBufferMinSize
	}
	if n > WALBufferMaxSize {
		return WALBufferMaxSize
	}
	return uint32(n)
}

// cursor tracks a position within the double-buffered log, per spec §3.
type cursor struct {
	bufIdx    int
	fileNo    uint32
	bufOffset uint32
	maxOffset uint32
	lsn       LSN
}

// Buffer is the double-buffered in-memory log combined with the
// on-disk segmented log (spec §4.4). It owns the two slabs, both
// cursors, and the mutex/condition-variable pair coordinating the
// single writer and single reader.
type Buffer struct {
	mu        sync.Mutex
	writerCV  *sync.Cond
	readerCV  *sync.Cond
	dir       string
	slabSize  uint32
	slabs     [2][]byte
	writer    cursor
	reader    cursor
	fileNoFrom uint32
	writerFile *fileHandler
	logger    log.Logger
	metrics   *Metrics
}

// NewBuffer constructs a Buffer rooted at dir. No slabs are allocated
// until Init or Reset is called. bufferSize is clamped into
// [WALBufferMinSize, WALBufferMaxSize].
func NewBuffer(dir string, bufferSize int, logger log.Logger) *Buffer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	b := &Buffer{
		dir:      dir,
		slabSize: clampBufferSize(bufferSize),
		logger:   logger,
	}
	b.writerCV = sync.NewCond(&b.mu)
	b.readerCV = sync.NewCond(&b.mu)
	return b
}

// SetMetrics attaches an (optional) Metrics sink. Passing nil disables
// instrumentation.
func (b *Buffer) SetMetrics(m *Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

func (b *Buffer) allocSlabs() {
	b.slabs[0] = make([]byte, b.slabSize)
	b.slabs[1] = make([]byte, b.slabSize)
}

// Init establishes cursors and slabs from on-disk state, per spec
// §4.4.1. startLSN and endLSN are normally the applied checkpoint and
// the highest byte offset of the highest-numbered existing segment,
// as determined by the Manager.
func (b *Buffer) Init(startLSN, endLSN LSN) error {
	const op = "buffer.init"

	b.mu.Lock()
	defer b.mu.Unlock()

	if startLSN == endLSN {
		var fileNo uint32 = 1
		if startLSN > 0 {
			fileNo = startLSN.FileNo() + 1
		}
		b.allocSlabs()
		b.writer = cursor{bufIdx: 0, fileNo: fileNo, bufOffset: 0, maxOffset: 0, lsn: startLSN}
		b.reader = b.writer
		b.fileNoFrom = fileNo

		wf := newFileHandler(b.dir)
		if err := wf.open(fileNo, 'w'); err != nil {
			return err
		}
		b.writerFile = wf
		return nil
	}

	if startLSN > endLSN {
		return errf(op, KindInvalidArgument, "start_lsn %s greater than end_lsn %s", startLSN, endLSN)
	}

	sf, so := startLSN.FileNo(), startLSN.Offset()
	if startLSN == 0 {
		// Nothing has been applied yet: replay from the start of the
		// first segment, which is always 1.wal.
		sf = 1
	}
	ef, eo := endLSN.FileNo(), endLSN.Offset()

	sfExists, sfSize, err := segmentExists(b.dir, sf)
	if err != nil {
		return err
	}
	if !sfExists || sfSize < int64(so) {
		return errf(op, KindRecoveryMissingSegment, "segment %s missing or shorter than start offset %d", segmentPath(b.dir, sf), so)
	}

	efExists, efSize, err := segmentExists(b.dir, ef)
	if err != nil {
		return err
	}
	if !efExists || efSize != int64(eo) {
		return errf(op, KindRecoveryLengthMismatch, "segment %s has size %d, want %d", segmentPath(b.dir, ef), efSize, eo)
	}

	need := sfSize
	if efSize > need {
		need = efSize
	}
	if need > int64(b.slabSize) {
		b.slabSize = uint32(need)
	}
	b.allocSlabs()

	if sf == ef {
		fh := newFileHandler(b.dir)
		if err := fh.open(sf, 'r'); err != nil {
			return err
		}
		n, err := fh.load(b.slabs[0])
		fh.close()
		if err != nil {
			return err
		}

		b.reader = cursor{bufIdx: 0, fileNo: sf, bufOffset: so, maxOffset: uint32(n), lsn: startLSN}
		b.writer = cursor{bufIdx: 0, fileNo: sf, bufOffset: eo, maxOffset: uint32(n), lsn: endLSN}
		b.fileNoFrom = sf

		wf := newFileHandler(b.dir)
		if err := wf.open(sf, 'w'); err != nil {
			return err
		}
		b.writerFile = wf
		return nil
	}

	// sf != ef: intermediate segments must exist on disk (left for
	// on-demand load) though not pulled into memory yet.
	for fn := sf + 1; fn < ef; fn++ {
		exists, _, err := segmentExists(b.dir, fn)
		if err != nil {
			return err
		}
		if !exists {
			return errf(op, KindRecoveryMissingSegment, "intermediate segment %s missing", segmentPath(b.dir, fn))
		}
	}

	rfh := newFileHandler(b.dir)
	if err := rfh.open(sf, 'r'); err != nil {
		return err
	}
	rn, err := rfh.load(b.slabs[0])
	rfh.close()
	if err != nil {
		return err
	}

	wfh := newFileHandler(b.dir)
	if err := wfh.open(ef, 'r'); err != nil {
		return err
	}
	wn, err := wfh.load(b.slabs[1])
	wfh.close()
	if err != nil {
		return err
	}

	b.reader = cursor{bufIdx: 0, fileNo: sf, bufOffset: so, maxOffset: uint32(rn), lsn: startLSN}
	b.writer = cursor{bufIdx: 1, fileNo: ef, bufOffset: eo, maxOffset: uint32(wn), lsn: endLSN}
	b.fileNoFrom = sf

	wf := newFileHandler(b.dir)
	if err := wf.open(ef, 'w'); err != nil {
		return err
	}
	b.writerFile = wf
	return nil
}

// Reset empties both slabs and repositions writer and reader at the
// segment following lsn. It is the runtime variant of Init used after a
// full flush/apply cycle, not a recovery path.
func (b *Buffer) Reset(lsn LSN) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writerFile != nil {
		if err := b.writerFile.close(); err != nil {
			return err
		}
		b.writerFile = nil
	}
	if b.slabs[0] == nil {
		b.allocSlabs()
	} else {
		for i := range b.slabs[0] {
			b.slabs[0][i] = 0
		}
		for i := range b.slabs[1] {
			b.slabs[1][i] = 0
		}
	}

	fileNo := lsn.FileNo() + 1
	b.writer = cursor{bufIdx: 0, fileNo: fileNo, bufOffset: 0, maxOffset: 0, lsn: lsn}
	b.reader = b.writer
	b.fileNoFrom = fileNo

	wf := newFileHandler(b.dir)
	if err := wf.open(fileNo, 'w'); err != nil {
		return err
	}
	b.writerFile = wf
	return nil
}

// Append encodes rec, assigns it an LSN, and writes it to the current
// writer slab and segment file, per spec §4.4.2. It blocks only when
// the writer needs the slab the reader has not yet drained.
func (b *Buffer) Append(rec *Record) (LSN, error) {
	const op = "buffer.append"

	b.mu.Lock()
	defer b.mu.Unlock()

	recordSize := rec.EncodedSize()
	if recordSize > int(b.slabSize) {
		return 0, errf(op, KindRecordTooLarge, "encoded size %d exceeds slab size %d", recordSize, b.slabSize)
	}

	surplus := int(b.slabSize) - int(b.writer.bufOffset)
	if surplus < recordSize {
		if err := b.rotateLocked(); err != nil {
			return 0, err
		}
	}

	lsn := MakeLSN(b.writer.fileNo, b.writer.bufOffset)
	rec.LSN = lsn

	slab := b.slabs[b.writer.bufIdx]
	n := rec.Encode(slab[b.writer.bufOffset:])

	if err := b.writerFile.write(slab[b.writer.bufOffset : b.writer.bufOffset+uint32(n)]); err != nil {
		return 0, err
	}

	b.writer.bufOffset += uint32(n)
	b.writer.maxOffset = b.writer.bufOffset
	b.writer.lsn = lsn

	b.readerCV.Signal()
	b.observeAppend(recordSize)

	return lsn, nil
}

// rotateLocked moves the writer onto the other slab and opens the next
// segment file, blocking on writerCV first if the reader has not yet
// drained off that slab (Design Notes: never silently overwrite unread
// data). Caller must hold b.mu.
func (b *Buffer) rotateLocked() error {
	for b.reader.bufIdx != b.writer.bufIdx {
		b.observeWriterBlocked()
		b.writerCV.Wait()
	}

	oldMax := b.writer.maxOffset
	b.writer.bufIdx ^= 1
	b.reader.maxOffset = oldMax
	b.writer.bufOffset = 0
	b.writer.maxOffset = 0
	b.writer.fileNo++

	if b.writerFile == nil {
		b.writerFile = newFileHandler(b.dir)
		if err := b.writerFile.open(b.writer.fileNo, 'w'); err != nil {
			return err
		}
	} else if err := b.writerFile.reborn(b.writer.fileNo); err != nil {
		return err
	}

	level.Debug(b.logger).Log("msg", "wal segment rotated", "file_no", b.writer.fileNo)
	b.observeRotation()
	return nil
}

// Next decodes and returns the next unconsumed record for the reader,
// per spec §4.4.3. It never blocks: it returns (nil, nil) when the
// reader has caught up to the writer.
func (b *Buffer) Next() (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.reader.bufIdx == b.writer.bufIdx && b.reader.bufOffset == b.writer.bufOffset {
			return nil, nil
		}

		// The reader may reach the end of its current slab either as a
		// side effect of decoding the last record in it (below) or,
		// when the writer rotates while the reader had already fully
		// drained that slab, with no decode in between. Handle both by
		// checking for exhaustion before attempting to decode.
		if b.reader.bufOffset == b.reader.maxOffset && b.reader.bufIdx != b.writer.bufIdx {
			if b.reader.fileNo+1 == b.writer.fileNo {
				b.reader.bufIdx ^= 1
				b.reader.bufOffset = 0
				b.reader.fileNo = b.writer.fileNo
				b.reader.maxOffset = b.writer.maxOffset
				b.writerCV.Signal()
			} else {
				b.writerCV.Signal()

				nextFileNo := b.reader.fileNo + 1
				fh := newFileHandler(b.dir)
				if err := fh.open(nextFileNo, 'r'); err != nil {
					return nil, errf("buffer.next", KindRecoveryMissingSegment, "segment %s missing", segmentPath(b.dir, nextFileNo))
				}
				n2, err := fh.load(b.slabs[b.reader.bufIdx])
				fh.close()
				if err != nil {
					return nil, err
				}
				b.reader.fileNo = nextFileNo
				b.reader.bufOffset = 0
				b.reader.maxOffset = uint32(n2)
			}
			continue
		}

		slab := b.slabs[b.reader.bufIdx]
		rec, n, err := DecodeRecord(slab[b.reader.bufOffset:])
		if err != nil {
			return nil, err
		}

		b.reader.bufOffset += uint32(n)
		b.reader.lsn = rec.LSN

		b.observeNext()
		return rec, nil
	}
}

// LoadForRecovery loads the segment containing lsn into the reader
// slab and repositions the reader cursor there (spec §4.4.4).
func (b *Buffer) LoadForRecovery(lsn LSN) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fh := newFileHandler(b.dir)
	if err := fh.open(lsn.FileNo(), 'r'); err != nil {
		return err
	}
	n, err := fh.load(b.slabs[b.reader.bufIdx])
	fh.close()
	if err != nil {
		return err
	}

	b.reader.bufOffset = lsn.Offset()
	b.reader.fileNo = lsn.FileNo()
	b.reader.maxOffset = uint32(n)
	return nil
}

// RemoveOldFiles deletes segments below thruLSN's file_no that are not
// currently held by either cursor (spec §4.4.5). It is an idempotent
// hint driven by the Manager after a successful checkpoint.
func (b *Buffer) RemoveOldFiles(thruLSN LSN) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	threshold := thruLSN.FileNo()
	newFrom := b.fileNoFrom

	for fn := b.fileNoFrom; fn < threshold; fn++ {
		if fn == b.reader.fileNo || fn == b.writer.fileNo {
			continue
		}
		exists, _, err := segmentExists(b.dir, fn)
		if err != nil {
			return err
		}
		if !exists {
			if fn == newFrom {
				newFrom = fn + 1
			}
			continue
		}
		fh := newFileHandler(b.dir)
		if err := fh.open(fn, 'r'); err != nil {
			return err
		}
		if err := fh.delete(); err != nil {
			return err
		}
		level.Debug(b.logger).Log("msg", "wal segment reclaimed", "file_no", fn)
		b.observeReclaim()
		if fn == newFrom {
			newFrom = fn + 1
		}
	}

	if min := b.reader.fileNo; min < b.writer.fileNo && newFrom > min {
		newFrom = min
	}
	if b.writer.fileNo < newFrom {
		newFrom = b.writer.fileNo
	}
	if newFrom > b.fileNoFrom {
		b.fileNoFrom = newFrom
	}
	return nil
}

// WriterLSN returns the LSN of the last record successfully appended.
func (b *Buffer) WriterLSN() LSN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writer.lsn
}

// ReaderLSN returns the LSN of the last record consumed via Next.
func (b *Buffer) ReaderLSN() LSN {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reader.lsn
}

// Sync fsyncs the current writer segment, forcing appended records to
// stable storage. Used by the Manager when fsync_on_flush is enabled.
func (b *Buffer) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writerFile == nil {
		return nil
	}
	return b.writerFile.sync()
}

// Close releases the writer's open file handle.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writerFile != nil {
		return b.writerFile.close()
	}
	return nil
}
