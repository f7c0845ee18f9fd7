package wal

import (
	"sync"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

// newScenarioBuffer builds a Buffer with an exact slab size, bypassing
// NewBuffer's [WALBufferMinSize, WALBufferMaxSize] clamp (spec §9 OQ2:
// those bounds are a configuration choice, not part of the protocol),
// so the literal byte counts from spec.md §8's scenarios can be
// reproduced exactly.
func newScenarioBuffer(dir string, slabSize uint32) *Buffer {
	b := &Buffer{dir: dir, slabSize: slabSize, logger: log.NewNopLogger()}
	b.writerCV = sync.NewCond(&b.mu)
	b.readerCV = sync.NewCond(&b.mu)
	return b
}

func TestScenarioASmallRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 1000)
	require.NoError(t, b.Init(0, 0))

	r0 := &Record{Type: RecordInsertVector, TableID: "t", PartitionTag: "p", Length: 50, Data: make([]byte, 200)}
	require.Equal(t, 627, r0.EncodedSize())
	lsn0, err := b.Append(r0)
	require.NoError(t, err)
	require.Equal(t, MakeLSN(1, 0), lsn0)

	r1 := &Record{Type: RecordDelete, TableID: "t", PartitionTag: "p", Length: 10}
	require.Equal(t, 107, r1.EncodedSize())
	lsn1, err := b.Append(r1)
	require.NoError(t, err)
	require.Equal(t, MakeLSN(1, 627), lsn1)

	got0, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, lsn0, got0.LSN)

	got1, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, lsn1, got1.LSN)

	none, err := b.Next()
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestScenarioBRotation(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 1000)
	require.NoError(t, b.Init(0, 0))

	r0 := &Record{Type: RecordInsertVector, TableID: "t", PartitionTag: "p", Length: 50, Data: make([]byte, 200)}
	r1 := &Record{Type: RecordDelete, TableID: "t", PartitionTag: "p", Length: 10}
	_, err := b.Append(r0)
	require.NoError(t, err)
	_, err = b.Append(r1)
	require.NoError(t, err)

	r2 := &Record{Type: RecordInsertVector, TableID: "t", PartitionTag: "p", Length: 50, Data: make([]byte, 200)}
	lsn2, err := b.Append(r2)
	require.NoError(t, err)
	require.Equal(t, MakeLSN(2, 0), lsn2, "slab 0 has only 266 bytes left, less than r2's 627; writer must rotate")

	got0, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, MakeLSN(1, 0), got0.LSN)

	got1, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, MakeLSN(1, 627), got1.LSN)

	got2, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, lsn2, got2.LSN, "third next must flip the reader onto slab 1 and return R2")
}

func TestScenarioCRecoveryMidFile(t *testing.T) {
	dir := t.TempDir()
	writer := newScenarioBuffer(dir, 1000)
	require.NoError(t, writer.Init(0, 0))

	r0 := &Record{Type: RecordInsertVector, TableID: "t", PartitionTag: "p", Length: 50, Data: make([]byte, 200)}
	r1 := &Record{Type: RecordDelete, TableID: "t", PartitionTag: "p", Length: 10}
	r2 := &Record{Type: RecordInsertVector, TableID: "t", PartitionTag: "p", Length: 50, Data: make([]byte, 200)}

	_, err := writer.Append(r0)
	require.NoError(t, err)
	_, err = writer.Append(r1)
	require.NoError(t, err)
	lsn2, err := writer.Append(r2)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	checkpoint := MakeLSN(1, 627)
	endLSN := lsn2 + LSN(r2.EncodedSize())

	recovered := newScenarioBuffer(dir, 1000)
	require.NoError(t, recovered.Init(checkpoint, endLSN))
	require.EqualValues(t, 0, recovered.reader.bufIdx)
	require.EqualValues(t, 627, recovered.reader.bufOffset)
	require.EqualValues(t, 734, recovered.reader.maxOffset)
	require.EqualValues(t, 1, recovered.writer.bufIdx)
	require.EqualValues(t, 627, recovered.writer.bufOffset)

	got1, err := recovered.Next()
	require.NoError(t, err)
	require.Equal(t, MakeLSN(1, 627), got1.LSN)

	got2, err := recovered.Next()
	require.NoError(t, err)
	require.Equal(t, lsn2, got2.LSN)
}

func TestScenarioDOversizeRecord(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 1000)
	require.NoError(t, b.Init(0, 0))

	oversized := &Record{Type: RecordInsertBinary, TableID: "t", Data: make([]byte, 2000-25-1)}
	beforeWriter, beforeReader := b.writer, b.reader

	_, err := b.Append(oversized)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindRecordTooLarge, werr.Kind)
	require.Equal(t, beforeWriter, b.writer)
	require.Equal(t, beforeReader, b.reader)
}

func TestScenarioEMissingSegmentDuringRecovery(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 1000)

	err := b.Init(MakeLSN(3, 32), MakeLSN(3, 64))
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindRecoveryMissingSegment, werr.Kind)
}

func TestScenarioEMissingSegmentIgnoredViaReset(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 1000)

	err := b.Init(MakeLSN(3, 32), MakeLSN(3, 64))
	require.Error(t, err)

	require.NoError(t, b.Reset(0))
	require.EqualValues(t, 1, b.writer.fileNo)
	require.EqualValues(t, 0, b.writer.bufOffset)
	require.Equal(t, LSN(0), b.writer.lsn)
}

func TestScenarioFReclamation(t *testing.T) {
	dir := t.TempDir()
	b := newScenarioBuffer(dir, 300)
	require.NoError(t, b.Init(0, 0))

	rec := func() *Record {
		return &Record{Type: RecordInsertBinary, TableID: "t", Length: 1, Ids: []int64{1}, Data: make([]byte, 50)}
	}

	var lsns []LSN
	appendN := func(n int) {
		for i := 0; i < n; i++ {
			lsn, err := b.Append(rec())
			require.NoError(t, err)
			lsns = append(lsns, lsn)
		}
	}
	consumed := 0
	nextN := func(n int) {
		for i := 0; i < n; i++ {
			got, err := b.Next()
			require.NoError(t, err)
			require.Equal(t, lsns[consumed], got.LSN)
			consumed++
		}
	}

	// Each 300-byte slab holds three 84-byte records, and the writer
	// waits rather than rotate onto the slab the reader still holds, so
	// the first 7 reads are interleaved with the 10 appends: each batch
	// of reads ends with the flip that frees the slab the next rotation
	// needs.
	appendN(6)
	nextN(4)
	appendN(3)
	nextN(3)
	appendN(1)
	require.GreaterOrEqual(t, b.writer.fileNo, uint32(4), "10 records at this size must span at least 4 segments")

	checkpoint := lsns[6]
	require.NoError(t, b.RemoveOldFiles(checkpoint))

	for fn := uint32(1); fn < checkpoint.FileNo(); fn++ {
		exists, _, err := segmentExists(dir, fn)
		require.NoError(t, err)
		require.Falsef(t, exists, "segment %d should have been reclaimed below file_no %d", fn, checkpoint.FileNo())
	}

	exists, _, err := segmentExists(dir, b.writer.fileNo)
	require.NoError(t, err)
	require.True(t, exists, "the segment currently being written must survive reclamation")
}
