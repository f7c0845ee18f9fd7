package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Record{
		{
			LSN:          MakeLSN(1, 128),
			Type:         RecordInsertVector,
			TableID:      "table-a",
			PartitionTag: "p0",
			Length:       2,
			Ids:          []int64{10, 11},
			Data:         []byte{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			LSN:     MakeLSN(3, 0),
			Type:    RecordDelete,
			TableID: "table-b",
			Length:  3,
			Ids:     []int64{-1, 0, 42},
		},
		{
			LSN:  MakeLSN(4, 7),
			Type: RecordFlush,
		},
		{
			LSN:          MakeLSN(1, 0),
			Type:         RecordInsertBinary,
			TableID:      "",
			PartitionTag: "",
			Length:       1,
			Ids:          []int64{99},
			Data:         []byte("arbitrary payload"),
		},
	}

	for _, rec := range cases {
		buf := make([]byte, rec.EncodedSize())
		n := rec.Encode(buf)
		require.Equal(t, len(buf), n)

		got, consumed, err := DecodeRecord(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), consumed)
		require.Equal(t, rec.LSN, got.LSN)
		require.Equal(t, rec.Type, got.Type)
		require.Equal(t, rec.TableID, got.TableID)
		require.Equal(t, rec.PartitionTag, got.PartitionTag)
		require.Equal(t, rec.Length, got.Length)
		require.Equal(t, rec.Ids, got.Ids)
		require.Equal(t, rec.Data, got.Data)
	}
}

func TestRecordDecodeTruncatedHeader(t *testing.T) {
	_, _, err := DecodeRecord(make([]byte, 10))
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindCorrupt, werr.Kind)
}

func TestRecordDecodeUnknownType(t *testing.T) {
	rec := &Record{Type: RecordFlush, LSN: MakeLSN(1, 0)}
	buf := make([]byte, rec.EncodedSize())
	rec.Encode(buf)
	buf[12] = 99 // corrupt the type byte

	_, _, err := DecodeRecord(buf)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindCorrupt, werr.Kind)
}

func TestRecordDecodeSizeMismatch(t *testing.T) {
	rec := &Record{Type: RecordDelete, LSN: MakeLSN(1, 0), Length: 1, Ids: []int64{5}}
	buf := make([]byte, rec.EncodedSize())
	rec.Encode(buf)
	buf[0] = 255 // corrupt the recorded size header

	_, _, err := DecodeRecord(buf)
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindCorrupt, werr.Kind)
}
