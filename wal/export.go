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
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/snappy"
)

// exportMagic tags a backup stream produced by Export so Import can
// reject files from something else. This is a standalone operator
// backup format (SPEC_FULL.md §6.4) and is never used for the
// segments WAL itself reads and writes.
const exportMagic = "WALBKUP1"

// Export snappy-compresses every "<file_no>.wal" segment under dir, in
// ascending file_no order, into a single stream written to w. Each
// segment is framed as [file_no uint32][size uint64][bytes...] so
// Import can reconstruct the original files without relying on the
// compressed stream's own framing.
func Export(dir string, w io.Writer) error {
	const op = "export"

	fileNos, err := listSegments(dir)
	if err != nil {
		return err
	}

	sw := snappy.NewBufferedWriter(w)
	defer sw.Close()

	if _, err := sw.Write([]byte(exportMagic)); err != nil {
		return wrapErr(op, KindIO, err, "write magic")
	}

	for _, fileNo := range fileNos {
		f, err := os.Open(segmentPath(dir, fileNo))
		if err != nil {
			return wrapErr(op, KindIO, err, segmentPath(dir, fileNo))
		}

		st, err := f.Stat()
		if err != nil {
			f.Close()
			return wrapErr(op, KindIO, err, f.Name())
		}

		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr[0:4], fileNo)
		binary.LittleEndian.PutUint64(hdr[4:12], uint64(st.Size()))
		if _, err := sw.Write(hdr); err != nil {
			f.Close()
			return wrapErr(op, KindIO, err, "write segment header")
		}

		if _, err := io.Copy(sw, f); err != nil {
			f.Close()
			return wrapErr(op, KindIO, err, f.Name())
		}
		f.Close()
	}

	if err := sw.Close(); err != nil {
		return wrapErr(op, KindIO, err, "close export stream")
	}
	return nil
}

// Import reconstructs segment files under dir from a stream previously
// produced by Export. It refuses to overwrite existing segments so an
// operator cannot accidentally clobber a live log directory.
func Import(dir string, r io.Reader) error {
	const op = "import"

	sr := snappy.NewReader(r)

	magic := make([]byte, len(exportMagic))
	if _, err := io.ReadFull(sr, magic); err != nil {
		return wrapErr(op, KindIO, err, "read magic")
	}
	if string(magic) != exportMagic {
		return errf(op, KindCorrupt, "not a wal export stream")
	}

	for {
		hdr := make([]byte, 12)
		_, err := io.ReadFull(sr, hdr)
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapErr(op, KindIO, err, "read segment header")
		}

		fileNo := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint64(hdr[4:12])

		path := segmentPath(dir, fileNo)
		if _, err := os.Stat(path); err == nil {
			return errf(op, KindInvalidArgument, "segment %s already exists, refusing to overwrite", path)
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return wrapErr(op, KindIO, err, path)
		}
		if _, err := io.CopyN(f, sr, int64(size)); err != nil {
			f.Close()
			return wrapErr(op, KindIO, err, path)
		}
		if err := f.Close(); err != nil {
			return wrapErr(op, KindIO, err, path)
		}
	}

	return syncDir(dir)
}
