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

// Package wal implements the write-ahead log subsystem of the vector
// database: a double-buffered in-memory log backed by a segmented
// on-disk log, with a single-producer/single-consumer coordination
// protocol between an appending writer and an applying reader.
package wal

import "fmt"

// LSN is a Log Sequence Number: (file_no << 32) | offset_in_file.
// It is monotonically non-decreasing across the life of the log.
type LSN uint64

// MakeLSN packs a segment ordinal and an in-file byte offset into an LSN.
func MakeLSN(fileNo, offset uint32) LSN {
	return LSN(uint64(fileNo)<<32 | uint64(offset))
}

// FileNo returns the segment ordinal component of the LSN.
func (l LSN) FileNo() uint32 {
	return uint32(l >> 32)
}

// Offset returns the in-file byte offset component of the LSN.
func (l LSN) Offset() uint32 {
	return uint32(l & 0xFFFFFFFF)
}

func (l LSN) String() string {
	return fmt.Sprintf("%d/%d", l.FileNo(), l.Offset())
}
