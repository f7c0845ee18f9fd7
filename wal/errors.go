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

import "github.com/pkg/errors"

// Kind classifies a WAL error per the error handling design (spec §7).
type Kind int

const (
	// KindIO covers file open/read/write/rename/delete failures.
	KindIO Kind = iota + 1
	// KindCorrupt covers decode mismatches, unknown record types, and
	// length fields that overrun the slab or the file.
	KindCorrupt
	// KindRecordTooLarge covers a record whose encoded size exceeds the
	// slab size even after clamping.
	KindRecordTooLarge
	// KindRecoveryMissingSegment covers an expected segment file that is
	// absent during recovery.
	KindRecoveryMissingSegment
	// KindRecoveryLengthMismatch covers a segment whose size disagrees
	// with the end_lsn supplied to Init.
	KindRecoveryLengthMismatch
	// KindInvalidArgument covers mismatched ids/data or disallowed
	// zero-length arguments supplied by a caller.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindCorrupt:
		return "Corrupt"
	case KindRecordTooLarge:
		return "RecordTooLarge"
	case KindRecoveryMissingSegment:
		return "RecoveryMissingSegment"
	case KindRecoveryLengthMismatch:
		return "RecoveryLengthMismatch"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error is the typed error returned by every WAL operation that can
// fail. Op names the failing operation (e.g. "buffer.append"); Kind
// classifies it per the table in spec §7.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers
// can write `errors.Is(err, &wal.Error{Kind: wal.KindCorrupt})`.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func wrapErr(op string, kind Kind, err error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.Wrap(err, msg)}
}

func errf(op string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.Errorf(format, args...)}
}
