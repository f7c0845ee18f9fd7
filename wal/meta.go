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
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MetaHandler persists a single 64-bit checkpoint LSN: the highest LSN
// whose effects the catalog has absorbed (spec §4.2). The WAL treats a
// Get that reports "absent" as lsn=0.
type MetaHandler interface {
	Get() (lsn LSN, ok bool, err error)
	Set(lsn LSN) error
}

// MemMetaHandler is an in-memory MetaHandler, useful for tests and for
// embedding scenarios where an external catalog process already owns
// checkpoint persistence and only hands this module a Get/Set pair.
type MemMetaHandler struct {
	lsn LSN
	set bool
}

func (m *MemMetaHandler) Get() (LSN, bool, error) { return m.lsn, m.set, nil }

func (m *MemMetaHandler) Set(lsn LSN) error {
	m.lsn = lsn
	m.set = true
	return nil
}

// FileMetaHandler persists the checkpoint LSN as an 8-byte little-endian
// value in a small file, written atomically via write-to-temp-then-
// rename so a crash mid-write never leaves a partially written
// checkpoint (spec §4.2: "atomicity of set is required").
type FileMetaHandler struct {
	path   string
	logger log.Logger
}

// NewFileMetaHandler returns a MetaHandler backed by path.
func NewFileMetaHandler(path string, logger log.Logger) *FileMetaHandler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &FileMetaHandler{path: path, logger: logger}
}

func (m *FileMetaHandler) Get() (LSN, bool, error) {
	const op = "meta.get"

	b, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapErr(op, KindIO, err, m.path)
	}
	if len(b) != 8 {
		return 0, false, errf(op, KindCorrupt, "checkpoint file %s has %d bytes, want 8", m.path, len(b))
	}
	return LSN(binary.LittleEndian.Uint64(b)), true, nil
}

func (m *FileMetaHandler) Set(lsn LSN) error {
	const op = "meta.set"

	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(lsn))

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return wrapErr(op, KindIO, err, tmp)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return wrapErr(op, KindIO, err, m.path)
	}
	return syncDir(filepath.Dir(m.path))
}

// Watch starts a background fsnotify watch on the checkpoint file and
// logs a warning whenever it changes outside of Set — e.g. an operator
// manually editing the checkpoint while the manager is running. It
// returns a stop function; watch failures (the directory not existing
// yet, fsnotify not supported on the platform) are logged and degrade
// to a no-op rather than failing startup, since this is purely a
// diagnostic aid and not load-bearing for correctness.
func (m *FileMetaHandler) Watch() (stop func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		level.Warn(m.logger).Log("msg", "checkpoint watch unavailable", "err", err)
		return func() {}
	}
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		level.Warn(m.logger).Log("msg", "checkpoint watch unavailable", "err", err)
		w.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == filepath.Clean(m.path) && ev.Op&fsnotify.Write != 0 {
					level.Warn(m.logger).Log("msg", "checkpoint file changed externally", "path", m.path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				level.Warn(m.logger).Log("msg", "checkpoint watch error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
		w.Close()
	}
}
