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

// Command walctl operates on a write-ahead log directory directly,
// without a running vector database process attached to it: replaying
// records for inspection, inspecting or overriding the checkpoint, and
// taking or restoring operator backups.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kingpin/v2"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vxdb/walog/wal"
)

func main() {
	if _, err := memlimit.SetGoMemLimitWithOpts(); err != nil {
		// Best-effort: walctl is a short-lived operator tool, not a
		// long-running server, so a failed soft memory limit isn't fatal.
		fmt.Fprintln(os.Stderr, "walctl: could not set GOMEMLIMIT:", err)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	app := kingpin.New(filepath.Base(os.Args[0]), "Inspect and manage a vector database write-ahead log directory.")
	app.HelpFlag.Short('h')

	var dataPath string
	app.Flag("data", "Path to the directory holding <file_no>.wal segments.").
		Required().StringVar(&dataPath)

	replayCmd := app.Command("replay", "Print every record from the checkpoint through the end of the log.")
	var replayApply bool
	replayCmd.Flag("apply", "Advance the on-disk checkpoint to the end of the log as records are printed.").
		BoolVar(&replayApply)

	statusCmd := app.Command("status", "Print the current checkpoint LSN and the on-disk segment list.")

	checkpointCmd := app.Command("checkpoint", "Manually set the persisted checkpoint LSN.")
	var checkpointLSN uint64
	checkpointCmd.Arg("lsn", "LSN to set as the checkpoint.").Required().Uint64Var(&checkpointLSN)

	createTableCmd := app.Command("create-table", "Register a table_id for bookkeeping (informational only; emits no record).")
	var createTableID string
	createTableCmd.Arg("table-id", "Table identifier.").Required().StringVar(&createTableID)

	exportCmd := app.Command("export", "Snappy-compress every segment into a single backup file.")
	var exportOut string
	exportCmd.Flag("out", "Destination backup file.").Required().StringVar(&exportOut)

	importCmd := app.Command("import", "Restore segments from a backup file previously produced by export.")
	var importIn string
	importCmd.Flag("in", "Source backup file.").Required().StringVar(&importIn)

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "parsing command line"))
		app.Usage(os.Args[1:])
		os.Exit(2)
	}

	var runErr error
	switch cmd {
	case replayCmd.FullCommand():
		runErr = runReplay(dataPath, replayApply, logger)
	case statusCmd.FullCommand():
		runErr = runStatus(dataPath, logger)
	case checkpointCmd.FullCommand():
		runErr = runCheckpoint(dataPath, wal.LSN(checkpointLSN), logger)
	case createTableCmd.FullCommand():
		runErr = runCreateTable(dataPath, createTableID, logger)
	case exportCmd.FullCommand():
		runErr = runExport(dataPath, exportOut, logger)
	case importCmd.FullCommand():
		runErr = runImport(dataPath, importIn, logger)
	}

	if runErr != nil {
		level.Error(logger).Log("msg", "command failed", "cmd", cmd, "err", runErr)
		os.Exit(1)
	}

	notified, _ := daemon.SdNotify(false, daemon.SdNotifyReady)
	if notified {
		level.Debug(logger).Log("msg", "notified service manager of readiness")
	}
}

func openManager(dataPath string, logger log.Logger) (*wal.Manager, error) {
	opts := wal.Options{
		MxlogPath:           dataPath,
		BufferSize:          wal.WALBufferMinSize,
		RecoveryErrorIgnore: false,
		Logger:              logger,
		Registerer:          prometheus.NewRegistry(),
	}
	m, err := wal.NewManager(opts)
	if err != nil {
		return nil, err
	}
	if err := m.Init(nil); err != nil {
		return nil, err
	}
	return m, nil
}

func runReplay(dataPath string, apply bool, logger log.Logger) error {
	m, err := openManager(dataPath, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	var g run.Group
	done := make(chan struct{})
	g.Add(func() error {
		count := 0
		for {
			select {
			case <-done:
				return nil
			default:
			}
			rec, err := m.Next()
			if err != nil {
				return err
			}
			if rec == nil {
				break
			}
			fmt.Printf("lsn=%s type=%s table=%q partition=%q n_ids=%d data_bytes=%d\n",
				rec.LSN, rec.Type, rec.TableID, rec.PartitionTag, len(rec.Ids), len(rec.Data))
			if apply {
				if err := m.ApplyDone(rec.LSN); err != nil {
					return err
				}
			}
			count++
		}
		level.Info(logger).Log("msg", "replay complete", "records", count)
		return nil
	}, func(error) { close(done) })

	return g.Run()
}

func runStatus(dataPath string, logger log.Logger) error {
	entries, err := os.ReadDir(dataPath)
	if err != nil {
		return errors.Wrap(err, "read data directory")
	}
	fmt.Println("segments:")
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wal") {
			continue
		}
		fmt.Println(" ", e.Name())
	}

	meta := wal.NewFileMetaHandler(filepath.Join(dataPath, "checkpoint"), logger)
	lsn, ok, err := meta.Get()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("checkpoint: none")
		return nil
	}
	fmt.Println("checkpoint:", lsn)
	return nil
}

func runCheckpoint(dataPath string, lsn wal.LSN, logger log.Logger) error {
	meta := wal.NewFileMetaHandler(filepath.Join(dataPath, "checkpoint"), logger)
	if err := meta.Set(lsn); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "checkpoint updated", "lsn", lsn)
	return nil
}

func runCreateTable(dataPath, tableID string, logger log.Logger) error {
	m, err := openManager(dataPath, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	m.CreateTable(tableID)
	level.Info(logger).Log("msg", "table registered", "table_id", tableID)
	return nil
}

func runExport(dataPath, out string, logger log.Logger) error {
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "create backup file")
	}
	defer f.Close()

	if err := wal.Export(dataPath, f); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "export complete", "out", out)
	return nil
}

func runImport(dataPath, in string, logger log.Logger) error {
	f, err := os.Open(in)
	if err != nil {
		return errors.Wrap(err, "open backup file")
	}
	defer f.Close()

	if err := wal.Import(dataPath, f); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "import complete", "in", in)
	return nil
}
