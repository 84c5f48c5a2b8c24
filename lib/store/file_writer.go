// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store writes verified pieces to their final location on disk. It
// owns every open file descriptor under the output root; no other component
// touches the filesystem.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
)

// FileWriter is the single consumer of the write-job queue. Jobs carry
// verified pieces; the writer maps each onto one file write, or two writes
// when the piece straddles a file boundary, then releases the piece's block
// memory.
type FileWriter struct {
	config Config
	stats  tally.Scope
	mode   core.Mode

	// root is <output dir>/<torrent name>: the output file itself in single
	// mode, the output directory in multiple mode.
	root string

	jobs chan *storage.WriteJob

	// Open for the whole download in single mode.
	single *os.File

	logger *zap.SugaredLogger
}

// NewFileWriter creates a FileWriter for mi rooted under outputDir. In
// multiple mode the torrent directory is created; in single mode the output
// file is opened read-write, created if missing.
func NewFileWriter(
	config Config,
	stats tally.Scope,
	mi *core.MetaInfo,
	outputDir string,
	logger *zap.SugaredLogger) (*FileWriter, error) {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "store",
	})

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %s", err)
	}

	w := &FileWriter{
		config: config,
		stats:  stats,
		mode:   mi.Mode(),
		root:   filepath.Join(outputDir, mi.Name()),
		jobs:   make(chan *storage.WriteJob, config.QueueSize),
		logger: logger,
	}

	if mi.Mode() == core.ModeMultiple {
		if err := os.MkdirAll(w.root, 0755); err != nil {
			return nil, fmt.Errorf("create torrent dir: %s", err)
		}
	} else {
		f, err := os.OpenFile(w.root, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("open output file: %s", err)
		}
		w.single = f
	}

	return w, nil
}

// Jobs returns the queue the writer consumes from. The producer closes the
// channel to stop the writer.
func (w *FileWriter) Jobs() chan *storage.WriteJob {
	return w.jobs
}

// Run consumes jobs until the queue is closed. Any write error is fatal: the
// download cannot complete without it, so Run returns immediately.
func (w *FileWriter) Run() error {
	defer w.close()

	for job := range w.jobs {
		if err := w.write(job); err != nil {
			return fmt.Errorf("write piece %d: %s", job.Piece.Index, err)
		}
		// The piece hit disk; its block memory may now be released.
		job.Piece.Flush()
		w.stats.Counter("pieces_written").Inc(1)
	}
	return nil
}

func (w *FileWriter) write(job *storage.WriteJob) error {
	if w.mode == core.ModeSingle {
		return w.writeAt(w.single, job.Data, job.AbsOffset)
	}
	if !job.InConflict {
		return w.writeFile(job.FileName, job.Data, job.FileIdx)
	}

	// Fractured: the piece's first split-length bytes finish the current
	// file, the rest start the next file at offset 0.
	names := strings.SplitN(job.FileName, "|", 2)
	if len(names) != 2 {
		return fmt.Errorf("fractured piece with malformed file name %q", job.FileName)
	}
	current, next := names[0], names[1]
	split := job.FractureIdx - job.AbsOffset
	if split < 0 || split > int64(len(job.Data)) {
		return fmt.Errorf("fracture offset %d outside piece at %d", job.FractureIdx, job.AbsOffset)
	}
	w.log("piece", job.Piece.Index, "current", current, "next", next).
		Debug("Writing fractured piece")
	if err := w.writeFile(current, job.Data[:split], job.FileIdx); err != nil {
		return err
	}
	return w.writeFile(next, job.Data[split:], 0)
}

// writeFile writes data at offset into the named file under the torrent
// directory, creating the file and any intermediate directories as needed.
func (w *FileWriter) writeFile(name string, data []byte, offset int64) error {
	path := filepath.Join(w.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dirs: %s", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %s", path, err)
	}
	defer f.Close()
	return w.writeAt(f, data, offset)
}

func (w *FileWriter) writeAt(f *os.File, data []byte, offset int64) error {
	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("write at %d: %s", offset, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %s", err)
	}
	return nil
}

func (w *FileWriter) close() {
	if w.single != nil {
		if err := w.single.Close(); err != nil {
			w.log().Errorf("Error closing output file: %s", err)
		}
	}
}

func (w *FileWriter) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "root", w.root)
	return w.logger.With(keysAndValues...)
}
