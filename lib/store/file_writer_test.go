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
package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/utils/randutil"
)

func writerFixture(t *testing.T, mi *core.MetaInfo) (*FileWriter, string, chan error) {
	t.Helper()

	dir := t.TempDir()
	w, err := NewFileWriter(Config{}, tally.NoopScope, mi, dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	return w, dir, done
}

// deliverAll pushes every piece of the plan as a write job carrying the
// correct slice of content.
func deliverAll(t *testing.T, w *FileWriter, mi *core.MetaInfo, content []byte) {
	t.Helper()

	plan, err := storage.NewPlan(mi)
	require.NoError(t, err)
	for _, p := range plan.Pieces() {
		beg := int64(p.Index) * mi.PieceLength()
		w.Jobs() <- &storage.WriteJob{
			AbsOffset:   beg,
			FileIdx:     p.FileIdx,
			Data:        content[beg : beg+p.Length()],
			InConflict:  p.InConflict,
			FractureIdx: p.FractureIdx,
			FileName:    p.FileName,
			Piece:       p,
		}
	}
}

func TestFileWriterSingleFile(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(40000)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)

	w, dir, done := writerFixture(t, mi)
	deliverAll(t, w, mi, content)
	close(w.Jobs())
	require.NoError(<-done)

	written, err := os.ReadFile(filepath.Join(dir, "blob.bin"))
	require.NoError(err)
	require.Equal(content, written)
}

func TestFileWriterMultiFileNoFracture(t *testing.T) {
	require := require.New(t)

	a := randutil.Blob(16384)
	b := randutil.Blob(16384)
	mi, _ := core.MultiFileMetaInfoFixture("d", 16384, []core.FileFixture{
		{Name: "a", Content: a},
		{Name: "b", Content: b},
	})

	w, dir, done := writerFixture(t, mi)
	deliverAll(t, w, mi, append(append([]byte{}, a...), b...))
	close(w.Jobs())
	require.NoError(<-done)

	writtenA, err := os.ReadFile(filepath.Join(dir, "d", "a"))
	require.NoError(err)
	require.Equal(a, writtenA)

	writtenB, err := os.ReadFile(filepath.Join(dir, "d", "b"))
	require.NoError(err)
	require.Equal(b, writtenB)
}

func TestFileWriterFracturedPiece(t *testing.T) {
	require := require.New(t)

	a := randutil.Blob(10000)
	b := randutil.Blob(10000)
	mi, _ := core.MultiFileMetaInfoFixture("d", 16384, []core.FileFixture{
		{Name: "a", Content: a},
		{Name: "b", Content: b},
	})

	w, dir, done := writerFixture(t, mi)
	deliverAll(t, w, mi, append(append([]byte{}, a...), b...))
	close(w.Jobs())
	require.NoError(<-done)

	writtenA, err := os.ReadFile(filepath.Join(dir, "d", "a"))
	require.NoError(err)
	require.Equal(a, writtenA)

	writtenB, err := os.ReadFile(filepath.Join(dir, "d", "b"))
	require.NoError(err)
	require.Equal(b, writtenB)
}

func TestFileWriterCreatesIntermediateDirs(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	mi, _ := core.MultiFileMetaInfoFixture("d", 16384, []core.FileFixture{
		{Name: "sub/dir/file.bin", Content: content},
	})

	w, dir, done := writerFixture(t, mi)
	deliverAll(t, w, mi, content)
	close(w.Jobs())
	require.NoError(<-done)

	written, err := os.ReadFile(filepath.Join(dir, "d", "sub", "dir", "file.bin"))
	require.NoError(err)
	require.Equal(content, written)
}

func TestFileWriterFlushesPieceMemory(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	p, err := plan.Piece(0)
	require.NoError(err)
	require.NoError(p.SaveBlock(0, content))
	require.True(p.Complete())

	w, _, done := writerFixture(t, mi)
	w.Jobs() <- &storage.WriteJob{
		AbsOffset: 0,
		Data:      content,
		FileName:  "blob.bin",
		Piece:     p,
	}
	close(w.Jobs())
	require.NoError(<-done)

	require.False(p.Complete())
}

func TestFileWriterOutOfOrderPieces(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(49152)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	w, dir, done := writerFixture(t, mi)
	for _, i := range []int{2, 0, 1} {
		p, err := plan.Piece(i)
		require.NoError(err)
		beg := int64(i) * 16384
		w.Jobs() <- &storage.WriteJob{
			AbsOffset: beg,
			Data:      content[beg : beg+16384],
			FileName:  "blob.bin",
			Piece:     p,
		}
	}
	close(w.Jobs())
	require.NoError(<-done)

	written, err := os.ReadFile(filepath.Join(dir, "blob.bin"))
	require.NoError(err)
	require.Equal(content, written)
}
