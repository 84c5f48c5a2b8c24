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
package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/utils/bitsetutil"
	"github.com/supersaeyan/bittorgo/utils/randutil"
)

func deliverPiece(t *testing.T, d *Dispatcher, p *storage.Piece, content []byte) {
	t.Helper()
	for _, b := range p.Blocks {
		offset := int64(p.Index)*16384 + b.Begin
		require.NoError(t, d.OnBlockReceived(p.Index, b.Begin, content[offset:offset+b.Length]))
	}
}

func TestDispatcherReservePieceBitfieldGating(t *testing.T) {
	require := require.New(t)

	d, _ := Fixture(16384, randutil.Blob(32768))

	// Peer advertises only piece 0.
	have := bitsetutil.FromBools(true, false)

	p, ok := d.ReservePiece(have)
	require.True(ok)
	require.Equal(0, p.Index)

	// Piece 0 is now in progress; the same bitfield yields nothing.
	_, ok = d.ReservePiece(have)
	require.False(ok)

	// A peer with everything gets piece 1.
	p, ok = d.ReservePiece(bitsetutil.FromBools(true, true))
	require.True(ok)
	require.Equal(1, p.Index)
}

func TestDispatcherVerifiesAndEmitsWriteJob(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(32768)
	d, writer := Fixture(16384, content)

	have := bitsetutil.FromBools(true, true)
	p, ok := d.ReservePiece(have)
	require.True(ok)

	deliverPiece(t, d, p, content)

	job := <-writer
	require.Equal(int64(0), job.AbsOffset)
	require.Equal("blob.bin", job.FileName)
	require.False(job.InConflict)
	require.Equal(content[:16384], job.Data)
	require.Equal(p, job.Piece)

	require.Equal(1, d.NumReceived())
	require.False(d.Complete())

	p, ok = d.ReservePiece(have)
	require.True(ok)
	deliverPiece(t, d, p, content)
	<-writer

	require.True(d.Complete())
}

func TestDispatcherHashMismatchRevertsPiece(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	d, writer := Fixture(16384, content)

	have := bitsetutil.FromBools(true)
	p, ok := d.ReservePiece(have)
	require.True(ok)

	// Corrupted delivery: hash check fails, no write job, piece pending again.
	require.NoError(d.OnBlockReceived(p.Index, 0, randutil.Blob(16384)))
	require.Empty(writer)
	require.Equal(0, d.NumReceived())

	// A later assignment can supply the correct bytes.
	p, ok = d.ReservePiece(have)
	require.True(ok)
	require.NoError(d.OnBlockReceived(p.Index, 0, content))
	<-writer
	require.True(d.Complete())
}

func TestDispatcherVerifiedPieceDeliveryIsNoop(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	d, writer := Fixture(16384, content)

	p, ok := d.ReservePiece(bitsetutil.FromBools(true))
	require.True(ok)
	require.NoError(d.OnBlockReceived(p.Index, 0, content))
	<-writer

	// Second delivery of correct bytes: no double write.
	require.NoError(d.OnBlockReceived(p.Index, 0, content))
	require.Empty(writer)
	require.Equal(1, d.NumReceived())
}

func TestDispatcherOnBlockReceivedErrors(t *testing.T) {
	require := require.New(t)

	d, _ := Fixture(16384, randutil.Blob(16384))

	require.Error(d.OnBlockReceived(5, 0, randutil.Blob(16384)))
	require.Error(d.OnBlockReceived(0, 999, randutil.Blob(16384)))
}

func TestDispatcherClearInProgress(t *testing.T) {
	require := require.New(t)

	// Two blocks per piece, so one delivered block leaves piece 0 incomplete.
	content := randutil.Blob(65536)
	d, _ := Fixture(32768, content)

	have := bitsetutil.FromBools(true, true)
	p0, ok := d.ReservePiece(have)
	require.True(ok)

	// Partial progress, then the round ends.
	require.NoError(d.OnBlockReceived(p0.Index, 0, content[:16384]))
	_, ok = d.ReservePiece(bitsetutil.FromBools(true, false))
	require.False(ok)

	d.ClearInProgress()

	// Both pieces assignable again; partial block state was dropped.
	p, ok := d.ReservePiece(bitsetutil.FromBools(true, false))
	require.True(ok)
	require.Equal(0, p.Index)
	require.False(p.Complete())
}

func TestDispatcherPeerBitfieldCounters(t *testing.T) {
	require := require.New(t)

	d, _ := Fixture(16384, randutil.Blob(32768))

	b := bitsetutil.FromBools(true, true)
	d.RegisterPeerBitfield(b)
	d.RegisterPeerBitfield(bitsetutil.FromBools(true, false))
	require.Equal(2, d.NumPeersByPiece(0))
	require.Equal(1, d.NumPeersByPiece(1))

	d.UnregisterPeerBitfield(b)
	require.Equal(1, d.NumPeersByPiece(0))
	require.Equal(0, d.NumPeersByPiece(1))
}
