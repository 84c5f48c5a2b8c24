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

// Package dispatch owns the per-torrent download state: which pieces are
// assigned, which are verified, and the hand-off of verified pieces to the
// file writer. Peer conversations never mutate this state directly; they
// deliver blocks through the Dispatcher.
package dispatch

import (
	"crypto/sha1"
	"fmt"
	"sync"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/utils/syncutil"
)

// Events defines Dispatcher events.
type Events interface {
	PieceVerified(index int)
	DownloadComplete()
}

// NoopEvents is an Events implementation which ignores all events.
type NoopEvents struct{}

// PieceVerified noops.
func (e NoopEvents) PieceVerified(int) {}

// DownloadComplete noops.
func (e NoopEvents) DownloadComplete() {}

// Dispatcher coordinates torrent piece state across many concurrent peer
// conversations. Dispatcher and torrent have a one-to-one relationship, while
// Dispatcher and peers have a one-to-many relationship.
type Dispatcher struct {
	stats           tally.Scope
	clk             clock.Clock
	plan            *storage.Plan
	mi              *core.MetaInfo
	writer          chan<- *storage.WriteJob
	events          Events
	numPeersByPiece syncutil.Counters

	mu         sync.Mutex // Protects the following fields:
	inProgress map[int]*storage.Piece
	received   map[int]*storage.Piece

	completeOnce sync.Once

	logger *zap.SugaredLogger
}

// New creates a new Dispatcher for plan. Verified pieces are pushed onto
// writer; the Dispatcher never closes the channel.
func New(
	stats tally.Scope,
	clk clock.Clock,
	plan *storage.Plan,
	writer chan<- *storage.WriteJob,
	events Events,
	logger *zap.SugaredLogger) *Dispatcher {

	stats = stats.Tagged(map[string]string{
		"module": "dispatch",
	})

	return &Dispatcher{
		stats:           stats,
		clk:             clk,
		plan:            plan,
		mi:              plan.MetaInfo(),
		writer:          writer,
		events:          events,
		numPeersByPiece: syncutil.NewCounters(plan.NumPieces()),
		inProgress:      make(map[int]*storage.Piece),
		received:        make(map[int]*storage.Piece),
		logger:          logger,
	}
}

// InfoHash returns the hash of the torrent being dispatched.
func (d *Dispatcher) InfoHash() core.InfoHash {
	return d.mi.InfoHash()
}

// NumPieces returns the total number of pieces in the torrent.
func (d *Dispatcher) NumPieces() int {
	return d.plan.NumPieces()
}

// NumReceived returns the number of verified pieces.
func (d *Dispatcher) NumReceived() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.received)
}

// Complete returns true once every piece has been verified.
func (d *Dispatcher) Complete() bool {
	return d.NumReceived() == d.plan.NumPieces()
}

// ReservePiece scans pieces in ascending index order and assigns the first
// pending piece which the remote bitfield reports as available. Returns false
// when the peer has nothing we still need.
//
// Deliberately an in-order picker, not rarest-first: swapping the policy must
// preserve the at-most-once assignment contract.
func (d *Dispatcher) ReservePiece(have *bitset.BitSet) (*storage.Piece, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.plan.Pieces() {
		if p.Verified() || p.InProgress() {
			continue
		}
		if !have.Test(uint(p.Index)) {
			continue
		}
		if !p.TryMarkInProgress() {
			continue
		}
		d.inProgress[p.Index] = p
		return p, true
	}
	return nil, false
}

// OnBlockReceived stores one delivered block. When the block completes its
// piece, the piece is hash-verified: a match emits a write job, a mismatch
// reverts the piece to pending so another peer may retry it. Duplicate
// deliveries, including blocks for already-verified pieces, are no-ops.
func (d *Dispatcher) OnBlockReceived(index int, begin int64, data []byte) error {
	p, err := d.plan.Piece(index)
	if err != nil {
		return fmt.Errorf("piece lookup: %s", err)
	}
	if p.Verified() {
		d.stats.Counter("duplicate_blocks").Inc(1)
		return nil
	}
	if err := p.SaveBlock(begin, data); err != nil {
		if err == storage.ErrPieceVerified {
			d.stats.Counter("duplicate_blocks").Inc(1)
			return nil
		}
		return fmt.Errorf("save block: %s", err)
	}
	if !p.Complete() {
		return nil
	}
	return d.verify(p)
}

func (d *Dispatcher) verify(p *storage.Piece) error {
	pieceData := p.Data()
	expected, err := d.mi.PieceHash(p.Index)
	if err != nil {
		return fmt.Errorf("piece hash: %s", err)
	}
	if sha1.Sum(pieceData) != expected {
		// Silently recoverable: drop the buffers and let a later assignment
		// fetch the piece again, possibly from a different peer.
		d.stats.Counter("hash_mismatches").Inc(1)
		d.log("piece", p.Index).Error("Piece failed hash check, reverting to pending")
		p.Flush()
		p.MarkPending()
		d.mu.Lock()
		delete(d.inProgress, p.Index)
		d.mu.Unlock()
		return nil
	}

	p.MarkVerified()

	d.mu.Lock()
	delete(d.inProgress, p.Index)
	d.received[p.Index] = p
	numReceived := len(d.received)
	d.mu.Unlock()

	d.stats.Counter("pieces_verified").Inc(1)

	d.writer <- &storage.WriteJob{
		AbsOffset:   int64(p.Index) * d.mi.PieceLength(),
		FileIdx:     p.FileIdx,
		Data:        pieceData,
		InConflict:  p.InConflict,
		FractureIdx: p.FractureIdx,
		FileName:    p.FileName,
		Piece:       p,
	}

	d.events.PieceVerified(p.Index)
	if numReceived == d.plan.NumPieces() {
		d.completeOnce.Do(func() { go d.events.DownloadComplete() })
	}
	return nil
}

// ClearInProgress reverts all assigned-but-unverified pieces to pending and
// frees their block buffers. Called between rounds, after every peer of the
// round has terminated.
func (d *Dispatcher) ClearInProgress() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, p := range d.inProgress {
		p.Flush()
		p.MarkPending()
		delete(d.inProgress, i)
	}
}

// RegisterPeerBitfield records piece availability of a newly arrived peer.
func (d *Dispatcher) RegisterPeerBitfield(have *bitset.BitSet) {
	for i := 0; i < d.plan.NumPieces(); i++ {
		if have.Test(uint(i)) {
			d.numPeersByPiece.Increment(i)
		}
	}
}

// UnregisterPeerBitfield removes piece availability of a departed peer.
func (d *Dispatcher) UnregisterPeerBitfield(have *bitset.BitSet) {
	for i := 0; i < d.plan.NumPieces(); i++ {
		if have.Test(uint(i)) {
			d.numPeersByPiece.Decrement(i)
		}
	}
}

// NumPeersByPiece returns how many registered peers have piece i.
func (d *Dispatcher) NumPeersByPiece(i int) int {
	return d.numPeersByPiece.Get(i)
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("dispatcher(%s)", d.mi.InfoHash())
}

func (d *Dispatcher) log(args ...interface{}) *zap.SugaredLogger {
	args = append(args, "hash", d.mi.InfoHash())
	return d.logger.With(args...)
}
