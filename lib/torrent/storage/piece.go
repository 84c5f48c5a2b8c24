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
package storage

import (
	"fmt"
	"sync"

	"github.com/willf/bitset"
)

type pieceStatus int

const (
	// _pending denotes a piece not assigned to any peer.
	_pending pieceStatus = iota

	// _inProgress denotes a piece assigned to some peer.
	_inProgress

	// _verified denotes a piece whose hash has been checked and which has
	// been handed off exactly once.
	_verified
)

// Block describes one transfer unit of a piece by its piece-local offset and
// length.
type Block struct {
	Begin  int64
	Length int64
}

// Piece joins the immutable plan entry for one piece index with the mutable
// download state of its blocks. Plan fields are never written after NewPlan;
// block state is guarded for concurrent delivery from multiple peers.
type Piece struct {
	Index int

	// Blocks are in ascending begin order. Every block is BlockLength bytes
	// except possibly the last.
	Blocks []Block

	// FileName is the file this piece lives in. Fractured pieces carry both
	// names joined by "|".
	FileName string

	// FileIdx is the byte offset of the piece start inside its (first) file.
	FileIdx int64

	// InConflict marks a piece which straddles a file boundary.
	InConflict bool

	// FractureIdx is the absolute offset of the fracture within the piece
	// stream. Meaningful only when InConflict.
	FractureIdx int64

	mu               sync.Mutex
	status           pieceStatus
	downloadedBlocks *bitset.BitSet
	data             [][]byte
}

func newPiece(
	index int,
	blocks []Block,
	fileName string,
	fileIdx int64,
	inConflict bool,
	fractureIdx int64) *Piece {

	return &Piece{
		Index:            index,
		Blocks:           blocks,
		FileName:         fileName,
		FileIdx:          fileIdx,
		InConflict:       inConflict,
		FractureIdx:      fractureIdx,
		downloadedBlocks: bitset.New(uint(len(blocks))),
		data:             make([][]byte, len(blocks)),
	}
}

// Length returns the total byte length of the piece.
func (p *Piece) Length() int64 {
	var n int64
	for _, b := range p.Blocks {
		n += b.Length
	}
	return n
}

// SaveBlock stores data for the block starting at begin. Duplicate deliveries
// overwrite with identical data and are not an error.
func (p *Piece) SaveBlock(begin int64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == _verified {
		return ErrPieceVerified
	}
	for i, b := range p.Blocks {
		if b.Begin != begin {
			continue
		}
		if int64(len(data)) != b.Length {
			return fmt.Errorf(
				"invalid block length at begin %d: expected %d, got %d", begin, b.Length, len(data))
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		p.data[i] = buf
		p.downloadedBlocks.Set(uint(i))
		return nil
	}
	return ErrBlockNotFound
}

// Complete returns true once every block of the piece has been saved.
func (p *Piece) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.downloadedBlocks.Count() == uint(len(p.Blocks))
}

// Data concatenates the saved block buffers in block order. Must only be
// called once the piece is complete.
func (p *Piece) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, 0, p.Length())
	for _, b := range p.data {
		buf = append(buf, b...)
	}
	return buf
}

// Flush releases all block buffers and clears the downloaded bitmap. Called
// by the writer after the piece hits disk, and on hash failure to restart the
// piece from scratch.
func (p *Piece) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.data {
		p.data[i] = nil
	}
	p.downloadedBlocks.ClearAll()
}

// TryMarkInProgress transitions the piece from pending to in-progress.
// Returns false if the piece is already assigned or verified.
func (p *Piece) TryMarkInProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != _pending {
		return false
	}
	p.status = _inProgress
	return true
}

// MarkPending reverts the piece to pending, making it assignable again.
func (p *Piece) MarkPending() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != _verified {
		p.status = _pending
	}
}

// MarkVerified transitions the piece to its terminal verified state.
func (p *Piece) MarkVerified() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = _verified
}

// Verified returns true if the piece hash has been checked successfully.
func (p *Piece) Verified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status == _verified
}

// InProgress returns true if the piece is assigned to some peer.
func (p *Piece) InProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status == _inProgress
}

func (p *Piece) String() string {
	return fmt.Sprintf(
		"piece(index=%d, blocks=%d, file=%s, conflict=%t)",
		p.Index, len(p.Blocks), p.FileName, p.InConflict)
}
