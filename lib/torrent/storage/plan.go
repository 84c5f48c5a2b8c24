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

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/utils/log"
)

// Plan is the immutable piece/block/file layout derived from a metainfo. It
// records, for every piece, which file(s) it lands in and where, including
// pieces which straddle a file boundary in multi-file torrents.
type Plan struct {
	mi     *core.MetaInfo
	pieces []*Piece
}

// NewPlan builds the plan for mi.
//
// The layout assumes no file is smaller than one piece; a fracture which
// falls entirely before the current piece would mean a file fit inside a
// single piece, and is reported as an anomaly rather than mapped.
func NewPlan(mi *core.MetaInfo) (*Plan, error) {
	files := mi.Files()
	fractures := mi.Fractures()
	pieceLength := mi.PieceLength()

	var pieces []*Piece
	fileIter := 0
	fracture := int64(0)
	for i := 0; i < mi.NumPieces(); i++ {
		pieceBeg := int64(i) * pieceLength
		pieceEnd := pieceBeg + pieceLength

		fileName := mi.Name()
		fileIdx := pieceBeg - fracture
		inConflict := false
		fractureIdx := int64(0)

		if mi.Mode() == core.ModeMultiple {
			if len(fractures)-fileIter > 1 && fractures[fileIter] <= pieceEnd {
				f := fractures[fileIter]
				switch {
				case f > pieceBeg && f < pieceEnd:
					// The piece starts in one file and ends in the next.
					inConflict = true
					fractureIdx = f
					fileName = files[fileIter].Name() + "|" + files[fileIter+1].Name()
					fracture = f
					fileIter++
				case f == pieceEnd:
					// The file ends exactly on the piece boundary; the piece
					// belongs wholly to the current file.
					fileName = files[fileIter].Name()
					fracture = f
					fileIter++
				default:
					// A whole file fits inside this piece, which violates the
					// file >= piece length assumption.
					log.Errorf(
						"Piece %d covers the entire file ending at offset %d; mapping to %s",
						i, f, files[fileIter].Name())
					fileName = files[fileIter].Name()
				}
			} else {
				fileName = files[fileIter].Name()
			}
		}

		pieces = append(pieces, newPiece(
			i, planBlocks(mi.GetPieceLength(i)), fileName, fileIdx, inConflict, fractureIdx))
	}

	return &Plan{mi: mi, pieces: pieces}, nil
}

// planBlocks cuts a piece of the given length into blocks. All blocks are
// BlockLength except possibly the last.
func planBlocks(pieceLength int64) []Block {
	var blocks []Block
	for begin := int64(0); begin < pieceLength; begin += BlockLength {
		length := int64(BlockLength)
		if rest := pieceLength - begin; rest < length {
			length = rest
		}
		blocks = append(blocks, Block{Begin: begin, Length: length})
	}
	return blocks
}

// NumPieces returns the number of planned pieces.
func (p *Plan) NumPieces() int {
	return len(p.pieces)
}

// Piece returns the piece at index i.
func (p *Plan) Piece(i int) (*Piece, error) {
	if i < 0 || i >= len(p.pieces) {
		return nil, fmt.Errorf("invalid piece index %d: num pieces = %d", i, len(p.pieces))
	}
	return p.pieces[i], nil
}

// Pieces returns all pieces in index order.
func (p *Plan) Pieces() []*Piece {
	return p.pieces
}

// MetaInfo returns the metainfo the plan was built from.
func (p *Plan) MetaInfo() *core.MetaInfo {
	return p.mi
}
