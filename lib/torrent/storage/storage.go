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

// Package storage holds the immutable piece plan derived from a metainfo and
// the runtime block state of each piece as it is downloaded.
package storage

import "errors"

// BlockLength is the fixed transfer unit requested from peers. Only the last
// block of a piece may be shorter; when the piece length is a multiple of
// BlockLength, that is only the final block of the final piece.
const BlockLength = 16384

// ErrPieceVerified occurs when a block is delivered for a piece which has
// already been verified and handed off.
var ErrPieceVerified = errors.New("piece is already verified")

// ErrBlockNotFound occurs when a delivered block's begin offset matches no
// block of the piece.
var ErrBlockNotFound = errors.New("no block with matching begin offset")

// WriteJob carries one verified piece to the file writer. Piece retains the
// block buffers until the writer flushes them to disk.
type WriteJob struct {
	AbsOffset   int64
	FileIdx     int64
	Data        []byte
	InConflict  bool
	FractureIdx int64
	FileName    string
	Piece       *Piece
}
