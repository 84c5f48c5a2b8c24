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
package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackpal/bencode-go"
)

// MalformedMetainfoError is returned when a metainfo blob cannot be parsed
// into a usable torrent description.
type MalformedMetainfoError struct {
	Reason string
}

func (e MalformedMetainfoError) Error() string {
	return fmt.Sprintf("malformed metainfo: %s", e.Reason)
}

// IsMalformedMetainfoError returns true if error type is MalformedMetainfoError.
func IsMalformedMetainfoError(err error) bool {
	switch err.(type) {
	case MalformedMetainfoError:
		return true
	}
	return false
}

// Mode enumerates metainfo file layouts.
type Mode string

// Metainfo modes.
const (
	ModeSingle   Mode = "single"
	ModeMultiple Mode = "multiple"
)

// FileInfo describes one file of a torrent: its length and its path
// components relative to the torrent root directory.
type FileInfo struct {
	Length int64
	Path   []string
}

// Name returns the slash-joined path of f.
func (f FileInfo) Name() string {
	return strings.Join(f.Path, "/")
}

// Exported for bencoding.
type metainfoFile struct {
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	Info         infoDict   `bencode:"info"`
}

type infoDict struct {
	PieceLength int64      `bencode:"piece length"`
	Pieces      string     `bencode:"pieces"`
	Name        string     `bencode:"name"`
	Length      int64      `bencode:"length"`
	Files       []fileDict `bencode:"files"`
	Private     int64      `bencode:"private"`
}

type fileDict struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// MetaInfo is an immutable parsed metainfo file. It describes the content
// (piece layout, checksums, file layout) and the trackers which coordinate
// its swarm.
type MetaInfo struct {
	infoHash     InfoHash
	announce     string
	announceList [][]string
	name         string
	mode         Mode
	pieceLength  int64
	pieces       []byte
	totalLength  int64
	files        []FileInfo
	fractures    []int64
	private      bool
}

// NewMetaInfoFromBytes parses a bencoded metainfo blob. The info hash is
// computed over the raw info dictionary bytes, bit-exact, so re-encoding
// differences cannot corrupt the torrent identity.
func NewMetaInfoFromBytes(data []byte) (*MetaInfo, error) {
	var mf metainfoFile
	if err := bencode.Unmarshal(bytes.NewReader(data), &mf); err != nil {
		return nil, MalformedMetainfoError{fmt.Sprintf("bencode: %s", err)}
	}
	if mf.Info.PieceLength == 0 && mf.Info.Pieces == "" {
		return nil, MalformedMetainfoError{"missing info dictionary"}
	}
	if mf.Info.PieceLength <= 0 {
		return nil, MalformedMetainfoError{"piece length must be positive"}
	}
	if len(mf.Info.Pieces)%20 != 0 {
		return nil, MalformedMetainfoError{
			fmt.Sprintf("piece hash table length %d not a multiple of 20", len(mf.Info.Pieces))}
	}

	infoBytes, err := extractInfoBytes(data)
	if err != nil {
		return nil, MalformedMetainfoError{err.Error()}
	}

	mi := &MetaInfo{
		infoHash:     NewInfoHashFromBytes(infoBytes),
		announce:     mf.Announce,
		announceList: mf.AnnounceList,
		name:         mf.Info.Name,
		pieceLength:  mf.Info.PieceLength,
		pieces:       []byte(mf.Info.Pieces),
		private:      mf.Info.Private == 1,
	}

	if mf.Info.Files == nil {
		mi.mode = ModeSingle
		mi.totalLength = mf.Info.Length
		mi.files = []FileInfo{{Length: mf.Info.Length, Path: []string{mf.Info.Name}}}
	} else {
		mi.mode = ModeMultiple
		for _, f := range mf.Info.Files {
			if len(f.Path) == 0 {
				return nil, MalformedMetainfoError{"file entry with empty path"}
			}
			mi.files = append(mi.files, FileInfo{Length: f.Length, Path: f.Path})
			mi.totalLength += f.Length
			mi.fractures = append(mi.fractures, mi.totalLength)
		}
	}

	n := int((mi.totalLength + mi.pieceLength - 1) / mi.pieceLength)
	if n != len(mi.pieces)/20 {
		return nil, MalformedMetainfoError{
			fmt.Sprintf("expected %d piece hashes, got %d", n, len(mi.pieces)/20)}
	}

	return mi, nil
}

// InfoHash returns the torrent InfoHash.
func (mi *MetaInfo) InfoHash() InfoHash {
	return mi.infoHash
}

// Name returns the torrent name: the file name in single mode, the root
// directory name in multiple mode.
func (mi *MetaInfo) Name() string {
	return mi.name
}

// Mode returns the file layout mode.
func (mi *MetaInfo) Mode() Mode {
	return mi.mode
}

// Private returns whether the torrent is marked private.
func (mi *MetaInfo) Private() bool {
	return mi.private
}

// PieceLength returns the nominal piece length. Note, the final piece may be
// shorter than this. Use GetPieceLength for the true lengths of each piece.
func (mi *MetaInfo) PieceLength() int64 {
	return mi.pieceLength
}

// TotalLength returns the total content length across all files.
func (mi *MetaInfo) TotalLength() int64 {
	return mi.totalLength
}

// NumPieces returns the number of pieces in the torrent.
func (mi *MetaInfo) NumPieces() int {
	return len(mi.pieces) / 20
}

// GetPieceLength returns the length of piece i.
func (mi *MetaInfo) GetPieceLength(i int) int64 {
	if i < 0 || i >= mi.NumPieces() {
		return 0
	}
	if i == mi.NumPieces()-1 {
		// Last piece.
		return mi.totalLength - mi.pieceLength*int64(i)
	}
	return mi.pieceLength
}

// PieceHash returns the expected SHA1 of piece i.
func (mi *MetaInfo) PieceHash(i int) ([20]byte, error) {
	if i < 0 || i >= mi.NumPieces() {
		return [20]byte{}, fmt.Errorf("invalid piece index %d: num pieces = %d", i, mi.NumPieces())
	}
	var h [20]byte
	copy(h[:], mi.pieces[i*20:(i+1)*20])
	return h, nil
}

// Files returns the ordered file layout. Single mode returns one entry whose
// path is the torrent name.
func (mi *MetaInfo) Files() []FileInfo {
	return mi.files
}

// Fractures returns the cumulative file end offsets in the concatenated piece
// stream. Nil in single mode.
func (mi *MetaInfo) Fractures() []int64 {
	return mi.fractures
}

// Trackers returns the announce URLs: the top-level announce followed by any
// announce-list entries, IPv6-only trackers filtered, duplicates removed.
func (mi *MetaInfo) Trackers() []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] || strings.Contains(u, "ipv6") {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	add(mi.announce)
	for _, tier := range mi.announceList {
		for _, u := range tier {
			add(u)
		}
	}
	return urls
}

func (mi *MetaInfo) String() string {
	return fmt.Sprintf(
		"metainfo(name=%s, hash=%s, pieces=%d, length=%d)",
		mi.name, mi.infoHash.Hex(), mi.NumPieces(), mi.totalLength)
}

// extractInfoBytes returns the raw bencoded value of the "info" key. The
// value bounds are found by walking the bencode structure, so string values
// containing "e" or nested dictionaries cannot confuse the scan.
func extractInfoBytes(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte("4:info"))
	if idx < 0 {
		return nil, fmt.Errorf("no info dictionary found")
	}
	start := idx + len("4:info")

	depth := 0
	for i := start; i < len(data); i++ {
		switch b := data[i]; {
		case b == 'd' || b == 'l':
			depth++
		case b == 'e':
			depth--
			if depth == 0 {
				return data[start : i+1], nil
			}
		case b == 'i':
			j := i + 1
			for j < len(data) && data[j] != 'e' {
				j++
			}
			if j >= len(data) {
				return nil, fmt.Errorf("unterminated integer at offset %d", i)
			}
			i = j
		case b >= '0' && b <= '9':
			j := i
			for j < len(data) && data[j] >= '0' && data[j] <= '9' {
				j++
			}
			if j >= len(data) || data[j] != ':' {
				return nil, fmt.Errorf("invalid string length at offset %d", i)
			}
			n, err := strconv.Atoi(string(data[i:j]))
			if err != nil {
				return nil, fmt.Errorf("invalid string length at offset %d: %s", i, err)
			}
			i = j + n
		default:
			return nil, fmt.Errorf("unexpected byte %q at offset %d", b, i)
		}
	}
	return nil, fmt.Errorf("unterminated info dictionary")
}
