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
	"crypto/sha1"
	"fmt"
	"strings"
)

// PeerIDFixture returns a random PeerID.
func PeerIDFixture() PeerID {
	return RandomPeerID()
}

// FileFixture pairs a file name with its content for multi-file torrent
// fixtures.
type FileFixture struct {
	Name    string
	Content []byte
}

// SingleFileMetaInfoFixture returns the metainfo of a single-file torrent
// holding content, alongside its raw bencoded bytes.
func SingleFileMetaInfoFixture(name string, pieceLength int64, content []byte) (*MetaInfo, []byte) {
	info := fmt.Sprintf(
		"d6:lengthi%de4:name%d:%s12:piece lengthi%de6:pieces%d:%s",
		len(content), len(name), name, pieceLength, sha1PieceTableLen(content, pieceLength),
		sha1PieceTable(content, pieceLength))
	return metaInfoFixture(info + "e")
}

// MultiFileMetaInfoFixture returns the metainfo of a multi-file torrent whose
// concatenated content is the files' contents in order, alongside its raw
// bencoded bytes.
func MultiFileMetaInfoFixture(name string, pieceLength int64, files []FileFixture) (*MetaInfo, []byte) {
	var content []byte
	var entries strings.Builder
	for _, f := range files {
		content = append(content, f.Content...)
		var path strings.Builder
		for _, component := range strings.Split(f.Name, "/") {
			path.WriteString(fmt.Sprintf("%d:%s", len(component), component))
		}
		entries.WriteString(fmt.Sprintf(
			"d6:lengthi%de4:pathl%see", len(f.Content), path.String()))
	}
	info := fmt.Sprintf(
		"d5:filesl%se4:name%d:%s12:piece lengthi%de6:pieces%d:%s",
		entries.String(), len(name), name, pieceLength,
		sha1PieceTableLen(content, pieceLength), sha1PieceTable(content, pieceLength))
	return metaInfoFixture(info + "e")
}

func metaInfoFixture(info string) (*MetaInfo, []byte) {
	announce := "http://tracker.bittorgo.test/announce"
	blob := []byte(fmt.Sprintf("d8:announce%d:%s4:info%se", len(announce), announce, info))
	mi, err := NewMetaInfoFromBytes(blob)
	if err != nil {
		panic(err)
	}
	return mi, blob
}

func sha1PieceTable(content []byte, pieceLength int64) string {
	var table []byte
	for start := int64(0); start < int64(len(content)); start += pieceLength {
		end := start + pieceLength
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		h := sha1.Sum(content[start:end])
		table = append(table, h[:]...)
	}
	return string(table)
}

func sha1PieceTableLen(content []byte, pieceLength int64) int {
	return len(sha1PieceTable(content, pieceLength))
}
