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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supersaeyan/bittorgo/utils/randutil"
)

func TestMetaInfoSingleFile(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(20000)
	mi, _ := SingleFileMetaInfoFixture("blob.bin", 16384, content)

	require.Equal(ModeSingle, mi.Mode())
	require.Equal("blob.bin", mi.Name())
	require.Equal(int64(16384), mi.PieceLength())
	require.Equal(int64(20000), mi.TotalLength())
	require.Equal(2, mi.NumPieces())
	require.Equal(int64(16384), mi.GetPieceLength(0))
	require.Equal(int64(3616), mi.GetPieceLength(1))
	require.Empty(mi.Fractures())

	files := mi.Files()
	require.Len(files, 1)
	require.Equal("blob.bin", files[0].Name())
	require.Equal(int64(20000), files[0].Length)

	h, err := mi.PieceHash(1)
	require.NoError(err)
	require.Equal([20]byte(sha1.Sum(content[16384:])), h)
}

func TestMetaInfoMultiFile(t *testing.T) {
	require := require.New(t)

	mi, _ := MultiFileMetaInfoFixture("d", 16384, []FileFixture{
		{"a", randutil.Blob(10000)},
		{"b", randutil.Blob(10000)},
	})

	require.Equal(ModeMultiple, mi.Mode())
	require.Equal(int64(20000), mi.TotalLength())
	require.Equal(2, mi.NumPieces())
	require.Equal([]int64{10000, 20000}, mi.Fractures())

	files := mi.Files()
	require.Len(files, 2)
	require.Equal("a", files[0].Name())
	require.Equal("b", files[1].Name())
}

func TestMetaInfoInfoHashByteExact(t *testing.T) {
	require := require.New(t)

	_, blob := SingleFileMetaInfoFixture("blob.bin", 16384, randutil.Blob(32768))

	// The info hash must equal the SHA1 of the raw info value, not of any
	// re-encoding of it.
	start := strings.Index(string(blob), "4:info") + len("4:info")
	raw := blob[start : len(blob)-1]
	expected := NewInfoHashFromBytes(raw)

	mi, err := NewMetaInfoFromBytes(blob)
	require.NoError(err)
	require.Equal(expected, mi.InfoHash())

	// Round-trip: parsing the same bytes yields the same hash.
	mi2, err := NewMetaInfoFromBytes(blob)
	require.NoError(err)
	require.Equal(mi.InfoHash(), mi2.InfoHash())
}

func TestMetaInfoTrackersFiltersIPv6(t *testing.T) {
	require := require.New(t)

	announce := "http://tracker-a.test/announce"
	list := [][]string{
		{"http://tracker-a.test/announce"},
		{"udp://tracker-b.test:1337/announce", "http://ipv6.tracker-c.test/announce"},
	}

	var tiers strings.Builder
	for _, tier := range list {
		tiers.WriteString("l")
		for _, u := range tier {
			fmt.Fprintf(&tiers, "%d:%s", len(u), u)
		}
		tiers.WriteString("e")
	}
	content := randutil.Blob(100)
	info := "d6:lengthi100e4:name1:x12:piece lengthi16384e6:pieces20:" + string(sha1Bytes(content)) + "e"
	blob := fmt.Sprintf("d8:announce%d:%s13:announce-listl%se4:info%se",
		len(announce), announce, tiers.String(), info)

	mi, err := NewMetaInfoFromBytes([]byte(blob))
	require.NoError(err)
	require.Equal([]string{
		"http://tracker-a.test/announce",
		"udp://tracker-b.test:1337/announce",
	}, mi.Trackers())
}

func TestMetaInfoErrors(t *testing.T) {
	tests := []struct {
		desc string
		blob string
	}{
		{"invalid bencoding", "not bencoded at all"},
		{"missing info", "d8:announce3:urle"},
		{"negative piece length", "d4:infod6:lengthi10e4:name1:x12:piece lengthi-1e6:pieces20:aaaaaaaaaaaaaaaaaaaaee"},
		{"ragged hash table", "d4:infod6:lengthi10e4:name1:x12:piece lengthi16384e6:pieces19:aaaaaaaaaaaaaaaaaaaee"},
		{"hash count mismatch", "d4:infod6:lengthi99999e4:name1:x12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaaee"},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, err := NewMetaInfoFromBytes([]byte(test.blob))
			require.Error(t, err)
			require.True(t, IsMalformedMetainfoError(err))
		})
	}
}

func sha1Bytes(b []byte) []byte {
	h := sha1.Sum(b)
	return h[:]
}
