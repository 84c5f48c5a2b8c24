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
package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supersaeyan/bittorgo/utils/bitsetutil"
	"github.com/supersaeyan/bittorgo/utils/randutil"
)

func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- sendMessageWithTimeout(local, msg, time.Second)
	}()
	result, err := readMessageWithTimeout(remote, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	return result
}

func TestMessageRoundTrip(t *testing.T) {
	require := require.New(t)

	block := randutil.Blob(16384)
	tests := []*Message{
		NewKeepAliveMessage(),
		NewInterestedMessage(),
		NewHaveMessage(7),
		NewRequestMessage(3, 16384, 16384),
		NewPieceMessage(3, 16384, block),
		NewBitfieldMessage(bitsetutil.FromBools(true, false, true), 3),
	}
	for _, msg := range tests {
		result := roundTrip(t, msg)
		require.Equal(msg.KeepAlive, result.KeepAlive)
		if !msg.KeepAlive {
			require.Equal(msg.ID, result.ID)
			require.Equal(msg.Payload, result.Payload)
		}
	}
}

func TestMessageParsePiece(t *testing.T) {
	require := require.New(t)

	block := randutil.Blob(100)
	index, begin, data, err := NewPieceMessage(5, 16384, block).ParsePiece()
	require.NoError(err)
	require.Equal(5, index)
	require.Equal(int64(16384), begin)
	require.Equal(block, data)
}

func TestMessageParsePieceTruncated(t *testing.T) {
	require := require.New(t)

	msg := &Message{ID: MsgPiece, Payload: []byte{0, 0, 0}}
	_, _, _, err := msg.ParsePiece()
	require.Error(err)
	require.True(IsProtocolViolationError(err))
}

func TestMessageBitfieldPacking(t *testing.T) {
	require := require.New(t)

	// Piece 0 maps to the high bit of the first byte.
	msg := NewBitfieldMessage(bitsetutil.FromBools(true, false, false, false, false, false, false, false, true, true), 10)
	require.Equal([]byte{0x80, 0xc0}, msg.Payload)

	b, err := msg.ParseBitfield(10)
	require.NoError(err)
	require.True(b.Test(0))
	require.False(b.Test(1))
	require.True(b.Test(8))
	require.True(b.Test(9))
}

func TestMessageBitfieldTooShort(t *testing.T) {
	require := require.New(t)

	msg := &Message{ID: MsgBitfield, Payload: []byte{0xff}}
	_, err := msg.ParseBitfield(9)
	require.Error(err)
	require.True(IsProtocolViolationError(err))
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	require := require.New(t)

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	go local.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err := readMessageWithTimeout(remote, time.Second)
	require.Error(err)
	require.True(IsProtocolViolationError(err))
}
