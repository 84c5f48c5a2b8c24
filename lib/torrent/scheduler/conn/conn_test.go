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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/utils/randutil"
)

func TestConnSendReceive(t *testing.T) {
	require := require.New(t)

	infoHash := core.NewInfoHashFromBytes(randutil.Blob(100))
	c, remote := PipeConnFixture(Config{}, infoHash)
	defer c.Close()
	defer remote.Close()

	// Outbound: Send surfaces on the remote socket.
	require.NoError(c.Send(NewInterestedMessage()))
	msg, err := readMessageWithTimeout(remote, time.Second)
	require.NoError(err)
	require.Equal(MsgInterested, msg.ID)

	// Inbound: remote writes surface on the receiver channel.
	require.NoError(sendMessageWithTimeout(remote, NewHaveMessage(3), time.Second))
	select {
	case received := <-c.Receiver():
		i, err := received.ParseHave()
		require.NoError(err)
		require.Equal(3, i)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConnCloseEndsReceiver(t *testing.T) {
	require := require.New(t)

	infoHash := core.NewInfoHashFromBytes(randutil.Blob(100))
	c, remote := PipeConnFixture(Config{}, infoHash)
	defer remote.Close()

	c.Close()
	require.True(c.IsClosed())

	select {
	case _, ok := <-c.Receiver():
		require.False(ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receiver close")
	}

	require.Error(c.Send(NewInterestedMessage()))
}

func TestConnRemoteCloseEndsReceiver(t *testing.T) {
	require := require.New(t)

	infoHash := core.NewInfoHashFromBytes(randutil.Blob(100))
	c, remote := PipeConnFixture(Config{}, infoHash)
	defer c.Close()

	remote.Close()

	select {
	case _, ok := <-c.Receiver():
		require.False(ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receiver close")
	}
}
