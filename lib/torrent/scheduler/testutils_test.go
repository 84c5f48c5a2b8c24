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
package scheduler

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/conn"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
)

// staticAnnouncer is an announceclient.Client returning a fixed peer list.
type staticAnnouncer struct {
	peers []*core.PeerInfo
}

func (a *staticAnnouncer) Announce(h core.InfoHash) ([]*core.PeerInfo, error) {
	return a.peers, nil
}

func peerInfoFromAddr(t *testing.T, addr string) *core.PeerInfo {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return core.NewPeerInfo(host, port)
}

// seederFixture starts a fake peer seeding content for mi. Closed via the
// returned peer's Close.
func seederFixture(
	t *testing.T, mi *core.MetaInfo, content []byte, corrupt bool) *conn.FakePeer {

	t.Helper()

	peer, err := conn.NewFakePeer(mi.InfoHash())
	require.NoError(t, err)
	go peer.ServeContent(content, mi.PieceLength(), corrupt)
	t.Cleanup(func() { peer.Close() })
	return peer
}

// schedulerFixture wires a Scheduler over plan whose verified pieces land in
// the returned channel.
func schedulerFixture(
	t *testing.T,
	plan *storage.Plan,
	announcer *staticAnnouncer,
	options ...Option) (*Scheduler, chan *storage.WriteJob) {

	t.Helper()

	writer := make(chan *storage.WriteJob, plan.NumPieces())
	s := New(
		Config{},
		tally.NoopScope,
		plan,
		writer,
		announcer,
		core.PeerIDFixture(),
		zap.NewNop().Sugar(),
		options...)
	return s, writer
}
