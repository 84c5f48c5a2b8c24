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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/utils/randutil"
)

// assemble reconstructs the full content from emitted write jobs.
func assemble(jobs chan *storage.WriteJob, total int) []byte {
	content := make([]byte, total)
	for {
		select {
		case job := <-jobs:
			copy(content[job.AbsOffset:], job.Data)
		default:
			return content
		}
	}
}

func TestSchedulerDownloadSinglePeer(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(100000)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 32768, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	peer := seederFixture(t, mi, content, false)

	var mu sync.Mutex
	var verified []int
	s, writer := schedulerFixture(
		t, plan, &staticAnnouncer{[]*core.PeerInfo{peerInfoFromAddr(t, peer.Addr())}},
		WithPieceListener(func(i int) {
			mu.Lock()
			verified = append(verified, i)
			mu.Unlock()
		}))

	require.NoError(s.Download(context.Background()))
	require.True(s.Dispatcher().Complete())

	require.Equal(content, assemble(writer, len(content)))

	mu.Lock()
	require.Len(verified, plan.NumPieces())
	mu.Unlock()
}

func TestSchedulerDownloadMultiplePeers(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(163840)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	var peers []*core.PeerInfo
	for i := 0; i < 3; i++ {
		peer := seederFixture(t, mi, content, false)
		peers = append(peers, peerInfoFromAddr(t, peer.Addr()))
	}

	s, writer := schedulerFixture(t, plan, &staticAnnouncer{peers})

	require.NoError(s.Download(context.Background()))
	require.Equal(content, assemble(writer, len(content)))
}

func TestSchedulerRecoversFromCorruptPeer(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(32768)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	// One peer serves corrupted blocks, one serves correct ones. Hash
	// mismatches revert pieces to pending until the honest peer supplies
	// them.
	corrupt := seederFixture(t, mi, content, true)
	honest := seederFixture(t, mi, content, false)

	s, writer := schedulerFixture(t, plan, &staticAnnouncer{[]*core.PeerInfo{
		peerInfoFromAddr(t, corrupt.Addr()),
		peerInfoFromAddr(t, honest.Addr()),
	}})

	require.NoError(s.Download(context.Background()))
	require.Equal(content, assemble(writer, len(content)))
}

func TestSchedulerDedupesAnnouncedPeers(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	peer := seederFixture(t, mi, content, false)
	p := peerInfoFromAddr(t, peer.Addr())

	// The same endpoint announced twice results in one conversation's worth
	// of work, not two.
	s, writer := schedulerFixture(t, plan, &staticAnnouncer{[]*core.PeerInfo{p, p}})

	require.NoError(s.Download(context.Background()))
	require.Equal(content, assemble(writer, len(content)))
}

func TestSchedulerDownloadCancelled(t *testing.T) {
	require := require.New(t)

	content := randutil.Blob(16384)
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", 16384, content)
	plan, err := storage.NewPlan(mi)
	require.NoError(err)

	// No peers: the driver loop would spin forever without cancellation.
	s, _ := schedulerFixture(t, plan, &staticAnnouncer{nil})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.Download(ctx) }()
	select {
	case err := <-errc:
		require.Equal(context.Canceled, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}
