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

// Package scheduler drives a torrent download to completion: it announces for
// peers, opens peer conversations, and repeats in rounds until every piece
// has been verified and handed to the writer.
package scheduler

import (
	"context"
	"fmt"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/syncmap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/conn"
	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/dispatch"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/tracker/announceclient"
	"github.com/supersaeyan/bittorgo/utils/backoff"
)

// Scheduler downloads one torrent. It owns the dispatcher and all peer
// connections; the file writer and tracker client are external collaborators.
type Scheduler struct {
	config     Config
	stats      tally.Scope
	clk        clock.Clock
	mi         *core.MetaInfo
	dispatcher *dispatch.Dispatcher
	announcer  announceclient.Client
	handshaker *conn.Handshaker
	backoff    *backoff.Backoff

	conns syncmap.Map // *conn.Conn -> struct{}

	pieceListener func(index int)

	logger *zap.SugaredLogger
}

// schedOverrides defines scheduler fields which may be overridden for testing
// purposes.
type schedOverrides struct {
	clock         clock.Clock
	pieceListener func(index int)
}

// Option overrides a default scheduler field.
type Option func(*schedOverrides)

// WithClock sets a custom clock.
func WithClock(c clock.Clock) Option {
	return func(o *schedOverrides) { o.clock = c }
}

// WithPieceListener registers a callback invoked after each piece verifies.
func WithPieceListener(f func(index int)) Option {
	return func(o *schedOverrides) { o.pieceListener = f }
}

// New creates a Scheduler for plan. Verified pieces are emitted onto writer;
// the channel is never closed by the Scheduler.
func New(
	config Config,
	stats tally.Scope,
	plan *storage.Plan,
	writer chan<- *storage.WriteJob,
	announcer announceclient.Client,
	peerID core.PeerID,
	logger *zap.SugaredLogger,
	options ...Option) *Scheduler {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "scheduler",
	})

	overrides := schedOverrides{
		clock:         clock.New(),
		pieceListener: func(int) {},
	}
	for _, opt := range options {
		opt(&overrides)
	}

	s := &Scheduler{
		config:        config,
		stats:         stats,
		clk:           overrides.clock,
		mi:            plan.MetaInfo(),
		announcer:     announcer,
		handshaker:    conn.NewHandshaker(config.Conn, stats, overrides.clock, peerID, logger),
		backoff:       backoff.New(config.PeerBackoff),
		pieceListener: overrides.pieceListener,
		logger:        logger,
	}
	s.dispatcher = dispatch.New(stats, overrides.clock, plan, writer, s, logger)
	return s
}

// Dispatcher exposes the piece-state owner, primarily for inspection.
func (s *Scheduler) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Download runs announce/converse rounds until every piece of the torrent has
// been verified, then returns. Returns early with the context error if ctx is
// cancelled.
func (s *Scheduler) Download(ctx context.Context) error {
	for !s.dispatcher.Complete() {
		if err := ctx.Err(); err != nil {
			return err
		}

		peers, err := s.announcer.Announce(s.mi.InfoHash())
		if err != nil {
			s.log().Errorf("Announce round failed: %s", err)
		}
		peers = core.DedupePeers(peers)
		s.log().Infof(
			"Starting round: %d peers, %d / %d pieces verified",
			len(peers), s.dispatcher.NumReceived(), s.dispatcher.NumPieces())

		if len(peers) == 0 {
			s.clk.Sleep(s.config.RoundInterval)
			continue
		}

		var eg errgroup.Group
		for _, p := range peers {
			p := p
			eg.Go(func() error {
				s.runPeer(ctx, p)
				return nil
			})
		}
		eg.Wait()

		// Pieces assigned to peers which died mid-piece revert to pending for
		// the next round.
		s.dispatcher.ClearInProgress()
	}
	s.log().Info("Download complete")
	return nil
}

// runPeer dials p and converses until the torrent completes or the endpoint's
// retry budget is exhausted. All peer-level errors are local: they terminate
// this peer only.
func (s *Scheduler) runPeer(ctx context.Context, p *core.PeerInfo) {
	attempts := s.backoff.Attempts()
	for i := 0; i < s.config.MaxPeerRetries && attempts.WaitForNext(); i++ {
		if s.dispatcher.Complete() || ctx.Err() != nil {
			return
		}
		if err := s.runPeerOnce(p); err != nil {
			s.stats.Counter("peer_failures").Inc(1)
			s.log("peer", p, "attempt", i+1).Infof("Peer conversation failed: %s", err)
			continue
		}
		return
	}
}

func (s *Scheduler) runPeerOnce(p *core.PeerInfo) error {
	c, err := s.handshaker.Initialize(p.Addr(), s.mi.InfoHash())
	if err != nil {
		return fmt.Errorf("handshake: %s", err)
	}
	c.Start()
	s.conns.Store(c, struct{}{})
	defer s.conns.Delete(c)

	sess := newPeerSession(s.dispatcher, c, s.config.InFlightLimit, s.logger)
	return sess.run()
}

// PieceVerified implements dispatch.Events.
func (s *Scheduler) PieceVerified(index int) {
	s.pieceListener(index)
}

// DownloadComplete implements dispatch.Events. Closes all live connections so
// peer sessions blocked on reads exit promptly instead of timing out.
func (s *Scheduler) DownloadComplete() {
	s.conns.Range(func(k, v interface{}) bool {
		k.(*conn.Conn).Close()
		return true
	})
}

func (s *Scheduler) log(args ...interface{}) *zap.SugaredLogger {
	args = append(args, "hash", s.mi.InfoHash())
	return s.logger.With(args...)
}
