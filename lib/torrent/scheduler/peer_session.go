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
	"fmt"

	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/conn"
	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/dispatch"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
)

// peerSession drives one established connection: it reacts to the remote
// peer's messages, keeps at most the configured number of block requests in
// flight, and walks pieces block by block, pulling a new assignment from the
// dispatcher whenever the current piece's block list is exhausted.
type peerSession struct {
	dispatcher    *dispatch.Dispatcher
	conn          *conn.Conn
	inFlightLimit int

	// Remote state. bitfield is nil until the peer announces it; choked
	// follows the remote's choke/unchoke messages and starts out choked.
	bitfield *bitset.BitSet
	choked   bool

	inFlight int

	// Cursor over the blocks of the currently assigned piece.
	current  *storage.Piece
	blockIdx int

	logger *zap.SugaredLogger
}

func newPeerSession(
	d *dispatch.Dispatcher,
	c *conn.Conn,
	inFlightLimit int,
	logger *zap.SugaredLogger) *peerSession {

	return &peerSession{
		dispatcher:    d,
		conn:          c,
		inFlightLimit: inFlightLimit,
		choked:        true,
		logger:        logger,
	}
}

// run converses until the connection closes, a protocol violation occurs, or
// the torrent completes. The connection is always closed on exit.
func (s *peerSession) run() error {
	defer s.conn.Close()
	defer func() {
		if s.bitfield != nil {
			s.dispatcher.UnregisterPeerBitfield(s.bitfield)
		}
	}()

	for msg := range s.conn.Receiver() {
		if err := s.handle(msg); err != nil {
			return err
		}
		if s.dispatcher.Complete() {
			return nil
		}
		// Top up the request pipeline after every message.
		if err := s.maybeRequestBlocks(); err != nil {
			return err
		}
	}
	if s.dispatcher.Complete() {
		return nil
	}
	return fmt.Errorf("connection closed mid-download")
}

func (s *peerSession) handle(msg *conn.Message) error {
	if msg.KeepAlive {
		return nil
	}
	switch msg.ID {
	case conn.MsgChoke:
		s.choked = true
	case conn.MsgUnchoke:
		s.choked = false
	case conn.MsgInterested, conn.MsgNotInterested:
		// Recorded implicitly; we never upload, so remote interest does not
		// change our behavior.
	case conn.MsgHave:
		// The in-order picker does not react to late piece announcements.
		if _, err := msg.ParseHave(); err != nil {
			return err
		}
	case conn.MsgBitfield:
		return s.handleBitfield(msg)
	case conn.MsgPiece:
		return s.handlePiece(msg)
	default:
		return conn.ProtocolViolationError{
			Reason: fmt.Sprintf("unexpected message id %d", msg.ID)}
	}
	return nil
}

func (s *peerSession) handleBitfield(msg *conn.Message) error {
	b, err := msg.ParseBitfield(s.dispatcher.NumPieces())
	if err != nil {
		return err
	}
	if s.bitfield != nil {
		return conn.ProtocolViolationError{Reason: "repeated bitfield message"}
	}
	s.bitfield = b
	s.dispatcher.RegisterPeerBitfield(b)
	if err := s.conn.Send(conn.NewInterestedMessage()); err != nil {
		return fmt.Errorf("send interested: %s", err)
	}
	return nil
}

func (s *peerSession) handlePiece(msg *conn.Message) error {
	index, begin, block, err := msg.ParsePiece()
	if err != nil {
		return err
	}
	if s.inFlight > 0 {
		s.inFlight--
	}
	if err := s.dispatcher.OnBlockReceived(index, begin, block); err != nil {
		return fmt.Errorf("block received: %s", err)
	}
	return nil
}

// maybeRequestBlocks issues block requests until the in-flight cap is reached
// or the peer has nothing left to offer us.
func (s *peerSession) maybeRequestBlocks() error {
	if s.choked || s.bitfield == nil {
		return nil
	}
	for s.inFlight < s.inFlightLimit {
		piece, block, ok := s.nextBlock()
		if !ok {
			return nil
		}
		if err := s.conn.Send(conn.NewRequestMessage(piece.Index, block.Begin, block.Length)); err != nil {
			return fmt.Errorf("send request: %s", err)
		}
		s.inFlight++
	}
	return nil
}

// nextBlock yields the next (piece, block) to request, spanning pieces: when
// the current piece's blocks are exhausted, the next piece is pulled from the
// dispatcher.
func (s *peerSession) nextBlock() (*storage.Piece, storage.Block, bool) {
	for {
		if s.current != nil && s.blockIdx < len(s.current.Blocks) {
			block := s.current.Blocks[s.blockIdx]
			s.blockIdx++
			return s.current, block, true
		}
		piece, ok := s.dispatcher.ReservePiece(s.bitfield)
		if !ok {
			return nil, storage.Block{}, false
		}
		s.log("piece", piece.Index).Debug("Assigned piece")
		s.current = piece
		s.blockIdx = 0
	}
}

func (s *peerSession) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "remote_peer", s.conn.PeerID())
	return s.logger.With(keysAndValues...)
}
