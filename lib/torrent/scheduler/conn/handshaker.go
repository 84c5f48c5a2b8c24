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
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
)

const _protocolName = "BitTorrent protocol"

// handshakeLength is the fixed size of the handshake frame: length byte,
// protocol name, 8 reserved bytes, info hash, peer id.
const handshakeLength = 1 + len(_protocolName) + 8 + 20 + 20

// HandshakeMismatchError is returned when the remote peer handshakes for a
// different torrent than the one we dialed it for.
type HandshakeMismatchError struct {
	Expected core.InfoHash
	Actual   core.InfoHash
}

func (e HandshakeMismatchError) Error() string {
	return fmt.Sprintf("handshake info hash mismatch: expected %s, actual %s", e.Expected, e.Actual)
}

// IsHandshakeMismatchError returns true if error type is HandshakeMismatchError.
func IsHandshakeMismatchError(err error) bool {
	switch err.(type) {
	case HandshakeMismatchError:
		return true
	}
	return false
}

// handshake is the 68-byte frame exchanged immediately after connecting.
type handshake struct {
	infoHash core.InfoHash
	peerID   core.PeerID
}

func (h *handshake) encode() []byte {
	b := make([]byte, 0, handshakeLength)
	b = append(b, byte(len(_protocolName)))
	b = append(b, _protocolName...)
	b = append(b, make([]byte, 8)...)
	b = append(b, h.infoHash.Bytes()...)
	b = append(b, h.peerID.Bytes()...)
	return b
}

func decodeHandshake(r io.Reader) (*handshake, error) {
	buf := make([]byte, handshakeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read frame: %s", err)
	}
	if buf[0] != byte(len(_protocolName)) ||
		!bytes.Equal(buf[1:1+len(_protocolName)], []byte(_protocolName)) {
		return nil, ProtocolViolationError{"unrecognized protocol name"}
	}
	var h handshake
	copy(h.infoHash[:], buf[1+len(_protocolName)+8:])
	copy(h.peerID[:], buf[1+len(_protocolName)+8+20:])
	return &h, nil
}

// Handshaker upgrades peer endpoints into established Conns by performing
// the handshake exchange.
type Handshaker struct {
	config Config
	stats  tally.Scope
	clk    clock.Clock
	peerID core.PeerID
	logger *zap.SugaredLogger
}

// NewHandshaker creates a new Handshaker which advertises peerID.
func NewHandshaker(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peerID core.PeerID,
	logger *zap.SugaredLogger) *Handshaker {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "conn",
	})

	return &Handshaker{
		config: config,
		stats:  stats,
		clk:    clk,
		peerID: peerID,
		logger: logger,
	}
}

// Initialize dials addr and performs the full handshake for infoHash.
// Returns an established Conn whose remote peer id has been recorded (but
// not validated -- peers are free to choose their own ids).
func (h *Handshaker) Initialize(addr string, infoHash core.InfoHash) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, h.config.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	c, err := h.fullHandshake(nc, infoHash)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (h *Handshaker) fullHandshake(nc net.Conn, infoHash core.InfoHash) (*Conn, error) {
	hs := &handshake{infoHash: infoHash, peerID: h.peerID}

	// NOTE: We do not use the clock interface here because the net package uses
	// the system clock when evaluating deadlines.
	if err := nc.SetWriteDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set write deadline: %s", err)
	}
	if _, err := nc.Write(hs.encode()); err != nil {
		return nil, fmt.Errorf("send handshake: %s", err)
	}

	if err := nc.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	reply, err := decodeHandshake(nc)
	if err != nil {
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	if reply.infoHash != infoHash {
		return nil, HandshakeMismatchError{Expected: infoHash, Actual: reply.infoHash}
	}

	return newConn(h.config, h.stats, h.clk, nc, h.peerID, reply.peerID, infoHash, h.logger)
}
