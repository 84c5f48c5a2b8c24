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
	"fmt"
	"net"
	"time"

	"github.com/willf/bitset"

	"github.com/supersaeyan/bittorgo/core"
)

// FakePeer is an in-process remote peer for testing. It listens on loopback,
// reciprocates handshakes, and hands the raw socket to the test for
// scripting the conversation.
type FakePeer struct {
	PeerID   core.PeerID
	InfoHash core.InfoHash

	listener net.Listener
}

// NewFakePeer starts a FakePeer which handshakes for infoHash.
func NewFakePeer(infoHash core.InfoHash) (*FakePeer, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %s", err)
	}
	return &FakePeer{
		PeerID:   core.PeerIDFixture(),
		InfoHash: infoHash,
		listener: l,
	}, nil
}

// Addr returns the dialable address of the peer.
func (p *FakePeer) Addr() string {
	return p.listener.Addr().String()
}

// Accept blocks for the next inbound connection and completes the handshake
// on it. The returned socket is ready for post-handshake messages.
func (p *FakePeer) Accept() (net.Conn, error) {
	nc, err := p.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept: %s", err)
	}
	if _, err := decodeHandshake(nc); err != nil {
		nc.Close()
		return nil, fmt.Errorf("read handshake: %s", err)
	}
	hs := &handshake{infoHash: p.InfoHash, peerID: p.PeerID}
	if _, err := nc.Write(hs.encode()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("send handshake: %s", err)
	}
	return nc, nil
}

// Close stops the listener.
func (p *FakePeer) Close() error {
	return p.listener.Close()
}

// ServeContent accepts connections until the listener closes and serves them
// blocks of content cut into pieceLength pieces, following the leecher's
// protocol: bitfield on connect, unchoke on interest, piece per request. If
// corrupt is true, every served block has its first byte flipped.
func (p *FakePeer) ServeContent(content []byte, pieceLength int64, corrupt bool) {
	for {
		nc, err := p.Accept()
		if err != nil {
			return
		}
		go p.serveConn(nc, content, pieceLength, corrupt)
	}
}

func (p *FakePeer) serveConn(nc net.Conn, content []byte, pieceLength int64, corrupt bool) {
	defer nc.Close()

	numPieces := int((int64(len(content)) + pieceLength - 1) / pieceLength)
	have := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		have.Set(uint(i))
	}

	if err := sendMessageWithTimeout(nc, NewBitfieldMessage(have, numPieces), 10*time.Second); err != nil {
		return
	}
	for {
		msg, err := readMessageWithTimeout(nc, 30*time.Second)
		if err != nil {
			return
		}
		switch msg.ID {
		case MsgInterested:
			if err := sendMessageWithTimeout(nc, NewUnchokeMessage(), 10*time.Second); err != nil {
				return
			}
		case MsgRequest:
			index, begin, length, err := msg.ParseRequest()
			if err != nil {
				return
			}
			offset := int64(index)*pieceLength + begin
			if offset < 0 || offset+length > int64(len(content)) {
				return
			}
			block := append([]byte{}, content[offset:offset+length]...)
			if corrupt {
				block[0] ^= 0xff
			}
			if err := sendMessageWithTimeout(nc, NewPieceMessage(index, begin, block), 10*time.Second); err != nil {
				return
			}
		}
	}
}
