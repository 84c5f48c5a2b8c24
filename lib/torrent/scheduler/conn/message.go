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
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/willf/bitset"

	"github.com/supersaeyan/bittorgo/utils/memsize"
)

// Maximum supported frame size: a piece message carries at most one block
// (16 KiB) plus its header.
const maxMessageSize = 32 * memsize.KB

// ProtocolViolationError is returned when a peer sends a frame the protocol
// does not allow: an unknown message id, a truncated payload, or an oversized
// length prefix.
type ProtocolViolationError struct {
	Reason string
}

func (e ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

// IsProtocolViolationError returns true if error type is ProtocolViolationError.
func IsProtocolViolationError(err error) bool {
	switch err.(type) {
	case ProtocolViolationError:
		return true
	}
	return false
}

// MessageID enumerates peer wire message types.
type MessageID uint8

// Peer wire message ids.
const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// Message is one framed peer wire message. A zero-length frame is a
// keep-alive and carries neither id nor payload.
type Message struct {
	KeepAlive bool
	ID        MessageID
	Payload   []byte
}

func (m *Message) String() string {
	if m.KeepAlive {
		return "message(keep_alive)"
	}
	return fmt.Sprintf("message(%s, payload=%d)", m.ID, len(m.Payload))
}

// NewKeepAliveMessage returns a keep-alive frame.
func NewKeepAliveMessage() *Message {
	return &Message{KeepAlive: true}
}

// NewInterestedMessage returns a Message expressing download interest.
func NewInterestedMessage() *Message {
	return &Message{ID: MsgInterested}
}

// NewChokeMessage returns a choke Message.
func NewChokeMessage() *Message {
	return &Message{ID: MsgChoke}
}

// NewUnchokeMessage returns an unchoke Message.
func NewUnchokeMessage() *Message {
	return &Message{ID: MsgUnchoke}
}

// NewHaveMessage returns a Message announcing possession of piece index.
func NewHaveMessage(index int) *Message {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(index))
	return &Message{ID: MsgHave, Payload: b}
}

// NewRequestMessage returns a Message requesting a block.
func NewRequestMessage(index int, begin, length int64) *Message {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], uint32(index))
	binary.BigEndian.PutUint32(b[4:8], uint32(begin))
	binary.BigEndian.PutUint32(b[8:12], uint32(length))
	return &Message{ID: MsgRequest, Payload: b}
}

// NewPieceMessage returns a Message carrying one block of a piece.
func NewPieceMessage(index int, begin int64, block []byte) *Message {
	b := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(b[0:4], uint32(index))
	binary.BigEndian.PutUint32(b[4:8], uint32(begin))
	copy(b[8:], block)
	return &Message{ID: MsgPiece, Payload: b}
}

// NewBitfieldMessage returns a Message encoding which of numPieces pieces are
// set in b, packed MSB-first.
func NewBitfieldMessage(b *bitset.BitSet, numPieces int) *Message {
	payload := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		if b.Test(uint(i)) {
			payload[i/8] |= 1 << (7 - uint(i)%8)
		}
	}
	return &Message{ID: MsgBitfield, Payload: payload}
}

// ParseHave extracts the piece index of a have message.
func (m *Message) ParseHave() (int, error) {
	if m.ID != MsgHave || len(m.Payload) != 4 {
		return 0, ProtocolViolationError{fmt.Sprintf("malformed have frame: %s", m)}
	}
	return int(binary.BigEndian.Uint32(m.Payload)), nil
}

// ParseRequest extracts the piece index, block begin offset, and block
// length of a request message.
func (m *Message) ParseRequest() (index int, begin, length int64, err error) {
	if m.ID != MsgRequest || len(m.Payload) != 12 {
		return 0, 0, 0, ProtocolViolationError{fmt.Sprintf("malformed request frame: %s", m)}
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int64(binary.BigEndian.Uint32(m.Payload[4:8]))
	length = int64(binary.BigEndian.Uint32(m.Payload[8:12]))
	return index, begin, length, nil
}

// ParsePiece extracts the piece index, block begin offset, and block bytes of
// a piece message.
func (m *Message) ParsePiece() (index int, begin int64, block []byte, err error) {
	if m.ID != MsgPiece || len(m.Payload) < 8 {
		return 0, 0, nil, ProtocolViolationError{fmt.Sprintf("truncated piece frame: %s", m)}
	}
	index = int(binary.BigEndian.Uint32(m.Payload[0:4]))
	begin = int64(binary.BigEndian.Uint32(m.Payload[4:8]))
	return index, begin, m.Payload[8:], nil
}

// ParseBitfield decodes an MSB-first packed bitfield into a set over
// numPieces pieces.
func (m *Message) ParseBitfield(numPieces int) (*bitset.BitSet, error) {
	if m.ID != MsgBitfield {
		return nil, ProtocolViolationError{fmt.Sprintf("not a bitfield frame: %s", m)}
	}
	if len(m.Payload) < (numPieces+7)/8 {
		return nil, ProtocolViolationError{
			fmt.Sprintf("bitfield of %d bytes too short for %d pieces", len(m.Payload), numPieces)}
	}
	b := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		if m.Payload[i/8]&(1<<(7-uint(i)%8)) != 0 {
			b.Set(uint(i))
		}
	}
	return b, nil
}

func sendMessage(nc net.Conn, msg *Message) error {
	var frame []byte
	if msg.KeepAlive {
		frame = make([]byte, 4)
	} else {
		frame = make([]byte, 5+len(msg.Payload))
		binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(msg.Payload)))
		frame[4] = byte(msg.ID)
		copy(frame[5:], msg.Payload)
	}
	for len(frame) > 0 {
		n, err := nc.Write(frame)
		if err != nil {
			return fmt.Errorf("write frame: %s", err)
		}
		frame = frame[n:]
	}
	return nil
}

func sendMessageWithTimeout(nc net.Conn, msg *Message, timeout time.Duration) error {
	// NOTE: We do not use the clock interface here because the net package uses
	// the system clock when evaluating deadlines.
	if err := nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	return sendMessage(nc, msg)
}

func readMessage(nc net.Conn) (*Message, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(nc, lenbuf[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %s", err)
	}
	frameLen := binary.BigEndian.Uint32(lenbuf[:])
	if frameLen == 0 {
		return NewKeepAliveMessage(), nil
	}
	if uint64(frameLen) > maxMessageSize {
		return nil, ProtocolViolationError{
			fmt.Sprintf("frame exceeds max size: %d > %d", frameLen, maxMessageSize)}
	}
	buf := make([]byte, frameLen)
	if _, err := io.ReadFull(nc, buf); err != nil {
		return nil, fmt.Errorf("read frame: %s", err)
	}
	return &Message{ID: MessageID(buf[0]), Payload: buf[1:]}, nil
}

func readMessageWithTimeout(nc net.Conn, timeout time.Duration) (*Message, error) {
	// NOTE: We do not use the clock interface here because the net package uses
	// the system clock when evaluating deadlines.
	if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	return readMessage(nc)
}
