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
	"bytes"
	"errors"
	"math/rand"
)

// ErrInvalidPeerIDLength returns when a string peer id is not exactly 20 bytes.
var ErrInvalidPeerIDLength = errors.New("peer id has invalid length")

// _peerIDPrefix identifies this client in the swarm. The remaining 18 bytes
// are random lowercase alphanumerics, fixed for the lifetime of a session.
const _peerIDPrefix = "SA"

const _peerIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// PeerID is the fixed-size peer id advertised in announces and handshakes.
type PeerID [20]byte

// NewPeerID converts s into a PeerID. Must encode exactly 20 bytes.
func NewPeerID(s string) (PeerID, error) {
	if len(s) != 20 {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], s)
	return p, nil
}

// NewPeerIDFromBytes converts raw bytes into a PeerID.
func NewPeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 20 {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

// RandomPeerID generates a session peer id: the client prefix followed by 18
// random ASCII characters.
func RandomPeerID() PeerID {
	var p PeerID
	copy(p[:], _peerIDPrefix)
	for i := len(_peerIDPrefix); i < len(p); i++ {
		p[i] = _peerIDAlphabet[rand.Intn(len(_peerIDAlphabet))]
	}
	return p
}

// Bytes converts p to raw bytes.
func (p PeerID) Bytes() []byte {
	return p[:]
}

// LessThan returns whether p is less than o.
func (p PeerID) LessThan(o PeerID) bool {
	return bytes.Compare(p[:], o[:]) == -1
}

func (p PeerID) String() string {
	return string(p[:])
}
