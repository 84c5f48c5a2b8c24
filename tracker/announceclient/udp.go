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
package announceclient

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/supersaeyan/bittorgo/core"
)

// BEP 15 protocol constants.
const (
	_udpProtocolMagic = 0x41727101980

	_udpActionConnect  = 0
	_udpActionAnnounce = 1
	_udpActionError    = 3

	_udpEventStarted = 2
)

// announceUDP performs the two-phase BEP 15 exchange: a connect request
// establishing a connection id, then the announce itself. Each phase gets its
// own deadline.
func (c *client) announceUDP(u *url.URL, h core.InfoHash) ([]*core.PeerInfo, error) {
	conn, err := net.DialTimeout("udp", u.Host, c.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	defer conn.Close()

	connID, err := udpConnect(conn, c.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect phase: %s", err)
	}
	peers, err := c.udpAnnounce(conn, connID, h)
	if err != nil {
		return nil, fmt.Errorf("announce phase: %s", err)
	}
	return peers, nil
}

func udpConnect(conn net.Conn, timeout time.Duration) (connID uint64, err error) {
	txID := rand.Uint32()

	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], _udpProtocolMagic)
	binary.BigEndian.PutUint32(req[8:12], _udpActionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("set deadline: %s", err)
	}
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("write request: %s", err)
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, fmt.Errorf("read response: %s", err)
	}
	if n < 16 {
		return 0, fmt.Errorf("short response: %d bytes", n)
	}
	if err := checkUDPHeader(resp, _udpActionConnect, txID); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func (c *client) udpAnnounce(
	conn net.Conn, connID uint64, h core.InfoHash) ([]*core.PeerInfo, error) {

	txID := rand.Uint32()

	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connID)
	binary.BigEndian.PutUint32(req[8:12], _udpActionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], h.Bytes())
	copy(req[36:56], c.peerID.Bytes())
	// downloaded = 0.
	binary.BigEndian.PutUint64(req[64:72], uint64(c.totalLength)) // left
	// uploaded = 0.
	binary.BigEndian.PutUint32(req[80:84], _udpEventStarted)
	// ip = 0 (use sender address).
	binary.BigEndian.PutUint32(req[88:92], rand.Uint32()) // key
	binary.BigEndian.PutUint32(req[92:96], uint32(c.config.NumWant))
	binary.BigEndian.PutUint16(req[96:98], uint16(c.config.Port))

	if err := conn.SetDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %s", err)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %s", err)
	}

	resp := make([]byte, 20+6*c.config.NumWant)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("read response: %s", err)
	}
	if n < 20 {
		return nil, fmt.Errorf("short response: %d bytes", n)
	}
	if err := checkUDPHeader(resp, _udpActionAnnounce, txID); err != nil {
		return nil, err
	}
	return parseCompactPeers(resp[20:n])
}

func checkUDPHeader(resp []byte, wantAction, wantTxID uint32) error {
	action := binary.BigEndian.Uint32(resp[0:4])
	txID := binary.BigEndian.Uint32(resp[4:8])
	if action == _udpActionError {
		return fmt.Errorf("tracker error: %s", resp[8:])
	}
	if action != wantAction {
		return fmt.Errorf("unexpected action %d", action)
	}
	if txID != wantTxID {
		return fmt.Errorf("transaction id mismatch")
	}
	return nil
}
