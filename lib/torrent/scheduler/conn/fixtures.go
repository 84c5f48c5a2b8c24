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
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
)

// SendTestMessage writes msg onto a raw socket, for scripting the remote
// side of a conversation in tests.
func SendTestMessage(nc net.Conn, msg *Message) error {
	return sendMessageWithTimeout(nc, msg, 10*time.Second)
}

// ReadTestMessage reads one message off a raw socket, for scripting the
// remote side of a conversation in tests.
func ReadTestMessage(nc net.Conn, timeout time.Duration) (*Message, error) {
	return readMessageWithTimeout(nc, timeout)
}

// HandshakerFixture returns a Handshaker with a random local peer id and
// no-op observability, suitable for tests.
func HandshakerFixture(config Config) *Handshaker {
	return NewHandshaker(
		config, tally.NoopScope, clock.New(), core.PeerIDFixture(), zap.NewNop().Sugar())
}

// PipeConnFixture returns a started Conn wrapping one end of an in-memory
// pipe, alongside the raw other end for scripting the remote side.
func PipeConnFixture(config Config, infoHash core.InfoHash) (*Conn, net.Conn) {
	local, remote := net.Pipe()
	c, err := newConn(
		config.applyDefaults(),
		tally.NoopScope,
		clock.New(),
		local,
		core.PeerIDFixture(),
		core.PeerIDFixture(),
		infoHash,
		zap.NewNop().Sugar())
	if err != nil {
		panic(err)
	}
	c.Start()
	return c, remote
}
