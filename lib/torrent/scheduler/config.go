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
	"time"

	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler/conn"
	"github.com/supersaeyan/bittorgo/utils/backoff"
)

// Config is the scheduler configuration.
type Config struct {

	// InFlightLimit caps how many block requests a single peer conversation
	// may have outstanding at once.
	InFlightLimit int `yaml:"in_flight_limit"`

	// MaxPeerRetries bounds how many times a single peer endpoint is dialed
	// within one round before it is given up on.
	MaxPeerRetries int `yaml:"max_peer_retries"`

	// RoundInterval is how long the driver loop sleeps when a round yields no
	// usable peers before re-announcing.
	RoundInterval time.Duration `yaml:"round_interval"`

	// PeerBackoff configures the delay between retries of one peer endpoint.
	PeerBackoff backoff.Config `yaml:"peer_backoff"`

	Conn conn.Config `yaml:"conn"`
}

func (c Config) applyDefaults() Config {
	if c.InFlightLimit == 0 {
		c.InFlightLimit = 2
	}
	if c.MaxPeerRetries == 0 {
		c.MaxPeerRetries = 5
	}
	if c.RoundInterval == 0 {
		c.RoundInterval = 5 * time.Second
	}
	return c
}
