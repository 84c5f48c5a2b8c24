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
	"fmt"

	"github.com/supersaeyan/bittorgo/utils/stringset"
)

// PeerInfo is an IPv4 peer endpoint returned by a tracker.
type PeerInfo struct {
	IP   string
	Port int
}

// NewPeerInfo creates a new PeerInfo.
func NewPeerInfo(ip string, port int) *PeerInfo {
	return &PeerInfo{IP: ip, Port: port}
}

// Addr returns the dialable "ip:port" address of p.
func (p *PeerInfo) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

func (p *PeerInfo) String() string {
	return p.Addr()
}

// DedupePeers returns peers with duplicate endpoints removed, preserving the
// order of first appearance.
func DedupePeers(peers []*PeerInfo) []*PeerInfo {
	seen := stringset.New()
	var result []*PeerInfo
	for _, p := range peers {
		if seen.Has(p.Addr()) {
			continue
		}
		seen.Add(p.Addr())
		result = append(result, p)
	}
	return result
}
