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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupePeers(t *testing.T) {
	require := require.New(t)

	a := NewPeerInfo("10.0.0.1", 6881)
	b := NewPeerInfo("10.0.0.2", 6881)

	deduped := DedupePeers([]*PeerInfo{a, b, NewPeerInfo("10.0.0.1", 6881), a})
	require.Equal([]*PeerInfo{a, b}, deduped)
}

func TestDedupePeersDistinguishesPorts(t *testing.T) {
	require := require.New(t)

	a := NewPeerInfo("10.0.0.1", 6881)
	b := NewPeerInfo("10.0.0.1", 6882)

	require.Equal([]*PeerInfo{a, b}, DedupePeers([]*PeerInfo{a, b}))
}
