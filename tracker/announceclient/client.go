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

// Package announceclient obtains peer endpoints from HTTP(S) and UDP
// trackers. Tracker failures are per-URL and non-fatal; an announce succeeds
// if any tracker answers.
package announceclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackpal/bencode-go"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/utils/log"
)

// ErrNoTrackers is returned when the metainfo supplied no usable trackers.
var ErrNoTrackers = errors.New("no trackers available")

// TrackerUnreachableError is returned when every tracker failed and no peers
// were obtained.
type TrackerUnreachableError struct {
	LastErr error
}

func (e TrackerUnreachableError) Error() string {
	return fmt.Sprintf("all trackers unreachable, last error: %s", e.LastErr)
}

// Client defines a client for announcing and getting peers.
type Client interface {
	Announce(h core.InfoHash) ([]*core.PeerInfo, error)
}

type client struct {
	config      Config
	trackers    []string
	peerID      core.PeerID
	totalLength int64
}

// New creates a Client announcing to trackers for a torrent of totalLength
// bytes. peerID must be stable for the session.
func New(config Config, trackers []string, peerID core.PeerID, totalLength int64) Client {
	return &client{
		config:      config.applyDefaults(),
		trackers:    trackers,
		peerID:      peerID,
		totalLength: totalLength,
	}
}

// Announce contacts every tracker and returns the concatenated peer
// endpoints. Callers are expected to de-duplicate. Returns an error only when
// no tracker could be reached at all.
func (c *client) Announce(h core.InfoHash) ([]*core.PeerInfo, error) {
	if len(c.trackers) == 0 {
		return nil, ErrNoTrackers
	}
	var peers []*core.PeerInfo
	var lastErr error
	reached := false
	for _, tracker := range c.trackers {
		result, err := c.announceOne(tracker, h)
		if err != nil {
			log.Warnf("Tracker %s announce failed: %s", tracker, err)
			lastErr = err
			continue
		}
		reached = true
		peers = append(peers, result...)
	}
	if !reached {
		return nil, TrackerUnreachableError{lastErr}
	}
	return peers, nil
}

func (c *client) announceOne(tracker string, h core.InfoHash) ([]*core.PeerInfo, error) {
	u, err := url.Parse(tracker)
	if err != nil {
		return nil, fmt.Errorf("parse url: %s", err)
	}
	switch u.Scheme {
	case "http", "https":
		return c.announceHTTP(u, h)
	case "udp":
		return c.announceUDP(u, h)
	}
	return nil, fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
}

func (c *client) announceHTTP(u *url.URL, h core.InfoHash) ([]*core.PeerInfo, error) {
	q := u.Query()
	q.Set("info_hash", string(h.Bytes()))
	q.Set("peer_id", c.peerID.String())
	q.Set("port", strconv.Itoa(c.config.Port))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", strconv.FormatInt(c.totalLength, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("event", "started")
	q.Set("numwant", strconv.Itoa(c.config.NumWant))
	u.RawQuery = q.Encode()

	httpClient := &http.Client{Timeout: c.config.Timeout}
	resp, err := httpClient.Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("get: %s", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	decoded, err := bencode.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bencode: %s", err)
	}
	reply, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, errors.New("tracker response is not a dictionary")
	}
	if reason, ok := reply["failure reason"].(string); ok && reason != "" {
		return nil, fmt.Errorf("tracker failure: %s", reason)
	}

	switch peers := reply["peers"].(type) {
	case string:
		return parseCompactPeers([]byte(peers))
	case []interface{}:
		return parseDictPeers(peers)
	}
	return nil, errors.New("tracker response missing peers")
}

// parseCompactPeers decodes the 6-bytes-per-peer packed format: 4 IPv4
// octets followed by a big-endian port.
func parseCompactPeers(b []byte) ([]*core.PeerInfo, error) {
	if len(b)%6 != 0 {
		return nil, fmt.Errorf("compact peers length %d not a multiple of 6", len(b))
	}
	var peers []*core.PeerInfo
	for i := 0; i < len(b); i += 6 {
		ip := net.IPv4(b[i], b[i+1], b[i+2], b[i+3]).String()
		port := int(b[i+4])<<8 | int(b[i+5])
		peers = append(peers, core.NewPeerInfo(ip, port))
	}
	return peers, nil
}

func parseDictPeers(entries []interface{}) ([]*core.PeerInfo, error) {
	var peers []*core.PeerInfo
	for _, e := range entries {
		d, ok := e.(map[string]interface{})
		if !ok {
			return nil, errors.New("peer entry is not a dictionary")
		}
		ip, _ := d["ip"].(string)
		port, _ := d["port"].(int64)
		if ip == "" || port == 0 {
			return nil, errors.New("peer entry missing ip or port")
		}
		if strings.Contains(ip, ":") {
			// IPv6 peers are not supported.
			continue
		}
		peers = append(peers, core.NewPeerInfo(ip, int(port)))
	}
	return peers, nil
}
