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

import "time"

// Config defines announce configuration.
type Config struct {

	// Timeout bounds each tracker request. UDP trackers get one timeout per
	// phase (connect, announce).
	Timeout time.Duration `yaml:"timeout"`

	// Port is the listen port advertised to trackers. This client never
	// accepts inbound connections, but the field is mandatory in announces.
	Port int `yaml:"port"`

	// NumWant is how many peers to request per announce.
	NumWant int `yaml:"numwant"`
}

func (c Config) applyDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Port == 0 {
		c.Port = 6881
	}
	if c.NumWant == 0 {
		c.NumWant = 50
	}
	return c
}
