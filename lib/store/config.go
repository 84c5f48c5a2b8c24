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
package store

// Config defines FileWriter configuration.
type Config struct {

	// QueueSize is the buffer size of the write-job queue consumed by the
	// writer. Producers block once the queue fills.
	QueueSize int `yaml:"queue_size"`
}

func (c Config) applyDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	return c
}
