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
package syncutil

import "sync"

// Counters provides a list of synchronized counters.
type Counters struct {
	mu     []sync.Mutex
	values []int
}

// NewCounters creates a list of n counters initialized to zero.
func NewCounters(n int) Counters {
	return Counters{
		mu:     make([]sync.Mutex, n),
		values: make([]int, n),
	}
}

// Len returns the number of counters.
func (c Counters) Len() int {
	return len(c.values)
}

// Get returns the value of the ith counter.
func (c Counters) Get(i int) int {
	c.mu[i].Lock()
	defer c.mu[i].Unlock()
	return c.values[i]
}

// Set sets the value of the ith counter.
func (c Counters) Set(i, v int) {
	c.mu[i].Lock()
	defer c.mu[i].Unlock()
	c.values[i] = v
}

// Increment increments the ith counter.
func (c Counters) Increment(i int) {
	c.mu[i].Lock()
	defer c.mu[i].Unlock()
	c.values[i]++
}

// Decrement decrements the ith counter.
func (c Counters) Decrement(i int) {
	c.mu[i].Lock()
	defer c.mu[i].Unlock()
	c.values[i]--
}
