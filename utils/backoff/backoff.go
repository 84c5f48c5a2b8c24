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
package backoff

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// Config defines Backoff configuration.
type Config struct {
	Min          time.Duration `yaml:"min"`
	Max          time.Duration `yaml:"max"`
	Factor       float64       `yaml:"factor"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`
	NoJitter     bool          `yaml:"no_jitter"`
}

func (c Config) applyDefaults() Config {
	if c.Min == 0 {
		c.Min = 250 * time.Millisecond
	}
	if c.Max == 0 {
		c.Max = 30 * time.Second
	}
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.RetryTimeout == 0 {
		c.RetryTimeout = 5 * time.Minute
	}
	return c
}

// Backoff provides thread-safe exponential backoff attempt iterators.
type Backoff struct {
	config Config
}

// New creates a new Backoff.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// Attempts returns a new attempt iterator. The first attempt always executes
// immediately, regardless of the retry timeout.
func (b *Backoff) Attempts() *Attempts {
	e := backoff.NewExponentialBackOff()
	e.InitialInterval = b.config.Min
	e.MaxInterval = b.config.Max
	e.Multiplier = b.config.Factor
	if b.config.NoJitter {
		e.RandomizationFactor = 0
	}
	// The retry timeout is enforced by Attempts against the sum of waits, not
	// by the underlying backoff against wall time.
	e.MaxElapsedTime = 0
	e.Reset()
	return &Attempts{delays: e, timeout: b.config.RetryTimeout}
}

// Attempts is an iterator which yields the next attempt after the proper
// backoff.
type Attempts struct {
	delays  backoff.BackOff
	timeout time.Duration
	elapsed time.Duration
	started bool
	err     error
}

// WaitForNext blocks until the next attempt may execute. Returns false once
// the retry timeout would be exceeded.
func (a *Attempts) WaitForNext() bool {
	if a.err != nil {
		return false
	}
	if !a.started {
		a.started = true
		return true
	}
	d := a.delays.NextBackOff()
	if d == backoff.Stop || a.elapsed+d > a.timeout {
		a.err = errors.New("retry timeout exceeded")
		return false
	}
	time.Sleep(d)
	a.elapsed += d
	return true
}

// Err returns the error which exhausted the attempts, if any.
func (a *Attempts) Err() error {
	return a.err
}
