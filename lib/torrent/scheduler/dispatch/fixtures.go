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
package dispatch

import (
	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
)

// Fixture returns a Dispatcher over a single-file torrent holding content,
// alongside the write-job channel it emits to (buffered for every piece).
func Fixture(pieceLength int64, content []byte) (*Dispatcher, chan *storage.WriteJob) {
	mi, _ := core.SingleFileMetaInfoFixture("blob.bin", pieceLength, content)
	plan, err := storage.NewPlan(mi)
	if err != nil {
		panic(err)
	}
	writer := make(chan *storage.WriteJob, plan.NumPieces())
	d := New(tally.NoopScope, clock.New(), plan, writer, NoopEvents{}, zap.NewNop().Sugar())
	return d, writer
}
