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
package main

import (
	"context"
	"os"

	"github.com/alecthomas/kingpin"
	"github.com/schollz/progressbar/v3"

	"github.com/supersaeyan/bittorgo/core"
	"github.com/supersaeyan/bittorgo/lib/store"
	"github.com/supersaeyan/bittorgo/lib/torrent/scheduler"
	"github.com/supersaeyan/bittorgo/lib/torrent/storage"
	"github.com/supersaeyan/bittorgo/metrics"
	"github.com/supersaeyan/bittorgo/tracker/announceclient"
	"github.com/supersaeyan/bittorgo/utils/configutil"
	"github.com/supersaeyan/bittorgo/utils/log"
	"github.com/supersaeyan/bittorgo/utils/memsize"
)

func main() {
	app := kingpin.New("bittorgo", "Leeching BitTorrent client")
	torrentPath := app.Arg("torrent", "Path to metainfo (.torrent) file").Required().ExistingFile()
	outputDir := app.Flag("output", "Directory to download into").Default("./downloads").String()
	configFile := app.Flag("config", "YAML configuration file").String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	var config Config
	if *configFile != "" {
		if err := configutil.Load(*configFile, &config); err != nil {
			panic(err)
		}
	}
	config = config.applyDefaults()

	zlog := log.ConfigureLogger(config.ZapLogging)
	defer zlog.Sync()
	slogger := zlog.Sugar()

	stats, closer, err := metrics.New(config.Metrics)
	if err != nil {
		log.Fatalf("Failed to init metrics: %s", err)
	}
	defer closer.Close()

	blob, err := os.ReadFile(*torrentPath)
	if err != nil {
		log.Fatalf("Failed to read metainfo file: %s", err)
	}
	mi, err := core.NewMetaInfoFromBytes(blob)
	if err != nil {
		log.Fatalf("Failed to parse metainfo: %s", err)
	}
	log.Infof("Loaded %s (%s)", mi, memsize.Format(uint64(mi.TotalLength())))

	plan, err := storage.NewPlan(mi)
	if err != nil {
		log.Fatalf("Failed to build piece plan: %s", err)
	}

	writer, err := store.NewFileWriter(config.Store, stats, mi, *outputDir, slogger)
	if err != nil {
		log.Fatalf("Failed to create file writer: %s", err)
	}

	peerID := core.RandomPeerID()
	announcer := announceclient.New(config.Announce, mi.Trackers(), peerID, mi.TotalLength())

	bar := progressbar.Default(int64(plan.NumPieces()), mi.Name())
	sched := scheduler.New(
		config.Scheduler,
		stats,
		plan,
		writer.Jobs(),
		announcer,
		peerID,
		slogger,
		scheduler.WithPieceListener(func(int) { bar.Add(1) }))

	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Download(context.Background()) }()

	select {
	case err := <-writerDone:
		// The writer only returns before its queue closes on an io error,
		// which the download cannot recover from.
		log.Fatalf("File writer failed: %s", err)
	case err := <-schedDone:
		if err != nil {
			log.Fatalf("Download failed: %s", err)
		}
	}

	// Drain remaining jobs and release the writer.
	close(writer.Jobs())
	if err := <-writerDone; err != nil {
		log.Fatalf("File writer failed: %s", err)
	}

	log.Infof("Downloaded %s to %s", mi.Name(), *outputDir)
}
