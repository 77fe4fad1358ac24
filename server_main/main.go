// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/StarblitzStudios/starblitz/server"
	"github.com/StarblitzStudios/starblitz/server/cache"
	"github.com/StarblitzStudios/starblitz/server/db"
	"github.com/StarblitzStudios/starblitz/server/geo"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"golang.org/x/net/netutil"
)

func main() {
	var (
		port            int
		maxConnections  int
		pushConcurrency int
		stage           string
		region          string
		geoEndpoint     string
		redisAddr       string
		streamArn       string
		pushEndpoint    string
		offline         bool
	)

	flag.IntVar(&port, "port", 8192, "http service port")
	flag.IntVar(&maxConnections, "max-connections", 256, "maximum number of inbound TCP connections")
	flag.IntVar(&pushConcurrency, "push-concurrency", server.DefaultPushConcurrency, "maximum in-flight fan-out pushes")
	flag.StringVar(&stage, "stage", envOr("STAGE", "prod"), "deployment stage (table name prefix)")
	flag.StringVar(&region, "region", envOr("AWS_REGION", "us-east-1"), "aws region")
	flag.StringVar(&geoEndpoint, "geo-endpoint", envOr("GEO_ENDPOINT", geo.DefaultEndpoint), "geo-ip lookup endpoint")
	flag.StringVar(&redisAddr, "redis", os.Getenv("REDIS_ADDR"), "redis address for the response cache (empty disables)")
	flag.StringVar(&streamArn, "stream-arn", os.Getenv("SCORES_STREAM_ARN"), "scores table stream arn (empty disables the poller)")
	flag.StringVar(&pushEndpoint, "push-endpoint", os.Getenv("WS_MANAGEMENT_ENDPOINT"), "api gateway management endpoint (empty uses the local hub)")
	flag.BoolVar(&offline, "offline", false, "use the in-memory store (no AWS)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var (
		database db.Database
		memory   *db.MemoryDatabase
		sess     *session.Session
	)
	if offline {
		memory = db.NewMemoryDatabase()
		database = memory
		log.Info("offline mode, using in-memory store")
	} else {
		var err error
		sess, err = session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			log.Error("aws session failed", "error", err)
			os.Exit(1)
		}
		database, err = db.NewDynamoDBDatabase(sess, stage)
		if err != nil {
			log.Error("dynamodb setup failed", "error", err)
			os.Exit(1)
		}
	}

	resolver := geo.NewHTTPResolver(geoEndpoint, geo.DefaultTimeout)
	aggregates := server.NewAggregateUpdater(database, log)
	ingest := server.NewIngestor(database, resolver, aggregates, log)
	queries := server.NewQueries(database)
	registry := server.NewRegistry(database, log)
	hub := server.NewHub(registry, log)

	var pusher server.Pusher = hub
	if pushEndpoint != "" && sess != nil {
		pusher = server.NewAPIGatewayPusher(sess, pushEndpoint)
	}

	fanout := server.NewFanout(queries, registry, pusher, int64(pushConcurrency), log)
	hub.Snapshots = fanout.Snapshots

	ctx := context.Background()

	// Change feed: the memory store raises events in process; the Dynamo
	// store is tailed through its table stream.
	if memory != nil {
		memory.OnChange = func(events []db.ChangeEvent) {
			go func() {
				_ = fanout.HandleBatch(ctx, events)
			}()
		}
	} else if streamArn != "" {
		poller := db.NewStreamPoller(sess, streamArn, fanout.HandleBatch, log)
		go func() {
			if err := poller.Run(ctx); err != nil {
				log.Error("stream poller stopped", "error", err)
			}
		}()
	} else {
		log.Warn("no stream arn configured, realtime fan-out is inactive")
	}

	api := server.NewAPI(ingest, queries, hub, cache.New(redisAddr, cache.DefaultTTL), log)

	l, err := net.Listen("tcp", fmt.Sprint(":", port))
	if err != nil {
		log.Error("listen failed", "error", err)
		os.Exit(1)
	}
	defer l.Close()

	l = netutil.LimitListener(l, maxConnections)

	log.Info("starblitz backend started", "port", port, "stage", stage)
	if err := http.Serve(l, api.Router()); err != nil {
		log.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
