// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/StarblitzStudios/starblitz/server/db"
	"golang.org/x/sync/semaphore"
)

// Pusher delivers one payload to one live connection. Implementations
// return ErrConnectionGone when the target no longer exists.
type Pusher interface {
	Push(ctx context.Context, connectionID string, payload []byte) error
}

const (
	// fanoutTopN is the size of the pushed snapshots.
	fanoutTopN = 10

	// DefaultPushConcurrency caps in-flight pushes. The source system
	// pushed unbounded; bounding it is the scalability fix for large
	// viewer counts.
	DefaultPushConcurrency = 32
)

// Fanout recomputes fresh leaderboard snapshots on score changes and
// pushes them to every registered connection, pruning stale ones.
type Fanout struct {
	queries  *Queries
	registry *Registry
	pusher   Pusher
	sem      *semaphore.Weighted
	log      *slog.Logger
}

func NewFanout(queries *Queries, registry *Registry, pusher Pusher, concurrency int64, log *slog.Logger) *Fanout {
	if concurrency <= 0 {
		concurrency = DefaultPushConcurrency
	}
	return &Fanout{
		queries:  queries,
		registry: registry,
		pusher:   pusher,
		sem:      semaphore.NewWeighted(concurrency),
		log:      log,
	}
}

// HandleBatch processes one change-stream batch. Inserts and modifies
// trigger a broadcast; everything else is ignored. A failure inside one
// record's broadcast is logged and swallowed so one bad record cannot
// block the rest of the batch, and so a host-level batch retry does not
// re-broadcast to already-notified viewers.
func (f *Fanout) HandleBatch(ctx context.Context, events []db.ChangeEvent) error {
	for _, event := range events {
		if event.EventName != db.EventInsert && event.EventName != db.EventModify {
			continue
		}

		if err := f.broadcast(ctx); err != nil {
			f.log.Error("broadcast failed", "scoreId", event.Record.ID, "error", err)
		}
	}
	return nil
}

// Snapshots builds the two typed messages from current store state.
// Always a full recompute, never incremental.
func (f *Fanout) Snapshots(ctx context.Context) ([][]byte, error) {
	leaderboard, err := f.queries.TopScores(fanoutTopN)
	if err != nil {
		return nil, err
	}
	countries, err := f.queries.TopCountries(fanoutTopN)
	if err != nil {
		return nil, err
	}

	now := isoNow()
	global, err := json.Marshal(GlobalMessage{Type: "global", Leaderboard: leaderboard, Timestamp: now})
	if err != nil {
		return nil, err
	}
	byCountry, err := json.Marshal(CountriesMessage{Type: "countries", Countries: countries, Timestamp: now})
	if err != nil {
		return nil, err
	}
	return [][]byte{global, byCountry}, nil
}

// broadcast settles every push, success or failure; one slow or broken
// connection never short-circuits delivery to the rest.
func (f *Fanout) broadcast(ctx context.Context) error {
	payloads, err := f.Snapshots(ctx)
	if err != nil {
		return err
	}

	ids, err := f.registry.Active()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer f.sem.Release(1)
			f.push(ctx, id, payloads)
		}(id)
	}
	wg.Wait()
	return nil
}

func (f *Fanout) push(ctx context.Context, connectionID string, payloads [][]byte) {
	for _, payload := range payloads {
		err := f.pusher.Push(ctx, connectionID, payload)
		if err == nil {
			metricFanoutPushes.Inc()
			continue
		}

		if errors.Is(err, ErrConnectionGone) {
			// Self-healing: drop the stale row as a side effect and
			// keep going with the other connections.
			if derr := f.registry.Unregister(connectionID); derr != nil {
				f.log.Warn("stale connection cleanup failed", "connection", connectionID, "error", derr)
			}
			metricStaleConnections.Inc()
		} else {
			f.log.Warn("push failed", "connection", connectionID, "error", err)
		}
		return
	}
}
