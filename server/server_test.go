// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/StarblitzStudios/starblitz/server/db"
	"github.com/StarblitzStudios/starblitz/server/geo"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticResolver returns a fixed location, or errors.
type staticResolver struct {
	loc geo.Location
	err error
}

func (r staticResolver) Resolve(ctx context.Context, ip string) (geo.Location, error) {
	if r.err != nil {
		return geo.Unknown, r.err
	}
	return r.loc, nil
}

type testBackend struct {
	db         *db.MemoryDatabase
	aggregates *AggregateUpdater
	ingest     *Ingestor
	queries    *Queries
	registry   *Registry
}

func newTestBackend(resolver geo.Resolver) *testBackend {
	log := testLogger()
	database := db.NewMemoryDatabase()
	aggregates := NewAggregateUpdater(database, log)
	return &testBackend{
		db:         database,
		aggregates: aggregates,
		ingest:     NewIngestor(database, resolver, aggregates, log),
		queries:    NewQueries(database),
		registry:   NewRegistry(database, log),
	}
}

// seedScore writes a score row and folds it into the country aggregate,
// bypassing validation and geo resolution.
func seedScore(t *testing.T, b *testBackend, username, country string, score int) {
	t.Helper()
	require.NoError(t, b.db.PutScore(db.Score{
		ID:           username + "-" + country,
		Username:     username,
		Score:        score,
		SurvivalTime: score / 2,
		DeathCause:   "asteroid",
		Country:      country,
		CountryCode:  "XX",
		Timestamp:    unixMillis(),
		CreatedAt:    isoNow(),
	}))
	b.aggregates.Update(country, score)
}

// fakePusher records pushes per connection and can fail specific ids.
type fakePusher struct {
	mu     sync.Mutex
	pushes map[string][][]byte
	fail   map[string]error
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		pushes: make(map[string][][]byte),
		fail:   make(map[string]error),
	}
}

func (p *fakePusher) Push(ctx context.Context, connectionID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fail[connectionID]; err != nil {
		return err
	}
	p.pushes[connectionID] = append(p.pushes[connectionID], payload)
	return nil
}

func (p *fakePusher) delivered(connectionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes[connectionID])
}
