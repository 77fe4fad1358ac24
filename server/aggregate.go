// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log/slog"

	"github.com/StarblitzStudios/starblitz/server/db"
	"github.com/StarblitzStudios/starblitz/server/geo"
)

// AggregateUpdater maintains the per-country running totals. It is a
// read-modify-write without compare-and-swap: concurrent updates to the
// same country can lose an increment. The leaderboard is approximate, not
// a ledger, so that relaxation is accepted rather than papered over.
type AggregateUpdater struct {
	db  db.Database
	log *slog.Logger
}

func NewAggregateUpdater(database db.Database, log *slog.Logger) *AggregateUpdater {
	return &AggregateUpdater{db: database, log: log}
}

// Update folds one score into the country's aggregate. Storage failures
// are logged and swallowed; a failed aggregate must never fail the score
// submission that triggered it.
func (u *AggregateUpdater) Update(country string, score int) {
	if country == "" || country == geo.Unknown.Country {
		return
	}

	row, exists, err := u.db.GetCountry(country)
	if err != nil {
		u.log.Error("country aggregate read failed", "country", country, "error", err)
		metricAggregateFailures.Inc()
		return
	}

	now := isoNow()
	if exists {
		row.TotalScore += score
		row.PlayerCount++
		// Derived, never independently accumulated.
		row.AverageScore = row.TotalScore / row.PlayerCount
		row.LastUpdated = now
	} else {
		row = db.Country{
			Country:      country,
			TotalScore:   score,
			PlayerCount:  1,
			AverageScore: score,
			CreatedAt:    now,
			LastUpdated:  now,
		}
	}

	if err := u.db.PutCountry(row); err != nil {
		u.log.Error("country aggregate write failed", "country", country, "error", err)
		metricAggregateFailures.Inc()
	}
}
