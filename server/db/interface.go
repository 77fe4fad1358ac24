// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

// Database is keyed storage over the Scores, Countries and Connections
// collections. Implementations must tolerate concurrent callers; no
// multi-row transactions are offered or required.
type Database interface {
	// PutScore stores one immutable score row.
	PutScore(score Score) error
	// TopScores returns up to limit rows from the score index, highest
	// first. Ordering is best-effort; callers re-sort after fetch.
	TopScores(limit int) (scores []Score, err error)
	// ScoresByCountry returns up to limit rows for one country, highest
	// first (same best-effort ordering caveat).
	ScoresByCountry(country string, limit int) (scores []Score, err error)
	// CountScoresAbove counts rows with a strictly greater score.
	CountScoresAbove(score int) (count int, err error)

	GetCountry(country string) (Country, bool, error)
	PutCountry(country Country) error
	// TopCountries returns up to limit rows from the totalScore index,
	// highest first (best-effort ordering).
	TopCountries(limit int) (countries []Country, err error)

	PutConnection(conn Connection) error
	DeleteConnection(connectionID string) error
	// Connections returns all stored connection rows. Expired rows are
	// purged by the store's own TTL mechanism, not filtered here.
	Connections() (conns []Connection, err error)
}
