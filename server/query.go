// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"sort"

	"github.com/StarblitzStudios/starblitz/server/db"
)

const (
	// MaxScoreLimit caps global and per-country leaderboard reads.
	MaxScoreLimit = 100
	// MaxCountryLimit caps the country ranking read.
	MaxCountryLimit = 50
	// DefaultLimit applies when the client sends none.
	DefaultLimit = 10

	// topPlayersPerCountry is how many of a country's best scores feed
	// the top-10% sum (and the surfaced top-3 players).
	topPlayersPerCountry = 10
)

// Queries is the read side: pure, idempotent, safe to run concurrently
// with ingestion. Reads may observe in-flight state.
type Queries struct {
	db db.Database
}

func NewQueries(database db.Database) *Queries {
	return &Queries{db: database}
}

// TopScores returns the global top-N, strictly descending by score, ties
// broken by stable fetch order.
func (q *Queries) TopScores(limit int) ([]LeaderboardEntry, error) {
	limit = clampLimit(limit, DefaultLimit, MaxScoreLimit)
	scores, err := q.db.TopScores(limit)
	if err != nil {
		return nil, err
	}
	return rankScores(scores, limit), nil
}

// CountryLeaderboard returns one country's top-N.
func (q *Queries) CountryLeaderboard(country string, limit int) ([]LeaderboardEntry, error) {
	limit = clampLimit(limit, DefaultLimit, MaxScoreLimit)
	scores, err := q.db.ScoresByCountry(country, limit)
	if err != nil {
		return nil, err
	}
	return rankScores(scores, limit), nil
}

// rankScores re-sorts fetched rows before truncation. The store's
// secondary index does not guarantee exact order under eventual
// consistency, so this is a correctness step, not an optimization.
func rankScores(scores []db.Score, limit int) []LeaderboardEntry {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}

	entries := make([]LeaderboardEntry, len(scores))
	for i, score := range scores {
		entries[i] = entryFromScore(i+1, score)
	}
	return entries
}

// TopCountries returns the authoritative country ranking: candidates are
// fetched by totalScore, then re-ranked by the sum of each country's top
// max(1, ceil(playerCount*0.1)) scores. totalScore and averageScore ride
// along as secondary stats; the top 3 players are surfaced per country.
func (q *Queries) TopCountries(limit int) ([]CountryRank, error) {
	limit = clampLimit(limit, DefaultLimit, MaxCountryLimit)
	rows, err := q.db.TopCountries(limit)
	if err != nil {
		return nil, err
	}

	// Same re-sort-after-fetch requirement as the score index.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalScore > rows[j].TotalScore
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	ranks := make([]CountryRank, 0, len(rows))
	for _, row := range rows {
		board, err := q.CountryLeaderboard(row.Country, topPlayersPerCountry)
		if err != nil {
			return nil, err
		}

		topCount := max(1, ceilDiv(row.PlayerCount, 10))
		if topCount > len(board) {
			topCount = len(board)
		}
		topSum := 0
		for _, entry := range board[:topCount] {
			topSum += entry.Score
		}

		topPlayers := board
		if len(topPlayers) > 3 {
			topPlayers = topPlayers[:3]
		}

		ranks = append(ranks, CountryRank{
			Country:           row.Country,
			TotalScore:        row.TotalScore,
			Top10PercentScore: topSum,
			PlayerCount:       row.PlayerCount,
			AverageScore:      row.AverageScore,
			TopPlayers:        topPlayers,
		})
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Top10PercentScore > ranks[j].Top10PercentScore
	})
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return ranks, nil
}
