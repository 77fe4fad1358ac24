// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import "github.com/StarblitzStudios/starblitz/server/db"

type (
	// LeaderboardEntry is one ranked score row as exposed to clients.
	// Provenance fields (client address, user agent) never leave the store.
	LeaderboardEntry struct {
		Rank         int    `json:"rank"`
		ID           string `json:"id"`
		Username     string `json:"username"`
		Score        int    `json:"score"`
		SurvivalTime int    `json:"survivalTime"`
		Country      string `json:"country"`
		CountryCode  string `json:"countryCode"`
		DeathCause   string `json:"deathCause"`
		Timestamp    int64  `json:"timestamp"`
		CreatedAt    string `json:"createdAt"`
	}

	// CountryRank is one country in the authoritative country ranking.
	// Rank follows Top10PercentScore; TotalScore and AverageScore are
	// secondary stats.
	CountryRank struct {
		Rank              int                `json:"rank"`
		Country           string             `json:"country"`
		TotalScore        int                `json:"totalScore"`
		Top10PercentScore int                `json:"top10PercentScore"`
		PlayerCount       int                `json:"playerCount"`
		AverageScore      int                `json:"averageScore"`
		TopPlayers        []LeaderboardEntry `json:"topPlayers"`
	}

	// GlobalMessage is the live global top-N snapshot pushed to viewers.
	GlobalMessage struct {
		Type        string             `json:"type"`
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
		Timestamp   string             `json:"timestamp"`
	}

	// CountriesMessage is the live country-ranking snapshot.
	CountriesMessage struct {
		Type      string        `json:"type"`
		Countries []CountryRank `json:"countries"`
		Timestamp string        `json:"timestamp"`
	}

	PongMessage struct {
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
	}

	AckMessage struct {
		Type string `json:"type"`
	}

	ErrorMessage struct {
		Type      string   `json:"type"`
		Message   string   `json:"message"`
		Supported []string `json:"supported,omitempty"`
	}

	// Action is an inbound live-connection command.
	Action struct {
		Action string `json:"action"`
	}
)

func entryFromScore(rank int, score db.Score) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:         rank,
		ID:           score.ID,
		Username:     score.Username,
		Score:        score.Score,
		SurvivalTime: score.SurvivalTime,
		Country:      score.Country,
		CountryCode:  score.CountryCode,
		DeathCause:   score.DeathCause,
		Timestamp:    score.Timestamp,
		CreatedAt:    score.CreatedAt,
	}
}
