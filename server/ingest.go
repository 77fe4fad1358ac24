// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/StarblitzStudios/starblitz/server/db"
	"github.com/StarblitzStudios/starblitz/server/geo"
	"github.com/finnbear/moderation"
	"github.com/google/uuid"
)

const maxUsernameLen = 50

type (
	// Submission is the raw client payload. Score and SurvivalTime stay
	// untyped so non-numeric JSON values ("10") are rejected as
	// validation errors rather than silently coerced.
	Submission struct {
		Username     string      `json:"username"`
		Score        interface{} `json:"score"`
		SurvivalTime interface{} `json:"survivalTime"`
		DeathCause   string      `json:"deathCause"`
		ClientIP     string      `json:"clientIP"`
		UserAgent    string      `json:"userAgent"`
	}

	// SubmitResult is returned once the score row is durably written.
	// Rank is nil when the rank computation failed; that is the only
	// visible symptom of such a failure.
	SubmitResult struct {
		Success     bool   `json:"success"`
		ScoreID     string `json:"scoreId"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		Rank        *int   `json:"rank"`
	}
)

// Ingestor validates and persists score submissions.
type Ingestor struct {
	db         db.Database
	geo        geo.Resolver
	aggregates *AggregateUpdater
	log        *slog.Logger
}

func NewIngestor(database db.Database, resolver geo.Resolver, aggregates *AggregateUpdater, log *slog.Logger) *Ingestor {
	return &Ingestor{db: database, geo: resolver, aggregates: aggregates, log: log}
}

// Ingest persists one submission. The score write is the only essential
// step: geo resolution, the aggregate update and the rank scan all fail
// soft. remoteAddr is the already-extracted client address (see
// geo.ClientAddr); Submission.ClientIP overrides it when present.
func (ing *Ingestor) Ingest(ctx context.Context, sub Submission, remoteAddr, userAgent string) (SubmitResult, error) {
	if strings.TrimSpace(sub.Username) == "" {
		return SubmitResult{}, &ValidationError{Message: "username is required"}
	}
	username, ok := sanitizeUsername(sub.Username)
	if !ok {
		return SubmitResult{}, &ValidationError{Message: "username is not allowed"}
	}

	score, ok := numeric(sub.Score)
	if !ok {
		return SubmitResult{}, &ValidationError{Message: "score must be a number"}
	}
	survivalTime, ok := numeric(sub.SurvivalTime)
	if !ok {
		return SubmitResult{}, &ValidationError{Message: "survivalTime must be a number"}
	}
	if score < 0 {
		score = 0
	}
	if survivalTime < 0 {
		survivalTime = 0
	}

	deathCause := sub.DeathCause
	if deathCause == "" {
		deathCause = "unknown"
	}

	addr := sub.ClientIP
	if addr == "" {
		addr = remoteAddr
	}
	if userAgent == "" {
		userAgent = sub.UserAgent
	}
	location := ing.resolve(ctx, addr)

	record := db.Score{
		ID:           uuid.NewString(),
		Username:     username,
		Score:        score,
		SurvivalTime: survivalTime,
		DeathCause:   deathCause,
		Country:      location.Country,
		CountryCode:  location.CountryCode,
		City:         location.City,
		Region:       location.Region,
		ClientIP:     addr,
		UserAgent:    userAgent,
		Timestamp:    unixMillis(),
		CreatedAt:    isoNow(),
	}

	if err := ing.db.PutScore(record); err != nil {
		return SubmitResult{}, fmt.Errorf("store score: %w", err)
	}
	metricScoresSubmitted.Inc()

	ing.aggregates.Update(location.Country, score)

	result := SubmitResult{
		Success:     true,
		ScoreID:     record.ID,
		Country:     location.Country,
		CountryCode: location.CountryCode,
	}

	// Approximate global rank: strictly greater rows + 1. Non-atomic with
	// concurrent submissions; off-by-one under races is accepted.
	if count, err := ing.db.CountScoresAbove(score); err != nil {
		ing.log.Warn("rank computation failed", "scoreId", record.ID, "error", err)
	} else {
		rank := count + 1
		result.Rank = &rank
	}

	return result, nil
}

func (ing *Ingestor) resolve(ctx context.Context, addr string) geo.Location {
	if ing.geo == nil || geo.Private(addr) {
		return geo.Unknown
	}

	ctx, cancel := context.WithTimeout(ctx, geo.DefaultTimeout)
	defer cancel()

	location, err := ing.geo.Resolve(ctx, addr)
	if err != nil {
		ing.log.Warn("geo resolution failed", "ip", addr, "error", err)
		metricGeoFallbacks.Inc()
		return geo.Unknown
	}
	return location
}

func numeric(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(math.Floor(n)), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// sanitizeUsername strips non-printable runes, censors inappropriate
// names and truncates to maxUsernameLen characters. Moderately
// inappropriate names are rejected outright.
func sanitizeUsername(name string) (string, bool) {
	name = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(name))

	if name == "" {
		return "", false
	}

	result := moderation.Scan(name)
	if result.Is(moderation.Inappropriate) {
		if result.Is(moderation.Inappropriate & moderation.Moderate) {
			return "", false
		}
		name, _ = moderation.Censor(name, moderation.Inappropriate)
	}

	if runes := []rune(name); len(runes) > maxUsernameLen {
		name = string(runes[:maxUsernameLen])
	}
	return name, true
}
