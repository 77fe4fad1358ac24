// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricScoresSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starblitz_scores_submitted_total",
		Help: "Score rows durably written.",
	})
	metricGeoFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starblitz_geo_fallbacks_total",
		Help: "Submissions that fell back to the Unknown country.",
	})
	metricAggregateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starblitz_aggregate_failures_total",
		Help: "Country aggregate updates that failed and were swallowed.",
	})
	metricFanoutPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starblitz_fanout_pushes_total",
		Help: "Successful snapshot pushes to live connections.",
	})
	metricStaleConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starblitz_stale_connections_pruned_total",
		Help: "Connections deregistered after a gone push target.",
	})
)
