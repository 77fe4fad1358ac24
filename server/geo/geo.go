// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geo resolves client addresses to best-effort country metadata.
// Resolution is advisory: every failure path degrades to Unknown and the
// caller proceeds.
package geo

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// Location is best-effort country metadata for a client address.
type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
}

// Unknown is the sentinel used whenever resolution fails or is skipped.
var Unknown = Location{Country: "Unknown", CountryCode: "XX"}

type Resolver interface {
	// Resolve returns metadata for ip. On error the returned Location is
	// still usable (Unknown).
	Resolve(ctx context.Context, ip string) (Location, error)
}

// forwardHeaders in priority order; the first populated one wins and only
// its first comma-separated value is used.
var forwardHeaders = [...]string{
	"x-forwarded-for",
	"x-real-ip",
	"x-client-ip",
	"cf-connecting-ip",
}

// ClientAddr extracts the submitter's address from forwarded headers,
// falling back to the transport remote address.
func ClientAddr(r *http.Request) string {
	for _, header := range forwardHeaders {
		if value := r.Header.Get(header); value != "" {
			first, _, _ := strings.Cut(value, ",")
			return strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Private reports whether ip should never be sent to the resolver:
// empty, unparsable, loopback, RFC 1918/4193, or link-local.
func Private(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsUnspecified()
}
