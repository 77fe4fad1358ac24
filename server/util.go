// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import "time"

func unixMillis() int64 {
	return time.Now().UnixMilli()
}

func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// clampLimit normalizes a client-supplied limit: non-positive values get
// the default, oversized values are capped.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ceilDiv is ceil(a / b) for non-negative a and positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
