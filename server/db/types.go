// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

// Score is one submitted game session. Rows are immutable after creation;
// the ranking logic defines no update or delete path for them.
type Score struct {
	ID           string `dynamo:"id" json:"id"`
	Username     string `dynamo:"username" json:"username"`
	Score        int    `dynamo:"score" json:"score"`
	SurvivalTime int    `dynamo:"survivalTime" json:"survivalTime"`
	DeathCause   string `dynamo:"deathCause" json:"deathCause"`
	Country      string `dynamo:"country" json:"country"`
	CountryCode  string `dynamo:"countryCode" json:"countryCode"`
	City         string `dynamo:"city,omitempty" json:"city,omitempty"`
	Region       string `dynamo:"region,omitempty" json:"region,omitempty"`
	ClientIP     string `dynamo:"clientIP,omitempty" json:"clientIP,omitempty"`
	UserAgent    string `dynamo:"userAgent,omitempty" json:"userAgent,omitempty"`
	// Timestamp is epoch millis; CreatedAt the same instant as ISO 8601.
	Timestamp int64  `dynamo:"timestamp" json:"timestamp"`
	CreatedAt string `dynamo:"createdAt" json:"createdAt"`
	// All is the constant partition key of the score GSI.
	All string `dynamo:"all" json:"-"`
}

// Country is the running aggregate for one country. AverageScore is
// derived from the other two fields on every write, never independently
// accumulated.
type Country struct {
	Country      string `dynamo:"country" json:"country"`
	TotalScore   int    `dynamo:"totalScore" json:"totalScore"`
	PlayerCount  int    `dynamo:"playerCount" json:"playerCount"`
	AverageScore int    `dynamo:"averageScore" json:"averageScore"`
	CreatedAt    string `dynamo:"createdAt" json:"createdAt"`
	LastUpdated  string `dynamo:"lastUpdated" json:"lastUpdated"`
	All          string `dynamo:"all" json:"-"`
}

// Connection is one live-viewer connection. TTL is epoch seconds after
// which the store may garbage-collect the row.
type Connection struct {
	ConnectionID string `dynamo:"connectionId" json:"connectionId"`
	ConnectedAt  int64  `dynamo:"connectedAt" json:"connectedAt"`
	TTL          int64  `dynamo:"ttl,omitempty" json:"ttl,omitempty"`
}

// IndexAll is the value of the constant GSI partition key.
const IndexAll = "all"

type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// ChangeEvent is one change-stream record: the event kind plus the new
// image of the changed score row. Missing sub-fields decode to zero
// values rather than failing.
type ChangeEvent struct {
	EventName EventName `json:"eventName"`
	Record    Score     `json:"record"`
}
