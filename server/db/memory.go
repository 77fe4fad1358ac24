// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"sort"
	"sync"
	"time"
)

// MemoryDatabase keeps all collections in process memory. It backs offline
// mode and the test suite. OnChange, when set, receives one INSERT event
// per stored score, standing in for the hosted store's change stream.
type MemoryDatabase struct {
	mu          sync.RWMutex
	scores      []Score
	countries   map[string]Country
	connections map[string]Connection

	// OnChange is invoked outside the store lock, after the write.
	OnChange func(events []ChangeEvent)
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		countries:   make(map[string]Country),
		connections: make(map[string]Connection),
	}
}

func (m *MemoryDatabase) PutScore(score Score) error {
	score.All = IndexAll

	m.mu.Lock()
	m.scores = append(m.scores, score)
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange([]ChangeEvent{{EventName: EventInsert, Record: score}})
	}
	return nil
}

func (m *MemoryDatabase) TopScores(limit int) ([]Score, error) {
	m.mu.RLock()
	scores := make([]Score, len(m.scores))
	copy(scores, m.scores)
	m.mu.RUnlock()

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func (m *MemoryDatabase) ScoresByCountry(country string, limit int) ([]Score, error) {
	m.mu.RLock()
	var scores []Score
	for _, score := range m.scores {
		if score.Country == country {
			scores = append(scores, score)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores, nil
}

func (m *MemoryDatabase) CountScoresAbove(score int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.scores {
		if s.Score > score {
			count++
		}
	}
	return count, nil
}

func (m *MemoryDatabase) GetCountry(country string) (Country, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.countries[country]
	return row, ok, nil
}

func (m *MemoryDatabase) PutCountry(country Country) error {
	country.All = IndexAll

	m.mu.Lock()
	defer m.mu.Unlock()

	m.countries[country.Country] = country
	return nil
}

func (m *MemoryDatabase) TopCountries(limit int) ([]Country, error) {
	m.mu.RLock()
	countries := make([]Country, 0, len(m.countries))
	for _, row := range m.countries {
		countries = append(countries, row)
	}
	m.mu.RUnlock()

	sort.SliceStable(countries, func(i, j int) bool {
		return countries[i].TotalScore > countries[j].TotalScore
	})
	if len(countries) > limit {
		countries = countries[:limit]
	}
	return countries, nil
}

func (m *MemoryDatabase) PutConnection(conn Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connections[conn.ConnectionID] = conn
	return nil
}

func (m *MemoryDatabase) DeleteConnection(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.connections, connectionID)
	return nil
}

func (m *MemoryDatabase) Connections() ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().Unix()
	conns := make([]Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		// The hosted store expires rows itself; here we emulate that.
		if conn.TTL != 0 && conn.TTL < now {
			continue
		}
		conns = append(conns, conn)
	}
	return conns, nil
}
