// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log/slog"
	"time"

	"github.com/StarblitzStudios/starblitz/server/db"
)

// ConnectionTTL bounds how long a connection row may outlive its socket.
// Expiry is the store's job; no application sweep exists.
const ConnectionTTL = 2 * time.Hour

// Registry is the durable set of live-viewer connection ids.
type Registry struct {
	db  db.Database
	log *slog.Logger
}

func NewRegistry(database db.Database, log *slog.Logger) *Registry {
	return &Registry{db: database, log: log}
}

func (r *Registry) Register(connectionID string) error {
	return r.db.PutConnection(db.Connection{
		ConnectionID: connectionID,
		ConnectedAt:  unixMillis(),
		TTL:          time.Now().Add(ConnectionTTL).Unix(),
	})
}

func (r *Registry) Unregister(connectionID string) error {
	return r.db.DeleteConnection(connectionID)
}

// Active returns all currently stored connection ids.
func (r *Registry) Active() ([]string, error) {
	conns, err := r.db.Connections()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.ConnectionID
	}
	return ids, nil
}
