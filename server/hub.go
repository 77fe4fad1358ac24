// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
)

// Hub owns the process-local websocket connections and implements Pusher
// over them. The durable registry still holds every connection id; the
// hub is only the transport end. A registry id with no hub entry is a
// gone connection (e.g. rows surviving a process restart).
type Hub struct {
	registry *Registry
	log      *slog.Logger

	// Snapshots supplies the initial payloads sent on subscribe.
	// Assigned once at wiring time.
	Snapshots func(ctx context.Context) ([][]byte, error)

	mu      sync.Mutex
	clients map[string]*SocketClient
}

func NewHub(registry *Registry, log *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		log:      log,
		clients:  make(map[string]*SocketClient),
	}
}

// ServeSocket upgrades the request and registers the connection.
func (h *Hub) ServeSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade error", "error", err)
		return
	}

	client := newSocketClient(h, conn)
	if err := h.registry.Register(client.connectionID); err != nil {
		h.log.Error("connection register failed", "connection", client.connectionID, "error", err)
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[client.connectionID] = client
	h.mu.Unlock()

	client.init()
	h.log.Info("viewer connected", "connection", client.connectionID)
}

// remove detaches a client and deletes its registry row. Idempotent via
// SocketClient.Destroy's once.
func (h *Hub) remove(client *SocketClient) {
	h.mu.Lock()
	delete(h.clients, client.connectionID)
	h.mu.Unlock()

	if err := h.registry.Unregister(client.connectionID); err != nil {
		h.log.Warn("connection unregister failed", "connection", client.connectionID, "error", err)
	}
	h.log.Info("viewer disconnected", "connection", client.connectionID)
}

func (h *Hub) Push(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.Lock()
	client, ok := h.clients[connectionID]
	h.mu.Unlock()

	if !ok {
		return ErrConnectionGone
	}
	if !client.Send(payload) {
		return ErrConnectionGone
	}
	return nil
}
