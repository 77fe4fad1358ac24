// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 5 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 8) / 10

	// If more than this many messages are queued for sending, the
	// socket is congested and messages may be dropped
	socketCongestionThreshold = 5

	// Allows a burst of snapshots to back up before close
	socketBufferSize = 16

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // mirrors the permissive CORS policy of the HTTP surface
	},
	HandshakeTimeout: time.Second,
	ReadBufferSize:   maxMessageSize,
	WriteBufferSize:  2048,
}

// SocketClient is a middleman between one websocket connection and the hub.
type SocketClient struct {
	hub          *Hub
	conn         *websocket.Conn
	connectionID string
	send         chan []byte
	once         sync.Once
	counter      int // counts up every send
}

func newSocketClient(hub *Hub, conn *websocket.Conn) *SocketClient {
	return &SocketClient{
		hub:          hub,
		conn:         conn,
		connectionID: uuid.NewString(),
		send:         make(chan []byte, socketBufferSize),
	}
}

func (client *SocketClient) init() {
	go client.writePump()
	go client.readPump()
}

// Destroy detaches the client exactly once. Safe to call anywhere.
func (client *SocketClient) Destroy() {
	client.once.Do(func() {
		client.hub.remove(client)
		_ = client.conn.Close()
	})
}

// Send queues a payload. Returns false when the client is unresponsive,
// which tears it down.
func (client *SocketClient) Send(payload []byte) bool {
	// How many messages there are in excess of a reasonable amount
	congestion := len(client.send) - socketCongestionThreshold

	// The closer the buffer is to being full, the more messages are
	// dropped on the floor to give the socket a chance to catch up.
	// A dropped snapshot is superseded by the next one anyway.
	client.counter++
	if congestion > 1 && client.counter%congestion != 0 {
		return true
	}

	select {
	case client.send <- payload:
		return true
	default:
		client.Destroy()
		return false
	}
}

func (client *SocketClient) readPump() {
	defer client.Destroy()
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				client.hub.log.Warn("socket close error", "connection", client.connectionID, "error", err)
			}
			return
		}

		var action Action
		if err := json.Unmarshal(data, &action); err != nil {
			client.reply(ErrorMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch action.Action {
		case "ping":
			client.reply(PongMessage{Type: "pong", Timestamp: isoNow()})
		case "subscribe":
			client.reply(AckMessage{Type: "subscribed"})
			client.sendSnapshots()
		default:
			client.reply(ErrorMessage{
				Type:      "error",
				Message:   "unsupported action",
				Supported: []string{"ping", "subscribe"},
			})
		}
	}
}

func (client *SocketClient) reply(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	client.Send(payload)
}

// sendSnapshots pushes the current leaderboard state so a fresh viewer
// does not wait for the next score event.
func (client *SocketClient) sendSnapshots() {
	if client.hub.Snapshots == nil {
		return
	}
	payloads, err := client.hub.Snapshots(context.Background())
	if err != nil {
		client.hub.log.Warn("initial snapshot failed", "connection", client.connectionID, "error", err)
		return
	}
	for _, payload := range payloads {
		client.Send(payload)
	}
}

func (client *SocketClient) writePump() {
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		pingTicker.Stop()
		client.Destroy()
	}()

	for {
		select {
		case payload := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-pingTicker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
