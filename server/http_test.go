// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(b *testBackend) *API {
	hub := NewHub(b.registry, testLogger())
	fanout := NewFanout(b.queries, b.registry, hub, 4, testLogger())
	hub.Snapshots = fanout.Snapshots
	return NewAPI(b.ingest, b.queries, hub, nil, testLogger())
}

func doRequest(t *testing.T, api *API, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

func TestSubmitScoreEndpoint(t *testing.T) {
	b := newTestBackend(staticResolver{loc: testLocation})
	api := newTestAPI(b)

	rec := doRequest(t, api, http.MethodPost, "/scores",
		`{"username":"ace","score":120,"survivalTime":33,"deathCause":"asteroid","clientIP":"203.0.113.5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var result SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.ScoreID)
	assert.Equal(t, "Estonia", result.Country)
	require.NotNil(t, result.Rank)
	assert.Equal(t, 1, *result.Rank)
}

func TestSubmitScoreErrors(t *testing.T) {
	b := newTestBackend(staticResolver{loc: testLocation})
	api := newTestAPI(b)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"username":`},
		{"empty username", `{"username":"","score":10,"survivalTime":5}`},
		{"string score", `{"username":"A","score":"10","survivalTime":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, api, http.MethodPost, "/scores", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	b := newTestBackend(nil)
	seedScore(t, b, "a", "Estonia", 90)
	seedScore(t, b, "b", "Japan", 120)
	api := newTestAPI(b)

	rec := doRequest(t, api, http.MethodGet, "/leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "global", resp.Country)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Leaderboard, 2)
	assert.Equal(t, 120, resp.Leaderboard[0].Score)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestLeaderboardCountryParam(t *testing.T) {
	b := newTestBackend(nil)
	seedScore(t, b, "a", "Estonia", 90)
	seedScore(t, b, "b", "Japan", 120)
	api := newTestAPI(b)

	rec := doRequest(t, api, http.MethodGet, "/leaderboard?country=Estonia", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Estonia", resp.Country)
	require.Len(t, resp.Leaderboard, 1)
	assert.Equal(t, "a", resp.Leaderboard[0].Username)
}

func TestLeaderboardLimitClamped(t *testing.T) {
	b := newTestBackend(nil)
	for i := 0; i < 105; i++ {
		seedScore(t, b, fmt.Sprintf("p%d", i), "Estonia", i)
	}
	api := newTestAPI(b)

	rec := doRequest(t, api, http.MethodGet, "/leaderboard?limit=9999", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leaderboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Leaderboard, MaxScoreLimit)
}

func TestCountriesEndpoint(t *testing.T) {
	b := newTestBackend(nil)
	seedScore(t, b, "a", "Estonia", 90)
	api := newTestAPI(b)

	rec := doRequest(t, api, http.MethodGet, "/countries", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp countriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Total)
	assert.NotEmpty(t, resp.Note)
	require.Len(t, resp.Countries, 1)
	assert.Equal(t, "Estonia", resp.Countries[0].Country)
}

func TestCountriesEmpty(t *testing.T) {
	api := newTestAPI(newTestBackend(nil))

	rec := doRequest(t, api, http.MethodGet, "/countries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"countries":[]`)
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(newTestBackend(nil))

	rec := doRequest(t, api, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(newTestBackend(nil))

	rec := doRequest(t, api, http.MethodOptions, "/scores", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestSubmitRateLimited(t *testing.T) {
	b := newTestBackend(staticResolver{loc: testLocation})
	api := newTestAPI(b)

	limited := false
	for i := 0; i < 15; i++ {
		rec := doRequest(t, api, http.MethodPost, "/scores",
			`{"username":"A","score":10,"survivalTime":5}`)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "sustained submission burst from one address is throttled")
}

func TestWebsocketActions(t *testing.T) {
	b := newTestBackend(nil)
	seedScore(t, b, "a", "Estonia", 90)
	api := newTestAPI(b)

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() map[string]interface{} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		return decoded
	}

	// Connecting registers the connection.
	require.Eventually(t, func() bool {
		active, err := b.registry.Active()
		return err == nil && len(active) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	pong := readMessage()
	assert.Equal(t, "pong", pong["type"])
	assert.NotEmpty(t, pong["timestamp"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe"}`)))
	assert.Equal(t, "subscribed", readMessage()["type"])
	assert.Equal(t, "global", readMessage()["type"], "initial snapshot follows the ack")
	assert.Equal(t, "countries", readMessage()["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"dance"}`)))
	unknown := readMessage()
	assert.Equal(t, "error", unknown["type"])
	assert.Contains(t, fmt.Sprint(unknown["supported"]), "ping")
}

func TestWebsocketDisconnectUnregisters(t *testing.T) {
	api := newTestAPI(newTestBackend(nil))

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	hub := api.hub
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHubPushUnknownConnectionIsGone(t *testing.T) {
	b := newTestBackend(nil)
	hub := NewHub(b.registry, testLogger())

	err := hub.Push(context.Background(), "never-connected", []byte("{}"))
	assert.ErrorIs(t, err, ErrConnectionGone)
}
