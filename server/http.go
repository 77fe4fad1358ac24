package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/StarblitzStudios/starblitz/server/cache"
	"github.com/StarblitzStudios/starblitz/server/geo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const countryRankingNote = "Country rankings are based on the combined score of each country's top 10% of players"

type (
	leaderboardResponse struct {
		Success     bool               `json:"success"`
		Leaderboard []LeaderboardEntry `json:"leaderboard"`
		Total       int                `json:"total"`
		Country     string             `json:"country"`
		Timestamp   string             `json:"timestamp"`
	}

	countriesResponse struct {
		Success   bool          `json:"success"`
		Countries []CountryRank `json:"countries"`
		Total     int           `json:"total"`
		Timestamp string        `json:"timestamp"`
		Note      string        `json:"note"`
	}

	errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
)

// API is the HTTP surface: score submission, leaderboard reads, the live
// websocket endpoint, health and metrics.
type API struct {
	ingest  *Ingestor
	queries *Queries
	hub     *Hub
	cache   *cache.Cache
	limiter *ipLimiter
	log     *slog.Logger
}

func NewAPI(ingest *Ingestor, queries *Queries, hub *Hub, snapshotCache *cache.Cache, log *slog.Logger) *API {
	return &API{
		ingest:  ingest,
		queries: queries,
		hub:     hub,
		cache:   snapshotCache,
		limiter: newIPLimiter(rate.Every(time.Second), 10),
		log:     log,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/scores", a.handleSubmit)
	r.Get("/leaderboard", a.handleLeaderboard)
	r.Get("/countries", a.handleCountries)
	r.Get("/ws", a.hub.ServeSocket)
	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Every response carries permissive CORS headers; the game client is
// served from a different origin than the backend.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	addr := geo.ClientAddr(r)
	if !a.limiter.allow(addr) {
		a.writeError(w, http.StatusTooManyRequests, "rate limited", "too many submissions, slow down")
		return
	}

	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request", "request body must be valid JSON")
		return
	}

	result, err := a.ingest.Ingest(r.Context(), sub, addr, r.Header.Get("User-Agent"))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			a.writeError(w, http.StatusBadRequest, "validation failed", verr.Message)
			return
		}
		a.log.Error("score submission failed", "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error", "failed to store score")
		return
	}

	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	country := r.URL.Query().Get("country")

	key := fmt.Sprintf("leaderboard:global:%d", limit)
	scope := "global"
	if country != "" {
		key = fmt.Sprintf("leaderboard:%s:%d", country, limit)
		scope = country
	}
	if payload, ok := a.cache.Get(r.Context(), key); ok {
		a.writeRaw(w, http.StatusOK, payload)
		return
	}

	var (
		entries []LeaderboardEntry
		err     error
	)
	if country != "" {
		entries, err = a.queries.CountryLeaderboard(country, limit)
	} else {
		entries, err = a.queries.TopScores(limit)
	}
	if err != nil {
		a.log.Error("leaderboard read failed", "country", country, "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error", "failed to read leaderboard")
		return
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}

	payload, err := json.Marshal(leaderboardResponse{
		Success:     true,
		Leaderboard: entries,
		Total:       len(entries),
		Country:     scope,
		Timestamp:   isoNow(),
	})
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "internal error", "failed to encode leaderboard")
		return
	}

	a.cache.Set(r.Context(), key, payload)
	a.writeRaw(w, http.StatusOK, payload)
}

func (a *API) handleCountries(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)

	key := fmt.Sprintf("countries:%d", limit)
	if payload, ok := a.cache.Get(r.Context(), key); ok {
		a.writeRaw(w, http.StatusOK, payload)
		return
	}

	countries, err := a.queries.TopCountries(limit)
	if err != nil {
		a.log.Error("country ranking read failed", "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error", "failed to read country ranking")
		return
	}
	if countries == nil {
		countries = []CountryRank{}
	}

	payload, err := json.Marshal(countriesResponse{
		Success:   true,
		Countries: countries,
		Total:     len(countries),
		Timestamp: isoNow(),
		Note:      countryRankingNote,
	})
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "internal error", "failed to encode country ranking")
		return
	}

	a.cache.Set(r.Context(), key, payload)
	a.writeRaw(w, http.StatusOK, payload)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0 // queries substitute the default
	}
	return limit
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		a.log.Error("response encode failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	a.writeRaw(w, status, payload)
}

func (a *API) writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (a *API) writeError(w http.ResponseWriter, status int, error, message string) {
	a.writeJSON(w, status, errorResponse{Error: error, Message: message})
}

// ipLimiter hands out one token bucket per client address. The map is
// reset wholesale past maxTrackedIPs rather than LRU-evicted; at this
// scale the occasional free extra burst is fine.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

const maxTrackedIPs = 16384

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) > maxTrackedIPs {
		l.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter.Allow()
}
