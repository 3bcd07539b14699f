package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercury-client/internal/config"
	"mercury-client/internal/feed"
	"mercury-client/internal/localcache"
	"mercury-client/internal/models"

	"github.com/gorilla/mux"
	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Version is reported by the health endpoint
var Version = "dev"

type RESTAPIServer struct {
	config   config.APIConfig
	metrics  config.MetricsConfig
	feedCfg  config.FeedConfig
	cache    *localcache.LocalCache
	feeds    *localcache.Feeds
	gatherer prometheus.Gatherer
	server   *http.Server
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type PublishRequest struct {
	Event models.Event `json:"event"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type StatsResponse struct {
	Cache localcache.Stats `json:"cache"`
	Feeds []string         `json:"feeds"`
}

type FeedResponse struct {
	Name             string           `json:"name"`
	State            string           `json:"state"`
	Message          string           `json:"message,omitempty"`
	FullyLoadedUntil *nostr.Timestamp `json:"fully_loaded_until,omitempty"`
	ScrollToTop      int64            `json:"scroll_to_top"`
	Events           []*models.Event  `json:"events"`
}

// NewRESTAPIServer creates the inspection API. gatherer may be nil when
// metrics are disabled.
func NewRESTAPIServer(
	cfg *config.Config,
	cache *localcache.LocalCache,
	feeds *localcache.Feeds,
	gatherer prometheus.Gatherer,
) *RESTAPIServer {
	return &RESTAPIServer{
		config:   cfg.API,
		metrics:  cfg.Metrics,
		feedCfg:  cfg.Feed,
		cache:    cache,
		feeds:    feeds,
		gatherer: gatherer,
	}
}

// Router builds the HTTP routes
func (r *RESTAPIServer) Router() http.Handler {
	router := mux.NewRouter()

	// CORS middleware
	if r.config.CORSEnabled {
		router.Use(r.corsMiddleware)
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", r.handleHealth).Methods("GET")
	api.HandleFunc("/stats", r.handleStats).Methods("GET")
	api.HandleFunc("/events", r.handleGetEvents).Methods("GET")
	api.HandleFunc("/events", r.handlePublish).Methods("POST")
	api.HandleFunc("/query", r.handleQuery).Methods("POST")
	api.HandleFunc("/events/{id}", r.handleGetEvent).Methods("GET")
	api.HandleFunc("/relays/select", r.handleSelectRelays).Methods("GET")
	api.HandleFunc("/feeds", r.handleListFeeds).Methods("GET")
	api.HandleFunc("/feeds/{name}", r.handleGetFeed).Methods("GET")
	api.HandleFunc("/feeds/{name}", r.handleOpenFeed).Methods("PUT")
	api.HandleFunc("/feeds/{name}", r.handleCloseFeed).Methods("DELETE")
	api.HandleFunc("/feeds/{name}/invalidate", r.handleInvalidateFeed).Methods("POST")
	api.HandleFunc("/feeds/{name}/sent-to-top", r.handleSentToTop).Methods("POST")

	if r.metrics.Enabled && r.gatherer != nil {
		router.Handle(r.metrics.Path, promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

func (r *RESTAPIServer) Start(ctx context.Context) error {
	r.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", r.config.Host, r.config.Port),
		Handler:      r.Router(),
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("[api] listening on %s", r.server.Addr)
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logrus.Errorf("[api] server error: %v", err)
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return r.server.Shutdown(shutdownCtx)
}

func (r *RESTAPIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if req.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, req)
	})
}

func (r *RESTAPIServer) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	}

	r.sendSuccess(w, health)
}

func (r *RESTAPIServer) handleStats(w http.ResponseWriter, req *http.Request) {
	r.sendSuccess(w, StatsResponse{
		Cache: r.cache.Stats(),
		Feeds: r.feeds.Names(),
	})
}

func (r *RESTAPIServer) handlePublish(w http.ResponseWriter, req *http.Request) {
	var publishReq PublishRequest
	if err := json.NewDecoder(req.Body).Decode(&publishReq); err != nil {
		r.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ev := &publishReq.Event
	if err := ev.Verify(); err != nil {
		r.sendError(w, fmt.Sprintf("Event validation failed: %v", err), http.StatusBadRequest)
		return
	}
	ev.ReceivedAt = time.Now()

	status := "stored"
	if !r.cache.OnEvent(ev) {
		status = "ignored"
		if r.cache.HasBeenDeleted(ev) {
			status = "deleted"
		}
	}

	r.sendSuccess(w, map[string]interface{}{
		"event_id": ev.ID,
		"status":   status,
	})
}

// handleGetEvents queries the cache. authors, kinds and ids are comma
// separated; since and until are unix seconds.
func (r *RESTAPIServer) handleGetEvents(w http.ResponseWriter, req *http.Request) {
	filter := nostr.Filter{
		IDs:     splitParam(req, "ids"),
		Authors: splitParam(req, "authors"),
	}
	for _, kind := range splitParam(req, "kinds") {
		k, err := strconv.Atoi(kind)
		if err != nil {
			r.sendError(w, fmt.Sprintf("Invalid kind %q", kind), http.StatusBadRequest)
			return
		}
		filter.Kinds = append(filter.Kinds, k)
	}
	for name, target := range map[string]**nostr.Timestamp{"since": &filter.Since, "until": &filter.Until} {
		value := req.URL.Query().Get(name)
		if value == "" {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.sendError(w, fmt.Sprintf("Invalid %s %q", name, value), http.StatusBadRequest)
			return
		}
		timestamp := nostr.Timestamp(ts)
		*target = &timestamp
	}
	if limit := req.URL.Query().Get("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			r.sendError(w, fmt.Sprintf("Invalid limit %q", limit), http.StatusBadRequest)
			return
		}
		filter.Limit = l
	}

	r.sendEvents(w, filter)
}

func (r *RESTAPIServer) handleQuery(w http.ResponseWriter, req *http.Request) {
	var filter nostr.Filter
	if err := json.NewDecoder(req.Body).Decode(&filter); err != nil {
		r.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	r.sendEvents(w, filter)
}

func (r *RESTAPIServer) sendEvents(w http.ResponseWriter, filter nostr.Filter) {
	events := r.cache.Query(filter)
	if events == nil {
		events = []*models.Event{}
	}
	r.sendSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (r *RESTAPIServer) handleGetEvent(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	ev, ok := r.cache.Note(id)
	if !ok {
		r.sendError(w, "Event not found", http.StatusNotFound)
		return
	}
	r.sendSuccess(w, ev)
}

func (r *RESTAPIServer) handleSelectRelays(w http.ResponseWriter, req *http.Request) {
	authors := splitParam(req, "authors")
	if len(authors) == 0 {
		r.sendError(w, "authors is required", http.StatusBadRequest)
		return
	}

	r.sendSuccess(w, r.cache.SelectRelays(authors, splitParam(req, "ignore")))
}

func (r *RESTAPIServer) handleListFeeds(w http.ResponseWriter, req *http.Request) {
	r.sendSuccess(w, r.feeds.Names())
}

func (r *RESTAPIServer) handleGetFeed(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	m, ok := r.feeds.Get(name)
	if !ok {
		r.sendError(w, "Feed not found", http.StatusNotFound)
		return
	}
	r.sendSuccess(w, feedResponse(name, m))
}

// handleOpenFeed opens an author feed. authors and kinds are comma separated;
// limit defaults to the configured feed limit.
func (r *RESTAPIServer) handleOpenFeed(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]

	var kinds []int
	for _, kind := range splitParam(req, "kinds") {
		k, err := strconv.Atoi(kind)
		if err != nil {
			r.sendError(w, fmt.Sprintf("Invalid kind %q", kind), http.StatusBadRequest)
			return
		}
		kinds = append(kinds, k)
	}

	limit := r.feedCfg.DefaultLimit
	if l := req.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			r.sendError(w, fmt.Sprintf("Invalid limit %q", l), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	filter := localcache.NewAuthorFeedFilter(r.cache, splitParam(req, "authors"), kinds, limit)
	m := r.feeds.Open(name, filter)
	r.sendSuccess(w, feedResponse(name, m))
}

func (r *RESTAPIServer) handleCloseFeed(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	if !r.feeds.Close(name) {
		r.sendError(w, "Feed not found", http.StatusNotFound)
		return
	}
	r.sendSuccess(w, map[string]interface{}{
		"name":   name,
		"status": "closed",
	})
}

func (r *RESTAPIServer) handleInvalidateFeed(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	m, ok := r.feeds.Get(name)
	if !ok {
		r.sendError(w, "Feed not found", http.StatusNotFound)
		return
	}

	if req.URL.Query().Get("top") == "true" {
		m.InvalidateAndSendToTop()
	} else {
		m.Invalidate()
	}
	r.sendSuccess(w, map[string]interface{}{
		"name":   name,
		"status": "scheduled",
	})
}

func (r *RESTAPIServer) handleSentToTop(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	m, ok := r.feeds.Get(name)
	if !ok {
		r.sendError(w, "Feed not found", http.StatusNotFound)
		return
	}
	m.SentToTop()
	r.sendSuccess(w, feedResponse(name, m))
}

func feedResponse(name string, m *feed.Machine[*models.Event]) FeedResponse {
	state := m.State()
	resp := FeedResponse{
		Name:        name,
		State:       state.Kind.String(),
		Message:     state.Message,
		ScrollToTop: m.ScrollToTop(),
		Events:      []*models.Event{},
	}
	if state.Kind == feed.Loaded {
		resp.Events = state.View.Items
		resp.FullyLoadedUntil = state.View.FullyLoadedUntil
	}
	return resp
}

func splitParam(req *http.Request, name string) []string {
	var out []string
	for _, value := range req.URL.Query()[name] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (r *RESTAPIServer) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

func (r *RESTAPIServer) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	json.NewEncoder(w).Encode(response)
}
