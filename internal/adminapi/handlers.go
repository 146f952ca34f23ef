// Package adminapi serves the non-core HTTP surface: subscription
// CRUD, per-delivery status, per-subscription attempt history, system
// stats, the activity feed, and a health check. These are thin
// database reads/writes over the same tables the store package
// already types.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/yourusername/webhookrelay/internal/cache"
	"github.com/yourusername/webhookrelay/internal/httpapi"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/store"
)

const (
	defaultAttemptsLimit = 50
	maxAttemptsLimit     = 500
	defaultActivityLimit = 20
	maxActivityLimit     = 200
)

// AdminStore is the subset of store.PostgresStore's admin-only methods
// this package depends on, kept as an interface so handlers can be
// unit tested without a live Postgres.
type AdminStore interface {
	store.Store

	Ping(ctx context.Context) error
	ListSubscriptions(ctx context.Context, limit int, after store.Cursor) ([]store.Subscription, store.Cursor, error)
	CreateSubscription(ctx context.Context, targetURL, secretKey string) (*store.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, targetURL, secretKey *string) (*store.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	ListAttemptsForSubscription(ctx context.Context, subscriptionID string, limit int) ([]store.DeliveryAttempt, error)
	Stats(ctx context.Context) (*store.Stats, error)
	Activity(ctx context.Context, limit int) ([]store.ActivityItem, error)
}

// Handlers groups the non-core endpoints sharing a store and cache.
type Handlers struct {
	Store AdminStore
	Cache *cache.SubscriptionCache
	Log   logging.Logger
}

func New(st AdminStore, c *cache.SubscriptionCache, log logging.Logger) *Handlers {
	return &Handlers{Store: st, Cache: c, Log: log}
}

// Register wires every non-core route onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /subscriptions", h.ListSubscriptions)
	mux.HandleFunc("POST /subscriptions", h.CreateSubscription)
	mux.HandleFunc("GET /subscriptions/{id}", h.GetSubscription)
	mux.HandleFunc("PUT /subscriptions/{id}", h.UpdateSubscription)
	mux.HandleFunc("DELETE /subscriptions/{id}", h.DeleteSubscription)
	mux.HandleFunc("GET /status/deliveries/{id}/status", h.DeliveryStatus)
	mux.HandleFunc("GET /status/subscriptions/{id}/attempts", h.SubscriptionAttempts)
	mux.HandleFunc("GET /status/stats", h.Stats)
	mux.HandleFunc("GET /status/activity", h.Activity)
}

// Health pings the store pool and, if configured, the cache. It
// reports 200 only when the store is reachable; the cache is optional
// infrastructure so a cache outage is reported but doesn't fail the
// check.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Store.Ping(ctx); err != nil {
		h.Log.Error("health check: store unreachable", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": "store unreachable"})
		return
	}
	status := "ok"
	if h.Cache != nil {
		if err := h.Cache.Ping(ctx); err != nil {
			h.Log.Warn("health check: cache unreachable")
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type subscriptionRequest struct {
	TargetURL string `json:"target_url"`
	SecretKey string `json:"secret_key,omitempty"`
}

func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	limit := httpapi.ValidateLimit(parseLimit(r, 100, 1000))

	cursor, err := httpapi.DecodeCursor(r.URL.Query().Get("continuation_token"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	subs, next, err := h.Store.ListSubscriptions(r.Context(), limit, store.Cursor{Timestamp: cursor.Timestamp, ID: cursor.ID})
	if err != nil {
		h.Log.Error("listing subscriptions failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var nextToken string
	hasMore := next.ID != ""
	if hasMore {
		nextToken, _ = httpapi.EncodeCursor(httpapi.Cursor{Timestamp: next.Timestamp, ID: next.ID})
	}

	resp := struct {
		Data       []store.Subscription      `json:"data"`
		Pagination httpapi.PaginationResponse `json:"pagination"`
	}{
		Data: subs,
		Pagination: httpapi.PaginationResponse{
			HasMore:           hasMore,
			ContinuationToken: nextToken,
			Count:             len(subs),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TargetURL == "" {
		http.Error(w, "target_url is required", http.StatusBadRequest)
		return
	}
	sub, err := h.Store.CreateSubscription(r.Context(), req.TargetURL, req.SecretKey)
	if err != nil {
		h.Log.Error("creating subscription failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.Store.GetSubscription(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	var targetURL, secretKey *string
	if req.TargetURL != "" {
		targetURL = &req.TargetURL
	}
	if req.SecretKey != "" {
		secretKey = &req.SecretKey
	}
	sub, err := h.Store.UpdateSubscription(r.Context(), id, targetURL, secretKey)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}
	// Mutation must invalidate any cached copy.
	if h.Cache != nil {
		h.Cache.Delete(r.Context(), id)
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Store.DeleteSubscription(r.Context(), id); err != nil {
		h.respondStoreErr(w, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Delete(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := h.Store.GetDelivery(r.Context(), id)
	if err != nil {
		h.respondStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) SubscriptionAttempts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := parseLimit(r, defaultAttemptsLimit, maxAttemptsLimit)
	attempts, err := h.Store.ListAttemptsForSubscription(r.Context(), id, limit)
	if err != nil {
		h.Log.Error("listing attempts failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.Log.Error("fetching stats failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Activity(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultActivityLimit, maxActivityLimit)
	items, err := h.Store.Activity(r.Context(), limit)
	if err != nil {
		h.Log.Error("fetching activity failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) respondStoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.Log.Error("store operation failed", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
