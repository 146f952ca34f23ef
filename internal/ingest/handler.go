// Package ingest implements the POST /ingest/{subscription_id}
// endpoint: validate the subscription, verify the HMAC signature over
// the raw body, parse JSON, persist a delivery row, and enqueue the
// first dispatch. Handler implements http.Handler and is wired by hand
// onto an http.ServeMux with a Go 1.22+ method+path pattern, no router
// library.
package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/queue"
	"github.com/yourusername/webhookrelay/internal/security"
	"github.com/yourusername/webhookrelay/internal/store"
)

// MaxBodyBytes bounds the request body the endpoint will buffer;
// payloads are bounded JSON documents, not large-payload streams.
const MaxBodyBytes = 5 << 20 // 5 MiB

// Handler serves POST /ingest/{subscription_id}.
type Handler struct {
	Store store.Store
	Queue queue.Queue
	Log   logging.Logger
}

func New(st store.Store, q queue.Queue, log logging.Logger) *Handler {
	return &Handler{Store: st, Queue: q, Log: log}
}

// ServeHTTP validates, verifies, parses, persists, and enqueues a
// delivery in a fixed sequence.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := r.PathValue("subscription_id")
	log := h.Log.With(map[string]interface{}{"subscription_id": subscriptionID})

	sub, err := h.Store.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.IngestRequests.WithLabelValues("unknown_subscription").Inc()
			http.Error(w, "unknown subscription", http.StatusNotFound)
			return
		}
		log.Error("store error resolving subscription", err)
		metrics.IngestRequests.WithLabelValues("store_error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		log.Error("failed to read request body", err)
		metrics.IngestRequests.WithLabelValues("store_error").Inc()
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	// Verification runs on the exact bytes read above, before any JSON
	// parsing touches them.
	header := r.Header.Get("X-Webhook-Signature-256")
	if !security.Verify(sub.SecretKey, body, header) {
		metrics.IngestRequests.WithLabelValues("bad_signature").Inc()
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload []byte
	if len(body) == 0 {
		payload = []byte("{}")
	} else {
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			metrics.IngestRequests.WithLabelValues("bad_json").Inc()
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		payload = body
	}

	d, err := h.Store.InsertDelivery(ctx, sub.ID, payload)
	if err != nil {
		log.Error("failed to insert delivery", err)
		metrics.IngestRequests.WithLabelValues("store_error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log = log.With(map[string]interface{}{"delivery_id": d.ID})

	if err := h.Queue.Enqueue(ctx, d.ID, 0, 0); err != nil {
		// The delivery row remains pending; recovery is an operational
		// concern (open question recorded in DESIGN.md).
		log.Error("failed to enqueue delivery job", err)
		metrics.IngestRequests.WithLabelValues("store_error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.IngestRequests.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusAccepted)
}
