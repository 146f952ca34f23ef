// Package worker implements the delivery worker: it executes one
// attempt against a subscription's target URL, classifies the
// outcome, persists an append-only attempt row, and drives the
// delivery state machine forward (pending -> processing -> success |
// failed_attempt -> processing ... -> failed).
//
// The river.Worker shape, HTTP client construction, and HMAC request
// signing follow the river.Worker pattern used elsewhere in this
// codebase; retries diverge from River's native attempt counter (see
// backoff.go and queue.DeliveryArgs) so the retry contract stays
// independent of the queue implementation.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverqueue/river"

	"github.com/yourusername/webhookrelay/internal/cache"
	"github.com/yourusername/webhookrelay/internal/clock"
	"github.com/yourusername/webhookrelay/internal/jitter"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/queue"
	"github.com/yourusername/webhookrelay/internal/security"
	"github.com/yourusername/webhookrelay/internal/store"
)

// maxResponseBodyCapture is the cap applied to stored response bodies
// (suggested cap of 1 KiB).
const maxResponseBodyCapture = 1024

// Config tunes the worker's retry behavior; fields mirror
// env-sourced knobs in internal/config.
type Config struct {
	MaxRetries     int
	RequestTimeout time.Duration
	RetryBase      time.Duration
	RetryCap       time.Duration
}

// Worker executes delivery jobs pulled from the queue.
type Worker struct {
	river.WorkerDefaults[queue.DeliveryArgs]

	Store      store.Store
	Cache      *cache.SubscriptionCache
	Queue      queue.Queue
	HTTPClient *http.Client
	Clock      clock.Clock
	Jitter     jitter.Source
	Log        logging.Logger
	Cfg        Config
}

// New constructs a Worker with sensible production defaults for the
// injected collaborators that aren't provided.
func New(st store.Store, c *cache.SubscriptionCache, q queue.Queue, cfg Config, log logging.Logger) *Worker {
	return &Worker{
		Store:  st,
		Cache:  c,
		Queue:  q,
		Cfg:    cfg,
		Clock:  clock.Real(),
		Jitter: jitter.Real(),
		Log:    log,
		HTTPClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Work implements river.Worker. It always returns nil: retries are
// driven by an explicit re-enqueue (see Run below), not by returning
// an error for River's native retry to pick up.
func (w *Worker) Work(ctx context.Context, job *river.Job[queue.DeliveryArgs]) error {
	w.Run(ctx, job.Args.DeliveryID, job.Args.AttemptCount)
	return nil
}

// Run executes one dispatch cycle for deliveryID at the given
// attemptCount (0 on first dispatch, incremented on each retry
// re-enqueue). It never returns an error: every failure mode short-
// circuits to a logged outcome, matching the at-least-once, ack-and-
// discard semantics below.
func (w *Worker) Run(ctx context.Context, deliveryID string, attemptCount int) {
	attemptNumber := attemptCount + 1
	log := w.Log.With(map[string]interface{}{
		"delivery_id":    deliveryID,
		"attempt_number": attemptNumber,
	})

	d, err := w.Store.GetDelivery(ctx, deliveryID)
	if err != nil {
		log.Warn("delivery not found, discarding job")
		return
	}

	log = log.With(map[string]interface{}{"subscription_id": d.SubscriptionID})

	if d.Status.Terminal() {
		log.Debug("delivery already terminal, discarding duplicate job")
		return
	}

	sub := w.resolveSubscription(ctx, d)
	if sub == nil {
		now := w.Clock.Now()
		w.terminalFail(ctx, log, d, attemptNumber, now, nil, nil, "subscription missing")
		return
	}

	if d.Status != store.StatusProcessing {
		if err := w.Store.UpdateDeliveryStatus(ctx, d.ID, store.StatusProcessing, nil); err != nil {
			log.Error("failed to mark delivery processing", err)
		}
	}

	start := w.Clock.Now()
	statusCode, body, attemptErr := w.attempt(ctx, sub, d.Payload)
	metrics.ObserveDelivery(outcomeLabel(statusCode, attemptErr), time.Since(start))

	now := w.Clock.Now()

	if attemptErr == nil && statusCode >= 200 && statusCode < 300 {
		truncated := truncate(body, maxResponseBodyCapture)
		w.recordAttempt(ctx, log, d.ID, attemptNumber, store.OutcomeSuccess, &statusCode, &truncated, nil, now)
		if err := w.Store.UpdateDeliveryStatus(ctx, d.ID, store.StatusSuccess, &now); err != nil {
			log.Error("failed to mark delivery success", err)
		}
		metrics.DeliveriesTerminal.WithLabelValues("success").Inc()
		return
	}

	var statusCodePtr *int
	var bodyPtr *string
	var errMsg string
	if attemptErr != nil {
		errMsg = attemptErr.Error()
	} else {
		statusCodePtr = &statusCode
		truncated := truncate(body, maxResponseBodyCapture)
		bodyPtr = &truncated
		errMsg = fmt.Sprintf("client error: %d", statusCode)
		if statusCode >= 500 {
			errMsg = fmt.Sprintf("server error: %d", statusCode)
		}
	}

	if attemptNumber > w.Cfg.MaxRetries {
		w.terminalFail(ctx, log, d, attemptNumber, now, statusCodePtr, bodyPtr, errMsg)
		return
	}

	w.recordAttempt(ctx, log, d.ID, attemptNumber, store.OutcomeFailed, statusCodePtr, bodyPtr, &errMsg, now)
	if err := w.Store.UpdateDeliveryStatus(ctx, d.ID, store.StatusFailedAttempt, &now); err != nil {
		log.Error("failed to mark delivery failed_attempt", err)
	}

	delay := backoffDelay(attemptNumber, w.Cfg.RetryBase, w.Cfg.RetryCap, w.Jitter)
	if err := w.Queue.Enqueue(ctx, d.ID, attemptCount+1, delay); err != nil {
		log.Error("failed to re-enqueue retry", err)
	}
}

func (w *Worker) resolveSubscription(ctx context.Context, d *store.WebhookDelivery) *store.Subscription {
	if w.Cache != nil {
		if sub, ok := w.Cache.Get(ctx, d.SubscriptionID); ok {
			return sub
		}
	}
	sub, err := w.Store.GetSubscription(ctx, d.SubscriptionID)
	if err != nil {
		return nil
	}
	if w.Cache != nil {
		w.Cache.Set(ctx, sub)
	}
	return sub
}

func (w *Worker) terminalFail(ctx context.Context, log logging.Logger, d *store.WebhookDelivery, attemptNumber int, now time.Time, statusCode *int, body *string, errMsg string) {
	w.recordAttempt(ctx, log, d.ID, attemptNumber, store.OutcomeFailed, statusCode, body, &errMsg, now)
	if err := w.Store.UpdateDeliveryStatus(ctx, d.ID, store.StatusFailed, &now); err != nil {
		log.Error("failed to mark delivery failed", err)
	}
	metrics.DeliveriesTerminal.WithLabelValues("failed").Inc()
}

func (w *Worker) recordAttempt(ctx context.Context, log logging.Logger, deliveryID string, attemptNumber int, outcome store.AttemptOutcome, statusCode *int, body, errMsg *string, ts time.Time) {
	_, err := w.Store.InsertAttempt(ctx, &store.DeliveryAttempt{
		DeliveryID:    deliveryID,
		AttemptNumber: attemptNumber,
		Outcome:       outcome,
		StatusCode:    statusCode,
		ResponseBody:  body,
		ErrorMessage:  errMsg,
		Timestamp:     ts,
	})
	if err != nil {
		log.Error("failed to insert attempt row", err)
	}
}

// attempt performs the outbound HTTP POST and returns (statusCode,
// body, err). err is non-nil only for transport-level failures
// (including timeout); a non-2xx HTTP response is reported via
// statusCode with err == nil.
func (w *Worker) attempt(ctx context.Context, sub *store.Subscription, payload []byte) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.Cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.TargetURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.SecretKey != "" {
		req.Header.Set("X-Webhook-Signature-256", security.Sign(sub.SecretKey, payload))
	}

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return 0, "", fmt.Errorf("request timed out after %s", w.Cfg.RequestTimeout)
		}
		return 0, "", fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyCapture*4))
	return resp.StatusCode, string(bodyBytes), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func outcomeLabel(statusCode int, err error) string {
	if err == nil && statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	return "failed"
}
