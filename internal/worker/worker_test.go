package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/webhookrelay/internal/clock"
	"github.com/yourusername/webhookrelay/internal/jitter"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/queue"
	"github.com/yourusername/webhookrelay/internal/store"
)

func newTestWorker(t *testing.T, maxRetries int) (*Worker, *store.Fake, *queue.Fake) {
	t.Helper()
	st := store.NewFake()
	q := queue.NewFake()
	w := New(st, nil, q, Config{
		MaxRetries:     maxRetries,
		RequestTimeout: 2 * time.Second,
		RetryBase:      10 * time.Second,
		RetryCap:       900 * time.Second,
	}, logging.Nop())
	w.Clock = clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w.Jitter = jitter.Fixed(0.5)
	return w, st, q
}

func seedDelivery(t *testing.T, st *store.Fake, targetURL, secret string) *store.WebhookDelivery {
	t.Helper()
	ctx := context.Background()
	st.Subscriptions["sub-1"] = &store.Subscription{ID: "sub-1", TargetURL: targetURL, SecretKey: secret}
	d, err := st.InsertDelivery(ctx, "sub-1", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("seeding delivery: %v", err)
	}
	return d
}

func TestWorker_HappyPath_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	w, st, q := newTestWorker(t, 5)
	d := seedDelivery(t, st, srv.URL, "")

	w.Run(context.Background(), d.ID, 0)

	got, _ := st.GetDelivery(context.Background(), d.ID)
	if got.Status != store.StatusSuccess {
		t.Fatalf("status = %s, want success", got.Status)
	}
	attempts := st.AttemptsFor(d.ID)
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
	if attempts[0].Outcome != store.OutcomeSuccess || attempts[0].AttemptNumber != 1 {
		t.Fatalf("unexpected attempt: %+v", attempts[0])
	}
	if len(q.Jobs) != 0 {
		t.Fatalf("expected no retry enqueued on success, got %d", len(q.Jobs))
	}
}

func TestWorker_RetryThenSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, st, q := newTestWorker(t, 5)
	d := seedDelivery(t, st, srv.URL, "")

	w.Run(context.Background(), d.ID, 0)
	if len(q.Jobs) != 1 {
		t.Fatalf("expected a retry to be enqueued, got %d jobs", len(q.Jobs))
	}
	w.Run(context.Background(), d.ID, q.Jobs[0].AttemptCount)
	if len(q.Jobs) != 2 {
		t.Fatalf("expected a second retry to be enqueued, got %d jobs", len(q.Jobs))
	}
	w.Run(context.Background(), d.ID, q.Jobs[1].AttemptCount)

	got, _ := st.GetDelivery(context.Background(), d.ID)
	if got.Status != store.StatusSuccess {
		t.Fatalf("status = %s, want success", got.Status)
	}
	attempts := st.AttemptsFor(d.ID)
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts, want 3", len(attempts))
	}
	wantOutcomes := []store.AttemptOutcome{store.OutcomeFailed, store.OutcomeFailed, store.OutcomeSuccess}
	for i, a := range attempts {
		if a.Outcome != wantOutcomes[i] {
			t.Errorf("attempt %d outcome = %s, want %s", i+1, a.Outcome, wantOutcomes[i])
		}
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d has AttemptNumber=%d", i+1, a.AttemptNumber)
		}
	}
}

func TestWorker_TerminalFailure_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w, st, q := newTestWorker(t, 5)
	d := seedDelivery(t, st, srv.URL, "")

	attemptCount := 0
	for i := 0; i < 6; i++ {
		w.Run(context.Background(), d.ID, attemptCount)
		if len(q.Jobs) > 0 {
			attemptCount = q.Jobs[len(q.Jobs)-1].AttemptCount
		}
	}

	got, _ := st.GetDelivery(context.Background(), d.ID)
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	attempts := st.AttemptsFor(d.ID)
	if len(attempts) != 6 {
		t.Fatalf("got %d attempts, want 6 (MaxRetries=5 => 6 total)", len(attempts))
	}
	for _, a := range attempts {
		if a.Outcome != store.OutcomeFailed {
			t.Errorf("attempt outcome = %s, want failed", a.Outcome)
		}
	}
}

func TestWorker_SubscriptionMissing_TerminalFailImmediately(t *testing.T) {
	w, st, q := newTestWorker(t, 5)
	ctx := context.Background()
	d, _ := st.InsertDelivery(ctx, "ghost-sub", []byte(`{}`))

	w.Run(ctx, d.ID, 0)

	got, _ := st.GetDelivery(ctx, d.ID)
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	attempts := st.AttemptsFor(d.ID)
	if len(attempts) != 1 || attempts[0].ErrorMessage == nil || *attempts[0].ErrorMessage != "subscription missing" {
		t.Fatalf("unexpected attempts: %+v", attempts)
	}
	if len(q.Jobs) != 0 {
		t.Fatalf("expected no retry for missing subscription, got %d", len(q.Jobs))
	}
}

func TestWorker_IdempotentShortCircuit_TerminalDeliveryIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("target should not be called for an already-terminal delivery")
	}))
	defer srv.Close()

	w, st, _ := newTestWorker(t, 5)
	d := seedDelivery(t, st, srv.URL, "")
	now := time.Now()
	if err := st.UpdateDeliveryStatus(context.Background(), d.ID, store.StatusSuccess, &now); err != nil {
		t.Fatalf("seeding terminal status: %v", err)
	}

	w.Run(context.Background(), d.ID, 0)

	attempts := st.AttemptsFor(d.ID)
	if len(attempts) != 0 {
		t.Fatalf("expected no new attempt row for terminal delivery, got %d", len(attempts))
	}
}

func TestWorker_MaxRetriesZero_SingleAttemptGoesStraightToFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w, st, q := newTestWorker(t, 0)
	d := seedDelivery(t, st, srv.URL, "")

	w.Run(context.Background(), d.ID, 0)

	got, _ := st.GetDelivery(context.Background(), d.ID)
	if got.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if len(q.Jobs) != 0 {
		t.Fatalf("expected no retry when MaxRetries=0, got %d", len(q.Jobs))
	}
	if len(st.AttemptsFor(d.ID)) != 1 {
		t.Fatalf("expected exactly one attempt")
	}
}

func TestWorker_SignsOutboundRequestWhenSecretPresent(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Webhook-Signature-256")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, st, _ := newTestWorker(t, 5)
	d := seedDelivery(t, st, srv.URL, "shh")

	w.Run(context.Background(), d.ID, 0)

	if gotHeader == "" {
		t.Fatal("expected outbound signature header to be set")
	}
}
