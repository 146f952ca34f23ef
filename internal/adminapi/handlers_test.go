package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/store"
)

// fakeAdminStore extends store.Fake with the admin-only methods,
// since store.Fake itself only implements the core Store contract.
type fakeAdminStore struct {
	*store.Fake
	subs    []store.Subscription
	pingErr error
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{Fake: store.NewFake()}
}

func (f *fakeAdminStore) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeAdminStore) ListSubscriptions(_ context.Context, limit int, after store.Cursor) ([]store.Subscription, store.Cursor, error) {
	start := 0
	if after.ID != "" {
		for i, s := range f.subs {
			if s.ID == after.ID {
				start = i + 1
				break
			}
		}
	}
	remaining := f.subs[start:]
	if limit < len(remaining) {
		return remaining[:limit], store.Cursor{ID: remaining[limit-1].ID}, nil
	}
	return remaining, store.Cursor{}, nil
}

func (f *fakeAdminStore) CreateSubscription(_ context.Context, targetURL, secretKey string) (*store.Subscription, error) {
	sub := store.Subscription{ID: "new-sub", TargetURL: targetURL, SecretKey: secretKey}
	f.subs = append(f.subs, sub)
	f.Fake.Subscriptions[sub.ID] = &sub
	return &sub, nil
}

func (f *fakeAdminStore) UpdateSubscription(_ context.Context, id string, targetURL, secretKey *string) (*store.Subscription, error) {
	sub, ok := f.Fake.Subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if targetURL != nil {
		sub.TargetURL = *targetURL
	}
	if secretKey != nil {
		sub.SecretKey = *secretKey
	}
	return sub, nil
}

func (f *fakeAdminStore) DeleteSubscription(_ context.Context, id string) error {
	if _, ok := f.Fake.Subscriptions[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.Fake.Subscriptions, id)
	return nil
}

func (f *fakeAdminStore) ListAttemptsForSubscription(_ context.Context, subscriptionID string, limit int) ([]store.DeliveryAttempt, error) {
	var out []store.DeliveryAttempt
	for _, a := range f.Fake.AttemptsFor(subscriptionID) {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAdminStore) Stats(_ context.Context) (*store.Stats, error) {
	return &store.Stats{TotalSubscriptions: int64(len(f.subs))}, nil
}

func (f *fakeAdminStore) Activity(_ context.Context, limit int) ([]store.ActivityItem, error) {
	return nil, nil
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeAdminStore) {
	t.Helper()
	st := newFakeAdminStore()
	return New(st, nil, logging.Nop()), st
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealth_StoreUnreachable(t *testing.T) {
	st := newFakeAdminStore()
	st.pingErr = errors.New("connection refused")
	h := New(st, nil, logging.Nop())
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCreateAndGetSubscription(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(`{"target_url":"https://example.com/hook"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/subscriptions/new-sub", nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec2.Code)
	}
}

func TestListSubscriptions_PaginatesByCursor(t *testing.T) {
	h, st := newTestHandlers(t)
	for _, id := range []string{"sub-a", "sub-b", "sub-c"} {
		st.subs = append(st.subs, store.Subscription{ID: id, TargetURL: "https://example.com/" + id})
	}
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions?limit=2", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var page1 struct {
		Data       []store.Subscription `json:"data"`
		Pagination struct {
			HasMore           bool   `json:"has_more"`
			ContinuationToken string `json:"continuation_token"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&page1); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(page1.Data) != 2 || !page1.Pagination.HasMore || page1.Pagination.ContinuationToken == "" {
		t.Fatalf("unexpected first page: %+v", page1)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/subscriptions?limit=2&continuation_token="+page1.Pagination.ContinuationToken, nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)

	var page2 struct {
		Data       []store.Subscription `json:"data"`
		Pagination struct {
			HasMore bool `json:"has_more"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(rec2.Body).Decode(&page2); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(page2.Data) != 1 || page2.Data[0].ID != "sub-c" || page2.Pagination.HasMore {
		t.Fatalf("unexpected second page: %+v", page2)
	}
}

func TestGetSubscription_NotFound(t *testing.T) {
	h, _ := newTestHandlers(t)
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteSubscription(t *testing.T) {
	h, st := newTestHandlers(t)
	st.Fake.Subscriptions["sub-1"] = &store.Subscription{ID: "sub-1", TargetURL: "https://example.com"}
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodDelete, "/subscriptions/sub-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}
