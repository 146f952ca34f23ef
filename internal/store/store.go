package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get* methods when the row doesn't exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract. Implementations must not enforce
// terminality themselves: the worker's pre-check is the single
// authority, since the queue shape guarantees at-most-one-in-flight
// per delivery.
type Store interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)

	InsertDelivery(ctx context.Context, subscriptionID string, payload []byte) (*WebhookDelivery, error)
	GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status DeliveryStatus, lastAttemptAt *time.Time) error

	InsertAttempt(ctx context.Context, a *DeliveryAttempt) (*DeliveryAttempt, error)
	DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
