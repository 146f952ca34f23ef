package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the Store implementation backed by a pgx pool,
// using inline SQL strings throughout rather than an ORM.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New wraps pool as a Store.
func New(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping reports whether the underlying connection pool can reach
// Postgres, for use by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	var secret *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, target_url, secret_key, created_at, updated_at
		FROM subscriptions
		WHERE id = $1
	`, id).Scan(&sub.ID, &sub.TargetURL, &secret, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if secret != nil {
		sub.SecretKey = *secret
	}
	return &sub, nil
}

// InsertDelivery assigns the delivery's id in Go rather than leaning on
// the column's gen_random_uuid() default, so the id is available to
// the caller (and to logging) before the row round-trips back.
func (s *PostgresStore) InsertDelivery(ctx context.Context, subscriptionID string, payload []byte) (*WebhookDelivery, error) {
	var d WebhookDelivery
	d.ID = uuid.NewString()
	d.SubscriptionID = subscriptionID
	d.Payload = json.RawMessage(payload)
	d.Status = StatusPending
	err := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, d.ID, subscriptionID, payload, StatusPending).Scan(&d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error) {
	var d WebhookDelivery
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, payload, status, created_at, last_attempt_at
		FROM webhook_deliveries
		WHERE id = $1
	`, id).Scan(&d.ID, &d.SubscriptionID, &payload, &d.Status, &d.CreatedAt, &d.LastAttemptAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Payload = json.RawMessage(payload)
	return &d, nil
}

func (s *PostgresStore) UpdateDeliveryStatus(ctx context.Context, id string, status DeliveryStatus, lastAttemptAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = $2, last_attempt_at = COALESCE($3, last_attempt_at)
		WHERE id = $1
	`, id, status, lastAttemptAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertAttempt(ctx context.Context, a *DeliveryAttempt) (*DeliveryAttempt, error) {
	out := *a
	err := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_attempts (
			delivery_id, attempt_number, outcome, status_code, response_body, error_message, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, a.DeliveryID, a.AttemptNumber, a.Outcome, a.StatusCode, a.ResponseBody, a.ErrorMessage, a.Timestamp).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM delivery_attempts
		WHERE timestamp < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
