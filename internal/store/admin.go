package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// Stats is the system-wide summary backing GET /status/stats: total
// subscriptions plus a trailing-24h success/failure count.
type Stats struct {
	TotalSubscriptions int64 `json:"total_subscriptions"`
	RecentSuccessCount int64 `json:"recent_success_count"`
	RecentFailedCount  int64 `json:"recent_failed_count"`
}

// ActivityItem is one entry in the combined activity feed: new
// subscriptions and delivery attempts interleaved by timestamp.
type ActivityItem struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// GenerateSecret returns a random hex secret, grounded on
// other_examples' austindbirch-harbor_hook generateSecret and on the
// teacher's dashboard webhook handler's whsec_-prefixed secrets.
func GenerateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

// Cursor identifies a position in the created_at-descending
// subscription listing, for keyset pagination.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// ListSubscriptions returns up to limit subscriptions ordered by
// creation time, most recent first, starting after after (the zero
// Cursor starts from the beginning). next is the cursor to pass on
// the following call and is the zero Cursor when there are no more
// rows.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, limit int, after Cursor) (subs []Subscription, next Cursor, err error) {
	query := `
		SELECT id, target_url, secret_key, created_at, updated_at
		FROM subscriptions
	`
	args := []interface{}{}
	if !after.Timestamp.IsZero() {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, after.Timestamp, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Cursor{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var sub Subscription
		var secret *string
		if err := rows.Scan(&sub.ID, &sub.TargetURL, &secret, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, Cursor{}, err
		}
		if secret != nil {
			sub.SecretKey = *secret
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, Cursor{}, err
	}

	// The query fetched one extra row beyond limit; its presence means
	// there's more to page through, and it is trimmed off the result.
	if len(subs) > limit {
		subs = subs[:limit]
		last := subs[len(subs)-1]
		next = Cursor{Timestamp: last.CreatedAt, ID: last.ID}
	}
	return subs, next, nil
}

// CreateSubscription inserts a new subscription. If secretKey is
// empty, a random whsec_-prefixed secret is generated.
func (s *PostgresStore) CreateSubscription(ctx context.Context, targetURL, secretKey string) (*Subscription, error) {
	if secretKey == "" {
		generated, err := GenerateSecret()
		if err != nil {
			return nil, err
		}
		secretKey = generated
	}
	var sub Subscription
	sub.TargetURL = targetURL
	sub.SecretKey = secretKey
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (target_url, secret_key)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, targetURL, secretKey).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription applies a partial update: a nil pointer leaves
// the corresponding column unchanged.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, id string, targetURL, secretKey *string) (*Subscription, error) {
	var sub Subscription
	var secret *string
	err := s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET target_url = COALESCE($2, target_url),
		    secret_key  = COALESCE($3, secret_key),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id, target_url, secret_key, created_at, updated_at
	`, id, targetURL, secretKey).Scan(&sub.ID, &sub.TargetURL, &secret, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if secret != nil {
		sub.SecretKey = *secret
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription by id. Deliveries
// referencing it are left untouched, so history stays queryable even
// after the subscription itself is gone.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAttemptsForSubscription returns up to limit of the most recent
// attempts across every delivery belonging to subscriptionID, as a
// direct join ordered by timestamp descending.
func (s *PostgresStore) ListAttemptsForSubscription(ctx context.Context, subscriptionID string, limit int) ([]DeliveryAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.delivery_id, a.attempt_number, a.outcome, a.status_code, a.response_body, a.error_message, a.timestamp
		FROM delivery_attempts a
		JOIN webhook_deliveries d ON d.id = a.delivery_id
		WHERE d.subscription_id = $1
		ORDER BY a.timestamp DESC
		LIMIT $2
	`, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.AttemptNumber, &a.Outcome, &a.StatusCode, &a.ResponseBody, &a.ErrorMessage, &a.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns the dashboard summary described by Stats.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&st.TotalSubscriptions); err != nil {
		return nil, err
	}
	since := time.Now().Add(-24 * time.Hour)
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries WHERE status = $1 AND created_at >= $2
	`, StatusSuccess, since).Scan(&st.RecentSuccessCount); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries WHERE status = $1 AND created_at >= $2
	`, StatusFailed, since).Scan(&st.RecentFailedCount); err != nil {
		return nil, err
	}
	return &st, nil
}

// Activity returns up to limit of the most recent subscription
// creations and delivery attempts, interleaved by timestamp.
func (s *PostgresStore) Activity(ctx context.Context, limit int) ([]ActivityItem, error) {
	var out []ActivityItem

	subRows, err := s.pool.Query(ctx, `
		SELECT id, created_at, target_url FROM subscriptions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	for subRows.Next() {
		var id, targetURL string
		var createdAt time.Time
		if err := subRows.Scan(&id, &createdAt, &targetURL); err != nil {
			subRows.Close()
			return nil, err
		}
		out = append(out, ActivityItem{
			Type:      "subscription_created",
			ID:        id,
			Timestamp: createdAt,
			Details:   "subscribed: " + truncateString(targetURL, 50),
		})
	}
	subRows.Close()
	if err := subRows.Err(); err != nil {
		return nil, err
	}

	attRows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, outcome, attempt_number, delivery_id
		FROM delivery_attempts ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	for attRows.Next() {
		var id int64
		var ts time.Time
		var outcome AttemptOutcome
		var attemptNumber int
		var deliveryID string
		if err := attRows.Scan(&id, &ts, &outcome, &attemptNumber, &deliveryID); err != nil {
			attRows.Close()
			return nil, err
		}
		out = append(out, ActivityItem{
			Type:      "delivery_attempt",
			ID:        fmt.Sprintf("%d", id),
			Timestamp: ts,
			Details:   fmt.Sprintf("delivery %s attempt #%d - %s", truncateString(deliveryID, 8), attemptNumber, outcome),
		})
	}
	attRows.Close()
	if err := attRows.Err(); err != nil {
		return nil, err
	}

	sortActivityByTimestampDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortActivityByTimestampDesc(items []ActivityItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
}
