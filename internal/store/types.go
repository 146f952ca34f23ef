// Package store is the typed adapter over the three core tables:
// subscriptions, webhook_deliveries, and delivery_attempts. Raw SQL
// throughout, no ORM: inline query strings and manual Scan calls.
package store

import (
	"encoding/json"
	"time"
)

// DeliveryStatus is one of the five states a WebhookDelivery passes
// through; success and failed are terminal.
type DeliveryStatus string

const (
	StatusPending       DeliveryStatus = "pending"
	StatusProcessing    DeliveryStatus = "processing"
	StatusFailedAttempt DeliveryStatus = "failed_attempt"
	StatusSuccess       DeliveryStatus = "success"
	StatusFailed        DeliveryStatus = "failed"
)

// Terminal reports whether s is a state from which no further
// transition is allowed.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// AttemptOutcome is the result of one executed delivery attempt.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
)

// Subscription is a registered delivery target.
type Subscription struct {
	ID        string    `json:"id"`
	TargetURL string    `json:"target_url"`
	SecretKey string    `json:"secret_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookDelivery is one logical payload-to-target delivery task.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	Payload        json.RawMessage
	Status         DeliveryStatus
	CreatedAt      time.Time
	LastAttemptAt  *time.Time
}

// DeliveryAttempt is one append-only HTTP attempt record.
type DeliveryAttempt struct {
	ID            int64
	DeliveryID    string
	AttemptNumber int
	Outcome       AttemptOutcome
	StatusCode    *int
	ResponseBody  *string
	ErrorMessage  *string
	Timestamp     time.Time
}
