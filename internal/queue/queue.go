// Package queue is the work queue adapter: a FIFO carrying one
// opaque delivery_id per message, backed by River. Retries are always
// explicit re-enqueues with a computed delay rather than River's
// native attempt counter: the job always completes (Work returns nil)
// and a fresh job carries the incremented attempt_count in its args.
package queue

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// DeliveryArgs is the payload carried by a delivery job. AttemptCount
// is 0 on the first dispatch of a delivery and is incremented by the
// worker on each explicit retry re-enqueue.
type DeliveryArgs struct {
	DeliveryID   string `json:"delivery_id"`
	AttemptCount int    `json:"attempt_count"`
}

// Kind implements river.JobArgs.
func (DeliveryArgs) Kind() string { return "webhook_delivery" }

// Queue is the contract used by the ingest handler and the worker.
type Queue interface {
	// Enqueue schedules delivery for dispatch no earlier than delay
	// from now (delay=0 meaning as soon as a worker is free).
	Enqueue(ctx context.Context, deliveryID string, attemptCount int, delay time.Duration) error
}

// RiverQueue adapts a river.Client to the Queue contract. The type
// parameter matches what riverpgxv5.New(pool) produces: River's
// generic Client is parameterized over the driver's transaction type.
type RiverQueue struct {
	client *river.Client[pgx.Tx]
}

// NewRiverQueue wraps a river.Client; the client need not be started
// yet (cmd/worker wraps it before calling Start).
func NewRiverQueue(client *river.Client[pgx.Tx]) *RiverQueue {
	return &RiverQueue{client: client}
}

func (q *RiverQueue) Enqueue(ctx context.Context, deliveryID string, attemptCount int, delay time.Duration) error {
	opts := &river.InsertOpts{}
	if delay > 0 {
		opts.ScheduledAt = time.Now().Add(delay)
	}
	_, err := q.client.Insert(ctx, DeliveryArgs{DeliveryID: deliveryID, AttemptCount: attemptCount}, opts)
	return err
}
