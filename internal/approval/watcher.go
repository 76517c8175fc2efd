package approval

import (
	"context"
	"time"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

// Watcher keeps the pending list current. Every change notification triggers
// a full refetch, so missed or duplicate events do no harm.
type Watcher struct {
	client *Client
	sub    backend.Subscriber
	log    logger.ILogger
	retry  time.Duration
}

func NewWatcher(client *Client, sub backend.Subscriber, log logger.ILogger) *Watcher {
	return &Watcher{client: client, sub: sub, log: log, retry: 3 * time.Second}
}

// Run calls onUpdate with the pending list now and after every change, until
// ctx is cancelled. A broken subscription is re-established.
func (w *Watcher) Run(ctx context.Context, onUpdate func([]model.Order)) {
	for {
		events, err := w.sub.SubscribeOrders(ctx)
		if err != nil {
			w.log.Error("order subscription failed", logger.Error(err))
		} else {
			w.reconcile(ctx, onUpdate)
			for range events {
				w.reconcile(ctx, onUpdate)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry):
		}
	}
}

func (w *Watcher) reconcile(ctx context.Context, onUpdate func([]model.Order)) {
	pending, err := w.client.ListPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("pending list refresh failed", logger.Error(err))
		}
		return
	}
	onUpdate(pending)
}
