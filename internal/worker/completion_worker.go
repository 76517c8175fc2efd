package worker

import (
	"context"
	"fmt"
	"time"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

type OrderCompleter interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Order, error)
	Complete(ctx context.Context, id int64) (*model.Order, bool, error)
}

// CompletionWorker moves Approved orders to Completed once their estimated
// completion time has passed. Clients observe the change through the feed.
type CompletionWorker struct {
	orders    OrderCompleter
	log       logger.ILogger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewCompletionWorker(orders OrderCompleter, log logger.ILogger, interval time.Duration) *CompletionWorker {
	return &CompletionWorker{
		orders:    orders,
		log:       log,
		interval:  interval,
		batchSize: 50,
		now:       time.Now,
	}
}

func (w *CompletionWorker) Start(ctx context.Context) {
	w.log.Info("starting completion worker", logger.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("completion worker stopped")
			return
		case <-ticker.C:
			if _, err := w.processBatch(ctx); err != nil {
				w.log.Error("batch processing failed", logger.Error(err))
			}
		}
	}
}

// processBatch returns the number of orders it completed.
func (w *CompletionWorker) processBatch(ctx context.Context) (int, error) {
	orders, err := w.orders.ListOverdue(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get overdue orders: %w", err)
	}

	completed := 0
	for _, order := range orders {
		_, changed, err := w.orders.Complete(ctx, order.OrderID)
		if err != nil {
			w.log.Error("failed to complete order", logger.Int64("order_id", order.OrderID), logger.Error(err))
			continue
		}
		if changed {
			completed++
			w.log.Info("order completed", logger.Int64("order_id", order.OrderID))
		}
	}

	return completed, nil
}
