// Package lifecycle owns the customer's view of their current order: creating
// it, tracking it while it is being delivered, and completing it on time.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/estimator"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/session"
)

const AwaitingApproval = "awaiting approval"

var ErrInvalidOrder = errors.New("invalid order")

// Notifier tells the user that a delivery finished. It is called at most once per order.
type Notifier interface {
	OrderCompleted(o model.Order)
}

type NotifierFunc func(o model.Order)

func (f NotifierFunc) OrderCompleted(o model.Order) { f(o) }

type OrderParams struct {
	Location string
	FuelType model.FuelType
	Amount   int
	Company  model.Company
}

type Client struct {
	orders        backend.Orders
	sess          *session.Session
	notifier      Notifier
	log           logger.ILogger
	pricePerLiter decimal.Decimal
	interval      time.Duration
	now           func() time.Time

	mu       sync.Mutex
	active   *model.Order
	notified map[int64]bool
}

func New(orders backend.Orders, sess *session.Session, notifier Notifier, log logger.ILogger,
	pricePerLiter decimal.Decimal, interval time.Duration) *Client {
	return &Client{
		orders:        orders,
		sess:          sess,
		notifier:      notifier,
		log:           log,
		pricePerLiter: pricePerLiter,
		interval:      interval,
		now:           time.Now,
		notified:      map[int64]bool{},
	}
}

// CreateOrder submits a Pending order and returns its id. Local state is left
// untouched on failure.
func (c *Client) CreateOrder(ctx context.Context, p OrderParams) (int64, error) {
	if _, err := c.sess.Require(); err != nil {
		return 0, err
	}
	if err := validate(p); err != nil {
		return 0, err
	}
	if !model.ValidPricePerLiter(c.pricePerLiter) {
		return 0, fmt.Errorf("%w: price per liter %s must be positive with at most %d decimals",
			ErrInvalidOrder, c.pricePerLiter, model.PriceScale)
	}

	now := c.now()
	o := model.Order{
		Location:                p.Location,
		FuelType:                p.FuelType,
		Amount:                  p.Amount,
		Company:                 p.Company,
		PricePerLiter:           c.pricePerLiter,
		Price:                   model.TotalPrice(c.pricePerLiter, p.Amount),
		Status:                  model.StatusPending,
		EstimatedCompletionTime: estimator.CompletionTime(now, p.Amount, p.Company),
	}

	created, err := c.orders.CreateOrder(ctx, o)
	if err != nil {
		return 0, asPersistence("create order", err)
	}

	c.log.Info("order created",
		logger.Int64("order_id", created.OrderID),
		logger.String("eta", estimator.Label(p.Amount, p.Company)))
	return created.OrderID, nil
}

// Active returns the order currently being tracked, if any.
func (c *Client) Active() *model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	cp := *c.active
	return &cp
}

// PollActiveOrder runs one tracking cycle and returns the tracked order, or
// nil when there is nothing in delivery. Backend failures count as "no active
// order" for this cycle.
func (c *Client) PollActiveOrder(ctx context.Context) *model.Order {
	if _, err := c.sess.Require(); err != nil {
		c.setActive(nil)
		return nil
	}

	o, err := c.orders.ActiveOrder(ctx)
	if err != nil {
		c.log.Error("active order poll failed", logger.Error(err))
		c.setActive(nil)
		return nil
	}

	if o == nil {
		c.setActive(nil)
		return nil
	}

	switch o.Status {
	case model.StatusCompleted:
		// Completed elsewhere while we were tracking it.
		if prev := c.Active(); prev != nil && prev.OrderID == o.OrderID {
			c.markCompleted(*o)
		}
		c.setActive(nil)
		return nil
	case model.StatusApproved:
	default:
		c.setActive(nil)
		return nil
	}

	if o.Overdue(c.now()) {
		if err := c.CompleteOrder(ctx, o.OrderID); err != nil {
			c.log.Error("order completion failed", logger.Int64("order_id", o.OrderID), logger.Error(err))
		}
		c.setActive(nil)
		return nil
	}

	c.setActive(o)
	return c.Active()
}

// CompleteOrder marks the order Completed and notifies the user once.
func (c *Client) CompleteOrder(ctx context.Context, id int64) error {
	o, changed, err := c.orders.CompleteOrder(ctx, id)
	if err != nil {
		return asPersistence("complete order", err)
	}
	if changed {
		c.log.Info("order completed", logger.Int64("order_id", id))
	}
	c.markCompleted(*o)
	return nil
}

// Run polls every interval until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.PollActiveOrder(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.setActive(nil)
			return
		case <-ticker.C:
			c.PollActiveOrder(ctx)
		}
	}
}

// TimeRemaining is what the countdown shows for o at now.
func TimeRemaining(o model.Order, now time.Time) string {
	if o.Status == model.StatusPending {
		return AwaitingApproval
	}
	left := o.EstimatedCompletionTime.Sub(now).Seconds()
	return estimator.FormatSeconds(int(math.Ceil(left)))
}

func (c *Client) markCompleted(o model.Order) {
	c.mu.Lock()
	already := c.notified[o.OrderID]
	c.notified[o.OrderID] = true
	c.mu.Unlock()

	if !already && c.notifier != nil {
		c.notifier.OrderCompleted(o)
	}
}

func (c *Client) setActive(o *model.Order) {
	c.mu.Lock()
	c.active = o
	c.mu.Unlock()
}

func validate(p OrderParams) error {
	switch {
	case p.Location == "":
		return fmt.Errorf("%w: location is required", ErrInvalidOrder)
	case !p.FuelType.Valid():
		return fmt.Errorf("%w: unknown fuel type %q", ErrInvalidOrder, p.FuelType)
	case !p.Company.Valid():
		return fmt.Errorf("%w: unknown company %q", ErrInvalidOrder, p.Company)
	case p.Amount < model.MinAmount || p.Amount > model.MaxAmount:
		return fmt.Errorf("%w: amount must be between %d and %d liters", ErrInvalidOrder, model.MinAmount, model.MaxAmount)
	}
	return nil
}

// asPersistence keeps ErrAuthRequired and PersistenceError as they are and
// wraps anything else so callers always get the backend message.
func asPersistence(op string, err error) error {
	var pe *backend.PersistenceError
	if errors.Is(err, backend.ErrAuthRequired) || errors.As(err, &pe) {
		return err
	}
	return &backend.PersistenceError{Op: op, Message: err.Error()}
}
