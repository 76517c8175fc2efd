// Package approval is the administrator's side of the order flow.
package approval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

var ErrNoLocation = errors.New("order has no delivery location")

// ApprovalError means the backend refused to approve the order. The order
// stays in the pending list.
type ApprovalError struct {
	OrderID int64
	Err     error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("approve order %d: %v", e.OrderID, e.Err)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

// Dispatch is an approved order together with directions to its location.
type Dispatch struct {
	Order         model.Order
	NavigationURL string
}

type Client struct {
	orders backend.Orders
	log    logger.ILogger
}

func New(orders backend.Orders, log logger.ILogger) *Client {
	return &Client{orders: orders, log: log}
}

// ListPending returns every Pending order, newest first.
func (c *Client) ListPending(ctx context.Context) ([]model.Order, error) {
	orders, err := c.orders.ListOrders(ctx, backend.OrderQuery{All: true, Status: model.StatusPending})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Approve moves a Pending order to Approved and returns where to drive.
func (c *Client) Approve(ctx context.Context, id int64) (*Dispatch, error) {
	o, err := c.orders.ApproveOrder(ctx, id)
	if err != nil {
		return nil, &ApprovalError{OrderID: id, Err: err}
	}

	c.log.Info("order approved", logger.Int64("order_id", id))

	d := &Dispatch{Order: *o}
	if d.NavigationURL, err = NavigationURL(o.Location); err != nil {
		c.log.Warning("no navigation link for approved order", logger.Int64("order_id", id), logger.Error(err))
	}
	return d, nil
}

// NavigationURL builds a Google Maps driving directions link to location.
func NavigationURL(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", ErrNoLocation
	}

	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", location)
	q.Set("travelmode", "driving")
	return "https://www.google.com/maps/dir/?" + q.Encode(), nil
}
