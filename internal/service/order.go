package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fueldelivery/internal/model"
)

const orderColumns = `order_id, user_id::text, location, fuel_type, amount, company,
	price_per_liter::text, price::text, status, is_approved,
	created_at, started_at, estimated_completion_time`

type OrderService struct {
	db DB
}

func NewOrderService(db DB) *OrderService {
	return &OrderService{db: db}
}

// OrderFilter narrows List. Empty fields match everything.
type OrderFilter struct {
	UserID string
	Status model.OrderStatus
}

// Create stores a new Pending order. Status, approval flag and price are
// derived here regardless of what the caller sent.
func (s *OrderService) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	if err := validateOrder(o); err != nil {
		return nil, err
	}

	o.Status = model.StatusPending
	o.IsApproved = false
	o.StartedAt = nil
	o.Price = model.TotalPrice(o.PricePerLiter, o.Amount)

	row := s.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, location, fuel_type, amount, company,
			price_per_liter, price, status, is_approved, estimated_completion_time)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric, $8, $9, $10)
		RETURNING `+orderColumns,
		o.UserID, o.Location, o.FuelType, o.Amount, o.Company,
		o.PricePerLiter.String(), o.Price.String(), o.Status, o.IsApproved, o.EstimatedCompletionTime,
	)

	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return created, nil
}

func (s *OrderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR user_id::text = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, order_id DESC
	`, f.UserID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return collectOrders(rows)
}

// LatestActive returns the most recent Approved or Completed order of the user.
func (s *OrderService) LatestActive(ctx context.Context, userID string) (*model.Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1 AND status IN ('Approved', 'Completed')
		ORDER BY created_at DESC, order_id DESC
		LIMIT 1
	`, userID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("latest active order: %w", err)
	}
	return o, nil
}

func (s *OrderService) Approve(ctx context.Context, id int64, startedAt time.Time) (*model.Order, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'Approved', is_approved = TRUE, started_at = $2
		WHERE order_id = $1 AND status = 'Pending'
		RETURNING `+orderColumns,
		id, startedAt,
	)
	o, err := scanOrder(row)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("approve order: %w", err)
	}

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrTransitionRejected
}

// Complete moves an Approved order to Completed. An order that is already
// Completed is returned unchanged with changed=false.
func (s *OrderService) Complete(ctx context.Context, id int64) (o *model.Order, changed bool, err error) {
	row := s.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'Completed'
		WHERE order_id = $1 AND status = 'Approved'
		RETURNING `+orderColumns,
		id,
	)
	o, err = scanOrder(row)
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("complete order: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == model.StatusCompleted {
		return current, false, nil
	}
	return nil, false, ErrTransitionRejected
}

func (s *OrderService) Delete(ctx context.Context, id int64, userID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE order_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListOverdue returns Approved orders whose estimated completion time is not after now.
func (s *OrderService) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'Approved' AND estimated_completion_time <= $1
		ORDER BY estimated_completion_time ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query overdue: %w", err)
	}
	return collectOrders(rows)
}

func validateOrder(o *model.Order) error {
	switch {
	case o.UserID == "":
		return fmt.Errorf("%w: missing user", ErrInvalidOrder)
	case o.Location == "":
		return fmt.Errorf("%w: missing location", ErrInvalidOrder)
	case !o.FuelType.Valid():
		return fmt.Errorf("%w: unknown fuel type %q", ErrInvalidOrder, o.FuelType)
	case !o.Company.Valid():
		return fmt.Errorf("%w: unknown company %q", ErrInvalidOrder, o.Company)
	case o.Amount < model.MinAmount || o.Amount > model.MaxAmount:
		return fmt.Errorf("%w: amount %d out of range", ErrInvalidOrder, o.Amount)
	case !model.ValidPricePerLiter(o.PricePerLiter):
		return fmt.Errorf("%w: price per liter must be positive with at most %d decimals", ErrInvalidOrder, model.PriceScale)
	case o.EstimatedCompletionTime.IsZero():
		return fmt.Errorf("%w: missing estimated completion time", ErrInvalidOrder)
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var pricePerLiter, price string
	err := row.Scan(
		&o.OrderID,
		&o.UserID,
		&o.Location,
		&o.FuelType,
		&o.Amount,
		&o.Company,
		&pricePerLiter,
		&price,
		&o.Status,
		&o.IsApproved,
		&o.CreatedAt,
		&o.StartedAt,
		&o.EstimatedCompletionTime,
	)
	if err != nil {
		return nil, err
	}

	if o.PricePerLiter, err = decimal.NewFromString(pricePerLiter); err != nil {
		return nil, fmt.Errorf("parse price per liter: %w", err)
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return orders, nil
}
