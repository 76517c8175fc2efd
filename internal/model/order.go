package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusApproved  OrderStatus = "Approved"
	StatusCompleted OrderStatus = "Completed"
)

func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusApproved:
		return 2
	case StatusCompleted:
		return 3
	}
	return 0
}

func (s OrderStatus) Valid() bool {
	return s.rank() > 0
}

// CanTransition reports whether an order may move from s to next.
// Only single forward steps are allowed.
func (s OrderStatus) CanTransition(next OrderStatus) error {
	if s.rank() == 0 || next.rank() != s.rank()+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

type FuelType string

const (
	FuelGasoline FuelType = "Gasoline"
	FuelDiesel   FuelType = "Diesel"
)

func (f FuelType) Valid() bool {
	return f == FuelGasoline || f == FuelDiesel
}

type Company string

const (
	CompanySlovnaft Company = "Slovnaft"
	CompanyShell    Company = "SHELL"
	CompanyOMV      Company = "OMV"
)

func (c Company) Valid() bool {
	switch c {
	case CompanySlovnaft, CompanyShell, CompanyOMV:
		return true
	}
	return false
}

const (
	MinAmount = 1
	MaxAmount = 100
)

// PriceScale is the number of decimal places money is stored with.
const PriceScale = 2

// ValidPricePerLiter reports whether p is positive and has no more than PriceScale decimals.
// Prices with more precision would be rounded on storage and break price = price_per_liter * amount.
func ValidPricePerLiter(p decimal.Decimal) bool {
	return p.IsPositive() && p.Equal(p.Round(PriceScale))
}

type Order struct {
	OrderID                 int64           `json:"order_id"`
	UserID                  string          `json:"user_id"`
	Location                string          `json:"location"`
	FuelType                FuelType        `json:"fuel_type"`
	Amount                  int             `json:"amount"`
	Company                 Company         `json:"company"`
	PricePerLiter           decimal.Decimal `json:"price_per_liter"`
	Price                   decimal.Decimal `json:"price"`
	Status                  OrderStatus     `json:"status"`
	IsApproved              bool            `json:"is_approved"`
	CreatedAt               time.Time       `json:"created_at"`
	StartedAt               *time.Time      `json:"started_at"`
	EstimatedCompletionTime time.Time       `json:"estimated_completion_time"`
}

// Overdue reports whether an approved order has reached its estimated completion time.
func (o Order) Overdue(now time.Time) bool {
	return o.Status == StatusApproved && !now.Before(o.EstimatedCompletionTime)
}

// TotalPrice is price per liter times amount.
func TotalPrice(pricePerLiter decimal.Decimal, amount int) decimal.Decimal {
	return pricePerLiter.Mul(decimal.NewFromInt(int64(amount)))
}
