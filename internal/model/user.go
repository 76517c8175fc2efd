package model

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChangeEvent is a row-level change notification on the orders table.
// It carries no diff; receivers refetch.
type ChangeEvent struct {
	Table   string `json:"table"`
	Op      string `json:"op"` // INSERT, UPDATE, DELETE
	OrderID int64  `json:"order_id"`
	UserID  string `json:"user_id"`
}
