// Package backend describes the hosted collaborator the client talks to and
// provides an HTTP implementation of it.
package backend

import (
	"context"
	"io"
	"time"

	"fueldelivery/internal/model"
)

// TokenSource yields the access token of the current session, or "" when signed out.
type TokenSource interface {
	AccessToken() string
}

type Token struct {
	Value     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

type Auth interface {
	SignUp(ctx context.Context, email, password string) (*Token, error)
	SignIn(ctx context.Context, email, password string) (*Token, error)
	Refresh(ctx context.Context, token string) (*Token, error)
	SignOut(ctx context.Context, token string) error
}

// OrderQuery selects orders. All requires the admin role.
type OrderQuery struct {
	All    bool
	Status model.OrderStatus
}

type Orders interface {
	CreateOrder(ctx context.Context, o model.Order) (*model.Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]model.Order, error)
	// ActiveOrder returns nil without error when the user has no Approved or Completed order.
	ActiveOrder(ctx context.Context) (*model.Order, error)
	CompleteOrder(ctx context.Context, id int64) (o *model.Order, changed bool, err error)
	ApproveOrder(ctx context.Context, id int64) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

type Profiles interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	CreateProfile(ctx context.Context, p model.Profile) error
	UpdateProfile(ctx context.Context, p model.Profile) (*model.Profile, error)
	DeleteProfile(ctx context.Context) error
	UploadAvatar(ctx context.Context, r io.Reader, contentType string) (string, error)
}

// Subscriber delivers order change notifications until ctx is cancelled or the
// stream breaks; the channel is closed in both cases.
type Subscriber interface {
	SubscribeOrders(ctx context.Context) (<-chan model.ChangeEvent, error)
}

type Prober interface {
	Probe(ctx context.Context) error
}
