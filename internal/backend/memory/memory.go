// Package memory is an in-process backend used by tests and the offline demo.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/model"
)

type Option func(*Backend)

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithPricePerLiter makes the backend price every new order itself, ignoring
// the value the client sent.
func WithPricePerLiter(p decimal.Decimal) Option {
	return func(b *Backend) { b.pricePerLiter = p }
}

// WithAdmins grants the admin role to these emails at sign-up.
func WithAdmins(emails ...string) Option {
	return func(b *Backend) {
		for _, e := range emails {
			b.admins[strings.ToLower(e)] = true
		}
	}
}

type account struct {
	user model.User
	hash []byte
}

type subscription struct {
	userID string
	admin  bool
	ch     chan model.ChangeEvent
}

type Backend struct {
	mu      sync.Mutex
	now     func() time.Time
	ttl     time.Duration
	offline bool

	pricePerLiter decimal.Decimal

	admins   map[string]bool
	accounts map[string]*account
	byEmail  map[string]string
	tokens   map[string]string

	nextOrder int64
	orders    map[int64]*model.Order
	profiles  map[string]model.Profile
	avatars   map[string][]byte

	subs map[*subscription]struct{}
}

func New(opts ...Option) *Backend {
	b := &Backend{
		now:      time.Now,
		ttl:      time.Hour,
		admins:   map[string]bool{},
		accounts: map[string]*account{},
		byEmail:  map[string]string{},
		tokens:   map[string]string{},
		orders:   map[int64]*model.Order{},
		profiles: map[string]model.Profile{},
		avatars:  map[string][]byte{},
		subs:     map[*subscription]struct{}{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetOnline simulates losing and regaining connectivity.
func (b *Backend) SetOnline(online bool) {
	b.mu.Lock()
	b.offline = !online
	b.mu.Unlock()
}

// Client returns a view of the backend authenticated through ts.
func (b *Backend) Client(ts backend.TokenSource) *Client {
	return &Client{b: b, tokens: ts}
}

// Avatar returns the bytes stored under an avatar URL issued by UploadAvatar.
func (b *Backend) Avatar(url string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.avatars[url]
	return data, ok
}

func (b *Backend) SignUp(_ context.Context, email, password string) (*backend.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reachable("sign up"); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := b.byEmail[email]; ok {
		return nil, rejected("sign up", http.StatusConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, rejected("sign up", http.StatusBadRequest, err.Error())
	}

	role := model.RoleCustomer
	if b.admins[email] {
		role = model.RoleAdmin
	}

	acc := &account{
		user: model.User{ID: uuid.NewString(), Email: email, Role: role, CreatedAt: b.now()},
		hash: hash,
	}
	b.accounts[acc.user.ID] = acc
	b.byEmail[email] = acc.user.ID

	return b.issue(acc), nil
}

func (b *Backend) SignIn(_ context.Context, email, password string) (*backend.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reachable("sign in"); err != nil {
		return nil, err
	}

	id, ok := b.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, rejected("sign in", http.StatusUnauthorized, "invalid email or password")
	}
	acc := b.accounts[id]
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return nil, rejected("sign in", http.StatusUnauthorized, "invalid email or password")
	}

	return b.issue(acc), nil
}

func (b *Backend) Refresh(_ context.Context, token string) (*backend.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reachable("refresh session"); err != nil {
		return nil, err
	}

	acc, err := b.accountFor(token)
	if err != nil {
		return nil, err
	}
	delete(b.tokens, token)
	return b.issue(acc), nil
}

func (b *Backend) SignOut(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.reachable("sign out"); err != nil {
		return err
	}
	delete(b.tokens, token)
	return nil
}

func (b *Backend) issue(acc *account) *backend.Token {
	value := uuid.NewString()
	b.tokens[value] = acc.user.ID
	u := acc.user
	return &backend.Token{Value: value, ExpiresAt: b.now().Add(b.ttl), User: &u}
}

func (b *Backend) accountFor(token string) (*account, error) {
	id, ok := b.tokens[token]
	if !ok || token == "" {
		return nil, backend.ErrAuthRequired
	}
	return b.accounts[id], nil
}

func (b *Backend) reachable(op string) error {
	if b.offline {
		return &backend.PersistenceError{Op: op, Message: "network is unreachable"}
	}
	return nil
}

// publish must be called with b.mu held.
func (b *Backend) publish(op string, o *model.Order) {
	ev := model.ChangeEvent{Table: "orders", Op: op, OrderID: o.OrderID, UserID: o.UserID}
	for s := range b.subs {
		if !s.admin && s.userID != o.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func rejected(op string, status int, msg string) error {
	return &backend.PersistenceError{Op: op, Status: status, Message: msg}
}

// Client implements the data interfaces of backend for one session.
type Client struct {
	b      *Backend
	tokens backend.TokenSource
}

// session locks the backend and resolves the caller. The caller must unlock.
func (c *Client) session(op string) (*account, error) {
	c.b.mu.Lock()
	if err := c.b.reachable(op); err != nil {
		c.b.mu.Unlock()
		return nil, err
	}
	acc, err := c.b.accountFor(c.tokens.AccessToken())
	if err != nil {
		c.b.mu.Unlock()
		return nil, err
	}
	return acc, nil
}

func (c *Client) CreateOrder(_ context.Context, o model.Order) (*model.Order, error) {
	acc, err := c.session("create order")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	switch {
	case o.Location == "":
		return nil, rejected("create order", http.StatusUnprocessableEntity, "invalid order: missing location")
	case !o.FuelType.Valid():
		return nil, rejected("create order", http.StatusUnprocessableEntity, fmt.Sprintf("invalid order: unknown fuel type %q", o.FuelType))
	case !o.Company.Valid():
		return nil, rejected("create order", http.StatusUnprocessableEntity, fmt.Sprintf("invalid order: unknown company %q", o.Company))
	case o.Amount < model.MinAmount || o.Amount > model.MaxAmount:
		return nil, rejected("create order", http.StatusUnprocessableEntity, fmt.Sprintf("invalid order: amount %d out of range", o.Amount))
	}

	if c.b.pricePerLiter.IsPositive() {
		o.PricePerLiter = c.b.pricePerLiter
	}
	if !model.ValidPricePerLiter(o.PricePerLiter) {
		return nil, rejected("create order", http.StatusUnprocessableEntity,
			fmt.Sprintf("invalid order: price per liter must be positive with at most %d decimals", model.PriceScale))
	}

	c.b.nextOrder++
	o.OrderID = c.b.nextOrder
	o.UserID = acc.user.ID
	o.Status = model.StatusPending
	o.IsApproved = false
	o.StartedAt = nil
	o.Price = model.TotalPrice(o.PricePerLiter, o.Amount)
	o.CreatedAt = c.b.now()

	stored := o
	c.b.orders[o.OrderID] = &stored
	c.b.publish("INSERT", &stored)
	return &o, nil
}

func (c *Client) ListOrders(_ context.Context, q backend.OrderQuery) ([]model.Order, error) {
	acc, err := c.session("list orders")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	if q.All && acc.user.Role != model.RoleAdmin {
		return nil, rejected("list orders", http.StatusForbidden, "admin role required")
	}

	out := []model.Order{}
	for _, o := range c.b.orders {
		if !q.All && o.UserID != acc.user.ID {
			continue
		}
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		out = append(out, *o)
	}
	sortNewestFirst(out)
	return out, nil
}

func (c *Client) ActiveOrder(_ context.Context) (*model.Order, error) {
	acc, err := c.session("fetch active order")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	var candidates []model.Order
	for _, o := range c.b.orders {
		if o.UserID == acc.user.ID && o.Status != model.StatusPending {
			candidates = append(candidates, *o)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sortNewestFirst(candidates)
	return &candidates[0], nil
}

func (c *Client) CompleteOrder(_ context.Context, id int64) (*model.Order, bool, error) {
	acc, err := c.session("complete order")
	if err != nil {
		return nil, false, err
	}
	defer c.b.mu.Unlock()

	o, ok := c.b.orders[id]
	if !ok || (o.UserID != acc.user.ID && acc.user.Role != model.RoleAdmin) {
		return nil, false, rejected("complete order", http.StatusNotFound, "order not found")
	}

	switch o.Status {
	case model.StatusCompleted:
		cp := *o
		return &cp, false, nil
	case model.StatusApproved:
		if acc.user.Role != model.RoleAdmin && !o.Overdue(c.b.now()) {
			return nil, false, rejected("complete order", http.StatusConflict, "delivery is still in progress")
		}
		o.Status = model.StatusCompleted
		c.b.publish("UPDATE", o)
		cp := *o
		return &cp, true, nil
	}
	return nil, false, rejected("complete order", http.StatusConflict, "order is not approved")
}

func (c *Client) ApproveOrder(_ context.Context, id int64) (*model.Order, error) {
	acc, err := c.session("approve order")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	if acc.user.Role != model.RoleAdmin {
		return nil, rejected("approve order", http.StatusForbidden, "admin role required")
	}

	o, ok := c.b.orders[id]
	if !ok {
		return nil, rejected("approve order", http.StatusNotFound, "order not found")
	}
	if err := o.Status.CanTransition(model.StatusApproved); err != nil {
		return nil, rejected("approve order", http.StatusConflict, "order is not pending")
	}

	started := c.b.now()
	o.Status = model.StatusApproved
	o.IsApproved = true
	o.StartedAt = &started
	c.b.publish("UPDATE", o)

	cp := *o
	return &cp, nil
}

func (c *Client) DeleteOrder(_ context.Context, id int64) error {
	acc, err := c.session("delete order")
	if err != nil {
		return err
	}
	defer c.b.mu.Unlock()

	o, ok := c.b.orders[id]
	if !ok || o.UserID != acc.user.ID {
		return rejected("delete order", http.StatusNotFound, "order not found")
	}
	delete(c.b.orders, id)
	c.b.publish("DELETE", o)
	return nil
}

func (c *Client) GetProfile(_ context.Context) (*model.Profile, error) {
	acc, err := c.session("fetch profile")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	p, ok := c.b.profiles[acc.user.ID]
	if !ok {
		return nil, rejected("fetch profile", http.StatusNotFound, "profile not found")
	}
	return &p, nil
}

func (c *Client) CreateProfile(_ context.Context, p model.Profile) error {
	acc, err := c.session("create profile")
	if err != nil {
		return err
	}
	defer c.b.mu.Unlock()

	if _, ok := c.b.profiles[acc.user.ID]; ok {
		return rejected("create profile", http.StatusConflict, "profile already exists")
	}
	p.UserID = acc.user.ID
	p.AvatarURL = ""
	c.b.profiles[acc.user.ID] = p
	return nil
}

func (c *Client) UpdateProfile(_ context.Context, p model.Profile) (*model.Profile, error) {
	acc, err := c.session("save profile")
	if err != nil {
		return nil, err
	}
	defer c.b.mu.Unlock()

	current, ok := c.b.profiles[acc.user.ID]
	if !ok {
		return nil, rejected("save profile", http.StatusNotFound, "profile not found")
	}
	current.FirstName = p.FirstName
	current.LastName = p.LastName
	current.OnboardingSeen = p.OnboardingSeen
	c.b.profiles[acc.user.ID] = current
	return &current, nil
}

func (c *Client) DeleteProfile(_ context.Context) error {
	acc, err := c.session("delete profile")
	if err != nil {
		return err
	}
	defer c.b.mu.Unlock()

	if _, ok := c.b.profiles[acc.user.ID]; !ok {
		return rejected("delete profile", http.StatusNotFound, "profile not found")
	}
	delete(c.b.profiles, acc.user.ID)
	return nil
}

func (c *Client) UploadAvatar(_ context.Context, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", rejected("upload avatar", http.StatusUnsupportedMediaType, "unsupported image type")
	}

	acc, err := c.session("upload avatar")
	if err != nil {
		return "", err
	}
	defer c.b.mu.Unlock()

	p, ok := c.b.profiles[acc.user.ID]
	if !ok {
		return "", rejected("upload avatar", http.StatusNotFound, "profile not found")
	}

	url := "memory://avatars/" + acc.user.ID + "/" + uuid.NewString()
	c.b.avatars[url] = bytes.Clone(data)
	p.AvatarURL = url
	c.b.profiles[acc.user.ID] = p
	return url, nil
}

func (c *Client) SubscribeOrders(ctx context.Context) (<-chan model.ChangeEvent, error) {
	acc, err := c.session("subscribe to orders")
	if err != nil {
		return nil, err
	}
	s := &subscription{
		userID: acc.user.ID,
		admin:  acc.user.Role == model.RoleAdmin,
		ch:     make(chan model.ChangeEvent, 16),
	}
	c.b.subs[s] = struct{}{}
	c.b.mu.Unlock()

	out := make(chan model.ChangeEvent)
	go func() {
		defer close(out)
		defer func() {
			c.b.mu.Lock()
			delete(c.b.subs, s)
			c.b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) Probe(_ context.Context) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.b.reachable("probe")
}

func sortNewestFirst(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].OrderID > orders[j].OrderID
	})
}

var (
	_ backend.Auth       = (*Backend)(nil)
	_ backend.Orders     = (*Client)(nil)
	_ backend.Profiles   = (*Client)(nil)
	_ backend.Subscriber = (*Client)(nil)
	_ backend.Prober     = (*Client)(nil)
)
