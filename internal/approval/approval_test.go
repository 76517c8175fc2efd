package approval

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/backend/memory"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// Last returns the most recent time handed out by Now.
func (c *clock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func signedIn(t *testing.T, b *memory.Backend, email string) *memory.Client {
	t.Helper()
	sess := session.New(b, logger.NewNop())
	tok, err := b.SignUp(context.Background(), email, "secret123")
	require.NoError(t, err)
	sess.Set(tok)
	return b.Client(sess)
}

func place(t *testing.T, c *memory.Client, location string) *model.Order {
	t.Helper()
	o, err := c.CreateOrder(context.Background(), model.Order{
		Location:      location,
		FuelType:      model.FuelGasoline,
		Amount:        20,
		Company:       model.CompanyOMV,
		PricePerLiter: decimal.RequireFromString("1.81"),
	})
	require.NoError(t, err)
	return o
}

func setup(t *testing.T) (*clock, *memory.Client, *memory.Client) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := memory.New(memory.WithAdmins("admin@example.com"), memory.WithClock(clk.Now))
	return clk, signedIn(t, b, "jana@example.com"), signedIn(t, b, "admin@example.com")
}

func TestListPendingNewestFirst(t *testing.T) {
	_, customer, admin := setup(t)
	first := place(t, customer, "Hlavna 1")
	second := place(t, customer, "Obchodna 5")

	c := New(admin, logger.NewNop())
	pending, err := c.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.OrderID, pending[0].OrderID)
	assert.Equal(t, first.OrderID, pending[1].OrderID)
}

func TestApprove(t *testing.T) {
	clk, customer, admin := setup(t)
	o := place(t, customer, "Hlavna 1, Bratislava")

	c := New(admin, logger.NewNop())
	d, err := c.Approve(context.Background(), o.OrderID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusApproved, d.Order.Status)
	assert.True(t, d.Order.IsApproved)
	require.NotNil(t, d.Order.StartedAt)
	assert.Equal(t, clk.Last(), *d.Order.StartedAt)
	assert.True(t, d.Order.StartedAt.After(o.CreatedAt))
	assert.Equal(t, o.EstimatedCompletionTime, d.Order.EstimatedCompletionTime)
	assert.Contains(t, d.NavigationURL, "destination=Hlavna+1%2C+Bratislava")

	pending, err := c.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApproveRejected(t *testing.T) {
	_, customer, admin := setup(t)
	o := place(t, customer, "Hlavna 1")
	c := New(admin, logger.NewNop())

	_, err := c.Approve(context.Background(), o.OrderID)
	require.NoError(t, err)

	_, err = c.Approve(context.Background(), o.OrderID)
	var ae *ApprovalError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, o.OrderID, ae.OrderID)

	var pe *backend.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusConflict, pe.Status)

	_, err = c.Approve(context.Background(), 999)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	_, err = New(customer, logger.NewNop()).Approve(context.Background(), o.OrderID)
	require.ErrorAs(t, err, &ae)
}

func TestNavigationURL(t *testing.T) {
	raw, err := NavigationURL("  Námestie SNP 1, Bratislava ")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.google.com", u.Host)
	assert.Equal(t, "/maps/dir/", u.Path)
	assert.Equal(t, "Námestie SNP 1, Bratislava", u.Query().Get("destination"))
	assert.Equal(t, "driving", u.Query().Get("travelmode"))

	_, err = NavigationURL(" ")
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestWatcherReconciles(t *testing.T) {
	_, customer, admin := setup(t)
	c := New(admin, logger.NewNop())
	w := NewWatcher(c, admin, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan []model.Order, 16)
	go w.Run(ctx, func(p []model.Order) { updates <- p })

	next := func() []model.Order {
		select {
		case p := <-updates:
			return p
		case <-time.After(2 * time.Second):
			t.Fatal("no update")
			return nil
		}
	}

	assert.Empty(t, next())

	o := place(t, customer, "Hlavna 1")
	assert.Len(t, next(), 1)

	_, err := c.Approve(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Empty(t, next())
}
