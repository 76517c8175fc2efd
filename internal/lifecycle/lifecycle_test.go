package lifecycle

import (
	"context"
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
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	orders []model.Order
}

func (r *recorder) OrderCompleted(o model.Order) {
	r.mu.Lock()
	r.orders = append(r.orders, o)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fixture struct {
	clock    *clock
	backend  *memory.Backend
	customer *Client
	sess     *session.Session
	admin    *memory.Client
	notes    *recorder
}

func signedIn(t *testing.T, b *memory.Backend, email string) *session.Session {
	t.Helper()
	sess := session.New(b, logger.NewNop())
	tok, err := b.SignUp(context.Background(), email, "secret123")
	require.NoError(t, err)
	sess.Set(tok)
	return sess
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := memory.New(memory.WithAdmins("admin@example.com"), memory.WithClock(clk.Now))

	sess := signedIn(t, b, "jana@example.com")
	adminSess := signedIn(t, b, "admin@example.com")

	notes := &recorder{}
	c := New(b.Client(sess), sess, notes, logger.NewNop(), decimal.RequireFromString("1.81"), time.Second)
	c.now = clk.Now

	return &fixture{
		clock:    clk,
		backend:  b,
		customer: c,
		sess:     sess,
		admin:    b.Client(adminSess),
		notes:    notes,
	}
}

func params() OrderParams {
	return OrderParams{Location: "Hlavna 1", FuelType: model.FuelGasoline, Amount: 10, Company: model.CompanySlovnaft}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.customer.CreateOrder(ctx, params())
	require.NoError(t, err)

	pending, err := f.admin.ListOrders(ctx, backend.OrderQuery{All: true, Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	o := pending[0]
	assert.Equal(t, id, o.OrderID)
	assert.False(t, o.IsApproved)
	assert.Nil(t, o.StartedAt)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("18.1")))
	assert.Equal(t, f.clock.Now().Add(26*time.Second), o.EstimatedCompletionTime)
	assert.Nil(t, f.customer.Active())
}

func TestCreateOrderRequiresSession(t *testing.T) {
	f := newFixture(t)
	f.sess.Clear()

	_, err := f.customer.CreateOrder(context.Background(), params())
	assert.ErrorIs(t, err, backend.ErrAuthRequired)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	p := params()
	p.Amount = 101
	_, err := f.customer.CreateOrder(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	p = params()
	p.Company = "Lukoil"
	_, err = f.customer.CreateOrder(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestCreateOrderRejectsSubCentPrice(t *testing.T) {
	f := newFixture(t)
	f.customer.pricePerLiter = decimal.RequireFromString("1.815")

	_, err := f.customer.CreateOrder(context.Background(), params())
	assert.ErrorIs(t, err, ErrInvalidOrder)

	orders, err := f.admin.ListOrders(context.Background(), backend.OrderQuery{All: true})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderBackendFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.SetOnline(false)

	_, err := f.customer.CreateOrder(context.Background(), params())
	var pe *backend.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "network is unreachable", pe.Message)
}

func TestPollTracksAndCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.customer.CreateOrder(ctx, params())
	require.NoError(t, err)

	assert.Nil(t, f.customer.PollActiveOrder(ctx), "pending orders are not tracked")

	_, err = f.admin.ApproveOrder(ctx, id)
	require.NoError(t, err)

	active := f.customer.PollActiveOrder(ctx)
	require.NotNil(t, active)
	assert.Equal(t, id, active.OrderID)
	assert.Equal(t, "26s", TimeRemaining(*active, f.clock.Now()))

	f.clock.Advance(26 * time.Second)
	assert.Nil(t, f.customer.PollActiveOrder(ctx))
	assert.Equal(t, 1, f.notes.count())

	orders, err := f.admin.ListOrders(ctx, backend.OrderQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, orders[0].Status)

	assert.Nil(t, f.customer.PollActiveOrder(ctx))
	require.NoError(t, f.customer.CompleteOrder(ctx, id))
	assert.Equal(t, 1, f.notes.count())
}

func TestPollObservesCompletionElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.customer.CreateOrder(ctx, params())
	require.NoError(t, err)
	_, err = f.admin.ApproveOrder(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, f.customer.PollActiveOrder(ctx))

	_, changed, err := f.admin.CompleteOrder(ctx, id)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Nil(t, f.customer.PollActiveOrder(ctx))
	assert.Nil(t, f.customer.PollActiveOrder(ctx))
	assert.Equal(t, 1, f.notes.count())
}

func TestPollFailureClearsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.customer.CreateOrder(ctx, params())
	require.NoError(t, err)
	_, err = f.admin.ApproveOrder(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, f.customer.PollActiveOrder(ctx))

	f.backend.SetOnline(false)
	assert.Nil(t, f.customer.PollActiveOrder(ctx))
	assert.Nil(t, f.customer.Active())

	f.backend.SetOnline(true)
	assert.NotNil(t, f.customer.PollActiveOrder(ctx))
}

func TestTimeRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, AwaitingApproval, TimeRemaining(model.Order{Status: model.StatusPending}, now))

	o := model.Order{Status: model.StatusApproved, EstimatedCompletionTime: now.Add(97 * time.Second)}
	assert.Equal(t, "1m 37s", TimeRemaining(o, now))
	assert.Equal(t, "0s", TimeRemaining(o, now.Add(5*time.Minute)))
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.customer.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}
}
