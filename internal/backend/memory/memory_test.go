package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueldelivery/internal/backend"
	"fueldelivery/internal/model"
)

type tokenHolder struct{ token string }

func (t *tokenHolder) AccessToken() string { return t.token }

func signUp(t *testing.T, b *Backend, email string) *Client {
	t.Helper()
	tok, err := b.SignUp(context.Background(), email, "secret123")
	require.NoError(t, err)
	return b.Client(&tokenHolder{token: tok.Value})
}

func order() model.Order {
	return model.Order{
		Location:      "Hlavna 1",
		FuelType:      model.FuelGasoline,
		Amount:        10,
		Company:       model.CompanySlovnaft,
		PricePerLiter: decimal.RequireFromString("1.81"),
	}
}

func TestOrderFlow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithAdmins("admin@example.com"), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	jana := signUp(t, b, "jana@example.com")
	admin := signUp(t, b, "admin@example.com")

	o := order()
	o.Status = model.StatusCompleted
	created, err := jana.CreateOrder(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, created.Status)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("18.1")))

	active, err := jana.ActiveOrder(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = jana.ApproveOrder(ctx, created.OrderID)
	var pe *backend.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 403, pe.Status)

	approved, err := admin.ApproveOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)
	assert.Equal(t, now, *approved.StartedAt)

	_, err = admin.ApproveOrder(ctx, created.OrderID)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 409, pe.Status)

	_, changed, err := jana.CompleteOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.True(t, changed)
	_, changed, err = jana.CompleteOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCreateOrderPricing(t *testing.T) {
	ctx := context.Background()
	var pe *backend.PersistenceError

	b := New()
	jana := signUp(t, b, "jana@example.com")

	o := order()
	o.PricePerLiter = decimal.RequireFromString("1.815")
	o.Amount = 3
	_, err := jana.CreateOrder(ctx, o)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 422, pe.Status)

	priced := New(WithPricePerLiter(decimal.RequireFromString("1.81")))
	peter := signUp(t, priced, "peter@example.com")

	o = order()
	o.PricePerLiter = decimal.RequireFromString("0.001")
	created, err := peter.CreateOrder(ctx, o)
	require.NoError(t, err)
	assert.True(t, created.PricePerLiter.Equal(decimal.RequireFromString("1.81")))
	assert.True(t, created.Price.Equal(decimal.RequireFromString("18.1")))
}

func TestCompleteBeforeDeadline(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(WithAdmins("admin@example.com"), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	jana := signUp(t, b, "jana@example.com")
	admin := signUp(t, b, "admin@example.com")

	o := order()
	o.EstimatedCompletionTime = now.Add(time.Minute)
	created, err := jana.CreateOrder(ctx, o)
	require.NoError(t, err)
	_, err = admin.ApproveOrder(ctx, created.OrderID)
	require.NoError(t, err)

	_, _, err = jana.CompleteOrder(ctx, created.OrderID)
	var pe *backend.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 409, pe.Status)

	_, changed, err := admin.CompleteOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestOfflineAndAuth(t *testing.T) {
	b := New()
	ctx := context.Background()
	jana := signUp(t, b, "jana@example.com")

	_, err := b.Client(&tokenHolder{}).ListOrders(ctx, backend.OrderQuery{})
	assert.ErrorIs(t, err, backend.ErrAuthRequired)

	b.SetOnline(false)
	_, err = jana.ListOrders(ctx, backend.OrderQuery{})
	assert.True(t, backend.IsUnreachable(err))
	assert.True(t, backend.IsUnreachable(jana.Probe(ctx)))

	b.SetOnline(true)
	assert.NoError(t, jana.Probe(ctx))
}

func TestSubscriptionFiltersByOwner(t *testing.T) {
	b := New(WithAdmins("admin@example.com"))
	jana := signUp(t, b, "jana@example.com")
	peter := signUp(t, b, "peter@example.com")
	admin := signUp(t, b, "admin@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	janaEvents, err := jana.SubscribeOrders(ctx)
	require.NoError(t, err)
	adminEvents, err := admin.SubscribeOrders(ctx)
	require.NoError(t, err)

	_, err = peter.CreateOrder(ctx, order())
	require.NoError(t, err)
	mine, err := jana.CreateOrder(ctx, order())
	require.NoError(t, err)

	select {
	case ev := <-janaEvents:
		assert.Equal(t, mine.OrderID, ev.OrderID)
	case <-time.After(time.Second):
		t.Fatal("no event for owner")
	}

	seen := 0
	for seen < 2 {
		select {
		case <-adminEvents:
			seen++
		case <-time.After(time.Second):
			t.Fatal("admin missed events")
		}
	}

	cancel()
	select {
	case _, ok := <-janaEvents:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestProfiles(t *testing.T) {
	b := New()
	ctx := context.Background()
	jana := signUp(t, b, "jana@example.com")

	_, err := jana.GetProfile(ctx)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, jana.CreateProfile(ctx, model.Profile{OnboardingSeen: true}))
	url, err := jana.UploadAvatar(ctx, strings.NewReader("img"), "image/png")
	require.NoError(t, err)

	data, ok := b.Avatar(url)
	require.True(t, ok)
	assert.Equal(t, "img", string(data))

	p, err := jana.UpdateProfile(ctx, model.Profile{FirstName: "Jana", LastName: "Novak"})
	require.NoError(t, err)
	assert.Equal(t, url, p.AvatarURL)
	assert.False(t, p.OnboardingSeen)

	_, err = b.SignIn(ctx, "jana@example.com", "wrong")
	assert.Error(t, err)
	_, err = b.SignIn(ctx, "JANA@example.com", "secret123")
	assert.NoError(t, err)
}
