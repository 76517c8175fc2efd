package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueldelivery/internal/approval"
	"fueldelivery/internal/backend"
	"fueldelivery/internal/backend/memory"
	"fueldelivery/internal/cache"
	"fueldelivery/internal/history"
	"fueldelivery/internal/lifecycle"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/session"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func signedIn(t *testing.T, b *memory.Backend, email string) *session.Session {
	t.Helper()
	sess := session.New(b, logger.NewNop())
	tok, err := b.SignUp(context.Background(), email, "secret123")
	require.NoError(t, err)
	sess.Set(tok)
	return sess
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "you need to sign in first", describe(fmt.Errorf("list: %w", backend.ErrAuthRequired)))
	assert.Equal(t, "you are offline; changes are disabled", describe(history.ErrOffline))
	assert.Equal(t, "the fuel station is unreachable", describe(&backend.PersistenceError{Op: "probe", Message: "dial tcp"}))
	assert.Equal(t, "order is not pending", describe(&backend.PersistenceError{Op: "approve", Status: 409, Message: "order is not pending"}))
	assert.Equal(t, "order 7 could not be approved: order is not pending",
		describe(&approval.ApprovalError{OrderID: 7, Err: &backend.PersistenceError{Status: 409, Message: "order is not pending"}}))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestRunDemo(t *testing.T) {
	if testing.Short() {
		t.Skip("demo waits for a real delivery countdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, runDemo(ctx, &out, logger.NewNop(), 1, model.CompanySlovnaft))

	text := out.String()
	assert.Contains(t, text, "estimate 8s")
	assert.Contains(t, text, "delivered")
	assert.Contains(t, text, "offline: showing the last saved history")
	assert.Contains(t, text, "delete refused: you are offline; changes are disabled")
}

func TestTrackUntilDelivered(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	price := decimal.RequireFromString("1.81")
	station := memory.New(memory.WithAdmins("dispatch@fuel.example"), memory.WithPricePerLiter(price))
	customer := signedIn(t, station, "jana@fuel.example")
	admin := station.Client(signedIn(t, station, "dispatch@fuel.example"))
	log := logger.NewNop()

	trackers := make(chan *lifecycle.Client, 1)
	newTracker := func(n lifecycle.Notifier) *lifecycle.Client {
		lc := lifecycle.New(station.Client(customer), customer, n, log, price, 10*time.Millisecond)
		trackers <- lc
		return lc
	}

	creator := lifecycle.New(station.Client(customer), customer, nil, log, price, time.Second)
	id, err := creator.CreateOrder(ctx, lifecycle.OrderParams{
		Location: "Hlavna 1", FuelType: model.FuelDiesel, Amount: 30, Company: model.CompanyOMV,
	})
	require.NoError(t, err)
	_, err = admin.ApproveOrder(ctx, id)
	require.NoError(t, err)

	var out lockedBuffer
	result := make(chan *model.Order, 1)
	go func() { result <- track(ctx, &out, newTracker, 10*time.Millisecond, time.Now) }()

	lc := <-trackers
	require.Eventually(t, func() bool { return lc.Active() != nil }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "remaining") }, 5*time.Second, 10*time.Millisecond)

	_, changed, err := admin.CompleteOrder(ctx, id)
	require.NoError(t, err)
	require.True(t, changed)

	select {
	case o := <-result:
		require.NotNil(t, o)
		assert.Equal(t, id, o.OrderID)
	case <-ctx.Done():
		t.Fatal("tracking did not observe the delivery")
	}
	assert.Contains(t, out.String(), fmt.Sprintf("order %d:", id))
}

func TestTrackStopsWithoutDelivery(t *testing.T) {
	station := memory.New()
	customer := signedIn(t, station, "jana@fuel.example")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out lockedBuffer
	o := track(ctx, &out, func(n lifecycle.Notifier) *lifecycle.Client {
		return lifecycle.New(station.Client(customer), customer, n, logger.NewNop(), decimal.RequireFromString("1.81"), 10*time.Millisecond)
	}, 10*time.Millisecond, time.Now)

	assert.Nil(t, o)
	assert.Contains(t, out.String(), "no delivery in progress")
}

func TestFollowHistoryRefetchesWhenBackOnline(t *testing.T) {
	station := memory.New()
	customer := signedIn(t, station, "jana@fuel.example")
	api := station.Client(customer)
	log := logger.NewNop()

	_, err := api.CreateOrder(context.Background(), model.Order{
		Location: "Hlavna 1", FuelType: model.FuelGasoline, Amount: 10,
		Company: model.CompanySlovnaft, PricePerLiter: decimal.RequireFromString("1.81"),
	})
	require.NoError(t, err)

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), log)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out lockedBuffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		followHistory(ctx, &out, history.New(api, store, log), history.NewMonitor(api, 5*time.Millisecond, log))
	}()

	listed := func(n int) func() bool {
		return func() bool { return strings.Count(out.String(), "Hlavna 1") == n }
	}

	require.Eventually(t, listed(1), 5*time.Second, 5*time.Millisecond)

	station.SetOnline(false)
	require.Eventually(t, listed(2), 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "offline: showing the last saved history")

	station.SetOnline(true)
	require.Eventually(t, listed(3), 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
