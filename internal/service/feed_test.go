package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

// scriptedListener replays payloads, then fails with err or, when err is nil,
// blocks until the context ends.
type scriptedListener struct {
	payloads []string
	err      error
	released bool
}

func (l *scriptedListener) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if len(l.payloads) > 0 {
		p := l.payloads[0]
		l.payloads = l.payloads[1:]
		return &pgconn.Notification{Channel: orderChannel, Payload: p}, nil
	}
	if l.err != nil {
		return nil, l.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (l *scriptedListener) Release() { l.released = true }

func TestParseChangeEvent(t *testing.T) {
	ev, err := ParseChangeEvent([]byte(`{"table":"orders","op":"UPDATE","order_id":7,"user_id":"u-1"}`))
	require.NoError(t, err)
	assert.Equal(t, model.ChangeEvent{Table: "orders", Op: "UPDATE", OrderID: 7, UserID: "u-1"}, ev)

	_, err = ParseChangeEvent([]byte(`{"order_id":7}`))
	assert.Error(t, err)

	_, err = ParseChangeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestOrderFeedReconnects(t *testing.T) {
	first := &scriptedListener{
		payloads: []string{
			`{"table":"orders","op":"INSERT","order_id":1,"user_id":"u-1"}`,
			`garbage`,
			`{"table":"orders","op":"UPDATE","order_id":1,"user_id":"u-1"}`,
		},
		err: errors.New("connection reset"),
	}
	second := &scriptedListener{
		payloads: []string{`{"table":"orders","op":"DELETE","order_id":1,"user_id":"u-1"}`},
	}
	listeners := []*scriptedListener{first, second}

	connects := 0
	f := &OrderFeed{
		connect: func(context.Context) (listener, error) {
			if connects == 1 {
				connects++
				return nil, errors.New("pool closed")
			}
			l := listeners[0]
			listeners = listeners[1:]
			connects++
			return l, nil
		},
		log:   logger.NewNop(),
		retry: time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.ChangeEvent, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx, func(ev model.ChangeEvent) { events <- ev })
	}()

	var ops []string
	for len(ops) < 3 {
		select {
		case ev := <-events:
			ops = append(ops, ev.Op)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %v before timeout", ops)
		}
	}
	cancel()
	<-done

	assert.Equal(t, []string{"INSERT", "UPDATE", "DELETE"}, ops)
	assert.Equal(t, 3, connects)
	assert.True(t, first.released)
	assert.True(t, second.released)
}
