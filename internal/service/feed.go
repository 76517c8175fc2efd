package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

const orderChannel = "order_changes"

// listener is a connection that has issued LISTEN on the order channel.
type listener interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

// OrderFeed relays Postgres NOTIFY events emitted by the orders trigger.
type OrderFeed struct {
	connect func(ctx context.Context) (listener, error)
	log     logger.ILogger
	retry   time.Duration
}

func NewOrderFeed(db *pgxpool.Pool, log logger.ILogger) *OrderFeed {
	return &OrderFeed{
		connect: func(ctx context.Context) (listener, error) { return listenPool(ctx, db) },
		log:     log,
		retry:   3 * time.Second,
	}
}

type poolListener struct {
	conn *pgxpool.Conn
}

func (l poolListener) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return l.conn.Conn().WaitForNotification(ctx)
}

func (l poolListener) Release() { l.conn.Release() }

func listenPool(ctx context.Context, db *pgxpool.Pool) (listener, error) {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+orderChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	return poolListener{conn: conn}, nil
}

// Run listens until ctx is done, reconnecting after connection failures.
func (f *OrderFeed) Run(ctx context.Context, handle func(model.ChangeEvent)) {
	f.log.Info("starting order feed")
	for {
		err := f.listen(ctx, handle)
		if ctx.Err() != nil {
			f.log.Info("order feed stopped")
			return
		}
		f.log.Error("order feed interrupted", logger.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.retry):
		}
	}
}

func (f *OrderFeed) listen(ctx context.Context, handle func(model.ChangeEvent)) error {
	l, err := f.connect(ctx)
	if err != nil {
		return err
	}
	defer l.Release()

	for {
		n, err := l.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		ev, err := ParseChangeEvent([]byte(n.Payload))
		if err != nil {
			f.log.Warning("skip malformed order notification", logger.String("payload", n.Payload), logger.Error(err))
			continue
		}
		handle(ev)
	}
}

func ParseChangeEvent(payload []byte) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, err
	}
	if ev.Table == "" || ev.Op == "" {
		return ev, errors.New("incomplete change event")
	}
	return ev, nil
}
