package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
)

func (c *Client) SubscribeOrders(ctx context.Context) (<-chan model.ChangeEvent, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	endpoint := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/realtime/orders"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: c.client.Timeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrAuthRequired
		}
		return nil, &PersistenceError{Op: "subscribe to orders", Message: err.Error()}
	}

	events := make(chan model.ChangeEvent)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var ev model.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.log.Warning("order subscription closed", logger.Error(err))
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
