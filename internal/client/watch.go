package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"screenrec/internal/events"
)

// Watch streams recorder events to fn until ctx ends or the server closes
// the stream. A normal closure returns nil.
func (c *Client) Watch(ctx context.Context, fn func(events.Envelope)) error {
	u := c.endpoint("/ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to event stream: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}

		var env events.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		fn(env)
	}
}
