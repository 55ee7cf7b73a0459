package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/aliendabz/evalqueue/api"
	"github.com/aliendabz/evalqueue/backoff"
	"github.com/aliendabz/evalqueue/stream"
)

// Watch opens the WebSocket event stream on topics and returns a channel
// of messages. No topics means the user's jobs when a user is set, or
// the firehose otherwise. The channel is closed when ctx is done or the
// connection is lost for good.
func (c *Client) Watch(ctx context.Context, topics ...string) (<-chan *stream.Message, error) {
	for _, t := range topics {
		if err := stream.ValidateTopic(t); err != nil {
			return nil, err
		}
	}

	target, err := c.watchURL(topics)
	if err != nil {
		return nil, err
	}
	codec := stream.CodecFor(c.format)

	conn, err := c.dial(ctx, target)
	if err != nil {
		return nil, err
	}

	out := make(chan *stream.Message, 64)
	go c.readLoop(ctx, conn, target, codec, out)
	return out, nil
}

func (c *Client) watchURL(topics []string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/events/ws")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("codec", stream.CodecFor(c.format).Name())
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	if c.userID != "" {
		q.Set("user_id", c.userID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, target string) (net.Conn, error) {
	dialer := ws.Dialer{}
	if c.userID != "" {
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{api.HeaderUserID: []string{c.userID}})
	}
	conn, _, _, err := dialer.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// readLoop decodes server frames into out until ctx is done or the
// connection fails and reconnection, if enabled, gives up.
func (c *Client) readLoop(ctx context.Context, conn net.Conn, target string, codec stream.Codec, out chan<- *stream.Message) {
	defer close(out)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		data, _, err := wsutil.ReadServerData(conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("event stream read error", slog.String("error", err.Error()))

			next, ok := c.redial(ctx, target)
			if !ok {
				return
			}
			stop()
			_ = conn.Close()
			conn = next
			stop = context.AfterFunc(ctx, func() { _ = next.Close() })
			continue
		}

		msg, err := codec.Decode(data)
		if err != nil {
			c.logger.Warn("event stream: invalid message", slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) redial(ctx context.Context, target string) (net.Conn, bool) {
	if !c.reconnect {
		return nil, false
	}
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := backoff.Wait(ctx, c.backoff, attempt); err != nil {
			return nil, false
		}
		c.logger.Info("event stream reconnecting", slog.Int("attempt", attempt))

		conn, err := c.dial(ctx, target)
		if err != nil {
			c.logger.Warn("event stream reconnect failed", slog.String("error", err.Error()))
			continue
		}
		c.logger.Info("event stream reconnected")
		return conn, true
	}
	c.logger.Error("event stream: max reconnection attempts reached")
	return nil, false
}
