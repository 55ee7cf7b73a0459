package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aliendabz/evalqueue/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithUser sets the X-User-ID sent with every request.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithFormat sets the Watch wire format: "json" (default) or "msgpack".
func WithFormat(format string) Option {
	return func(c *Client) { c.format = format }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect makes Watch redial up to maxRetries times after a
// dropped connection, doubling the delay from baseDelay up to 30s.
func WithReconnect(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		c.backoff = backoff.NewExponential(baseDelay, 30*time.Second)
	}
}
