// Package api serves the evaluation queue over HTTP with gin.
//
// Routes live under /v1. The requesting user is read from the X-User-ID
// header; authenticating that header is the deployment's concern. Every
// response carries an X-Request-ID, echoed from the request or generated.
//
// Lifecycle events stream over Server-Sent Events at /v1/events and over
// WebSocket at /v1/events/ws. Both accept a comma-separated topics query
// parameter; the WebSocket endpoint also accepts codec=msgpack for binary
// frames.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aliendabz/evalqueue/engine"
	"github.com/aliendabz/evalqueue/id"
	"github.com/aliendabz/evalqueue/stream"
)

// Header names.
const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
)

// API wires the HTTP handlers to an engine.
type API struct {
	eng    *engine.Engine
	broker *stream.Broker
	logger *slog.Logger
	subID  id.SubscriptionID
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger for request and stream logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithBroker supplies the stream broker. One is created otherwise.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// New creates an API over eng and subscribes its stream broker to the
// engine's events.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.broker == nil {
		a.broker = stream.NewBroker(a.logger)
	}
	a.subID = eng.Subscribe(nil, a.broker.Handle)
	return a
}

// Broker returns the stream broker feeding the event endpoints.
func (a *API) Broker() *stream.Broker { return a.broker }

// Close detaches the broker from the engine and closes every stream.
func (a *API) Close() {
	a.eng.Unsubscribe(a.subID)
	a.broker.Close()
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(a.logger))
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the /v1 routes on r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/jobs", a.submitJob)
	v1.GET("/jobs/:jobId", a.getJob)
	v1.POST("/jobs/:jobId/cancel", a.cancelJob)
	v1.POST("/jobs/:jobId/retry", a.retryJob)
	v1.GET("/users/:userId/jobs", a.listUserJobs)

	v1.GET("/stats", a.stats)
	v1.GET("/health", a.health)

	v1.GET("/events", a.eventsSSE)
	v1.GET("/events/ws", a.eventsWS)
}
