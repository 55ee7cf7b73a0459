package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/aliendabz/evalqueue/stream"
)

const timeFormat = time.RFC3339Nano

// streamKeepAlive is how often an idle stream gets a heartbeat.
var streamKeepAlive = 15 * time.Second

// subscribe registers a stream subscriber from the request's topics and
// user_id query parameters. With a user and no topics it follows that
// user's jobs and the queue snapshots; with neither it gets the firehose.
func (a *API) subscribe(c *gin.Context) (*stream.Subscriber, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		userID = c.GetHeader(HeaderUserID)
	}

	var topics []string
	if raw := c.Query("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if err := stream.ValidateTopic(t); err != nil {
				abortWithError(c, http.StatusBadRequest, err)
				return nil, false
			}
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		if userID != "" {
			topics = []string{stream.UserTopic(userID), stream.TopicQueue}
		} else {
			topics = []string{stream.TopicFirehose}
		}
	}

	sub := a.broker.NewSubscriber(uuid.NewString())
	if userID != "" {
		sub.SetFilter(stream.ForUser(userID))
	}
	return a.broker.SubscribeWith(sub, topics...), true
}

func (a *API) eventsSSE(c *gin.Context) {
	sub, ok := a.subscribe(c)
	if !ok {
		return
	}
	defer a.broker.RemoveSubscriber(sub.ID())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// The ready event tells the client the subscription is live.
	c.SSEvent("ready", sub.ID())
	c.Writer.Flush()

	codec := stream.JSONCodec{}
	heartbeat := time.NewTicker(streamKeepAlive)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, open := <-sub.C():
			if !open {
				return false
			}
			data, err := codec.Encode(msg)
			if err != nil {
				a.logger.Error("encode stream message", slog.String("error", err.Error()))
				return true
			}
			c.SSEvent(string(msg.Kind), string(data))
			return true
		case <-heartbeat.C:
			_, err := fmt.Fprint(w, ": keep-alive\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (a *API) eventsWS(c *gin.Context) {
	codec := stream.CodecFor(c.Query("codec"))

	sub, ok := a.subscribe(c)
	if !ok {
		return
	}
	defer a.broker.RemoveSubscriber(sub.ID())

	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	a.logger.Info("event stream connected",
		slog.String("subscriber_id", sub.ID()),
		slog.String("codec", codec.Name()),
	)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Read side: answer control frames and notice when the client leaves.
	go func() {
		defer cancel()
		for {
			if _, _, readErr := wsutil.ReadClientData(conn); readErr != nil {
				return
			}
		}
	}()

	op := ws.OpText
	if codec.Name() == stream.CodecNameMsgpack {
		op = ws.OpBinary
	}
	heartbeat := time.NewTicker(streamKeepAlive)
	defer heartbeat.Stop()

	for {
		select {
		case msg, open := <-sub.C():
			if !open {
				_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusGoingAway, "stream closed")))
				return
			}
			data, encErr := codec.Encode(msg)
			if encErr != nil {
				a.logger.Error("encode stream message", slog.String("error", encErr.Error()))
				continue
			}
			if writeErr := wsutil.WriteServerMessage(conn, op, data); writeErr != nil {
				if !errors.Is(writeErr, io.EOF) {
					a.logger.Debug("event stream write failed", slog.String("error", writeErr.Error()))
				}
				return
			}
		case <-heartbeat.C:
			if pingErr := wsutil.WriteServerMessage(conn, ws.OpPing, nil); pingErr != nil {
				return
			}
		case <-ctx.Done():
			a.logger.Info("event stream disconnected", slog.String("subscriber_id", sub.ID()))
			return
		}
	}
}
