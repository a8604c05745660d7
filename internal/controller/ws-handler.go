package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fares7elsadek/syncspace-watch/internal/repository/subscription"
	"github.com/fares7elsadek/syncspace-watch/internal/transport"
)

// serveWS upgrades a backbone connection and serves its subscription frames
// until it drops. SEND frames to application destinations are re-broadcast
// to the matching topic, which carries the viewing announcements.
func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	sub := subscription.NewSubscriber(uuid.NewString(), conn)
	defer func() {
		c.roomService.Disconnect(sub.ID)
		sub.Close()
	}()

	c.logger.InfoContext(r.Context(), "backbone client connected", "subscriber_id", sub.ID)

	for {
		var frame transport.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			c.logger.InfoContext(r.Context(), "backbone client disconnected",
				"subscriber_id", sub.ID, "error", err)
			return
		}

		switch frame.Type {
		case transport.FrameSubscribe:
			c.roomService.Subscribe(sub, frame.Destination)
		case transport.FrameUnsubscribe:
			if err := c.roomService.Unsubscribe(sub.ID, frame.Destination); err != nil {
				c.logger.DebugContext(r.Context(), "unsubscribe from unknown destination",
					"destination", frame.Destination)
			}
		case transport.FrameSend:
			c.relay(r.Context(), frame)
		default:
			sub.WriteJSON(map[string]string{"error": "unknown frame type"})
		}
	}
}

// relay mirrors an application SEND onto its topic counterpart so every
// subscriber of the room sees it.
func (c controller) relay(ctx context.Context, frame transport.Frame) {
	if !strings.HasPrefix(frame.Destination, "/app/") {
		c.logger.DebugContext(ctx, "send to non-application destination", "destination", frame.Destination)
		return
	}

	// /app/... -> /topic/...
	topic := "/topic" + strings.TrimPrefix(frame.Destination, "/app")

	for _, sub := range c.roomService.Subscribers(topic) {
		if err := sub.WriteJSON(&transport.Frame{Type: transport.FrameMessage, Destination: topic, Body: frame.Body}); err != nil {
			c.logger.DebugContext(ctx, "failed to relay frame", "destination", topic, "error", err)
		}
	}
}

func (c controller) broadcast(ctx context.Context, subs []*subscription.Subscriber, destination string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to marshal broadcast payload", "error", err)
		return
	}

	frame := transport.Frame{
		Type:        transport.FrameMessage,
		Destination: destination,
		Body:        raw,
	}

	for _, sub := range subs {
		if err := sub.WriteJSON(&frame); err != nil {
			c.logger.DebugContext(ctx, "failed to write to subscriber",
				"subscriber_id", sub.ID, "error", err)
		}
	}
}
