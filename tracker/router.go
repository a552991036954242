package tracker

import (
	"context"
	"errors"
	"log/slog"
)

// Message is a guild channel message as seen by the router. Content may be
// empty on delete events when the platform no longer has the message body.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	FromSelf  bool
}

// Router drives session start/stop from message events in one channel.
type Router struct {
	tracker   *Tracker
	channelID string
}

// NewRouter binds tr to the monitored channel.
func NewRouter(tr *Tracker, channelID string) *Router {
	return &Router{tracker: tr, channelID: channelID}
}

// ChannelID returns the monitored channel.
func (r *Router) ChannelID() string { return r.channelID }

// HandleMessage starts tracking the stream linked in m. It reports whether a
// new session was started.
func (r *Router) HandleMessage(ctx context.Context, m Message) bool {
	if m.FromSelf {
		return false
	}
	if m.ChannelID != r.channelID {
		slog.Debug("message outside monitored channel", slog.String("channel", m.ChannelID))
		return false
	}
	identity, err := ExtractIdentity(m.Content)
	if err != nil {
		if errors.Is(err, ErrInvalidStreamLink) {
			slog.Debug("ignoring malformed stream link", slog.String("message", m.ID))
		}
		return false
	}
	slog.Info("stream link detected", slog.String("stream", identity), slog.String("message", m.ID))
	return r.tracker.StartTracking(identity, m.ID)
}

// HandleDelete stops tracking the stream whose link was deleted. When the
// deleted content is unknown the originating message id is used instead.
// It reports whether a session was stopped.
func (r *Router) HandleDelete(ctx context.Context, m Message) bool {
	if m.ChannelID != r.channelID {
		return false
	}
	var identity string
	if m.Content != "" {
		id, err := ExtractIdentity(m.Content)
		if err != nil {
			return false
		}
		identity = id
	} else {
		id, ok := r.tracker.registry.FindByMessage(m.ID)
		if !ok {
			return false
		}
		identity = id
	}
	return r.tracker.StopTracking(ctx, identity)
}
