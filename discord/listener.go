package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/hzrd-media/viewer-tracker/telemetry"
	"github.com/hzrd-media/viewer-tracker/tracker"
)

// messageCacheSize is how many messages per channel the state cache keeps,
// so deletes still carry the deleted content.
const messageCacheSize = 500

// Handler receives converted guild message events.
type Handler interface {
	HandleMessage(ctx context.Context, m tracker.Message) bool
	HandleDelete(ctx context.Context, m tracker.Message) bool
}

// NewSession builds a bot session with the intents the listener needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Guilds fills the channel cache; without it messages are never cached.
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	s.StateEnabled = true
	s.State.MaxMessageCount = messageCacheSize
	return s, nil
}

// Listener owns the gateway connection and dispatches message events.
type Listener struct {
	session   *discordgo.Session
	handler   Handler
	connected atomic.Bool
}

// NewListener dispatches events from session to h.
func NewListener(session *discordgo.Session, h Handler) *Listener {
	return &Listener{session: session, handler: h}
}

// Connected reports whether the gateway session is up.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Run opens the gateway and blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	removers := []func(){
		l.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			l.connected.Store(true)
			slog.Info("discord connected", slog.String("user", r.User.Username))
		}),
		l.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
			l.connected.Store(true)
		}),
		l.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			l.connected.Store(false)
			slog.Warn("discord disconnected")
		}),
		l.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			evCtx := telemetry.WithCorrelation(ctx, m.ID)
			l.handler.HandleMessage(evCtx, fromCreate(m, selfID(s)))
		}),
		l.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
			evCtx := telemetry.WithCorrelation(ctx, m.ID)
			l.handler.HandleDelete(evCtx, fromDelete(m))
		}),
	}
	defer func() {
		for _, rm := range removers {
			rm()
		}
	}()

	if err := l.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	l.connected.Store(false)
	if err := l.session.Close(); err != nil {
		slog.Warn("discord close", slog.Any("err", err))
	}
	return nil
}

func selfID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}

func fromCreate(m *discordgo.MessageCreate, self string) tracker.Message {
	if m == nil || m.Message == nil {
		return tracker.Message{}
	}
	msg := tracker.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.FromSelf = self != "" && m.Author.ID == self
	}
	return msg
}

func fromDelete(m *discordgo.MessageDelete) tracker.Message {
	if m == nil || m.Message == nil {
		return tracker.Message{}
	}
	msg := tracker.Message{ID: m.ID, ChannelID: m.ChannelID}
	if b := m.BeforeDelete; b != nil {
		msg.Content = b.Content
		if b.Author != nil {
			msg.AuthorID = b.Author.ID
		}
	}
	return msg
}
