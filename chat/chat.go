package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// ircClient is the subset of *twitch.Client the observer drives.
type ircClient interface {
	Join(channels ...string)
	Depart(channel string)
	Connect() error
	Disconnect() error
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
}

// anonymousPrefix marks the reserved nicknames of anonymous IRC logins,
// including this observer's own when it has no credentials.
const anonymousPrefix = "justinfan"

// disconnectWait bounds how long Run waits for the client to wind down.
const disconnectWait = 5 * time.Second

type roster struct {
	seen  map[string]struct{}
	order []string
}

func (r *roster) add(handle string) {
	if _, ok := r.seen[handle]; ok {
		return
	}
	r.seen[handle] = struct{}{}
	r.order = append(r.order, handle)
}

// Observer tracks chat presence per joined channel.
type Observer struct {
	client    ircClient
	nick      string
	connected atomic.Bool

	mu       sync.Mutex
	channels map[string]*roster
}

// NewObserver builds an observer over go-twitch-irc. Without a nickname or
// OAuth token the client connects anonymously.
func NewObserver(nick, oauthToken string) *Observer {
	if nick == "" || oauthToken == "" {
		slog.Info("twitch chat creds not set; connecting anonymously")
		return newObserver(twitch.NewAnonymousClient(), "")
	}
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	return newObserver(twitch.NewClient(nick, oauthToken), nick)
}

func newObserver(client ircClient, nick string) *Observer {
	o := &Observer{
		client:   client,
		nick:     strings.ToLower(nick),
		channels: make(map[string]*roster),
	}
	client.OnConnect(func() {
		o.connected.Store(true)
		slog.Info("twitch chat connected")
	})
	client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		o.record(m.Channel, m.User.Name)
	})
	return o
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "#"))
}

func (o *Observer) record(channel, handle string) {
	channel, handle = normalize(channel), normalize(handle)
	if handle == "" || handle == o.nick || strings.HasPrefix(handle, anonymousPrefix) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.channels[channel]; ok {
		r.add(handle)
	}
}

// ActiveHandles returns the handles seen in channel since the last Reset.
func (o *Observer) ActiveHandles(ctx context.Context, channel string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	channel = normalize(channel)
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.channels[channel]
	if !ok {
		return nil, fmt.Errorf("chat: channel %q not joined", channel)
	}
	return append([]string{}, r.order...), nil
}

// Reset forgets the handles seen in channel.
func (o *Observer) Reset(_ context.Context, channel string) {
	channel = normalize(channel)
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.channels[channel]; ok {
		o.channels[channel] = &roster{seen: make(map[string]struct{})}
	}
}

// Join starts observing channel. Joining twice is a no-op.
func (o *Observer) Join(_ context.Context, channel string) error {
	channel = normalize(channel)
	if channel == "" {
		return errors.New("chat: empty channel")
	}
	o.mu.Lock()
	if _, ok := o.channels[channel]; ok {
		o.mu.Unlock()
		return nil
	}
	o.channels[channel] = &roster{seen: make(map[string]struct{})}
	o.mu.Unlock()
	o.client.Join(channel)
	slog.Info("twitch chat joined", slog.String("channel", channel))
	return nil
}

// Part stops observing channel.
func (o *Observer) Part(_ context.Context, channel string) error {
	channel = normalize(channel)
	o.mu.Lock()
	_, ok := o.channels[channel]
	delete(o.channels, channel)
	o.mu.Unlock()
	if !ok {
		return nil
	}
	o.client.Depart(channel)
	slog.Info("twitch chat parted", slog.String("channel", channel))
	return nil
}

// Connected reports whether the IRC connection is up.
func (o *Observer) Connected() bool { return o.connected.Load() }

// Run connects and blocks until ctx is cancelled or the connection fails
// for good.
func (o *Observer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- o.client.Connect() }()
	defer o.connected.Store(false)

	select {
	case <-ctx.Done():
		if err := o.client.Disconnect(); err != nil {
			slog.Debug("twitch chat disconnect", slog.Any("err", err))
		}
		select {
		case <-errCh:
		case <-time.After(disconnectWait):
			slog.Warn("twitch chat did not close in time")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return nil
		}
		return fmt.Errorf("twitch chat connect: %w", err)
	}
}
