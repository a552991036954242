// Package discord connects the tracker to a Discord guild: it posts tracker
// notices to the monitored channel and feeds message create/delete events
// into the tracker's router.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts plain-text messages to one channel. Send is synchronous, so
// calls from one goroutine are delivered in call order.
type Notifier struct {
	sender    messageSender
	ChannelID string
}

// NewNotifier posts through session to channelID.
func NewNotifier(session *discordgo.Session, channelID string) *Notifier {
	return &Notifier{sender: session, ChannelID: channelID}
}

// Send posts text, splitting it across messages when it exceeds Discord's
// length limit.
func (n *Notifier) Send(ctx context.Context, text string) error {
	for _, chunk := range split(text, maxMessageLen) {
		if _, err := n.sender.ChannelMessageSend(n.ChannelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

// split breaks s into pieces of at most limit runes, preferring to cut after
// a ", " separator so user lists stay readable.
func split(s string, limit int) []string {
	r := []rune(s)
	if len(r) <= limit {
		return []string{s}
	}
	var out []string
	for len(r) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if r[i] == ' ' && r[i-1] == ',' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
