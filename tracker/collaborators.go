package tracker

import "context"

// MembershipObserver yields who has been chatting on a stream channel since
// the last Reset for that channel.
type MembershipObserver interface {
	// ActiveHandles returns the distinct participants seen since the last
	// Reset, in first-seen order.
	ActiveHandles(ctx context.Context, identity string) ([]string, error)
	Reset(ctx context.Context, identity string)
	Join(ctx context.Context, identity string) error
	Part(ctx context.Context, identity string) error
}

// StreamMetadata is the live state of a stream at fetch time.
type StreamMetadata struct {
	Live        bool
	ViewerCount int
	Title       string
}

// MetadataFetcher looks up live status and viewer count by stream login.
// A stream that is not live is reported as StreamMetadata{Live: false}
// with a nil error.
type MetadataFetcher interface {
	Fetch(ctx context.Context, identity string) (StreamMetadata, error)
}

// Notifier posts plain-text messages to the monitored channel. Calls from one
// goroutine must be delivered in call order.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// BotFilter reports whether a chat handle belongs to a known bot.
type BotFilter interface {
	Contains(handle string) bool
}

type noBots struct{}

func (noBots) Contains(string) bool { return false }
