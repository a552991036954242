// Package tracker runs one polling session per stream link posted in the
// monitored channel.
//
// A Tracker owns the session registry, the participation ledger and the
// collaborator handles (chat membership, stream metadata, channel
// notifier). The Router turns channel message events into StartTracking /
// StopTracking calls. Each session samples chat membership and stream
// metadata every interval, posts a summary, and records who chatted in the
// ledger; when the link is deleted the session is cancelled and the ledger
// is reported and cleared.
package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hzrd-media/viewer-tracker/telemetry"
)

// DefaultInterval is the time between two ticks of a session.
const DefaultInterval = 1200 * time.Second

// Options tunes a Tracker. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Bots     BotFilter
}

// Tracker is the application context for tracked sessions.
type Tracker struct {
	observer MembershipObserver
	fetcher  MetadataFetcher
	notifier Notifier
	bots     BotFilter
	interval time.Duration
	clock    clockwork.Clock

	ledger   *Ledger
	registry *Registry

	// serializes stop reports so two stops cannot interleave their output
	reportMu sync.Mutex
}

// New builds a Tracker around its three collaborators.
func New(observer MembershipObserver, fetcher MetadataFetcher, notifier Notifier, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Bots == nil {
		opts.Bots = noBots{}
	}
	t := &Tracker{
		observer: observer,
		fetcher:  fetcher,
		notifier: notifier,
		bots:     opts.Bots,
		interval: opts.Interval,
		clock:    opts.Clock,
		ledger:   NewLedger(),
		registry: NewRegistry(opts.Clock.Now),
	}
	t.registry.OnChange = telemetry.SetActiveSessions
	return t
}

// Ledger exposes the participation ledger.
func (t *Tracker) Ledger() *Ledger { return t.ledger }

// Sessions lists the active sessions.
func (t *Tracker) Sessions() []SessionInfo { return t.registry.Sessions() }

// Interval returns the polling interval.
func (t *Tracker) Interval() time.Duration { return t.interval }

// StartTracking starts a session for identity unless one already runs.
// It reports whether a new session was started.
func (t *Tracker) StartTracking(identity, messageID string) bool {
	s, ok := t.registry.Start(identity, messageID, t.run)
	if !ok {
		slog.Debug("tracking already active", slog.String("stream", identity))
		return false
	}
	telemetry.IncSessionsStarted()
	slog.Info("tracking started", slog.String("stream", identity), slog.String("session", s.ID))
	return true
}

// StopTracking cancels the session for identity, leaves its chat channel and
// reports then clears the ledger. It returns false, with no side effects,
// when identity is not tracked.
func (t *Tracker) StopTracking(ctx context.Context, identity string) bool {
	s, ok := t.registry.Stop(ctx, identity)
	if !ok {
		return false
	}
	telemetry.IncSessionsStopped()
	log := slog.With(slog.String("stream", identity), slog.String("session", s.ID))

	t.reportMu.Lock()
	defer t.reportMu.Unlock()
	t.send(ctx, stoppedText(identity))
	if err := t.observer.Part(ctx, identity); err != nil {
		log.Warn("leave chat channel failed", slog.Any("err", err))
	}
	t.report(ctx)
	log.Info("tracking stopped")
	return true
}

// report posts the single- then multi-appearance lists and clears the ledger.
func (t *Tracker) report(ctx context.Context) {
	multi, single := t.ledger.Drain()
	telemetry.SetLedgerParticipants(0)
	t.send(ctx, singleAppearanceText(single))
	t.send(ctx, multiAppearanceText(multi))
}

// Shutdown cancels every session and waits for them to exit.
func (t *Tracker) Shutdown(ctx context.Context) error {
	return t.registry.StopAll(ctx)
}

// run is the body of one session: announce, join the chat channel, post an
// initial snapshot, then tick every interval until cancelled.
func (t *Tracker) run(ctx context.Context, s *Session) {
	ctx = telemetry.WithCorrelation(ctx, s.ID)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("stream", s.Identity))
	defer log.Info("session loop exited")

	if !t.notify(ctx, startedText(s.Identity)) {
		return
	}
	if err := t.observer.Join(ctx, s.Identity); err != nil {
		log.Warn("join chat channel failed", slog.Any("err", err))
	}
	t.observer.Reset(ctx, s.Identity)
	if md, err := t.fetchMetadata(ctx, s.Identity); err == nil && md.Live {
		if !t.notify(ctx, viewersText(s.Identity, md.ViewerCount)) {
			return
		}
	}

	for {
		timer := t.clock.NewTimer(t.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		t.tick(ctx, s.Identity)
		if ctx.Err() != nil {
			return
		}
	}
}

// tick performs one reporting cycle for identity.
func (t *Tracker) tick(ctx context.Context, identity string) {
	ctx, span := telemetry.StartSpan(ctx, "tracker", "tracker.tick", telemetry.StreamAttr(identity))
	defer span.End()
	start := t.clock.Now()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("stream", identity))

	raw, err := t.observer.ActiveHandles(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		ferr := &FetchError{Source: SourceMembership, Identity: identity, Err: err}
		telemetry.RecordError(span, ferr)
		telemetry.IncFetchError(SourceMembership)
		log.Warn("membership fetch failed", slog.Any("err", ferr))
		raw = nil
	}

	users := t.filterBots(raw)
	switch {
	case len(users) > 0:
		if !t.notify(ctx, activeUsersText(identity, users)) {
			return
		}
		t.ledger.Record(users)
		telemetry.SetLedgerParticipants(t.ledger.Len())
	case len(raw) > 0:
		if !t.notify(ctx, noNonBotUsersText(identity)) {
			return
		}
	default:
		if !t.notify(ctx, noActiveUsersText(identity)) {
			return
		}
	}

	md, err := t.fetchMetadata(ctx, identity)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	if err == nil && md.Live {
		if !t.notify(ctx, viewersText(identity, md.ViewerCount)) {
			return
		}
	} else if !t.notify(ctx, notLiveText(identity)) {
		return
	}

	t.observer.Reset(ctx, identity)
	telemetry.ObserveTick(t.clock.Since(start))
	log.Debug("tick complete", slog.Int("users", len(users)), slog.Bool("live", md.Live))
}

// fetchMetadata wraps fetch failures as FetchError and counts them.
func (t *Tracker) fetchMetadata(ctx context.Context, identity string) (StreamMetadata, error) {
	md, err := t.fetcher.Fetch(ctx, identity)
	if err != nil {
		if ctx.Err() != nil {
			return StreamMetadata{}, ctx.Err()
		}
		ferr := &FetchError{Source: SourceMetadata, Identity: identity, Err: err}
		telemetry.IncFetchError(SourceMetadata)
		telemetry.LoggerWithCorr(ctx).Warn("metadata fetch failed", slog.Any("err", ferr))
		return StreamMetadata{}, ferr
	}
	return md, nil
}

// filterBots lower-cases, de-duplicates and drops bot handles, keeping the
// observer's order.
func (t *Tracker) filterBots(handles []string) []string {
	out := make([]string, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if t.bots.Contains(h) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// notify sends text on behalf of a session. It returns false once the
// session is cancelled; send failures are logged and do not end the tick.
func (t *Tracker) notify(ctx context.Context, text string) bool {
	if ctx.Err() != nil {
		return false
	}
	t.send(ctx, text)
	return ctx.Err() == nil
}

func (t *Tracker) send(ctx context.Context, text string) {
	if err := t.notifier.Send(ctx, text); err != nil {
		telemetry.IncNotification(false)
		if ctx.Err() == nil {
			telemetry.LoggerWithCorr(ctx).Warn("channel notification failed", slog.Any("err", err))
		}
		return
	}
	telemetry.IncNotification(true)
}
