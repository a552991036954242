package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hzrd-media/viewer-tracker/telemetry"
	"github.com/hzrd-media/viewer-tracker/tracker"
)

// BreakerSettings tunes the circuit breaker around Helix calls.
type BreakerSettings struct {
	// ConsecutiveFailures that open the circuit.
	ConsecutiveFailures uint32
	// Timeout before an open circuit lets a trial request through.
	Timeout time.Duration
}

// DefaultBreakerSettings opens after 3 consecutive failures and tries again
// after 2 minutes.
var DefaultBreakerSettings = BreakerSettings{ConsecutiveFailures: 3, Timeout: 2 * time.Minute}

// StreamFetcher answers "is this stream live, and with how many viewers"
// through a circuit breaker, so a Helix outage costs one fast failure per
// tick instead of a slow timeout.
type StreamFetcher struct {
	helix *HelixClient
	cb    *gobreaker.CircuitBreaker[[]Stream]
}

// NewStreamFetcher wraps helix with a circuit breaker.
func NewStreamFetcher(helix *HelixClient, bs BreakerSettings) *StreamFetcher {
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = DefaultBreakerSettings.ConsecutiveFailures
	}
	if bs.Timeout <= 0 {
		bs.Timeout = DefaultBreakerSettings.Timeout
	}
	telemetry.UpdateCircuitGauge(false)
	cb := gobreaker.NewCircuitBreaker[[]Stream](gobreaker.Settings{
		Name:        "helix-streams",
		MaxRequests: 1,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled session says nothing about Helix health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
			telemetry.UpdateCircuitGauge(to == gobreaker.StateOpen)
		},
	})
	return &StreamFetcher{helix: helix, cb: cb}
}

// Fetch implements tracker.MetadataFetcher.
func (f *StreamFetcher) Fetch(ctx context.Context, identity string) (tracker.StreamMetadata, error) {
	streams, err := f.cb.Execute(func() ([]Stream, error) {
		return f.helix.GetStreams(ctx, identity)
	})
	if err != nil {
		return tracker.StreamMetadata{}, err
	}
	for _, s := range streams {
		if strings.EqualFold(s.UserLogin, identity) {
			return tracker.StreamMetadata{Live: true, ViewerCount: s.ViewerCount, Title: s.Title}, nil
		}
	}
	return tracker.StreamMetadata{}, nil
}

// State returns the breaker state name, for status reporting.
func (f *StreamFetcher) State() string {
	return f.cb.State().String()
}
