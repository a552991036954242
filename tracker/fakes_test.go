package tracker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const testInterval = 20 * time.Minute

type fakeObserver struct {
	mu      sync.Mutex
	handles map[string][]string
	err     error
	joins   map[string]int
	parts   map[string]int
	resets  map[string]int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		handles: make(map[string][]string),
		joins:   make(map[string]int),
		parts:   make(map[string]int),
		resets:  make(map[string]int),
	}
}

func (o *fakeObserver) ActiveHandles(_ context.Context, id string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return append([]string(nil), o.handles[id]...), nil
}

func (o *fakeObserver) Reset(_ context.Context, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets[id]++
	delete(o.handles, id)
}

func (o *fakeObserver) Join(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joins[id]++
	return nil
}

func (o *fakeObserver) Part(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parts[id]++
	return nil
}

func (o *fakeObserver) set(id string, handles ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handles[id] = handles
}

func (o *fakeObserver) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *fakeObserver) count(m map[string]int, id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return m[id]
}

type fakeFetcher struct {
	mu   sync.Mutex
	meta map[string]StreamMetadata
	err  error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{meta: make(map[string]StreamMetadata)}
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (StreamMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return StreamMetadata{}, f.err
	}
	return f.meta[id], nil
}

func (f *fakeFetcher) live(id string, viewers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[id] = StreamMetadata{Live: true, ViewerCount: viewers}
}

// recordingNotifier keeps every message it was asked to send. When block is
// set, Send waits until ctx is cancelled.
type recordingNotifier struct {
	mu    sync.Mutex
	msgs  []string
	block bool
}

func (n *recordingNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	block := n.block
	n.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) setBlock(b bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.block = b
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func (n *recordingNotifier) has(text string) bool {
	for _, m := range n.messages() {
		if m == text {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) countPrefix(prefix string) int {
	c := 0
	for _, m := range n.messages() {
		if strings.HasPrefix(m, prefix) {
			c++
		}
	}
	return c
}

type botSet map[string]struct{}

func (b botSet) Contains(h string) bool {
	_, ok := b[strings.ToLower(h)]
	return ok
}

type harness struct {
	obs     *fakeObserver
	fetch   *fakeFetcher
	notes   *recordingNotifier
	clock   *clockwork.FakeClock
	tracker *Tracker
}

func newHarness(t *testing.T, bots BotFilter) *harness {
	t.Helper()
	h := &harness{
		obs:   newFakeObserver(),
		fetch: newFakeFetcher(),
		notes: &recordingNotifier{},
		clock: clockwork.NewFakeClock(),
	}
	h.tracker = New(h.obs, h.fetch, h.notes, Options{Interval: testInterval, Clock: h.clock, Bots: bots})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.tracker.Shutdown(ctx)
	})
	return h
}

// waitIdle blocks until n sessions are sleeping on their interval timer.
func (h *harness) waitIdle(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, n))
}

// tick waits for n idle sessions, fires their timers and waits for them to
// go idle again.
func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	h.waitIdle(t, n)
	h.clock.Advance(testInterval)
	h.waitIdle(t, n)
}
