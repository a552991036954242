package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTracking_AnnouncesAndJoins(t *testing.T) {
	h := newHarness(t, nil)
	h.fetch.live("shadowfiend", 42)

	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	assert.Equal(t, []string{
		"Started tracking shadowfiend.",
		"shadowfiend currently has 42 viewers.",
	}, h.notes.messages())
	assert.Equal(t, 1, h.obs.count(h.obs.joins, "shadowfiend"))
}

func TestStartTracking_NoSnapshotWhenOffline(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	assert.Equal(t, []string{"Started tracking shadowfiend."}, h.notes.messages())
}

func TestStartTracking_SecondCallIsNoop(t *testing.T) {
	h := newHarness(t, nil)

	assert.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	assert.False(t, h.tracker.StartTracking("shadowfiend", "m2"))
	h.waitIdle(t, 1)

	assert.Equal(t, 1, h.notes.countPrefix("Started tracking"))
	assert.Equal(t, 1, h.obs.count(h.obs.joins, "shadowfiend"))
	assert.Len(t, h.tracker.Sessions(), 1)
	assert.Equal(t, "m1", h.tracker.Sessions()[0].MessageID)
}

func TestStopTracking_NotTracked(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.tracker.StopTracking(context.Background(), "nobody"))
	assert.Empty(t, h.notes.messages())
	assert.Zero(t, h.obs.count(h.obs.parts, "nobody"))
}

func TestTick_FiltersBotsAndRecordsLedger(t *testing.T) {
	h := newHarness(t, botSet{"bots_mod": {}})
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.obs.set("shadowfiend", "alice", "bots_mod", "bob")
	h.tick(t, 1)

	assert.True(t, h.notes.has("Active users interacting in shadowfiend: alice, bob"))
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, h.tracker.Ledger().Snapshot())
	assert.GreaterOrEqual(t, h.obs.count(h.obs.resets, "shadowfiend"), 2)
}

func TestTick_BotMatchIsCaseInsensitive(t *testing.T) {
	h := newHarness(t, botSet{"nightbot": {}})
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.obs.set("shadowfiend", "NightBot")
	h.tick(t, 1)

	assert.True(t, h.notes.has("No non-bot chat users detected for shadowfiend."))
	assert.Zero(t, h.tracker.Ledger().Len())
}

func TestTick_NoActiveUsers(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.tick(t, 1)

	msgs := h.notes.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "No active chat users detected for shadowfiend.", msgs[1])
	assert.Equal(t, "shadowfiend is not currently live.", msgs[2])
}

func TestTick_ViewerCountWhenLive(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.fetch.live("shadowfiend", 7)
	h.tick(t, 1)

	msgs := h.notes.messages()
	assert.Equal(t, "shadowfiend currently has 7 viewers.", msgs[len(msgs)-1])
}

func TestTick_FetchFailuresDoNotEndLoop(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.obs.setErr(errors.New("irc down"))
	h.fetch.mu.Lock()
	h.fetch.err = errors.New("helix 503")
	h.fetch.mu.Unlock()
	h.tick(t, 1)

	assert.True(t, h.notes.has("No active chat users detected for shadowfiend."))
	assert.True(t, h.notes.has("shadowfiend is not currently live."))

	h.obs.setErr(nil)
	h.obs.set("shadowfiend", "alice")
	h.tick(t, 1)

	assert.True(t, h.notes.has("Active users interacting in shadowfiend: alice"))
	assert.Equal(t, 1, h.tracker.Ledger().count("alice"))
}

func TestTick_RepeatedHandleCountsOncePerTick(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.obs.set("shadowfiend", "alice", "Alice", "alice", "bob")
	h.tick(t, 1)
	h.obs.set("shadowfiend", "alice")
	h.tick(t, 1)

	assert.True(t, h.notes.has("Active users interacting in shadowfiend: alice, bob"))
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, h.tracker.Ledger().Snapshot())
}

func TestStopTracking_ReportsAndClearsLedger(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.obs.set("shadowfiend", "alice")
	h.tick(t, 1)
	h.obs.set("shadowfiend", "alice")
	h.tick(t, 1)

	before := len(h.notes.messages())
	require.True(t, h.tracker.StopTracking(context.Background(), "shadowfiend"))

	assert.Equal(t, []string{
		"Stopped tracking shadowfiend as the link was removed.",
		"No users appeared in only one list.",
		"Users who appeared in multiple lists: alice",
	}, h.notes.messages()[before:])
	assert.Equal(t, 1, h.obs.count(h.obs.parts, "shadowfiend"))
	assert.Zero(t, h.tracker.Ledger().Len())
	assert.Empty(t, h.tracker.Sessions())
}

func TestStopTracking_NoNotificationsAfterReturn(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.tick(t, 1)

	require.True(t, h.tracker.StopTracking(context.Background(), "shadowfiend"))
	after := len(h.notes.messages())

	h.clock.Advance(3 * testInterval)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.notes.messages(), after)
	assert.False(t, h.tracker.StopTracking(context.Background(), "shadowfiend"))
}

func TestStopTracking_CancelsInFlightTick(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("shadowfiend", "m1"))
	h.waitIdle(t, 1)

	h.notes.setBlock(true)
	h.clock.Advance(testInterval)

	// give the tick time to reach the blocked Send
	time.Sleep(20 * time.Millisecond)
	stopped := make(chan bool, 1)
	go func() {
		h.notes.setBlock(false)
		stopped <- h.tracker.StopTracking(context.Background(), "shadowfiend")
	}()

	select {
	case ok := <-stopped:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("StopTracking did not return")
	}
	assert.Equal(t, 0, h.tracker.registry.Len())
}

func TestSessionsRunIndependently(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("alpha", "m1"))
	require.True(t, h.tracker.StartTracking("beta", "m2"))
	h.waitIdle(t, 2)

	h.obs.set("alpha", "alice")
	h.obs.set("beta", "alice", "bob")
	h.tick(t, 2)

	assert.True(t, h.notes.has("Active users interacting in alpha: alice"))
	assert.True(t, h.notes.has("Active users interacting in beta: alice, bob"))
	assert.Equal(t, 2, h.tracker.Ledger().count("alice"))

	require.True(t, h.tracker.StopTracking(context.Background(), "alpha"))
	assert.True(t, h.notes.has("Users who appeared in only one list: bob"))
	assert.True(t, h.notes.has("Users who appeared in multiple lists: alice"))
	assert.Len(t, h.tracker.Sessions(), 1)
	h.waitIdle(t, 1)
}

func TestShutdownStopsAllSessions(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.tracker.StartTracking("alpha", "m1"))
	require.True(t, h.tracker.StartTracking("beta", "m2"))
	h.waitIdle(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.tracker.Shutdown(ctx))

	assert.Empty(t, h.tracker.Sessions())
	assert.False(t, h.tracker.StartTracking("gamma", "m3"))
}
