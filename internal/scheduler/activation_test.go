package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/player"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

func monday(hh, mm int) time.Time {
	return time.Date(2025, 1, 6, hh, mm, 0, 0, time.UTC)
}

func window(start, end string, rec model.Recurrence) model.Window {
	st, err := model.ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	en, err := model.ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	return model.Window{StartTime: st, EndTime: &en, Recurrence: rec}
}

// scheduleAB is the daily "A" and the higher priority Monday "B" overlapping it.
func scheduleAB() (model.Schedule, model.Schedule) {
	a := model.Schedule{
		ID:          "sched_a",
		Name:        "A",
		Playlist:    "default-loop",
		Enabled:     true,
		Priority:    model.PriorityNormal,
		Window:      window("08:00", "12:00", model.Daily()),
		PostActions: model.PostActions{},
	}
	b := model.Schedule{
		ID:          "sched_b",
		Name:        "B",
		Playlist:    "special",
		Enabled:     true,
		Priority:    model.PriorityHigh,
		Window:      window("09:00", "11:00", model.Weekly(time.Monday)),
		PostActions: model.PostActions{RevertDefault: true},
	}
	return a, b
}

type activatorFixture struct {
	store  *db.MemoryScheduleStore
	player *player.LogPlayer
	state  *MemoryStateStore
	clock  *schedule.MockClock
	act    *Activator
}

func newFixture(t *testing.T, now time.Time, schedules ...model.Schedule) *activatorFixture {
	t.Helper()
	f := &activatorFixture{
		store:  db.NewMemoryScheduleStore(schedules...),
		player: player.NewLogPlayer(),
		state:  NewMemoryStateStore(),
		clock:  schedule.NewMockClock(now),
	}
	f.act = NewActivator(ActivatorConfig{
		Store:     f.store,
		Playlists: playlistSet{"default-loop": true, "special": true},
		Player:    f.player,
		State:     f.state,
		Clock:     f.clock,
	})
	return f
}

func (f *activatorFixture) tick(t *testing.T) *TickReport {
	t.Helper()
	report, err := f.act.Tick(context.Background())
	require.NoError(t, err)
	return report
}

func (f *activatorFixture) get(t *testing.T, id string) model.Schedule {
	t.Helper()
	all, err := f.store.Load(context.Background())
	require.NoError(t, err)
	for _, sc := range all {
		if sc.ID == id {
			return sc
		}
	}
	t.Fatalf("schedule %s not in store", id)
	return model.Schedule{}
}

// TestTick_HigherPriorityWins checks Monday 09:30 selects B over A.
func TestTick_HigherPriorityWins(t *testing.T) {
	a, b := scheduleAB()
	f := newFixture(t, monday(9, 30), a, b)

	report := f.tick(t)

	assert.Equal(t, []string{"sched_b", "sched_a"}, report.Candidates)
	assert.Equal(t, "sched_b", report.Winner)
	assert.True(t, report.Activated)
	assert.Equal(t, []string{"load:special"}, f.player.Calls())

	state, err := f.act.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sched_b", state.ActiveID)
	assert.Equal(t, "sched_b@2025-01-06", state.ActiveWindow)

	stored := f.get(t, "sched_b")
	assert.Equal(t, 1, stored.Metadata.RunCount)
	require.NotNil(t, stored.Metadata.LastRun)
	assert.Equal(t, monday(9, 30), *stored.Metadata.LastRun)
}

// TestTick_SteadyWithinWindow checks repeated ticks do not reload the player.
func TestTick_SteadyWithinWindow(t *testing.T) {
	a, b := scheduleAB()
	f := newFixture(t, monday(9, 30), a, b)

	f.tick(t)
	f.clock.Advance(time.Minute)
	report := f.tick(t)
	f.clock.Advance(time.Minute)
	f.tick(t)

	assert.False(t, report.Activated)
	assert.Equal(t, "sched_b", report.Winner)
	assert.Equal(t, []string{"load:special"}, f.player.Calls())
	assert.Equal(t, 1, f.get(t, "sched_b").Metadata.RunCount)
}

// TestTick_RevertFiresOnce checks B's post-action runs exactly once after
// 11:00 and A takes over for the rest of its window.
func TestTick_RevertFiresOnce(t *testing.T) {
	a, b := scheduleAB()
	f := newFixture(t, monday(9, 30), a, b)

	f.tick(t)

	f.clock.Set(monday(11, 0))
	report := f.tick(t)
	assert.Equal(t, "sched_b", report.Closed)
	assert.Equal(t, []string{"revert_default"}, report.PostActions)
	assert.Equal(t, "sched_a", report.Winner)
	assert.True(t, report.Activated)

	f.clock.Set(monday(11, 5))
	report = f.tick(t)
	assert.Empty(t, report.Closed)
	assert.False(t, report.Activated)

	assert.Equal(t, []string{"load:special", "revert", "load:default-loop"}, f.player.Calls())
}

// TestTick_PostActionOrder checks screenshot, stop and revert run in that order.
func TestTick_PostActionOrder(t *testing.T) {
	_, b := scheduleAB()
	b.PostActions = model.PostActions{RevertDefault: true, StopPlayback: true, TakeScreenshot: true}
	f := newFixture(t, monday(9, 30), b)

	f.tick(t)
	f.clock.Set(monday(11, 30))
	report := f.tick(t)

	assert.Equal(t, []string{"take_screenshot", "stop_playback", "revert_default"}, report.PostActions)
	assert.Equal(t, []string{"load:special", "screenshot", "stop", "revert"}, f.player.Calls())
}

// TestTick_PreemptedScheduleSkipsPostActions checks a schedule losing to a
// higher priority one mid-window gets no post-actions.
func TestTick_PreemptedScheduleSkipsPostActions(t *testing.T) {
	a, b := scheduleAB()
	a.PostActions = model.PostActions{RevertDefault: true}
	f := newFixture(t, monday(8, 30), a, b)

	f.tick(t)
	f.clock.Set(monday(9, 0))
	report := f.tick(t)

	assert.Equal(t, "sched_b", report.Winner)
	assert.Empty(t, report.PostActions)
	assert.Equal(t, []string{"load:default-loop", "load:special"}, f.player.Calls())
}

// TestTick_DisabledExcluded checks disabled schedules are never candidates.
func TestTick_DisabledExcluded(t *testing.T) {
	a, b := scheduleAB()
	b.Enabled = false
	f := newFixture(t, monday(9, 30), a, b)

	report := f.tick(t)

	assert.Equal(t, []string{"sched_a"}, report.Candidates)
	assert.Equal(t, "sched_a", report.Winner)
}

// TestTick_DanglingPlaylistFallsThrough checks a missing playlist hands
// the slot to the next candidate.
func TestTick_DanglingPlaylistFallsThrough(t *testing.T) {
	a, b := scheduleAB()
	b.Playlist = "deleted"
	f := newFixture(t, monday(9, 30), a, b)

	report := f.tick(t)

	assert.Equal(t, []string{"sched_b"}, report.Skipped)
	assert.Equal(t, "sched_a", report.Winner)
	assert.Equal(t, []string{"load:default-loop"}, f.player.Calls())
}

// TestTick_NothingEligible checks an idle tick leaves the player alone.
func TestTick_NothingEligible(t *testing.T) {
	a, b := scheduleAB()
	f := newFixture(t, monday(7, 0), a, b)

	report := f.tick(t)

	assert.Empty(t, report.Candidates)
	assert.Empty(t, report.Winner)
	assert.Empty(t, f.player.Calls())
}

type flakyPlayer struct {
	*player.LogPlayer
	mu       sync.Mutex
	failures int
}

func (p *flakyPlayer) LoadAndPlay(ctx context.Context, playlist string) error {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return errors.New("connection refused")
	}
	p.mu.Unlock()
	return p.LogPlayer.LoadAndPlay(ctx, playlist)
}

// TestTick_PlayerFailureRetried checks a failed load leaves nothing active
// and the next tick tries again.
func TestTick_PlayerFailureRetried(t *testing.T) {
	_, b := scheduleAB()
	f := newFixture(t, monday(9, 30), b)
	flaky := &flakyPlayer{LogPlayer: player.NewLogPlayer(), failures: 1}
	f.act = NewActivator(ActivatorConfig{Store: f.store, Player: flaky, State: f.state, Clock: f.clock})

	report := f.tick(t)
	assert.False(t, report.Activated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "connection refused")
	assert.Equal(t, 0, f.get(t, "sched_b").Metadata.RunCount)

	state, _ := f.state.Load(context.Background())
	assert.False(t, state.HasActive())

	f.clock.Advance(time.Minute)
	report = f.tick(t)
	assert.True(t, report.Activated)
	assert.Equal(t, []string{"load:special"}, flaky.Calls())
}

// TestTick_UnreadableStore checks a broken document is treated as empty.
func TestTick_UnreadableStore(t *testing.T) {
	a, _ := scheduleAB()
	f := newFixture(t, monday(9, 30), a)
	f.store.LoadErr = &schedule.PersistenceError{Op: "decode", Err: errors.New("invalid character")}

	report := f.tick(t)

	assert.Empty(t, report.Candidates)
	assert.NotEmpty(t, report.Errors)
	assert.Empty(t, f.player.Calls())
}

// TestTick_DeletedActiveUsesCapturedActions checks the post-actions captured
// at activation still run when the schedule is deleted mid-window.
func TestTick_DeletedActiveUsesCapturedActions(t *testing.T) {
	_, b := scheduleAB()
	f := newFixture(t, monday(9, 30), b)
	f.tick(t)

	require.NoError(t, f.store.Save(context.Background(), nil))
	f.clock.Advance(time.Minute)
	report := f.tick(t)

	assert.Equal(t, "sched_b", report.Closed)
	assert.Equal(t, []string{"revert_default"}, report.PostActions)
}

// TestTick_OnceOnlyTerminates checks a once-only schedule completes after
// its first window and can be revived by re-enabling it.
func TestTick_OnceOnlyTerminates(t *testing.T) {
	_, b := scheduleAB()
	b.Window.OnceOnly = true
	f := newFixture(t, monday(9, 30), b)

	f.tick(t)
	f.clock.Set(monday(11, 0))
	report := f.tick(t)
	assert.Equal(t, []string{"sched_b"}, report.Terminated)

	stored := f.get(t, "sched_b")
	assert.False(t, stored.Enabled)
	assert.True(t, stored.Terminated())
	assert.Nil(t, stored.Metadata.NextRun)

	// next Monday: still terminated
	f.clock.Set(monday(9, 30).AddDate(0, 0, 7))
	report = f.tick(t)
	assert.Empty(t, report.Candidates)

	svc := NewService(f.store, playlistSet{"special": true}, f.clock)
	revived, err := svc.Toggle(context.Background(), "sched_b")
	require.NoError(t, err)
	assert.True(t, revived.Enabled)
	assert.False(t, revived.Terminated())

	report = f.tick(t)
	assert.Equal(t, "sched_b", report.Winner)
	assert.True(t, report.Activated)
}

// TestTick_PreemptedOnceOnlyCompletes checks a once-only schedule that lost
// playback mid-window is completed when its window closes and does not run
// again the next day.
func TestTick_PreemptedOnceOnlyCompletes(t *testing.T) {
	a, b := scheduleAB()
	a.Window = window("08:00", "10:00", model.Daily())
	a.Window.OnceOnly = true
	a.PostActions = model.PostActions{StopPlayback: true}
	f := newFixture(t, monday(8, 30), a, b)

	report := f.tick(t)
	assert.Equal(t, "sched_a", report.Winner)

	f.clock.Set(monday(9, 30))
	report = f.tick(t)
	assert.Equal(t, "sched_b", report.Winner)
	assert.Empty(t, report.Terminated)
	assert.False(t, f.get(t, "sched_a").Terminated())

	f.clock.Set(monday(10, 30))
	report = f.tick(t)
	assert.Equal(t, []string{"sched_a"}, report.Terminated)
	assert.Empty(t, report.PostActions)

	stored := f.get(t, "sched_a")
	assert.False(t, stored.Enabled)
	assert.True(t, stored.Terminated())
	assert.Nil(t, stored.Metadata.NextRun)
	assert.Equal(t, 1, stored.Metadata.RunCount)

	f.clock.Set(monday(8, 30).AddDate(0, 0, 1))
	report = f.tick(t)
	assert.Empty(t, report.Candidates)
	assert.Empty(t, report.Winner)
	assert.Equal(t, []string{"load:default-loop", "load:special", "revert"}, f.player.Calls())
}

// TestTick_RefreshesStaleNextRun checks passed next runs are recomputed.
func TestTick_RefreshesStaleNextRun(t *testing.T) {
	a, _ := scheduleAB()
	past := monday(8, 0).AddDate(0, 0, -3)
	a.Metadata.NextRun = &past
	f := newFixture(t, monday(7, 0), a)

	report := f.tick(t)

	assert.Equal(t, 1, report.Refreshed)
	stored := f.get(t, "sched_a")
	require.NotNil(t, stored.Metadata.NextRun)
	assert.Equal(t, monday(8, 0), *stored.Metadata.NextRun)

	saves := f.store.Saves()
	f.tick(t)
	assert.Equal(t, saves, f.store.Saves())
}

// TestTick_TieBreaksOnUpdatedAt checks equal priorities prefer the most
// recently modified schedule.
func TestTick_TieBreaksOnUpdatedAt(t *testing.T) {
	a, b := scheduleAB()
	b.Priority = a.Priority
	a.Metadata.UpdatedAt = monday(6, 0)
	b.Metadata.UpdatedAt = monday(5, 0)
	f := newFixture(t, monday(9, 30), a, b)

	report := f.tick(t)

	assert.Equal(t, "sched_a", report.Winner)
}

type blockingPlayer struct {
	*player.LogPlayer
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPlayer) LoadAndPlay(ctx context.Context, playlist string) error {
	close(p.entered)
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.LogPlayer.LoadAndPlay(ctx, playlist)
}

// TestTick_NotReentrant checks a tick requested during another one is refused.
func TestTick_NotReentrant(t *testing.T) {
	_, b := scheduleAB()
	f := newFixture(t, monday(9, 30), b)
	bp := &blockingPlayer{LogPlayer: player.NewLogPlayer(), entered: make(chan struct{}), release: make(chan struct{})}
	f.act = NewActivator(ActivatorConfig{Store: f.store, Player: bp, State: f.state, Clock: f.clock})

	done := make(chan error, 1)
	go func() {
		_, err := f.act.Tick(context.Background())
		done <- err
	}()
	<-bp.entered

	_, err := f.act.Tick(context.Background())
	assert.ErrorIs(t, err, schedule.ErrTickInProgress)

	close(bp.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"load:special"}, bp.Calls())
}

type heldLock struct{}

func (heldLock) TryAcquire(context.Context) (func(), bool, error) { return nil, false, nil }

type brokenLock struct{}

func (brokenLock) TryAcquire(context.Context) (func(), bool, error) {
	return nil, false, errors.New("dial tcp: connection refused")
}

// TestTick_SharedLock checks a held lock skips the tick and a broken one is ignored.
func TestTick_SharedLock(t *testing.T) {
	_, b := scheduleAB()
	f := newFixture(t, monday(9, 30), b)

	held := NewActivator(ActivatorConfig{Store: f.store, Player: f.player, State: f.state, Clock: f.clock, Lock: heldLock{}})
	_, err := held.Tick(context.Background())
	assert.ErrorIs(t, err, schedule.ErrTickInProgress)
	assert.Empty(t, f.player.Calls())

	broken := NewActivator(ActivatorConfig{Store: f.store, Player: f.player, State: f.state, Clock: f.clock, Lock: brokenLock{}})
	report, err := broken.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Activated)
}

// TestRunner_TriggerTicks checks Start runs a first tick and Stop waits for it.
func TestRunner_TriggerTicks(t *testing.T) {
	_, b := scheduleAB()
	f := newFixture(t, monday(9, 30), b)

	r := NewRunner(f.act, time.Hour, time.UTC)
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return len(f.player.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Trigger()
	r.Stop()
	assert.Equal(t, []string{"load:special"}, f.player.Calls())
}
