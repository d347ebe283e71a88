package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/metrics"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/player"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// DefaultPlayerTimeout bounds each player call made from a tick.
const DefaultPlayerTimeout = 10 * time.Second

// TickLocker is an optional cross-process guard around a tick.
type TickLocker interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// ActivatorConfig wires the activation loop to its collaborators.
type ActivatorConfig struct {
	Store         db.ScheduleStore
	Playlists     db.PlaylistStore
	Player        player.Player
	State         StateStore
	Clock         schedule.Clock
	Lock          TickLocker
	PlayerTimeout time.Duration
}

// Activator decides, once per tick, which schedule drives playback.
type Activator struct {
	store     db.ScheduleStore
	playlists db.PlaylistStore
	player    player.Player
	state     StateStore
	clock     schedule.Clock
	lock      TickLocker

	mu sync.Mutex
}

func NewActivator(cfg ActivatorConfig) *Activator {
	if cfg.Clock == nil {
		cfg.Clock = schedule.RealClock{}
	}
	if cfg.State == nil {
		cfg.State = NewMemoryStateStore()
	}
	if cfg.PlayerTimeout <= 0 {
		cfg.PlayerTimeout = DefaultPlayerTimeout
	}
	return &Activator{
		store:     cfg.Store,
		playlists: cfg.Playlists,
		player:    player.WithTimeout(cfg.Player, cfg.PlayerTimeout),
		state:     cfg.State,
		clock:     cfg.Clock,
		lock:      cfg.Lock,
	}
}

// TickReport summarizes what one tick observed and did.
type TickReport struct {
	At          time.Time `json:"at"`
	Candidates  []string  `json:"candidates"`
	Winner      string    `json:"winner,omitempty"`
	Playlist    string    `json:"playlist,omitempty"`
	Activated   bool      `json:"activated"`
	Closed      string    `json:"closed,omitempty"`
	PostActions []string  `json:"post_actions,omitempty"`
	Terminated  []string  `json:"terminated,omitempty"`
	Skipped     []string  `json:"skipped,omitempty"`
	Refreshed   int       `json:"refreshed"`
	Errors      []string  `json:"errors,omitempty"`
}

func (r *TickReport) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// State returns the persisted activation state.
func (a *Activator) State(ctx context.Context) (model.ActivationState, error) {
	return a.state.Load(ctx)
}

// Tick runs one evaluation. It returns ErrTickInProgress when another tick
// holds the loop; every other failure is logged and reported, never returned.
func (a *Activator) Tick(ctx context.Context) (*TickReport, error) {
	if !a.mu.TryLock() {
		return nil, schedule.ErrTickInProgress
	}
	defer a.mu.Unlock()

	if a.lock != nil {
		release, ok, err := a.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("tick lock unavailable, continuing without it")
		case !ok:
			return nil, schedule.ErrTickInProgress
		default:
			defer release()
		}
	}

	started := time.Now()
	now := a.clock.Now()
	report := &TickReport{At: now, Candidates: []string{}}

	all, err := a.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("schedule store unreadable, treating as empty")
		report.fail(err)
		all = nil
	}

	state, err := a.state.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("activation state unreadable, starting fresh")
		report.fail(err)
		state = model.ActivationState{}
	}

	m := newMutation(now)

	// once-only schedules that lost playback before their window closed
	// still complete, without post-actions
	for _, sc := range all {
		if sc.ID != state.ActiveID && spentOnce(sc, now) {
			m.terminate[sc.ID] = true
			report.Terminated = append(report.Terminated, sc.ID)
			log.Info().Str("schedule_id", sc.ID).Msg("once-only schedule completed while preempted")
		}
	}

	var candidates []model.Schedule
	for _, c := range eligible(all, now) {
		if m.terminate[c.ID] {
			continue
		}
		candidates = append(candidates, c)
		report.Candidates = append(report.Candidates, c.ID)
	}

	winner := a.pickWinner(ctx, candidates, state, now, report)

	// the active schedule's window closed: run its post-actions once
	if state.HasActive() && !stillActive(state, candidates, now) {
		a.close(ctx, state, all, m, report)
		state.ClearActive()
		if winner != nil && m.terminate[winner.ID] {
			winner = nil
		}
	}

	outcome := "steady"
	if winner != nil && winner.ID != state.ActiveID {
		if err := a.activate(ctx, *winner); err != nil {
			report.fail(err)
			outcome = "failed"
		} else {
			state.ActiveID = winner.ID
			state.ActiveName = winner.Name
			state.ActivePlaylist = winner.Playlist
			state.ActiveWindow = schedule.WindowKey(*winner, now)
			state.ActiveSince = &now
			state.ActivePostActions = winner.PostActions
			state.ActiveOnceOnly = winner.Window.OnceOnly
			m.ran[winner.ID] = true
			report.Activated = true
			outcome = "switched"
			metrics.RecordSwitch()
		}
	} else if winner == nil && !state.HasActive() {
		outcome = "idle"
	}
	if winner != nil {
		report.Winner = winner.ID
		report.Playlist = winner.Playlist
	}

	if m.apply(model.CloneSchedules(all)) {
		err := a.store.Update(ctx, func(current []model.Schedule) ([]model.Schedule, error) {
			report.Refreshed = m.refreshed(current)
			m.apply(current)
			return current, nil
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to persist schedule run metadata")
			report.fail(err)
		}
	}

	state.LastTick = &now
	if err := a.state.Save(ctx, state); err != nil {
		log.Error().Err(err).Msg("failed to persist activation state")
		report.fail(err)
	}

	enabled := 0
	for _, sc := range all {
		if sc.Enabled {
			enabled++
		}
	}
	metrics.UpdateScheduleStats(enabled, len(all)-enabled)
	metrics.RecordTick(outcome, time.Since(started), len(candidates))

	log.Debug().
		Int("candidates", len(candidates)).
		Str("winner", report.Winner).
		Str("outcome", outcome).
		Msg("activation tick")
	return report, nil
}

// eligible returns enabled schedules active at now, best first: highest
// priority, then most recently modified, then id for a stable order.
func eligible(all []model.Schedule, now time.Time) []model.Schedule {
	var out []model.Schedule
	for _, sc := range all {
		if sc.Enabled && schedule.ActiveAt(sc, now) {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.Metadata.UpdatedAt.Equal(b.Metadata.UpdatedAt) {
			return a.Metadata.UpdatedAt.After(b.Metadata.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// spentOnce reports whether a once-only schedule has played in a window
// occurrence that is now over. Runs older than the last edit do not count,
// so re-enabling a completed schedule lets it run again.
func spentOnce(sc model.Schedule, now time.Time) bool {
	if !sc.Enabled || !sc.Window.OnceOnly || sc.Terminated() {
		return false
	}
	last := sc.Metadata.LastRun
	if last == nil || last.Before(sc.Metadata.UpdatedAt) {
		return false
	}
	return !schedule.ActiveAt(sc, now) || schedule.WindowKey(sc, *last) != schedule.WindowKey(sc, now)
}

// pickWinner walks candidates in order and returns the first whose playlist
// resolves. The schedule already playing needs no lookup.
func (a *Activator) pickWinner(ctx context.Context, candidates []model.Schedule, state model.ActivationState, now time.Time, report *TickReport) *model.Schedule {
	for i := range candidates {
		c := &candidates[i]
		if c.ID == state.ActiveID && state.ActiveWindow == schedule.WindowKey(*c, now) {
			return c
		}
		if a.playlists == nil {
			return c
		}
		_, err := a.playlists.GetPlaylist(ctx, c.Playlist)
		if err == nil {
			return c
		}
		if errors.Is(err, db.ErrPlaylistNotFound) {
			log.Warn().Str("schedule_id", c.ID).Str("playlist", c.Playlist).Msg("schedule references a missing playlist, skipping")
		} else {
			log.Error().Err(err).Str("schedule_id", c.ID).Str("playlist", c.Playlist).Msg("playlist lookup failed, skipping")
			report.fail(err)
		}
		report.Skipped = append(report.Skipped, c.ID)
	}
	return nil
}

// stillActive reports whether the persisted active schedule is a candidate
// in the same window occurrence it was activated in.
func stillActive(state model.ActivationState, candidates []model.Schedule, now time.Time) bool {
	for _, c := range candidates {
		if c.ID == state.ActiveID {
			return state.ActiveWindow == schedule.WindowKey(c, now)
		}
	}
	return false
}

func (a *Activator) activate(ctx context.Context, winner model.Schedule) error {
	if err := a.player.LoadAndPlay(ctx, winner.Playlist); err != nil {
		perr := &schedule.PlaybackError{Action: "load", ScheduleID: winner.ID, Err: err}
		log.Error().Err(perr).Str("schedule_id", winner.ID).Str("playlist", winner.Playlist).Msg("failed to start playlist, will retry next tick")
		metrics.RecordPlayerError("load")
		return perr
	}
	log.Info().Str("schedule_id", winner.ID).Str("playlist", winner.Playlist).Msg("schedule activated")
	return nil
}

// close runs the post-actions of the schedule whose window ended. The live
// schedule's actions win over the ones captured at activation.
func (a *Activator) close(ctx context.Context, state model.ActivationState, all []model.Schedule, m *mutation, report *TickReport) {
	actions := state.ActivePostActions
	onceOnly := state.ActiveOnceOnly
	if idx := indexOf(all, state.ActiveID); idx >= 0 {
		actions = all[idx].PostActions
		onceOnly = all[idx].Window.OnceOnly
	}
	report.Closed = state.ActiveID

	run := func(name string, fn func(context.Context) error) {
		err := fn(ctx)
		metrics.RecordPostAction(name, err)
		if err != nil {
			perr := &schedule.PlaybackError{Action: name, ScheduleID: state.ActiveID, Err: err}
			log.Error().Err(perr).Str("schedule_id", state.ActiveID).Msg("post-action failed")
			metrics.RecordPlayerError(name)
			report.fail(perr)
			return
		}
		report.PostActions = append(report.PostActions, name)
	}

	if actions.TakeScreenshot {
		run("take_screenshot", a.player.CaptureScreenshot)
	}
	if actions.StopPlayback {
		run("stop_playback", a.player.Stop)
	}
	if actions.RevertDefault {
		run("revert_default", a.player.RevertToDefault)
	}

	if onceOnly {
		m.terminate[state.ActiveID] = true
		report.Terminated = append(report.Terminated, state.ActiveID)
		log.Info().Str("schedule_id", state.ActiveID).Msg("once-only schedule completed")
	}
	log.Info().Str("schedule_id", state.ActiveID).Str("window", state.ActiveWindow).Msg("schedule window closed")
}

// mutation collects the store changes of one tick so they are written in a
// single read-modify-write.
type mutation struct {
	now       time.Time
	ran       map[string]bool
	terminate map[string]bool
}

func newMutation(now time.Time) *mutation {
	return &mutation{now: now, ran: map[string]bool{}, terminate: map[string]bool{}}
}

// stale reports whether the cached next run has been passed and a
// recomputation would change it.
func (m *mutation) stale(sc model.Schedule) bool {
	if !sc.Enabled || sc.Terminated() {
		return false
	}
	next := schedule.NextRun(sc, m.now)
	cached := sc.Metadata.NextRun
	if cached == nil {
		return !next.IsZero()
	}
	return m.now.After(*cached) && !next.Equal(*cached)
}

func (m *mutation) refreshed(list []model.Schedule) int {
	n := 0
	for _, sc := range list {
		if m.stale(sc) {
			n++
		}
	}
	return n
}

// apply mutates list in place and reports whether anything changed.
func (m *mutation) apply(list []model.Schedule) bool {
	changed := false
	for i := range list {
		sc := &list[i]
		if m.ran[sc.ID] {
			t := m.now
			sc.Metadata.LastRun = &t
			sc.Metadata.RunCount++
			changed = true
		}
		if m.terminate[sc.ID] && !sc.Terminated() {
			t := m.now
			sc.Enabled = false
			sc.Metadata.TerminatedAt = &t
			sc.Metadata.NextRun = nil
			changed = true
			continue
		}
		if m.stale(*sc) {
			refreshNextRun(sc, m.now)
			changed = true
		}
	}
	return changed
}
