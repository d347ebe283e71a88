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
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// monday0700 is Monday 2025-01-06 07:00 UTC.
var monday0700 = time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)

type playlistSet map[string]bool

func (p playlistSet) GetPlaylist(_ context.Context, name string) (*model.Playlist, error) {
	if !p[name] {
		return nil, db.ErrPlaylistNotFound
	}
	return &model.Playlist{Name: name}, nil
}

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T, now time.Time) (*Service, *db.MemoryScheduleStore, *schedule.MockClock) {
	t.Helper()
	store := db.NewMemoryScheduleStore()
	clock := schedule.NewMockClock(now)
	svc := NewService(store, playlistSet{"default-loop": true, "special": true}, clock)
	n := 0
	svc.newID = func() string {
		n++
		return IDPrefix + string(rune('a'+n-1))
	}
	return svc, store, clock
}

func dailyDraft() schedule.Draft {
	return schedule.Draft{
		Name:           "A",
		Playlist:       "default-loop",
		StartTime:      "08:00",
		EndTime:        "12:00",
		RecurrenceType: "daily",
	}
}

func mondayDraft() schedule.Draft {
	return schedule.Draft{
		Name:           "B",
		Playlist:       "special",
		Priority:       ptr(int(model.PriorityHigh)),
		StartTime:      "09:00",
		EndTime:        "11:00",
		RecurrenceType: "weekly",
		Days:           []int{1},
	}
}

// TestService_Create checks defaults, id assignment and next run.
func TestService_Create(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	ctx := context.Background()

	created, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	assert.Equal(t, "sched_a", created.ID)
	assert.True(t, created.Enabled)
	assert.Equal(t, model.PriorityNormal, created.Priority)
	assert.Equal(t, model.ConflictPriority, created.ConflictBehavior)
	assert.True(t, created.PostActions.RevertDefault)
	assert.Equal(t, monday0700, created.Metadata.CreatedAt)
	assert.Equal(t, DefaultAuthor, created.Metadata.CreatedBy)
	require.NotNil(t, created.Metadata.NextRun)
	assert.Equal(t, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC), *created.Metadata.NextRun)
	assert.Equal(t, 0, created.Metadata.RunCount)

	all, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestService_CreateRejectsInvalid checks nothing is stored on validation failure.
func TestService_CreateRejectsInvalid(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	d := dailyDraft()
	d.Playlist = "missing"

	_, err := svc.Create(context.Background(), d)
	var verr *schedule.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, `playlist "missing" does not exist`)
	assert.Equal(t, 0, store.Saves())
}

// TestService_CreateConflict checks an overlapping schedule is refused
// unless it asks to ignore conflicts.
func TestService_CreateConflict(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	ctx := context.Background()

	_, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	_, err = svc.Create(ctx, mondayDraft())
	var cerr *schedule.ConflictError
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Conflicts, 1)
	assert.Equal(t, "sched_a", cerr.Conflicts[0].ScheduleID)
	assert.Equal(t, "08:00-12:00", cerr.Conflicts[0].OverlapWindow)

	all, _ := store.Load(ctx)
	assert.Len(t, all, 1)

	d := mondayDraft()
	d.ConflictBehavior = "ignore"
	b, err := svc.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictIgnore, b.ConflictBehavior)
}

// TestService_CreateDisabledSkipsConflicts checks disabled drafts never collide.
func TestService_CreateDisabledSkipsConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)
	ctx := context.Background()

	_, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	d := mondayDraft()
	d.Enabled = ptr(false)
	_, err = svc.Create(ctx, d)
	assert.NoError(t, err)
}

// TestService_CreatePinsOnce checks an undated one-shot gets the date of its first run.
func TestService_CreatePinsOnce(t *testing.T) {
	svc, _, _ := newTestService(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))

	created, err := svc.Create(context.Background(), schedule.Draft{
		Name:      "one-off",
		Playlist:  "special",
		StartTime: "09:00",
		EndTime:   "10:00",
	})
	require.NoError(t, err)

	require.NotNil(t, created.Window.Recurrence.Date)
	assert.Equal(t, "2025-01-07", created.Window.Recurrence.Date.String())
	require.NotNil(t, created.Metadata.NextRun)
	assert.Equal(t, time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC), *created.Metadata.NextRun)
}

// TestService_List checks ordering by next run and the enabled filter.
func TestService_List(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)
	ctx := context.Background()

	_, err := svc.Create(ctx, schedule.Draft{
		Name: "late", Playlist: "special", StartTime: "18:00", EndTime: "19:00", RecurrenceType: "daily",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, schedule.Draft{
		Name: "early", Playlist: "special", StartTime: "08:00", EndTime: "09:00", RecurrenceType: "daily",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, schedule.Draft{
		Name: "off", Playlist: "special", StartTime: "12:00", EndTime: "13:00", RecurrenceType: "daily", Enabled: ptr(false),
	})
	require.NoError(t, err)

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	names := []string{}
	for _, sc := range all {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"early", "off", "late"}, names)

	enabled, err := svc.List(ctx, ptr(true))
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	disabled, err := svc.List(ctx, ptr(false))
	require.NoError(t, err)
	require.Len(t, disabled, 1)
	assert.Equal(t, "off", disabled[0].Name)
}

// TestService_GetNotFound checks unknown ids.
func TestService_GetNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)

	_, err := svc.Get(context.Background(), "sched_nope")
	var nf *schedule.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

// TestService_Update checks run history survives and conflicts exclude self.
func TestService_Update(t *testing.T) {
	svc, store, clock := newTestService(t, monday0700)
	ctx := context.Background()

	a, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, func(list []model.Schedule) ([]model.Schedule, error) {
		list[0].Metadata.RunCount = 4
		return list, nil
	}))

	clock.Advance(time.Hour)
	d := dailyDraft()
	d.EndTime = "13:00"
	updated, err := svc.Update(ctx, a.ID, d)
	require.NoError(t, err)

	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, "08:00-13:00", updated.Window.String())
	assert.Equal(t, 4, updated.Metadata.RunCount)
	assert.Equal(t, a.Metadata.CreatedAt, updated.Metadata.CreatedAt)
	assert.Equal(t, a.Metadata.CreatedBy, updated.Metadata.CreatedBy)
	assert.Equal(t, monday0700.Add(time.Hour), updated.Metadata.UpdatedAt)
}

// TestService_UpdateKeepsUnspecified checks omitted optional fields keep their value.
func TestService_UpdateKeepsUnspecified(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)
	ctx := context.Background()

	d := mondayDraft()
	d.PostActions = &model.PostActions{TakeScreenshot: true}
	b, err := svc.Create(ctx, d)
	require.NoError(t, err)

	d = mondayDraft()
	d.Priority = nil
	d.PostActions = nil
	updated, err := svc.Update(ctx, b.ID, d)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, updated.Priority)
	assert.Equal(t, model.PostActions{TakeScreenshot: true}, updated.PostActions)
}

// racingStore commits another write right after the first snapshot is read.
type racingStore struct {
	*db.MemoryScheduleStore
	once  sync.Once
	write func()
}

func (s *racingStore) Load(ctx context.Context) ([]model.Schedule, error) {
	all, err := s.MemoryScheduleStore.Load(ctx)
	s.once.Do(s.write)
	return all, err
}

// TestService_UpdateKeepsConcurrentToggle checks a toggle committed while an
// update is being prepared survives the update.
func TestService_UpdateKeepsConcurrentToggle(t *testing.T) {
	svc, store, clock := newTestService(t, monday0700)
	ctx := context.Background()

	a, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	other := NewService(store, playlistSet{"default-loop": true}, clock)
	var toggleErr error
	svc.store = &racingStore{MemoryScheduleStore: store, write: func() {
		_, toggleErr = other.Toggle(ctx, a.ID)
	}}

	d := dailyDraft()
	d.Name = "renamed"
	updated, err := svc.Update(ctx, a.ID, d)
	require.NoError(t, err)
	require.NoError(t, toggleErr)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Enabled)

	all, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "renamed", all[0].Name)
	assert.False(t, all[0].Enabled)
}

// TestService_CreateRecordsAuthor checks created_by is set on create and kept on update.
func TestService_CreateRecordsAuthor(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)
	ctx := context.Background()

	d := dailyDraft()
	d.CreatedBy = "operator"
	a, err := svc.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "operator", a.Metadata.CreatedBy)

	d = dailyDraft()
	d.Name = "renamed"
	updated, err := svc.Update(ctx, a.ID, d)
	require.NoError(t, err)
	assert.Equal(t, "operator", updated.Metadata.CreatedBy)
}

// TestService_UpdateConflict checks an update moving into another window is refused.
func TestService_UpdateConflict(t *testing.T) {
	svc, _, _ := newTestService(t, monday0700)
	ctx := context.Background()

	_, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)
	evening, err := svc.Create(ctx, schedule.Draft{
		Name: "evening", Playlist: "special", StartTime: "18:00", EndTime: "20:00", RecurrenceType: "daily",
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, evening.ID, schedule.Draft{
		Name: "evening", Playlist: "special", StartTime: "11:00", EndTime: "20:00", RecurrenceType: "daily",
	})
	var cerr *schedule.ConflictError
	assert.ErrorAs(t, err, &cerr)
}

// TestService_Delete checks removal and NotFound on repeat.
func TestService_Delete(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	ctx := context.Background()

	a, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))
	all, _ := store.Load(ctx)
	assert.Empty(t, all)

	var nf *schedule.NotFoundError
	assert.ErrorAs(t, svc.Delete(ctx, a.ID), &nf)
}

// TestService_Toggle checks enabled flips and re-enabling clears termination.
func TestService_Toggle(t *testing.T) {
	svc, store, clock := newTestService(t, monday0700)
	ctx := context.Background()

	a, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	off, err := svc.Toggle(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, off.Enabled)
	assert.Equal(t, monday0700.Add(time.Minute), off.Metadata.UpdatedAt)

	// simulate a completed once-only run
	require.NoError(t, store.Update(ctx, func(list []model.Schedule) ([]model.Schedule, error) {
		ts := monday0700
		list[0].Metadata.TerminatedAt = &ts
		list[0].Metadata.NextRun = nil
		return list, nil
	}))

	on, err := svc.Toggle(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, on.Enabled)
	assert.False(t, on.Terminated())
	require.NotNil(t, on.Metadata.NextRun)
}

// TestService_CheckConflicts checks the dry-run conflict report.
func TestService_CheckConflicts(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	ctx := context.Background()

	a, err := svc.Create(ctx, dailyDraft())
	require.NoError(t, err)
	saves := store.Saves()

	conflicts, err := svc.CheckConflicts(ctx, mondayDraft(), "")
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = svc.CheckConflicts(ctx, dailyDraft(), a.ID)
	require.NoError(t, err)
	assert.NotNil(t, conflicts)
	assert.Empty(t, conflicts)
	assert.Equal(t, saves, store.Saves())
}

// TestService_StoreFailure checks persistence errors surface unchanged.
func TestService_StoreFailure(t *testing.T) {
	svc, store, _ := newTestService(t, monday0700)
	boom := &schedule.PersistenceError{Op: "decode", Err: errors.New("unexpected EOF")}
	store.LoadErr = boom

	_, err := svc.List(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	_, err = svc.Create(context.Background(), dailyDraft())
	assert.ErrorIs(t, err, boom)
}
