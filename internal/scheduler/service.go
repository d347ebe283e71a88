package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// IDPrefix marks schedule identifiers.
const IDPrefix = "sched_"

// DefaultAuthor is recorded as created_by when no user is known.
const DefaultAuthor = "admin"

// Service is the only entry point the API uses to read and mutate schedules.
// Every mutation is one read-modify-write on the store.
type Service struct {
	store     db.ScheduleStore
	validator *schedule.Validator
	clock     schedule.Clock
	newID     func() string
}

func NewService(store db.ScheduleStore, playlists schedule.PlaylistGetter, clock schedule.Clock) *Service {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &Service{
		store:     store,
		validator: schedule.NewValidator(playlists),
		clock:     clock,
		newID:     func() string { return IDPrefix + uuid.NewString() },
	}
}

// List returns schedules ordered by next run, unscheduled ones last.
// A non-nil enabled filters on the enabled flag.
func (s *Service) List(ctx context.Context, enabled *bool) ([]model.Schedule, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Schedule, 0, len(all))
	for _, sc := range all {
		if enabled != nil && sc.Enabled != *enabled {
			continue
		}
		out = append(out, sc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Metadata.NextRun, out[j].Metadata.NextRun
		switch {
		case a == nil && b == nil:
			return out[i].Name < out[j].Name
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Schedule, error) {
	all, err := s.store.Load(ctx)
	if err != nil {
		return model.Schedule{}, err
	}
	idx := indexOf(all, id)
	if idx < 0 {
		return model.Schedule{}, &schedule.NotFoundError{ID: id}
	}
	return all[idx], nil
}

// Create validates the draft, rejects it on conflicts unless it asks to
// ignore them, and stores it with a fresh id and next run.
func (s *Service) Create(ctx context.Context, d schedule.Draft) (model.Schedule, error) {
	candidate, err := s.validator.Validate(ctx, d)
	if err != nil {
		return model.Schedule{}, err
	}

	var created model.Schedule
	err = s.store.Update(ctx, func(current []model.Schedule) ([]model.Schedule, error) {
		if err := checkConflicts(candidate, current, ""); err != nil {
			return nil, err
		}

		now := s.clock.Now()
		candidate.ID = s.newID()
		candidate.Metadata = model.Metadata{CreatedAt: now, CreatedBy: d.CreatedBy, UpdatedAt: now}
		if candidate.Metadata.CreatedBy == "" {
			candidate.Metadata.CreatedBy = DefaultAuthor
		}
		pinOnce(&candidate, now)
		refreshNextRun(&candidate, now)

		created = candidate
		return append(current, candidate), nil
	})
	if err != nil {
		return model.Schedule{}, err
	}

	log.Info().Str("schedule_id", created.ID).Str("playlist", created.Playlist).Msg("schedule created")
	return created, nil
}

// Update replaces the editable fields of a schedule. Run history and
// creation time are kept; fields the draft leaves out keep their values.
// The draft is merged onto the stored schedule inside the write, so a
// concurrent toggle or termination is never overwritten.
func (s *Service) Update(ctx context.Context, id string, d schedule.Draft) (model.Schedule, error) {
	prev, err := s.Get(ctx, id)
	if err != nil {
		return model.Schedule{}, err
	}
	// playlist lookup happens here, outside the writer lock
	if _, err := s.validator.ValidateUpdate(ctx, d, prev); err != nil {
		return model.Schedule{}, err
	}

	var updated model.Schedule
	err = s.store.Update(ctx, func(current []model.Schedule) ([]model.Schedule, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, &schedule.NotFoundError{ID: id}
		}
		candidate, err := s.validator.Merge(d, current[idx])
		if err != nil {
			return nil, err
		}
		if err := checkConflicts(candidate, current, id); err != nil {
			return nil, err
		}

		now := s.clock.Now()
		candidate.ID = id
		candidate.Metadata.UpdatedAt = now
		if d.Enabled != nil && *d.Enabled {
			candidate.Metadata.TerminatedAt = nil
		}
		pinOnce(&candidate, now)
		refreshNextRun(&candidate, now)

		current[idx] = candidate
		updated = candidate
		return current, nil
	})
	if err != nil {
		return model.Schedule{}, err
	}

	log.Info().Str("schedule_id", id).Msg("schedule updated")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Update(ctx, func(current []model.Schedule) ([]model.Schedule, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, &schedule.NotFoundError{ID: id}
		}
		return append(current[:idx], current[idx+1:]...), nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("schedule_id", id).Msg("schedule deleted")
	return nil
}

// Toggle flips enabled in place. Re-enabling clears a completed once-only
// run and recomputes the next run so the schedule can resume.
func (s *Service) Toggle(ctx context.Context, id string) (model.Schedule, error) {
	var toggled model.Schedule
	err := s.store.Update(ctx, func(current []model.Schedule) ([]model.Schedule, error) {
		idx := indexOf(current, id)
		if idx < 0 {
			return nil, &schedule.NotFoundError{ID: id}
		}

		now := s.clock.Now()
		sc := &current[idx]
		sc.Enabled = !sc.Enabled
		sc.Metadata.UpdatedAt = now
		if sc.Enabled {
			sc.Metadata.TerminatedAt = nil
			refreshNextRun(sc, now)
		}
		toggled = *sc
		return current, nil
	})
	if err != nil {
		return model.Schedule{}, err
	}

	log.Info().Str("schedule_id", id).Bool("enabled", toggled.Enabled).Msg("schedule toggled")
	return toggled, nil
}

// CheckConflicts validates a draft and reports what it would conflict with,
// without storing anything.
func (s *Service) CheckConflicts(ctx context.Context, d schedule.Draft, excludeID string) ([]schedule.Conflict, error) {
	candidate, err := s.validator.Validate(ctx, d)
	if err != nil {
		return nil, err
	}
	current, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	conflicts := schedule.DetectConflicts(candidate, current, excludeID)
	if conflicts == nil {
		conflicts = []schedule.Conflict{}
	}
	return conflicts, nil
}

func checkConflicts(candidate model.Schedule, current []model.Schedule, excludeID string) error {
	// disabled schedules never run, so they cannot collide
	if !candidate.Enabled || candidate.ConflictBehavior == model.ConflictIgnore {
		return nil
	}
	if conflicts := schedule.DetectConflicts(candidate, current, excludeID); len(conflicts) > 0 {
		return &schedule.ConflictError{Conflicts: conflicts}
	}
	return nil
}

// pinOnce fixes an undated one-shot to the day of its first run so later
// recomputations do not keep sliding it forward.
func pinOnce(sc *model.Schedule, now time.Time) {
	rec := &sc.Window.Recurrence
	if rec.Type != model.RecurOnce {
		return
	}
	if _, ok := rec.OnceDate(); ok {
		return
	}
	d := model.DateOf(schedule.NextRun(*sc, now))
	rec.Date = &d
}

func refreshNextRun(sc *model.Schedule, now time.Time) {
	if sc.Terminated() {
		sc.Metadata.NextRun = nil
		return
	}
	next := schedule.NextRun(*sc, now)
	if next.IsZero() {
		sc.Metadata.NextRun = nil
		return
	}
	sc.Metadata.NextRun = &next
}

func indexOf(all []model.Schedule, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}
