package db

import (
	"context"
	"sync"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// MemoryScheduleStore is an in-process ScheduleStore used for tests and
// dry runs. Every read and write deep-copies, so callers never share state.
type MemoryScheduleStore struct {
	mu        sync.Mutex
	schedules []model.Schedule

	// LoadErr, when set, is returned by Load to simulate an unreadable document.
	LoadErr error
	saves   int
}

func NewMemoryScheduleStore(initial ...model.Schedule) *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: model.CloneSchedules(initial)}
}

func (m *MemoryScheduleStore) Load(ctx context.Context) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return model.CloneSchedules(m.schedules), nil
}

func (m *MemoryScheduleStore) Save(ctx context.Context, schedules []model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = model.CloneSchedules(schedules)
	m.saves++
	return nil
}

func (m *MemoryScheduleStore) Update(ctx context.Context, fn func([]model.Schedule) ([]model.Schedule, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return m.LoadErr
	}
	next, err := fn(model.CloneSchedules(m.schedules))
	if err != nil {
		return err
	}
	m.schedules = model.CloneSchedules(next)
	m.saves++
	return nil
}

// Saves reports how many writes reached the store.
func (m *MemoryScheduleStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
