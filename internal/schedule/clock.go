package schedule

import (
	"sync"
	"time"
)

// Clock defines an interface for getting the current time.
// This allows us to inject a fake time during unit tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// ZonedClock reports system time in a fixed location, so windows are
// evaluated in the display's timezone rather than the host's.
type ZonedClock struct {
	Loc *time.Location
}

func (z ZonedClock) Now() time.Time {
	if z.Loc == nil {
		return time.Now()
	}
	return time.Now().In(z.Loc)
}

// MockClock implements Clock for tests, e.g. "pretend it is Monday 09:30".
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
