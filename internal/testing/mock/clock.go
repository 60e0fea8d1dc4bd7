package mock

import (
	"sync"
	"time"
)

// Clock is the time source injected into the sync components and the run
// lifecycle through their WithClock/Now hooks.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a Clock that only moves when told to. Tests use it to pin
// cycle names and dates and to produce exact scenario and step durations.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock creates a new mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Advance moves the clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Ticking returns a Now function that advances the clock by step after
// every reading, so consecutive hook calls see increasing times.
func (m *MockClock) Ticking(step time.Duration) func() time.Time {
	return func() time.Time {
		m.mu.Lock()
		defer m.mu.Unlock()
		now := m.current
		m.current = m.current.Add(step)
		return now
	}
}
