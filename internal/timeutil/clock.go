// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by the given duration.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// StepClock replays a scripted sequence of per-measurement costs. Every call
// to Since first advances the clock by the next queued step, so a timed loop
// of the form start := Now(); work(); Since(start) observes exactly the
// scripted durations in order. Once the script is exhausted the last step
// repeats.
type StepClock struct {
	mu    sync.Mutex
	now   time.Time
	steps []time.Duration
	last  time.Duration
	calls int
}

// NewStepClock creates a StepClock starting at start.
func NewStepClock(start time.Time, steps ...time.Duration) *StepClock {
	return &StepClock{now: start, steps: steps}
}

// Now returns the current scripted time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since advances by the next step and returns the time elapsed since t.
func (c *StepClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.last
	if c.calls < len(c.steps) {
		step = c.steps[c.calls]
		c.last = step
	}
	c.calls++
	c.now = c.now.Add(step)
	return c.now.Sub(t)
}

// Calls returns how many measurements have been taken.
func (c *StepClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
