package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manually driven time source. Lifecycle code derives session and
// appointment states from "now", so tests move this clock instead of
// sleeping.
type Clock struct {
	mu sync.Mutex
	at time.Time
}

// NewClock returns a clock standing at start. A zero start means the shared
// ReferenceTime, which keeps fixtures and clocks on the same calendar.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{at: start}
}

// Now reports the instant the clock currently stands at.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// NowFunc adapts the clock to the func() time.Time the services take. A nil
// clock degrades to the real time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to an absolute instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.at = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns where it landed.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.at = c.at.Add(d)
	updated := c.at
	c.mu.Unlock()
	return updated
}

// Current reads the clock without implying any progression. Same value as
// Now.
func (c *Clock) Current() time.Time {
	return c.Now()
}
