package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/nkiryanov/edps/internal/clock"
)

// FakeClock is moved manually with Advance
// Due callbacks run synchronously in the goroutine that calls Advance
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*FakeTimer
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &FakeTimer{clock: c, At: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires every timer that became due, earliest first
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due, rest []*FakeTimer
	for _, t := range c.timers {
		if !t.At.After(c.now) {
			t.fired = true
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })
	for _, t := range due {
		t.f()
	}
}

// Pending returns timers neither fired nor stopped
func (c *FakeClock) Pending() []*FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]*FakeTimer, len(c.timers))
	copy(pending, c.timers)
	return pending
}

type FakeTimer struct {
	clock *FakeClock
	f     func()
	fired bool

	// Time the callback is due
	At time.Time
}

func (t *FakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.fired {
		return false
	}
	for i, pending := range c.timers {
		if pending == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}
