package poller

import (
	"sync"
	"time"
)

// Clock schedules the wait between cycles.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ManualClock fires waits only when Advance is called. Tests use it to run
// many cycles without wall-clock delay.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waits   []time.Duration
	pending []manualTimer
	waitCh  chan struct{}
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, waitCh: make(chan struct{}, 64)}
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waits = append(c.waits, d)
	c.pending = append(c.pending, manualTimer{at: c.now.Add(d), ch: ch})
	select {
	case c.waitCh <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves the clock forward and fires every wait that has come due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.pending[:0]
	for _, t := range c.pending {
		if !t.at.After(c.now) {
			t.ch <- c.now
			continue
		}
		kept = append(kept, t)
	}
	c.pending = kept
}

// Waited returns a signal channel that receives once per After call.
func (c *ManualClock) Waited() <-chan struct{} { return c.waitCh }

// Waits returns the durations passed to After so far.
func (c *ManualClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
