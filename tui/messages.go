package tui

import (
	"time"

	"github.com/bassamadnan/tdraft/poller"
)

// A message carrying one progress event from the poll loop.
type EventMsg poller.Event

// A message for timed status updates.
type StatusTickMsg struct{ Time time.Time }

// Message to signal that the loop has stopped. Err is the loop's return value,
// nil when the event channel was simply closed.
type LoopStoppedMsg struct{ Err error }

// Result of adding a sender to the skip filters.
type filterSavedMsg struct {
	Sender string
	Err    error
}

// Message to clear a temporary status message after a timeout.
type clearTempStatusMsg struct{}
