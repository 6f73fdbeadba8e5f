package tui

import (
	"time"

	"github.com/bassamadnan/tdraft/config"
	"github.com/bassamadnan/tdraft/poller"
	tea "github.com/charmbracelet/bubbletea"
)

// waitForEventCmd listens on the event channel and sends an EventMsg when the
// loop reports progress. It is re-queued by Update after every event.
func waitForEventCmd(events <-chan poller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return LoopStoppedMsg{}
		}
		return EventMsg(ev)
	}
}

// statusTickCmd creates a ticker for updating the status bar periodically.
func statusTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StatusTickMsg{Time: t}
	})
}

// ignoreSenderCmd persists sender to the skip filters. Later cycles leave
// that sender's messages without a draft.
func ignoreSenderCmd(m *config.Manager, sender string) tea.Cmd {
	return func() tea.Msg {
		return filterSavedMsg{Sender: sender, Err: m.AddIgnoreSender(sender)}
	}
}
