package tui

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassamadnan/tdraft/config"
	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/bassamadnan/tdraft/poller"
	"github.com/bassamadnan/tdraft/reply"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func drafted(id, from, subject, text string, src reply.Source) EventMsg {
	return EventMsg(poller.Event{
		Kind:      poller.EventDrafted,
		CycleID:   "cycle-1",
		Time:      time.Now(),
		MessageID: id,
		ThreadID:  "t-" + id,
		From:      from,
		Subject:   subject,
		Reply:     reply.Result{Text: text, Source: src},
		Draft:     mailbox.DraftResult{ID: "d-" + id},
	})
}

func sizedModel(t *testing.T, filters *config.Manager) Model {
	t.Helper()
	m := NewInitialModel(filters, make(chan poller.Event), 10*time.Minute)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestModelStaysLoadingUntilFirstEvent(t *testing.T) {
	m := sizedModel(t, nil)
	assert.Equal(t, viewLoading, m.currentView)
	assert.Contains(t, m.View(), "Waiting for the first cycle")

	m, cmd := update(t, m, EventMsg(poller.Event{Kind: poller.EventCycleDone, Time: time.Now()}))
	assert.Equal(t, viewDashboard, m.currentView)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.statusBarText, "0 drafted")
	assert.Contains(t, m.statusBarText, "Poll: 10m0s")
}

func TestModelListsNewestFirst(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, drafted("1", "Alice <alice@example.com>", "Lunch plans", "Sounds good.", reply.SourceGenerated))
	m, _ = update(t, m, drafted("2", "Bob <bob@example.com>", "Invoice", "Thank you for your email.", reply.SourceFallback))

	require.Len(t, m.entries, 2)
	assert.Equal(t, "2", m.entries[0].MessageID)
	assert.Equal(t, "1", m.entries[1].MessageID)
	// Selection stays on the entry that was selected before.
	assert.Equal(t, 1, m.selectedIdx)

	view := m.View()
	assert.Contains(t, view, "Lunch plans")
	assert.Contains(t, view, "Invoice")
	assert.Contains(t, view, "[generated]")
	assert.Contains(t, view, "[fallback]")
	assert.Contains(t, view, "Sounds good.")
}

func TestModelNavigationAndFocus(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, drafted("1", "alice@example.com", "First", "one", reply.SourceGenerated))
	m, _ = update(t, m, drafted("2", "bob@example.com", "Second", "two", reply.SourceGenerated))

	m, _ = update(t, m, key("k"))
	assert.Equal(t, 0, m.selectedIdx)
	m, _ = update(t, m, key("k"))
	assert.Equal(t, 0, m.selectedIdx)
	m, _ = update(t, m, key("j"))
	assert.Equal(t, 1, m.selectedIdx)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, viewFocusedEntry, m.currentView)
	view := m.View()
	assert.Contains(t, view, "Full View: First")
	assert.Contains(t, view, "cycle-1")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, viewDashboard, m.currentView)
}

func TestModelQuit(t *testing.T) {
	m := sizedModel(t, nil)
	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModelShowsSkippedAndFailed(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, EventMsg(poller.Event{Kind: poller.EventSkipped, MessageID: "s", From: "news@example.com", Subject: "Weekly"}))
	assert.Contains(t, m.View(), "Matched a skip filter")

	m, _ = update(t, m, EventMsg(poller.Event{Kind: poller.EventFailed, MessageID: "f", Subject: "Broken", Err: errors.New("boom")}))
	m, _ = update(t, m, key("k"))
	view := m.View()
	assert.Contains(t, view, "[failed]")
	assert.Contains(t, view, "Drafting failed: boom")
}

func TestModelCycleErrorSetsErrorStatus(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, EventMsg(poller.Event{Kind: poller.EventCycleDone, Time: time.Now()}))
	m, _ = update(t, m, EventMsg(poller.Event{Kind: poller.EventCycleDone, Time: time.Now(), Err: errors.New("list failed")}))

	assert.True(t, m.statusIsError)
	assert.Contains(t, m.statusBarText, "list failed")
	assert.Equal(t, 2, m.cycleCount)
}

func TestModelLoopStopped(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, LoopStoppedMsg{})
	assert.True(t, m.isLoopStopped)
	assert.Equal(t, viewDashboard, m.currentView)
}

func TestModelLoopFailureQuits(t *testing.T) {
	m := sizedModel(t, nil)
	m, _ = update(t, m, drafted("1", "a@example.com", "Hi", "Thanks", reply.SourceGenerated))

	m, cmd := update(t, m, LoopStoppedMsg{Err: errors.New("reading filters: permission denied")})
	assert.True(t, m.isLoopStopped)
	assert.True(t, m.statusIsError)
	assert.Contains(t, m.statusBarText, "permission denied")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModelLoopCancelledKeepsDashboard(t *testing.T) {
	for name, err := range map[string]error{"nil": nil, "cancelled": context.Canceled} {
		t.Run(name, func(t *testing.T) {
			m := sizedModel(t, nil)
			m, cmd := update(t, m, LoopStoppedMsg{Err: err})
			assert.True(t, m.isLoopStopped)
			assert.False(t, m.statusIsError)
			if cmd != nil {
				assert.NotEqual(t, tea.QuitMsg{}, cmd())
			}
		})
	}
}

func TestModelIgnoreSender(t *testing.T) {
	filters, err := config.NewManager(filepath.Join(t.TempDir(), "filters.json"))
	require.NoError(t, err)

	m := sizedModel(t, filters)
	m, _ = update(t, m, drafted("1", "promo@shop.example", "Sale", "Thanks", reply.SourceFallback))

	m, cmd := update(t, m, key("i"))
	require.NotNil(t, cmd)
	msg := cmd()
	saved, ok := msg.(filterSavedMsg)
	require.True(t, ok)
	require.NoError(t, saved.Err)
	assert.True(t, filters.ShouldSkip("promo@shop.example", "anything"))

	m, _ = update(t, m, saved)
	assert.True(t, m.statusIsTemp)
	assert.Contains(t, m.statusBarText, "Ignoring promo@shop.example")
}

func TestWaitForEventCmd(t *testing.T) {
	ch := make(chan poller.Event, 1)
	ch <- poller.Event{Kind: poller.EventDrafted, MessageID: "x"}

	msg := waitForEventCmd(ch)()
	ev, ok := msg.(EventMsg)
	require.True(t, ok)
	assert.Equal(t, "x", ev.MessageID)

	close(ch)
	assert.Equal(t, LoopStoppedMsg{}, waitForEventCmd(ch)())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "he...", truncate("hello world", 5))
	assert.Equal(t, "he", truncate("hello", 2))
	assert.Equal(t, "", truncate("hello", 0))
	assert.Equal(t, "", truncate("hello", -4))
}

func TestFormatEventTime(t *testing.T) {
	assert.Equal(t, "???", formatEventTime(time.Time{}))

	now := time.Now()
	assert.Equal(t, now.Local().Format("15:04"), formatEventTime(now))

	old := time.Date(2020, time.March, 7, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "Mar07", formatEventTime(old))
}

func TestSenderName(t *testing.T) {
	assert.Equal(t, "Alice Smith", senderName(`"Alice Smith" <alice@example.com>`))
	assert.Equal(t, "bob@example.com", senderName("bob@example.com"))
	assert.Equal(t, "(Unknown Sender)", senderName(""))
}
