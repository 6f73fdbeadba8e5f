package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bassamadnan/tdraft/config"
	"github.com/bassamadnan/tdraft/poller"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

type viewState int

const (
	viewLoading viewState = iota
	viewDashboard
	viewFocusedEntry
)

const (
	entryListItemHeight = 4
	minListPaneWidth    = 30
	minPreviewPaneWidth = 40
)

type Model struct {
	filters      *config.Manager
	events       <-chan poller.Event
	pollInterval time.Duration

	entries          []poller.Event
	selectedIdx      int
	viewportTopLine  int
	previewScrollPos int

	lastCycle  poller.Event
	cycleCount int

	currentView viewState

	width, height int
	statusBarText string
	statusIsError bool
	statusIsTemp  bool

	isLoopStopped bool
}

// NewInitialModel builds the dashboard. filters may be nil, which disables
// the ignore-sender key.
func NewInitialModel(filters *config.Manager, events <-chan poller.Event, pollInterval time.Duration) Model {
	return Model{
		filters:       filters,
		events:        events,
		pollInterval:  pollInterval,
		currentView:   viewLoading,
		statusBarText: "Initializing, waiting for the first cycle...",
		entries:       []poller.Event{},
	}
}

func (m Model) Init() tea.Cmd {
	log.Debug().Msg("TUI model init")
	return tea.Batch(
		waitForEventCmd(m.events),
		statusTickCmd(1*time.Second),
	)
}

func (m Model) getVisibleEntryListHeight() int {
	statusBarHeight := 1
	listTitleRenderedHeight := lipgloss.Height(EntryListTitleStyle.Render(" "))
	availableHeight := m.height - statusBarHeight - listTitleRenderedHeight
	if availableHeight < 0 {
		availableHeight = 0
	}
	return availableHeight
}

func (m Model) getNumItemsThatFitInList() int {
	numFit := m.getVisibleEntryListHeight() / entryListItemHeight
	if numFit < 0 {
		numFit = 0
	}
	return numFit
}

// getVisiblePreviewBodyHeight is the number of body lines left in the preview
// pane once the title and rendered headers are placed.
func (m Model) getVisiblePreviewBodyHeight(paneTotalHeight int, renderedHeaderHeight int) int {
	previewTitleHeight := lipgloss.Height(TitleStyle.Render(" "))
	availableHeight := paneTotalHeight - previewTitleHeight - renderedHeaderHeight - ContentBoxStyle.GetVerticalPadding()
	if availableHeight < 0 {
		availableHeight = 0
	}
	return availableHeight
}

func (m Model) selected() (poller.Event, bool) {
	if len(m.entries) == 0 || m.selectedIdx < 0 || m.selectedIdx >= len(m.entries) {
		return poller.Event{}, false
	}
	return m.entries[m.selectedIdx], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ensureSelectedVisible()
		if m.currentView == viewLoading && m.width > 0 {
			if m.cycleCount > 0 || len(m.entries) > 0 || m.isLoopStopped {
				m.currentView = viewDashboard
				m.setStandardStatus()
			} else {
				m.updateStatusBar("Waiting for the first cycle...")
			}
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.updateStatusBar("Quitting...")
			return m, tea.Quit
		}
		switch m.currentView {
		case viewDashboard:
			switch msg.String() {
			case "up", "k":
				if m.selectedIdx > 0 {
					m.selectedIdx--
					m.ensureSelectedVisible()
					m.previewScrollPos = 0
				}
			case "down", "j":
				if m.selectedIdx < len(m.entries)-1 {
					m.selectedIdx++
					m.ensureSelectedVisible()
					m.previewScrollPos = 0
				}
			case "enter":
				if _, ok := m.selected(); ok {
					m.currentView = viewFocusedEntry
					m.setStandardStatus()
				}
			case "K":
				if m.previewScrollPos > 0 {
					m.previewScrollPos--
				}
			case "J":
				if ev, ok := m.selected(); ok {
					bodyLines := strings.Split(entryBody(ev), "\n")
					if m.previewScrollPos < len(bodyLines)-1 {
						m.previewScrollPos++
					}
				}
			case "i":
				ev, ok := m.selected()
				if !ok || ev.From == "" {
					break
				}
				if m.filters == nil {
					m.showTemporaryStatus("No filter file configured", 3*time.Second, &cmds)
					break
				}
				cmds = append(cmds, ignoreSenderCmd(m.filters, ev.From))
			}
		case viewFocusedEntry:
			if msg.String() == "esc" {
				m.currentView = viewDashboard
				m.setStandardStatus()
			}
		}

	case EventMsg:
		ev := poller.Event(msg)
		if ev.Kind == poller.EventCycleDone {
			m.lastCycle = ev
			m.cycleCount++
			if ev.Err != nil {
				m.updateStatusError(fmt.Sprintf("Cycle failed: %v", ev.Err))
			} else if m.currentView != viewLoading {
				m.setStandardStatus()
			}
		} else {
			m.addEntry(ev)
			if m.currentView != viewLoading {
				m.showTemporaryStatus(fmt.Sprintf("%s: %s", ev.Kind, truncate(ev.Subject, 30)), 4*time.Second, &cmds)
			}
		}
		if m.currentView == viewLoading && m.width > 0 {
			m.currentView = viewDashboard
			m.setStandardStatus()
		}
		cmds = append(cmds, waitForEventCmd(m.events))

	case LoopStoppedMsg:
		m.isLoopStopped = true
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			// Fatal loop error, the process has to exit non-zero.
			log.Error().Err(msg.Err).Msg("Poll loop failed, closing dashboard")
			m.currentView = viewDashboard
			m.updateStatusError(fmt.Sprintf("Poll loop failed: %v", msg.Err))
			return m, tea.Quit
		}
		if m.currentView == viewLoading {
			m.currentView = viewDashboard
			m.updateStatusBar("Poll loop stopped. No new drafts will be created.")
		} else if !m.statusIsTemp {
			m.setStandardStatus()
		}
		log.Debug().Msg("TUI received loop stopped message")

	case filterSavedMsg:
		if msg.Err != nil {
			m.updateStatusError(fmt.Sprintf("Saving filter: %v", msg.Err))
			break
		}
		m.showTemporaryStatus(fmt.Sprintf("Ignoring %s", truncate(msg.Sender, 40)), 4*time.Second, &cmds)

	case StatusTickMsg:
		if !m.statusIsTemp && m.currentView != viewLoading {
			m.setStandardStatus()
		}
		cmds = append(cmds, statusTickCmd(1*time.Second))

	case clearTempStatusMsg:
		if m.statusIsTemp {
			m.statusIsTemp = false
			m.setStandardStatus()
		}
	}

	return m, tea.Batch(cmds...)
}

// addEntry puts ev at the top of the list, keeping the current selection on
// the same entry.
func (m *Model) addEntry(ev poller.Event) {
	hadSelection := len(m.entries) > 0
	m.entries = append([]poller.Event{ev}, m.entries...)
	if hadSelection {
		m.selectedIdx++
	} else {
		m.selectedIdx = 0
	}
	m.ensureSelectedVisible()
}

func (m *Model) showTemporaryStatus(text string, duration time.Duration, cmds *[]tea.Cmd) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = true
	*cmds = append(*cmds, tea.Tick(duration, func(t time.Time) tea.Msg {
		return clearTempStatusMsg{}
	}))
}

func (m *Model) updateStatusBar(text string) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = false
}

func (m *Model) updateStatusError(text string) {
	m.statusBarText = text
	m.statusIsError = true
	m.statusIsTemp = false
}

func (m *Model) setStandardStatus() {
	if m.statusIsTemp {
		return
	}

	loopStatus := "Watching"
	if m.isLoopStopped {
		loopStatus = "Loop Off"
	}

	lastCycle := "no cycle yet"
	if m.cycleCount > 0 {
		lastCycle = fmt.Sprintf("last cycle %s: %d drafted", m.lastCycle.Time.Local().Format("15:04:05"), m.lastCycle.Drafted)
		if m.lastCycle.Err != nil {
			lastCycle = fmt.Sprintf("last cycle %s: failed", m.lastCycle.Time.Local().Format("15:04:05"))
		}
	}

	statusMsg := fmt.Sprintf(" %s (Poll: %v) | %s | %d messages ",
		loopStatus, m.pollInterval, lastCycle, len(m.entries))

	keyHints := "[Q/Ctrl+C]:Quit"
	switch m.currentView {
	case viewDashboard:
		keyHints += " | [↑↓/jk]:Nav | [Enter]:Full | [KJ]:Scroll Preview | [i]:Ignore Sender"
	case viewFocusedEntry:
		keyHints += " | [Esc]:Back"
	}
	m.statusBarText = statusMsg + "| " + keyHints
	m.statusIsError = m.lastCycle.Err != nil
}

func (m *Model) ensureSelectedVisible() {
	if len(m.entries) == 0 {
		m.viewportTopLine = 0
		return
	}

	itemsThatFit := m.getNumItemsThatFitInList()
	if itemsThatFit <= 0 {
		m.viewportTopLine = m.selectedIdx
		return
	}

	if m.selectedIdx < m.viewportTopLine {
		m.viewportTopLine = m.selectedIdx
	} else if m.selectedIdx >= m.viewportTopLine+itemsThatFit {
		m.viewportTopLine = m.selectedIdx - itemsThatFit + 1
	}

	if m.viewportTopLine < 0 {
		m.viewportTopLine = 0
	}
	maxPossibleViewportTop := len(m.entries) - itemsThatFit
	if maxPossibleViewportTop < 0 {
		maxPossibleViewportTop = 0
	}
	if m.viewportTopLine > maxPossibleViewportTop {
		m.viewportTopLine = maxPossibleViewportTop
	}
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing terminal size..."
	}

	var mainUIView string
	statusBarHeight := 1
	contentHeight := m.height - statusBarHeight
	if contentHeight < 0 {
		contentHeight = 0
	}

	switch m.currentView {
	case viewLoading:
		mainUIView = lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, m.statusBarText)
	case viewDashboard:
		listWidth, previewWidth := m.paneWidths()
		mainUIView = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderEntryList(listWidth, contentHeight),
			m.renderPreviewPane(previewWidth, contentHeight),
		)
	case viewFocusedEntry:
		mainUIView = m.renderFocusedEntryView(m.width, contentHeight)
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, mainUIView, m.renderStatusBar()))
}

// paneWidths splits the screen between the list and the preview.
func (m Model) paneWidths() (int, int) {
	listWidth := int(float64(m.width) * 0.35)
	if listWidth < minListPaneWidth {
		listWidth = minListPaneWidth
	}
	if listWidth > m.width-minPreviewPaneWidth && m.width > minPreviewPaneWidth {
		listWidth = m.width - minPreviewPaneWidth
	}
	if listWidth < 0 {
		listWidth = 0
	}
	if listWidth > m.width {
		listWidth = m.width
	}
	previewWidth := m.width - listWidth

	if m.width < minListPaneWidth+minPreviewPaneWidth {
		if m.width < minListPaneWidth {
			listWidth = m.width
			previewWidth = 0
		} else {
			listWidth = minListPaneWidth
			previewWidth = m.width - listWidth
		}
	}
	return listWidth, previewWidth
}

func (m Model) renderEntryList(paneWidth, paneHeight int) string {
	title := EntryListTitleStyle.Render("Processed")
	listItemsContainerHeight := paneHeight - lipgloss.Height(title)
	if listItemsContainerHeight < 0 {
		listItemsContainerHeight = 0
	}

	// Leave room for item padding, the list's own padding and the box edges.
	itemTextContentWidth := paneWidth - EntryListStyle.GetPaddingRight() - EntryListItemStyle.GetPaddingLeft() - EntryListItemStyle.GetPaddingRight() - 2 - 2
	if itemTextContentWidth < 10 {
		itemTextContentWidth = 10
	}

	numItemsToDisplay := listItemsContainerHeight / entryListItemHeight

	startIdx := m.viewportTopLine
	if startIdx < 0 {
		startIdx = 0
	}
	if startIdx > len(m.entries) {
		startIdx = len(m.entries)
	}
	endIdx := startIdx + numItemsToDisplay
	if endIdx > len(m.entries) {
		endIdx = len(m.entries)
	}

	var items []string
	if paneWidth > 0 && paneHeight > 0 {
		for i := startIdx; i < endIdx; i++ {
			items = append(items, formatEntryListItem(m.entries[i], i == m.selectedIdx, itemTextContentWidth))
		}
	}

	fullListRender := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(items, "\n"))
	return EntryListStyle.Width(paneWidth).Height(paneHeight).Render(fullListRender)
}

func (m Model) renderHeaders(ev poller.Event, paneWidth int) string {
	label, badgeStyle := badge(ev)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("From:"), HeaderValStyle.Render(truncate(ev.From, paneWidth-10)))
	fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Subject:"), HeaderValStyle.Render(truncate(ev.Subject, paneWidth-12)))
	if ev.ThreadID != "" {
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Thread:"), HeaderValStyle.Render(ev.ThreadID))
	}
	if ev.Draft.ID != "" {
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Draft:"), HeaderValStyle.Render(ev.Draft.ID))
	}
	fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Reply:"), badgeStyle.Render(label))
	if ev.Kind == poller.EventDrafted && ev.Reply.Err != nil {
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Backend:"), HeaderValStyle.Render(truncate(ev.Reply.Err.Error(), paneWidth-12)))
	}
	dateStr := "N/A"
	if !ev.Time.IsZero() {
		dateStr = ev.Time.Local().Format(time.RFC1123)
	}
	fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("At:"), HeaderValStyle.Render(dateStr))
	b.WriteString("\n" + strings.Repeat("─", paneWidth/2))
	return b.String()
}

func (m Model) renderPreviewPane(paneWidth, paneHeight int) string {
	if paneWidth <= 0 || paneHeight <= 0 {
		return ""
	}

	titleHeight := lipgloss.Height(TitleStyle.Render(" "))
	maxContentHeight := paneHeight - titleHeight - ContentBoxStyle.GetVerticalPadding()
	if maxContentHeight < 0 {
		maxContentHeight = 0
	}

	var titleText, content string
	ev, ok := m.selected()
	if !ok {
		titleText = "Home"
		content = lipgloss.NewStyle().
			Width(paneWidth - ContentBoxStyle.GetHorizontalPadding()).
			MaxHeight(maxContentHeight).
			Padding(1).Render("\n[tdraft]\n\nNo messages processed yet.")
	} else {
		titleText = fmt.Sprintf("Reply: %s", truncate(ev.Subject, paneWidth-(TitleStyle.GetHorizontalPadding()+10)))

		headers := m.renderHeaders(ev, paneWidth)
		bodyDisplayHeight := m.getVisiblePreviewBodyHeight(paneHeight, lipgloss.Height(headers))

		bodyLines := strings.Split(entryBody(ev), "\n")
		startLine := m.previewScrollPos
		if startLine < 0 {
			startLine = 0
		}
		if bodyDisplayHeight > 0 && len(bodyLines) > bodyDisplayHeight && startLine > len(bodyLines)-bodyDisplayHeight {
			startLine = len(bodyLines) - bodyDisplayHeight
		} else if startLine >= len(bodyLines) {
			startLine = len(bodyLines) - 1
		}
		endLine := startLine + bodyDisplayHeight
		if endLine > len(bodyLines) {
			endLine = len(bodyLines)
		}

		visibleBody := ""
		if startLine < endLine {
			visibleBody = strings.Join(bodyLines[startLine:endLine], "\n")
		}

		content = lipgloss.NewStyle().
			Width(paneWidth - ContentBoxStyle.GetHorizontalPadding()).
			MaxHeight(maxContentHeight).
			Render(lipgloss.JoinVertical(lipgloss.Left, headers, BodyStyle.Render(visibleBody)))
	}

	return ContentBoxStyle.Width(paneWidth).Height(paneHeight).Render(
		lipgloss.JoinVertical(lipgloss.Top, TitleStyle.Render(titleText), content),
	)
}

func (m Model) renderFocusedEntryView(paneWidth, paneHeight int) string {
	if paneWidth <= 0 || paneHeight <= 0 {
		return ""
	}

	titleHeight := lipgloss.Height(TitleStyle.Render(" "))
	maxContentHeight := paneHeight - titleHeight - ContentBoxStyle.GetVerticalPadding()
	if maxContentHeight < 0 {
		maxContentHeight = 0
	}

	var titleText, content string
	ev, ok := m.selected()
	if !ok {
		titleText = "Error"
		content = lipgloss.NewStyle().
			Width(paneWidth - ContentBoxStyle.GetHorizontalPadding()).
			MaxHeight(maxContentHeight).
			Padding(1).Render("No message selected.")
	} else {
		titleText = fmt.Sprintf("Full View: %s", truncate(ev.Subject, paneWidth-(TitleStyle.GetHorizontalPadding()+15)))

		var b strings.Builder
		b.WriteString(m.renderHeaders(ev, paneWidth))
		fmt.Fprintf(&b, "\n%s %s\n", HeaderKeyStyle.Render("Message:"), HeaderValStyle.Render(ev.MessageID))
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render("Cycle:"), HeaderValStyle.Render(ev.CycleID))
		b.WriteString(BodyStyle.Render(entryBody(ev)))

		content = lipgloss.NewStyle().
			Width(paneWidth - ContentBoxStyle.GetHorizontalPadding()).
			MaxHeight(maxContentHeight).
			Render(b.String())
	}

	return ContentBoxStyle.Width(paneWidth).Height(paneHeight).Render(
		lipgloss.JoinVertical(lipgloss.Top, TitleStyle.Render(titleText), content),
	)
}

func (m Model) renderStatusBar() string {
	styleToUse := StatusBarNormalStyle
	if m.statusIsError {
		styleToUse = StatusBarErrorStyle
	} else if m.statusIsTemp {
		styleToUse = StatusBarSuccessStyle
	}
	return styleToUse.Width(m.width).Render(truncate(m.statusBarText, m.width))
}
