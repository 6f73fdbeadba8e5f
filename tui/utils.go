package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bassamadnan/tdraft/poller"
	"github.com/bassamadnan/tdraft/reply"
	"github.com/charmbracelet/lipgloss"
)

// truncate shortens a string to a max length, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	// Guard against a negative width slicing past the string
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatEventTime formats the event time for display in the entry list.
func formatEventTime(t time.Time) string {
	if t.IsZero() {
		return "???"
	}
	now := time.Now()
	if t.Year() == now.Year() && t.Month() == now.Month() && t.Day() == now.Day() {
		return t.Local().Format("15:04") // Time only for today
	}
	return t.Local().Format("Jan02") // Date for other days
}

// senderName strips the address part of a From header value.
func senderName(from string) string {
	name := from
	if idx := strings.Index(name, "<"); idx > 0 {
		name = strings.Trim(strings.TrimSpace(name[:idx]), `"`)
	}
	if name == "" {
		return "(Unknown Sender)"
	}
	return name
}

// badge names the outcome of an entry.
func badge(ev poller.Event) (string, lipgloss.Style) {
	switch ev.Kind {
	case poller.EventSkipped:
		return "skipped", SkippedBadgeStyle
	case poller.EventFailed:
		return "failed", FailedBadgeStyle
	}
	if ev.Reply.Source == reply.SourceGenerated {
		return "generated", GeneratedBadgeStyle
	}
	return "fallback", FallbackBadgeStyle
}

// formatEntryListItem renders one processed message as a 4-line box.
// itemContentTextWidth is the width of the text between the vertical bars.
func formatEntryListItem(ev poller.Event, isSelected bool, itemContentTextWidth int) string {
	var boxCharStyle, subjectStyle, secondaryTextStyle lipgloss.Style
	var itemBlockStyle lipgloss.Style // The overall style for the 4-line block

	if isSelected {
		boxCharStyle = SelectedBoxCharStyle
		subjectStyle = SelectedSubjectStyle
		secondaryTextStyle = SelectedSecondaryTextStyle
		itemBlockStyle = SelectedEntryListItemStyle
	} else {
		boxCharStyle = NormalBoxCharStyle
		subjectStyle = NormalSubjectStyle
		secondaryTextStyle = NormalSecondaryTextStyle
		itemBlockStyle = EntryListItemStyle
	}

	subject := ev.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	// Truncate first, then pad to the full width
	paddedSubjectText := fmt.Sprintf("%-*s", itemContentTextWidth, truncate(subject, itemContentTextWidth))

	label, badgeStyle := badge(ev)
	label = "[" + label + "]"
	var detailLine string
	restWidth := itemContentTextWidth - len(label) - 1
	if restWidth < 1 { // Not enough space for the sender, show only the badge
		detailLine = badgeStyle.Render(fmt.Sprintf("%-*s", itemContentTextWidth, truncate(label, itemContentTextWidth)))
	} else {
		rest := fmt.Sprintf("%s %s", senderName(ev.From), formatEventTime(ev.Time))
		rest = fmt.Sprintf("%-*s", restWidth, truncate(rest, restWidth))
		detailLine = badgeStyle.Render(label) + " " + secondaryTextStyle.Render(rest)
	}

	// The horizontal bar spans the text plus the space on each side
	horizontalBar := strings.Repeat(BoxHorizontal, itemContentTextWidth+2)

	line1 := fmt.Sprintf("%s%s%s",
		boxCharStyle.Render(BoxTopLeft),
		boxCharStyle.Render(horizontalBar),
		boxCharStyle.Render(BoxTopRight),
	)
	line2 := fmt.Sprintf("%s %s %s",
		boxCharStyle.Render(BoxVertical),
		subjectStyle.Render(paddedSubjectText),
		boxCharStyle.Render(BoxVertical),
	)
	line3 := fmt.Sprintf("%s %s %s",
		boxCharStyle.Render(BoxVertical),
		detailLine,
		boxCharStyle.Render(BoxVertical),
	)
	line4 := fmt.Sprintf("%s%s%s",
		boxCharStyle.Render(BoxBottomLeft),
		boxCharStyle.Render(horizontalBar),
		boxCharStyle.Render(BoxBottomRight),
	)

	// Join the lines and apply the overall item block style (mainly for padding)
	return itemBlockStyle.Render(strings.Join([]string{line1, line2, line3, line4}, "\n"))
}

// entryBody is the text shown under the headers in the preview pane.
func entryBody(ev poller.Event) string {
	switch ev.Kind {
	case poller.EventSkipped:
		return "Matched a skip filter. No draft was created."
	case poller.EventFailed:
		if ev.Err != nil {
			return fmt.Sprintf("Drafting failed: %v", ev.Err)
		}
		return "Drafting failed."
	}
	return ev.Reply.Text
}
