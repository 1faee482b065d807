package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rivo/tview"

	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/screen"
)

const timeLayout = "2006-01-02 15:04"

// splitScreens returns the screen shown in the content area and the
// modal over it, if any.
func splitScreens(screens []screen.Screen) (base screen.Screen, modal *screen.Screen) {
	for i := len(screens) - 1; i >= 0; i-- {
		s := screens[i]
		if !s.Kind.Modal() {
			return s, modal
		}
		if modal == nil {
			modal = &screens[i]
		}
	}
	return screen.Screen{}, modal
}

// statusLabel returns the colored label of an issue status.
func statusLabel(status gateway.Status, tags ThemeTags) string {
	color := tags.SecondaryText
	switch status {
	case gateway.StatusStarted:
		color = tags.Accent
	case gateway.StatusDone:
		color = tags.Success
	case gateway.StatusCancelled:
		color = tags.Error
	}
	return color + string(status) + "[-]"
}

// issueCells returns the list table cells of one issue.
func issueCells(is gateway.Issue, tags ThemeTags) []string {
	return []string{
		fmt.Sprintf("#%d", is.ID),
		tview.Escape(truncate(is.Summary(), 60)),
		statusLabel(is.Status, tags),
		optionalCell(is.Workflow != gateway.WorkflowNone, screen.WorkflowName(is.Workflow), tags),
		optionalCell(is.AssignedTo != "", screen.WorkerName(is.AssignedTo), tags),
		is.CreatedAt.Local().Format(timeLayout),
	}
}

func optionalCell(set bool, text string, tags ThemeTags) string {
	if !set {
		return tags.SecondaryText + "-[-]"
	}
	return tview.Escape(text)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func formatRefreshed(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("15:04:05")
}

// noticeText renders a notice with the color of its level.
func noticeText(n *screen.Notice, tags ThemeTags) string {
	if n == nil {
		return ""
	}
	color := tags.Foreground
	switch n.Level {
	case screen.LevelWarning:
		color = tags.Warning
	case screen.LevelError:
		color = tags.Error
	}
	return color + tview.Escape(n.Text) + "[-]"
}

// stateText describes a screen's lifecycle state for the status bar.
func stateText(s screen.Screen, tags ThemeTags) string {
	switch s.State.Tag {
	case screen.TagLoading:
		return tags.Accent + "Loading…[-]"
	case screen.TagError:
		return tags.Error + "Error[-]"
	case screen.TagEmpty:
		return tags.SecondaryText + "No issues[-]"
	}
	if s.Kind == screen.KindList {
		return fmt.Sprintf("%s%d issues[-]", tags.Accent, len(s.State.Issues))
	}
	if s.State.Pending {
		return tags.Warning + "Saving…[-]"
	}
	return ""
}

// statusBarText joins the parts of the status bar.
func statusBarText(s screen.Screen, paused bool, help string, tags ThemeTags) string {
	parts := []string{tags.SecondaryText + help + "[-]"}
	if st := stateText(s, tags); st != "" {
		parts = append(parts, st)
	}
	if n := noticeText(s.State.Notice, tags); n != "" {
		parts = append(parts, n)
	}
	refreshed := tags.SecondaryText + "refreshed " + formatRefreshed(s.State.RefreshedAt)
	if paused {
		refreshed += " (auto-refresh paused)"
	}
	parts = append(parts, refreshed+"[-]")
	return strings.Join(parts, tags.Border+" | [-]")
}

// detailHeader renders the metadata block above an issue description.
func detailHeader(is gateway.Issue, pending bool, tags ThemeTags) string {
	var b strings.Builder
	title := is.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "%s#%d[-] [::b]%s[::-]\n", tags.Accent, is.ID, tview.Escape(title))
	fmt.Fprintf(&b, "Status: %s", statusLabel(is.Status, tags))
	if pending {
		fmt.Fprintf(&b, " %s(saving)[-]", tags.Warning)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Workflow: %s · Worker: %s\n", screen.WorkflowName(is.Workflow), tview.Escape(screen.WorkerName(is.AssignedTo)))
	fmt.Fprintf(&b, "%sCreated %s · Updated %s[-]\n",
		tags.SecondaryText, is.CreatedAt.Local().Format(timeLayout), is.UpdatedAt.Local().Format(timeLayout))
	if next := screen.NextStatuses(is.Status); len(next) > 0 {
		labels := make([]string, len(next))
		for i, st := range next {
			labels[i] = string(st)
		}
		fmt.Fprintf(&b, "%sCan move to: %s[-]\n", tags.SecondaryText, strings.Join(labels, ", "))
	}
	return b.String()
}

// commentsText renders comments newest first.
func commentsText(comments []gateway.Comment, md *markdownRenderer, width int, tags ThemeTags) string {
	if len(comments) == 0 {
		return tags.SecondaryText + "No comments yet. Press c to add one.[-]"
	}
	var b strings.Builder
	for i, c := range comments {
		if i > 0 {
			b.WriteString("\n")
		}
		source := c.Source
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "%s%s · %s[-]\n", tags.SecondaryText, c.CreatedAt.Local().Format(timeLayout), tview.Escape(source))
		b.WriteString(md.Render(c.Body, width))
		b.WriteString("\n")
	}
	return b.String()
}

// markdownRenderer renders markdown to tview-tagged text, remembering
// recent results since snapshots re-render unchanged descriptions.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
	memo     map[string]string
}

const markdownMemoSize = 64

func newMarkdownRenderer() *markdownRenderer {
	return &markdownRenderer{memo: make(map[string]string)}
}

// Render renders md wrapped at width. Rendering failures fall back to
// the escaped source.
func (m *markdownRenderer) Render(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	if width < 20 {
		width = 80
	}
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			logger.ErrorWithErr(err, "tui.render: creating markdown renderer")
			return tview.Escape(md)
		}
		m.renderer, m.width = r, width
		m.memo = make(map[string]string)
	}
	if out, ok := m.memo[md]; ok {
		return out
	}

	out, err := m.renderer.Render(md)
	if err != nil {
		logger.Warning("tui.render: markdown render failed: %v", err)
		return tview.Escape(md)
	}
	out = tview.TranslateANSI(strings.Trim(out, "\n"))
	if len(m.memo) >= markdownMemoSize {
		m.memo = make(map[string]string)
	}
	m.memo[md] = out
	return out
}

// breadcrumb names the screens on the stack, bottom first.
func breadcrumb(screens []screen.Screen) string {
	parts := make([]string, 0, len(screens))
	for _, s := range screens {
		switch s.Kind {
		case screen.KindList:
			parts = append(parts, "Issues")
		case screen.KindDetail:
			parts = append(parts, fmt.Sprintf("#%d", s.IssueID))
		case screen.KindConfirmDelete:
			parts = append(parts, "Delete")
		case screen.KindCreate:
			parts = append(parts, "New")
		case screen.KindEdit:
			parts = append(parts, "Edit")
		case screen.KindComment:
			parts = append(parts, "Comment")
		case screen.KindAssign:
			parts = append(parts, "Assign")
		case screen.KindWorkflow:
			parts = append(parts, "Workflow")
		}
	}
	return strings.Join(parts, " › ")
}
