package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"prism/internal/api"
	"prism/internal/conversation"
)

// =============================================================================
// VIEW RENDERING
// =============================================================================

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	body := m.viewport.View()
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), " ", body)
	}

	parts := []string{m.renderHeader(), body}
	if rows := m.renderUploads(); rows != "" {
		parts = append(parts, rows)
	}
	parts = append(parts, m.styles.Sidebar.Render(m.textarea.View()), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render("Prism")
	sel := m.cfg.Library.Selection()
	context := m.styles.Muted.Render(" " + sel.Describe() + " ")

	badge := m.styles.Badge.Render(describeStatus(m.status))
	if m.status == nil || !m.status.ModelLoaded {
		badge = m.styles.Warning.Render("[" + describeStatus(m.status) + "]")
	}

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(context) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	return title + context + strings.Repeat(" ", gap) + badge
}

func (m Model) renderFooter() string {
	if m.loading {
		return m.styles.Footer.Render(m.spinner.View() + " " + conversation.Placeholder)
	}
	if m.statusLine != "" {
		return m.styles.Footer.Render(m.statusLine)
	}
	hint := "Tab: library · /help: commands · Ctrl+C: quit"
	if m.focus == focusSidebar {
		hint = "↑/↓: move · Enter: select as context · Tab/Esc: back to input"
	}
	return m.styles.Footer.Render(hint)
}

func (m Model) renderTranscript() string {
	var sb strings.Builder
	for _, msg := range m.transcript.Messages() {
		switch msg.Role {
		case conversation.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.Body.Render(msg.Content))
			sb.WriteString("\n")

		case conversation.RoleSystem:
			sb.WriteString("\n" + m.styles.Muted.Render(msg.Content) + "\n")

		default:
			sb.WriteString(m.styles.AssistantName.Render("Prism") + "\n")
			sb.WriteString(m.renderAssistant(msg))
		}
	}
	return sb.String()
}

func (m Model) renderAssistant(msg conversation.Message) string {
	if msg.Outcome == conversation.OutcomeFailure {
		return m.styles.Error.Render(msg.Content) + "\n"
	}
	// Partial markdown re-flows on every tick, so typing text stays plain.
	if msg.RenderState == conversation.RenderTyping {
		return msg.Content + "\n"
	}

	var sb strings.Builder
	sb.WriteString(m.safeRenderMarkdown(msg.Content))
	if len(msg.Sources) > 0 {
		labels := make([]string, 0, len(msg.Sources))
		for _, s := range msg.Sources {
			labels = append(labels, s.Label())
		}
		sb.WriteString(m.styles.Source.Render("Sources: "+strings.Join(labels, "; ")) + "\n")
	}
	var meta []string
	if msg.Fallback {
		meta = append(meta, "general chat")
	}
	if msg.ProcessingTime > 0 {
		meta = append(meta, fmt.Sprintf("%.1fs", msg.ProcessingTime.Seconds()))
	}
	if len(meta) > 0 {
		sb.WriteString(m.styles.Muted.Render(strings.Join(meta, " · ")) + "\n")
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content + "\n"
		}
	}()

	if m.renderer != nil && content != "" {
		if rendered, err := m.renderer.Render(content); err == nil {
			return rendered
		}
	}
	return content + "\n"
}

// =============================================================================
// SIDEBAR
// =============================================================================

type sidebarItem struct {
	label string
	sel   conversation.Selection
}

// sidebarItems lists folders, then the files for the current context: a
// selected folder shows its files, otherwise the unassigned ones.
func (m Model) sidebarItems() []sidebarItem {
	var items []sidebarItem
	for _, f := range m.catalog.Folders {
		items = append(items, sidebarItem{
			label: fmt.Sprintf("▸ %s (%d)", f.Name, f.FileCount),
			sel:   conversation.FolderSelection(f.ID, f.Name),
		})
	}
	for _, f := range m.catalog.ForContext(m.cfg.Library.Selection()) {
		items = append(items, sidebarItem{
			label: kindIcon(f.Kind) + " " + f.FileName,
			sel:   conversation.FileSelection(f.FileID, f.FileName, f.Kind),
		})
	}
	return items
}

func (m Model) renderSidebar() string {
	counts := m.catalog.Counts()
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Library") + "\n")
	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d docs · %d images · %d audio",
		counts[api.KindDocument], counts[api.KindImage], counts[api.KindAudio])) + "\n\n")

	active := m.cfg.Library.Selection()
	items := m.sidebarItems()
	if len(items) == 0 {
		sb.WriteString(m.styles.Muted.Render("No files yet. /upload <path>"))
	}

	// Keep the cursor on screen.
	visible := m.viewport.Height - 4
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	for i := start; i < len(items) && i < start+visible; i++ {
		item := items[i]
		label := truncate(item.label, sidebarWidth-4)
		style := m.styles.Body
		if item.sel.Scope == active.Scope && item.sel.ID == active.ID {
			style = m.styles.Selected
		}
		prefix := "  "
		if m.focus == focusSidebar && i == m.cursor {
			prefix = m.styles.Prompt.Render("> ")
		}
		sb.WriteString(prefix + style.Render(label) + "\n")
	}

	return m.styles.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height - 2).
		Render(strings.TrimRight(sb.String(), "\n"))
}

func (m Model) renderUploads() string {
	active := m.activeTasks()
	if len(active) == 0 {
		return ""
	}
	var lines []string
	for i, t := range active {
		if i == maxUploadRows {
			lines = append(lines, m.styles.Muted.Render(fmt.Sprintf("  +%d more", len(active)-maxUploadRows)))
			break
		}
		lines = append(lines, m.styles.TaskLine(m.bar, t))
	}
	return strings.Join(lines, "\n")
}

func kindIcon(k api.Kind) string {
	switch k {
	case api.KindImage:
		return "◧"
	case api.KindAudio:
		return "♪"
	default:
		return "▤"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
