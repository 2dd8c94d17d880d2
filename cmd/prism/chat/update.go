package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"prism/internal/api"
	"prism/internal/logging"
	"prism/internal/resilience"
	"prism/internal/upload"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case answerMsg:
		return m.handleAnswer(msg)

	case revealTickMsg:
		return m.handleRevealTick(msg)

	case catalogMsg:
		if msg.err != nil {
			m.statusLine = "Library refresh failed: " + api.Reason(msg.err)
			return m, nil
		}
		m.catalog = msg.cat
		m.clampCursor()
		return m, nil

	case modelStatusMsg:
		m.status, m.statusErr = msg.status, msg.err
		if msg.err != nil {
			m.status = nil
			logging.Get(logging.CategoryUI).Debugw("model status failed", "error", msg.err)
			if resilience.Unavailable(msg.err) {
				m.statusLine = api.Reason(msg.err)
			}
		} else if m.statusLine == api.UnavailableReason {
			m.statusLine = ""
		}
		return m, nil

	case statusTickMsg:
		return m, tea.Batch(m.fetchModelStatus(), m.fetchCatalog(), m.scheduleStatusTick())

	case toggleMsg:
		if msg.err != nil {
			m.statusLine = "Hardware switch failed: " + api.Reason(msg.err)
			return m, nil
		}
		msg.res.Normalize()
		m.statusLine = msg.res.Message
		return m, m.fetchModelStatus()

	case uploadDoneMsg:
		m.uploading = false
		if msg.sum != nil {
			m.statusLine = msg.sum.Message()
			if n := len(msg.sum.Skipped); n > 0 {
				m.statusLine += fmt.Sprintf(", %d skipped", n)
			}
		}
		if msg.err != nil {
			m.statusLine = "Upload interrupted: " + msg.err.Error()
		}
		m.layout()
		return m, m.fetchCatalog()

	case taskMsg:
		return m.handleTask(upload.Task(msg))

	case libraryOpMsg:
		if msg.err != nil {
			m.statusLine = "Error: " + api.Reason(msg.err)
			return m, nil
		}
		m.statusLine = msg.note
		m.catalog = m.cfg.Library.Catalog()
		m.clampCursor()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.statusLine = "History failed: " + msg.err.Error()
			return m, nil
		}
		if m.loading {
			// Keep the pending placeholder last in the transcript.
			m.statusLine = fmt.Sprintf("%d history records; run /history again after the answer", len(msg.records))
			return m, nil
		}
		m.system(formatHistory(msg.records))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.shutdown()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.focus == focusSidebar {
			m.focusInput()
			return m, nil
		}
		if m.skipReveal() {
			return m, nil
		}
		m.shutdown()
		return m, tea.Quit

	case tea.KeyTab:
		if m.sidebarVisible() {
			if m.focus == focusSidebar {
				m.focusInput()
			} else {
				m.focus = focusSidebar
				m.textarea.Blur()
			}
		}
		return m, nil

	case tea.KeyCtrlB:
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.focusInput()
		}
		m.layout()
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if msg.Type == tea.KeyEnter {
		return m.submit()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.sidebarItems()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(items)-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.cursor < len(items) {
			m.selectContext(items[m.cursor].sel)
		}
	}
	return m, nil
}

func (m *Model) focusInput() {
	m.focus = focusInput
	m.textarea.Focus()
}

// submit handles Enter in the input box.
func (m Model) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()

	if m.pendingConfirm != nil {
		return m.answerConfirm(input)
	}
	if input == "" {
		return m, nil
	}
	if m.loading {
		m.statusLine = "Still waiting for the previous answer"
		return m, nil
	}
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	// A reveal still running for an older answer is finished at once so
	// only the new placeholder is typing.
	m.skipReveal()

	sel := m.cfg.Library.Selection()
	_, placeholder := m.transcript.AppendUserAndPlaceholder(input)
	m.loading = true
	m.statusLine = ""
	m.refreshViewport()

	logging.Get(logging.CategoryUI).Debugw("question submitted", "context", sel.Describe())
	return m, tea.Batch(m.ask(placeholder, input, sel), m.spinner.Tick)
}

func (m Model) handleAnswer(msg answerMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.transcript.Fail(msg.err)
		m.statusLine = "Error: " + api.Reason(msg.err)
		logging.Get(logging.CategoryUI).Warnw("question failed", "error", msg.err)
		m.refreshViewport()
		return m, nil
	}

	m.pending[msg.id] = msg.ans
	gen := m.typer.Start(msg.id, msg.ans.Text)
	if m.cfg.TypewriterInterval <= 0 {
		if f, ok := m.typer.Complete(gen); ok {
			m.finishReveal(f.MessageID)
		}
		return m, nil
	}
	return m, m.revealTick(gen)
}

func (m Model) handleRevealTick(msg revealTickMsg) (tea.Model, tea.Cmd) {
	f, ok := m.typer.Tick(msg.gen)
	if !ok {
		return m, nil
	}
	if f.Done {
		m.finishReveal(f.MessageID)
		return m, nil
	}
	m.transcript.SetContent(f.MessageID, f.Content)
	m.refreshViewport()
	return m, m.revealTick(msg.gen)
}

// finishReveal attaches the answer's metadata and scrolls once more.
func (m *Model) finishReveal(id string) {
	if ans, ok := m.pending[id]; ok {
		m.transcript.Complete(id, ans)
		delete(m.pending, id)
	}
	m.refreshViewport()
	m.viewport.GotoBottom()
}

// skipReveal jumps a running reveal to its end. It reports whether there
// was one.
func (m *Model) skipReveal() bool {
	_, gen, ok := m.typer.Active()
	if !ok {
		return false
	}
	if f, ok := m.typer.Complete(gen); ok {
		m.finishReveal(f.MessageID)
	}
	return true
}

func (m Model) handleTask(t upload.Task) (tea.Model, tea.Cmd) {
	rows := len(m.activeTasks())
	if i, ok := m.taskIndex[t.ID]; ok {
		m.tasks[i] = t
	} else {
		m.taskIndex[t.ID] = len(m.tasks)
		m.tasks = append(m.tasks, t)
	}
	if len(m.activeTasks()) != rows {
		m.layout()
	}

	switch t.Status {
	case upload.StatusError:
		m.statusLine = fmt.Sprintf("%s: %s", t.File.Name, t.Message)
	case upload.StatusCompleted:
		if m.cfg.Tracker != nil && m.cfg.Tracker.Pending() == 0 {
			return m, m.fetchCatalog()
		}
	}
	return m, nil
}

// activeTasks are the uploads still moving.
func (m Model) activeTasks() []upload.Task {
	var out []upload.Task
	for _, t := range m.tasks {
		if !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

func (m *Model) shutdown() {
	m.typer.Cancel()
	logging.UI("tui shutting down")
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.width >= minSidebarWidth
}

func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	chatWidth := m.width
	if m.sidebarVisible() {
		chatWidth -= sidebarWidth + 2
	}
	if chatWidth < 20 {
		chatWidth = 20
	}

	uploadRows := len(m.activeTasks())
	if uploadRows > maxUploadRows {
		uploadRows = maxUploadRows + 1
	}
	// header, footer, input plus its border
	height := m.height - 2 - (inputHeight + 2) - uploadRows
	if height < 3 {
		height = 3
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, height)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = height
	}
	m.textarea.SetWidth(chatWidth - 4)

	if m.cfg.Markdown {
		style := "light"
		if m.styles.Theme.IsDark {
			style = "dark"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath(style),
			glamour.WithWordWrap(chatWidth-4),
		)
		if err == nil {
			m.renderer = r
		}
	}
	m.refreshViewport()
}

// refreshViewport re-renders the transcript and follows new messages.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if m.transcript.ShouldScroll() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) clampCursor() {
	n := len(m.sidebarItems())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
