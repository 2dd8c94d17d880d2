package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"prism/internal/api"
	"prism/internal/conversation"
	"prism/internal/history"
)

// =============================================================================
// BACKEND COMMANDS
// =============================================================================
// Each returns a tea.Cmd that does the blocking work off the update loop
// and reports back with a message.

func (m Model) ask(id, question string, sel conversation.Selection) tea.Cmd {
	ctx, asker := m.ctx, m.cfg.Asker
	return func() tea.Msg {
		ans, err := asker.Ask(ctx, question, sel)
		return answerMsg{id: id, ans: ans, err: err}
	}
}

func (m Model) fetchCatalog() tea.Cmd {
	ctx, lib := m.ctx, m.cfg.Library
	return func() tea.Msg {
		cat, err := lib.Refresh(ctx)
		return catalogMsg{cat: cat, err: err}
	}
}

func (m Model) fetchModelStatus() tea.Cmd {
	ctx, client := m.ctx, m.cfg.Model
	if client == nil {
		return nil
	}
	return func() tea.Msg {
		status, err := client.ModelStatus(ctx)
		return modelStatusMsg{status: status, err: err}
	}
}

func (m Model) scheduleStatusTick() tea.Cmd {
	return tea.Tick(m.cfg.StatusRefresh, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func (m Model) revealTick(gen uint64) tea.Cmd {
	return tea.Tick(m.cfg.TypewriterInterval, func(time.Time) tea.Msg { return revealTickMsg{gen: gen} })
}

func (m Model) toggleHardware() tea.Cmd {
	ctx, client := m.ctx, m.cfg.Model
	return func() tea.Msg {
		res, err := client.ToggleHardware(ctx)
		return toggleMsg{res: res, err: err}
	}
}

func (m Model) runUpload(paths []string) tea.Cmd {
	ctx, pipeline := m.ctx, m.cfg.Pipeline
	return func() tea.Msg {
		sum, err := pipeline.Run(ctx, paths)
		return uploadDoneMsg{sum: sum, err: err}
	}
}

// libraryOp runs a catalog mutation and reports note on success.
func (m Model) libraryOp(note string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return libraryOpMsg{err: err}
		}
		return libraryOpMsg{note: note}
	}
}

func (m Model) loadHistory(query string) tea.Cmd {
	ctx, store := m.ctx, m.cfg.History
	return func() tea.Msg {
		records, err := store.List(ctx, history.Filter{Query: query, Limit: 10})
		return historyMsg{records: records, err: err}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const helpText = `Commands:
  /upload <path>...          upload files or folders
  /folder <name>             ask about a folder (again to clear)
  /file <name>               ask about one file (again to clear)
  /none                      back to general questions
  /mkdir <name>              create a folder
  /rename <folder> <name>    rename a folder
  /rmdir <folder>            delete a folder
  /move <file> <folder>      move a file into a folder
  /rm <file>...              delete files
  /rm-unassigned             delete every file not in a folder
  /history [text]            recent questions
  /gpu                       switch CPU/GPU inference
  /refresh                   reload the library
  /clear                     clear the conversation
  /quit                      exit

Keys: Tab focuses the sidebar, Ctrl+B hides it, Esc skips the typing
animation, PgUp/PgDn scroll.`

// handleCommand runs a slash command. The transcript only gets system
// messages from here, never while an answer is pending.
func (m Model) handleCommand(input string) (Model, tea.Cmd) {
	name, rest, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	rest = strings.TrimSpace(rest)
	lib := m.cfg.Library

	needArg := func(usage string) (Model, tea.Cmd) {
		m.statusLine = "usage: " + usage
		return m, nil
	}

	switch strings.ToLower(name) {
	case "help", "?":
		m.system(helpText)

	case "quit", "exit", "q":
		m.shutdown()
		return m, tea.Quit

	case "clear":
		m.typer.Cancel()
		m.pending = make(map[string]*conversation.Answer)
		m.transcript.Clear()
		m.statusLine = "Conversation cleared"
		m.refreshViewport()

	case "refresh":
		m.statusLine = "Refreshing library..."
		return m, m.fetchCatalog()

	case "upload":
		paths := strings.Fields(rest)
		if len(paths) == 0 {
			return needArg("/upload <path>...")
		}
		if m.cfg.Pipeline == nil {
			m.statusLine = "Uploads are not available"
			return m, nil
		}
		m.uploading = true
		m.statusLine = fmt.Sprintf("Uploading %d paths...", len(paths))
		return m, m.runUpload(paths)

	case "folder":
		if rest == "" {
			return needArg("/folder <name>")
		}
		f, ok := m.catalog.Folder(rest)
		if !ok {
			m.statusLine = fmt.Sprintf("No folder %q", rest)
			return m, nil
		}
		m.selectContext(conversation.FolderSelection(f.ID, f.Name))

	case "file":
		if rest == "" {
			return needArg("/file <name>")
		}
		f, ok := m.catalog.File(rest)
		if !ok {
			m.statusLine = fmt.Sprintf("No file %q", rest)
			return m, nil
		}
		m.selectContext(conversation.FileSelection(f.FileID, f.FileName, f.Kind))

	case "none":
		lib.ClearSelection()
		m.statusLine = "Context: " + conversation.None.Describe()

	case "mkdir":
		if rest == "" {
			return needArg("/mkdir <name>")
		}
		return m, m.libraryOp("Created folder "+rest, func(ctx context.Context) error {
			_, err := lib.CreateFolder(ctx, rest)
			return err
		})

	case "rename":
		target, newName, _ := strings.Cut(rest, " ")
		newName = strings.TrimSpace(newName)
		if target == "" || newName == "" {
			return needArg("/rename <folder> <new name>")
		}
		f, ok := m.catalog.Folder(target)
		if !ok {
			m.statusLine = fmt.Sprintf("No folder %q", target)
			return m, nil
		}
		return m, m.libraryOp(fmt.Sprintf("Renamed %s to %s", f.Name, newName), func(ctx context.Context) error {
			return lib.RenameFolder(ctx, f.ID, newName)
		})

	case "rmdir":
		f, ok := m.catalog.Folder(rest)
		if !ok {
			return needArg("/rmdir <folder>")
		}
		return m.confirm(fmt.Sprintf("Delete folder %s?", f.Name), m.libraryOp("Deleted folder "+f.Name, func(ctx context.Context) error {
			return lib.DeleteFolder(ctx, f.ID)
		}))

	case "move":
		fileArg, folderArg, _ := strings.Cut(rest, " ")
		file, ok := m.catalog.File(fileArg)
		folder, ok2 := m.catalog.Folder(strings.TrimSpace(folderArg))
		if !ok || !ok2 {
			return needArg("/move <file> <folder>")
		}
		return m, m.libraryOp(fmt.Sprintf("Moved %s into %s", file.FileName, folder.Name), func(ctx context.Context) error {
			return lib.MoveFile(ctx, file.FileID, folder.ID)
		})

	case "rm":
		var ids []string
		for _, arg := range strings.Fields(rest) {
			f, ok := m.catalog.File(arg)
			if !ok {
				m.statusLine = fmt.Sprintf("No file %q", arg)
				return m, nil
			}
			ids = append(ids, f.FileID)
		}
		if len(ids) == 0 {
			return needArg("/rm <file>...")
		}
		return m.confirm(fmt.Sprintf("Delete %d files?", len(ids)), m.libraryOp(fmt.Sprintf("Deleted %d files", len(ids)), func(ctx context.Context) error {
			_, err := lib.DeleteFiles(ctx, ids)
			return err
		}))

	case "rm-unassigned":
		n := len(m.catalog.Unassigned())
		if n == 0 {
			m.statusLine = "No unassigned files"
			return m, nil
		}
		return m.confirm(fmt.Sprintf("Delete %d unassigned files?", n), m.libraryOp(fmt.Sprintf("Deleted %d unassigned files", n), func(ctx context.Context) error {
			_, err := lib.DeleteUnassigned(ctx)
			return err
		}))

	case "history":
		if m.cfg.History == nil {
			m.statusLine = "History is not available"
			return m, nil
		}
		return m, m.loadHistory(rest)

	case "gpu":
		if m.cfg.Model == nil {
			return m, nil
		}
		// Switching before the model is up would fail on the backend.
		if m.status == nil || !m.status.ModelLoaded {
			m.statusLine = "Model is still loading; try again once it is ready"
			return m, nil
		}
		m.statusLine = "Switching hardware mode..."
		return m, m.toggleHardware()

	default:
		m.statusLine = fmt.Sprintf("Unknown command /%s (try /help)", name)
	}
	return m, nil
}

// confirm parks cmd until the user answers y on the next Enter.
func (m Model) confirm(prompt string, cmd tea.Cmd) (Model, tea.Cmd) {
	m.pendingConfirm = cmd
	m.statusLine = prompt + " (y/n)"
	return m, nil
}

// answerConfirm resolves a parked confirmation with the submitted input.
func (m Model) answerConfirm(input string) (Model, tea.Cmd) {
	cmd := m.pendingConfirm
	m.pendingConfirm = nil
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		m.statusLine = "Working..."
		return m, cmd
	}
	m.statusLine = "Cancelled"
	return m, nil
}

func (m *Model) selectContext(sel conversation.Selection) {
	sel = m.cfg.Library.Select(sel)
	m.statusLine = "Context: " + sel.Describe()
	m.clampCursor()
}

// system appends a system note to the transcript.
func (m *Model) system(text string) {
	m.transcript.Append(conversation.Message{
		Role:        conversation.RoleSystem,
		Content:     text,
		RenderState: conversation.RenderStatic,
	})
	m.refreshViewport()
}

func formatHistory(records []history.Record) string {
	if len(records) == 0 {
		return "No history yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent questions:\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "  %s  [%s] %s\n", r.Timestamp.Local().Format("Jan 2 15:04"), r.Type, r.Query)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describeStatus(s *api.ModelStatus) string {
	if s == nil {
		return "backend offline"
	}
	if !s.ModelLoaded {
		return "model loading"
	}
	return strings.ToUpper(s.HardwareMode)
}
