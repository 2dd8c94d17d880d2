// Package chat provides the interactive Prism TUI: a transcript whose
// answers are revealed with a typewriter effect, a library sidebar for
// picking the question context, and live upload progress.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"prism/cmd/prism/ui"
	"prism/internal/api"
	"prism/internal/conversation"
	"prism/internal/history"
	"prism/internal/library"
	"prism/internal/logging"
	"prism/internal/typewriter"
	"prism/internal/upload"
)

// Asker answers one question under a selection.
type Asker interface {
	Ask(ctx context.Context, question string, sel conversation.Selection) (*conversation.Answer, error)
}

// Uploader runs the upload pipeline.
type Uploader interface {
	Run(ctx context.Context, paths []string) (*upload.Summary, error)
}

// ModelClient reads and switches the backend's hardware mode.
type ModelClient interface {
	ModelStatus(ctx context.Context) (*api.ModelStatus, error)
	ToggleHardware(ctx context.Context) (*api.ToggleResult, error)
}

// Config carries the wired components the TUI drives.
type Config struct {
	Library  *library.Library
	Asker    Asker
	Pipeline Uploader
	Tracker  *upload.Tracker
	Model    ModelClient
	History  history.Store

	Styles             ui.Styles
	TypewriterInterval time.Duration
	StatusRefresh      time.Duration
	Markdown           bool
}

type focus int

const (
	focusInput focus = iota
	focusSidebar
)

const (
	sidebarWidth    = 32
	maxUploadRows   = 5
	inputHeight     = 3
	minSidebarWidth = 90
)

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	cfg    Config
	styles ui.Styles

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	bar      progress.Model
	renderer *glamour.TermRenderer

	transcript *conversation.Transcript
	typer      *typewriter.Controller
	// Answers whose reveal is running, by message id.
	pending map[string]*conversation.Answer

	catalog   library.Catalog
	status    *api.ModelStatus
	statusErr error
	tasks     []upload.Task
	taskIndex map[string]int

	// pendingConfirm runs when the next submitted line is "y".
	pendingConfirm tea.Cmd

	focus       focus
	cursor      int
	showSidebar bool

	width, height int
	ready         bool
	loading       bool
	uploading     bool
	statusLine    string
}

// =============================================================================
// MESSAGES
// =============================================================================

type answerMsg struct {
	id  string
	ans *conversation.Answer
	err error
}

// revealTickMsg carries the generation of the reveal it belongs to; ticks
// of a superseded reveal are dropped.
type revealTickMsg struct{ gen uint64 }

type catalogMsg struct {
	cat library.Catalog
	err error
}

type modelStatusMsg struct {
	status *api.ModelStatus
	err    error
}

type statusTickMsg struct{}

type toggleMsg struct {
	res *api.ToggleResult
	err error
}

type uploadDoneMsg struct {
	sum *upload.Summary
	err error
}

type taskMsg upload.Task

type libraryOpMsg struct {
	note string
	err  error
}

type historyMsg struct {
	records []history.Record
	err     error
}

// New builds the model. ctx bounds every backend call the TUI makes.
func New(ctx context.Context, cfg Config) Model {
	if cfg.StatusRefresh <= 0 {
		cfg.StatusRefresh = 10 * time.Second
	}

	ta := textarea.New()
	ta.Placeholder = "Ask about your files... (Enter to send, /help for commands, Ctrl+C to exit)"
	ta.Prompt = "┃ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 4096
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cfg.Styles.Spinner

	return Model{
		ctx:         ctx,
		cfg:         cfg,
		styles:      cfg.Styles,
		textarea:    ta,
		spinner:     sp,
		bar:         ui.NewProgressBar(20),
		transcript:  conversation.NewTranscript(),
		typer:       &typewriter.Controller{},
		pending:     make(map[string]*conversation.Answer),
		taskIndex:   make(map[string]int),
		showSidebar: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.fetchCatalog(),
		m.fetchModelStatus(),
		m.scheduleStatusTick(),
	)
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(
		New(ctx, cfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if cfg.Tracker != nil {
		cfg.Tracker.Observe(func(t upload.Task) { p.Send(taskMsg(t)) })
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		logging.Get(logging.CategoryUI).Errorw("tui exited", "error", err)
	}
	return err
}
