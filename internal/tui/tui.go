// Package tui provides a Bubble Tea terminal user interface for broforce-map-downloader.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/handiism/broforce-map-downloader/internal/config"
	"github.com/handiism/broforce-map-downloader/internal/download"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)

	mapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// maxLogLines is how many progress messages stay on screen.
const maxLogLines = 10

// maxFailuresShown caps the failed maps listed in the summary box.
const maxFailuresShown = 10

// errCancelled is shown when the user aborts a run.
var errCancelled = errors.New("cancelled by user")

// State represents the current UI state.
type State int

const (
	StateSettings State = iota
	StateInitializing
	StateDownloading
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state    State
	spinner  spinner.Model
	progress progress.Model
	settings *config.Settings
	opts     download.Options
	logs     []LogEntry
	err      error
	verbose  bool

	// Run context
	ctx    context.Context
	cancel context.CancelFunc
	events chan download.ProgressEvent
	run    int // bumped on start and reset; older messages are dropped

	manager *download.Manager
	newMaps int
	present int

	// Download progress
	finished int32
	total    int32
	received int64
	summary  *download.Summary

	width  int
	height int
}

// NewModel creates a new TUI model. settings must already be validated.
func NewModel(settings *config.Settings, opts download.Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		state:    StateSettings,
		spinner:  sp,
		progress: prog,
		settings: settings,
		opts:     opts,
		logs:     make([]LogEntry, 0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Message types
type (
	// ProgressMsg carries one event from the download manager.
	ProgressMsg struct {
		Event download.ProgressEvent

		run int
	}

	// InitDoneMsg is sent when the listing pages have been walked.
	InitDoneMsg struct {
		Manager *download.Manager
		New     int
		Present int
		Err     error

		run    int
		events chan download.ProgressEvent
	}

	// DownloadDoneMsg is sent when all downloads complete.
	DownloadDoneMsg struct {
		Summary download.Summary
		Err     error

		run int
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateSettings {
				return m, tea.Quit
			}
			if m.state == StateDownloading || m.state == StateInitializing {
				m.cancel()
				m.state = StateError
				m.err = errCancelled
			}

		case "enter":
			if m.state == StateSettings {
				m.state = StateInitializing
				m.run++
				m.events = make(chan download.ProgressEvent, 256)
				return m, tea.Batch(m.initializeDownload(), waitForEvent(m.events, m.run), m.spinner.Tick)
			}

		case "v":
			if m.state == StateSettings {
				m.verbose = !m.verbose
			}

		case "q":
			if m.state != StateInitializing && m.state != StateDownloading {
				m.cancel()
				return m, tea.Quit
			}

		case "r":
			if m.state == StateComplete || m.state == StateError {
				m.reset()
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.run != m.run {
			break
		}
		cmds = append(cmds, waitForEvent(m.events, m.run))
		// Filter verbose messages if not in verbose mode
		if msg.Event.Level == download.LevelVerbose && !m.verbose {
			break
		}
		m.logs = append(m.logs, LogEntry(msg.Event))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}

	case InitDoneMsg:
		if msg.run != m.run || m.state != StateInitializing {
			if msg.Err == nil && msg.events != nil {
				close(msg.events)
			}
			break
		}
		if msg.Err != nil {
			m.state = StateError
			m.err = msg.Err
			break
		}
		m.manager = msg.Manager
		m.newMaps = msg.New
		m.present = msg.Present
		m.total = int32(msg.New)
		m.state = StateDownloading
		cmds = append(cmds, m.startDownload(), m.tickProgress())

	case DownloadDoneMsg:
		if msg.run != m.run {
			break
		}
		summary := msg.Summary
		m.summary = &summary
		m.finished = m.total
		switch {
		case m.ctx.Err() != nil:
			m.state = StateError
			m.err = errCancelled
		case msg.Err != nil:
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		// Update progress from manager
		if m.manager != nil && m.state == StateDownloading {
			m.finished, m.total, m.received = m.manager.GetProgress()

			var percent float64
			if m.total > 0 {
				percent = float64(m.finished) / float64(m.total)
			}
			cmds = append(cmds, m.progress.SetPercent(percent), m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) reset() {
	m.cancel()
	m.run++
	m.state = StateSettings
	m.logs = nil
	m.err = nil
	m.manager = nil
	m.summary = nil
	m.newMaps, m.present = 0, 0
	m.finished, m.total, m.received = 0, 0, 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// waitForEvent delivers the next manager event. A closed channel ends the chain.
func waitForEvent(events <-chan download.ProgressEvent, run int) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return ProgressMsg{Event: event, run: run}
	}
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("💣 Broforce Map Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download custom maps from the Steam Workshop"))
	b.WriteString("\n\n")

	switch m.state {
	case StateSettings:
		b.WriteString(m.viewSettings())
	case StateInitializing:
		b.WriteString(m.viewInitializing())
	case StateDownloading:
		b.WriteString(m.viewDownloading())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.getHelpText()))

	return b.String()
}

func (m Model) viewSettings() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Current settings:"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join(m.settings.Describe(), "\n")))
	b.WriteString("\n\n")

	verboseCheck := "[ ]"
	if m.verbose {
		verboseCheck = "[×]"
	}
	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s Verbose output (v)\n", verboseCheck)

	return b.String()
}

func (m Model) viewInitializing() string {
	var b strings.Builder

	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(subtitleStyle.Render("Fetching workshop listings..."))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewDownloading() string {
	var b strings.Builder

	b.WriteString(mapStyle.Render(fmt.Sprintf("%d new maps, %d already downloaded", m.newMaps, m.present)))
	b.WriteString("\n\n")

	var percent float64
	if m.total > 0 {
		percent = float64(m.finished) / float64(m.total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	b.WriteString(infoStyle.Render(fmt.Sprintf(
		"Maps: %d/%d | Downloaded: %.2f MB",
		m.finished,
		m.total,
		float64(m.received)/1024/1024,
	)))
	b.WriteString("\n\n")

	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	var b strings.Builder
	s := m.summary
	if s == nil {
		s = &download.Summary{}
	}

	fmt.Fprintf(&b, "✨ Download Complete!\n\n")
	fmt.Fprintf(&b, "Downloaded: %d\n", len(s.Downloaded))
	fmt.Fprintf(&b, "Already present: %d\n", len(s.Skipped))
	fmt.Fprintf(&b, "Failed: %d\n", len(s.Failed))
	fmt.Fprintf(&b, "Pages: %d fetched, %d failed\n", s.PagesFetched, len(s.PageErrors))
	if s.DuplicatesMoved > 0 {
		fmt.Fprintf(&b, "Duplicates moved: %d\n", s.DuplicatesMoved)
	}
	fmt.Fprintf(&b, "Size: %.2f MB", float64(m.received)/1024/1024)

	out := boxStyle.Render(b.String())
	if len(s.Failed) == 0 {
		return out
	}

	var failed strings.Builder
	failed.WriteString("\n\n")
	failed.WriteString(errorStyle.Render("Failed maps:"))
	failed.WriteString("\n")
	for i, f := range s.Failed {
		if i == maxFailuresShown {
			failed.WriteString(dimStyle.Render(fmt.Sprintf("  ... and %d more", len(s.Failed)-i)))
			failed.WriteString("\n")
			break
		}
		failed.WriteString(errorStyle.Render("  ✗ " + f.String()))
		failed.WriteString("\n")
	}
	return out + failed.String()
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("❌ Error occurred:"))
	b.WriteString("\n\n")
	if m.err != nil {
		fmt.Fprintf(&b, "  %s", m.err.Error())
	}

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder

	for _, log := range m.logs {
		var style lipgloss.Style
		prefix := "•"
		switch log.Level {
		case download.LevelError:
			style = errorStyle
			prefix = "✗"
		case download.LevelWarning:
			style = warningStyle
			prefix = "!"
		case download.LevelSuccess:
			style = successStyle
			prefix = "✓"
		case download.LevelInfo:
			style = infoStyle
			prefix = "›"
		default:
			style = dimStyle
		}
		b.WriteString(style.Render(prefix + " " + log.Message))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) getHelpText() string {
	switch m.state {
	case StateSettings:
		return "enter: start • v: verbose • esc: quit"
	case StateInitializing, StateDownloading:
		return "esc: cancel"
	case StateComplete, StateError:
		return "r: run again • q: quit"
	}
	return ""
}

// initializeDownload creates the manager and walks the listing pages.
func (m Model) initializeDownload() tea.Cmd {
	ctx, settings, opts, events, run := m.ctx, m.settings, m.opts, m.events, m.run
	return func() tea.Msg {
		manager := download.NewManager(settings, opts, func(event download.ProgressEvent) {
			select {
			case events <- event:
			default:
			}
		})

		if err := manager.Initialize(ctx); err != nil {
			close(events)
			return InitDoneMsg{Err: err, run: run}
		}

		s := manager.Summary()
		return InitDoneMsg{
			Manager: manager,
			New:     len(manager.Tasks()),
			Present: len(s.Skipped),
			run:     run,
			events:  events,
		}
	}
}

// startDownload runs the downloads in the background.
func (m Model) startDownload() tea.Cmd {
	ctx, manager, events, run := m.ctx, m.manager, m.events, m.run
	return func() tea.Msg {
		err := manager.StartDownloads(ctx)
		close(events)
		return DownloadDoneMsg{Summary: manager.Summary(), Err: err, run: run}
	}
}

// Run starts the TUI application.
func Run(settings *config.Settings, opts download.Options) error {
	p := tea.NewProgram(NewModel(settings, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
