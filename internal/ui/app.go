package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/calder/savewatch/internal/track"
)

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold the engine. It receives state via messages
// and triggers actions through injected callbacks.
type App struct {
	forceRefresh func() tea.Cmd
	toggleLock   func() tea.Cmd
	cycleMode    func() tea.Cmd
	loadProgress func() tea.Cmd

	spin     spinner.Model
	status   StatusUpdate
	progress ProgressLoaded
	haveTick bool
	width    int
	height   int
	ready    bool
}

// Callbacks are the actions the UI can trigger. Any field may be nil.
type Callbacks struct {
	ForceRefresh func() tea.Cmd
	ToggleLock   func() tea.Cmd
	CycleMode    func() tea.Cmd
	LoadProgress func() tea.Cmd
}

// NewApp creates the root model.
func NewApp(cb Callbacks) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return App{
		forceRefresh: cb.ForceRefresh,
		toggleLock:   cb.ToggleLock,
		cycleMode:    cb.CycleMode,
		loadProgress: cb.LoadProgress,
		spin:         sp,
	}
}

// Init starts the spinner and the first progress load.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spin.Tick}
	if a.loadProgress != nil {
		cmds = append(cmds, a.loadProgress())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case StatusUpdate:
		a.status = msg
		a.haveTick = true
		// Peer syncs and local reads both move the snapshot; refresh the
		// summary line lazily rather than on every tick.
		if a.loadProgress != nil && (msg.State == track.StateLocalRead || msg.State == track.StatePeerSynced) {
			return a, a.loadProgress()
		}
		return a, nil

	case ProgressLoaded:
		a.progress = msg
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "r":
		if a.forceRefresh != nil {
			return a, a.forceRefresh()
		}
		return a, nil

	case "l":
		if a.toggleLock != nil {
			return a, a.toggleLock()
		}
		return a, nil

	case "m":
		if a.cycleMode != nil {
			return a, a.cycleMode()
		}
		return a, nil
	}

	return a, nil
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("savewatch"))
	b.WriteString("\n\n")

	if !a.haveTick {
		b.WriteString(LabelStyle.Render(a.spin.View() + " waiting for first tick"))
		b.WriteString("\n")
		return b.String() + a.statusBar()
	}

	statusStyle := TrackingStyle
	if a.status.State == track.StateErrored {
		statusStyle = ErrorStyle
	}
	b.WriteString(statusStyle.Render(a.status.Status))
	b.WriteString("\n\n")

	badges := BadgeStyle.Render("mode:" + a.status.Mode.String())
	if a.status.Locked {
		badges += BadgeStyle.Render("locked")
	}
	if a.status.State == track.StatePeerSynced {
		badges += BadgeStyle.Render("co-op")
	}
	b.WriteString(" " + badges + "\n\n")

	if a.status.Source != "" {
		exists := "missing"
		if a.status.SourceExists {
			exists = "ok"
		}
		b.WriteString(LabelStyle.Render("source") + ValueStyle.Render(fmt.Sprintf("%s (%s)", a.status.Source, exists)) + "\n")
	}
	if a.progress.Err == nil && a.progress.Category != "" {
		val := a.progress.Category
		if a.progress.Version != "" {
			val += " / " + a.progress.Version
		}
		b.WriteString(LabelStyle.Render("tracking") + ValueStyle.Render(val) + "\n")
		if a.progress.Summary != "" {
			b.WriteString(LabelStyle.Render("progress") + ValueStyle.Render(a.progress.Summary) + "\n")
		}
	}

	q := a.status.Queue
	b.WriteString(LabelStyle.Render("requests") + ValueStyle.Render(
		fmt.Sprintf("%d pending / %d active / %d cooling / %d done / %d dropped",
			q.Pending, q.Active, q.TimedOut, q.Completed, q.Abandoned)) + "\n")

	if len(a.status.History) > 0 {
		b.WriteString("\n" + LabelStyle.Render("recent") + "\n")
		for _, e := range a.status.History {
			line := fmt.Sprintf("%s  %-14s %s", e.At.Format("15:04:05"), e.Kind, e.Detail)
			b.WriteString(HistoryStyle.Render(line) + "\n")
		}
	}

	return b.String() + a.statusBar()
}

func (a App) statusBar() string {
	hints := "q quit · r refresh · l lock · m mode"
	return "\n" + StatusBar.Width(max(a.width, len(hints)+2)).Render(hints)
}
