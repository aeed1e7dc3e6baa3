// Package tui provides the interactive terminal UI for the JML daemon.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor)
)

const refreshInterval = 5 * time.Second

type mode int

const (
	modeList mode = iota
	modeDetail
)

// App is the main TUI application model.
type App struct {
	client       *Client
	list         *EventListModel
	detail       *EventDetailModel
	input        textinput.Model
	suggestions  *Suggestions
	mode         mode
	width        int
	height       int
	message      string
	daemonOnline bool
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "/resume | /cancel | /detect | /flush | /filter <status> | @<event>"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	client := NewClient(apiAddr)
	return &App{
		client:      client,
		list:        NewEventListModel(client),
		detail:      NewEventDetailModel(client),
		input:       ti,
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.list.Refresh(),
		a.checkDaemon(),
		tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.list.SetSize(msg.Width, a.contentHeight())
		a.detail.SetSize(msg.Width, a.contentHeight())

	case eventsLoadedMsg:
		cmds = append(cmds, a.list.Update(msg))

	case eventDetailLoadedMsg:
		cmds = append(cmds, a.detail.Update(msg))

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case tickMsg:
		cmds = append(cmds, a.refresh(), a.checkDaemon(), tickCmd())

	case commandResultMsg:
		a.message = msg.message
		cmds = append(cmds, a.refresh())

	case errMsg:
		a.message = "Error: " + msg.err.Error()
		a.list.Update(msg)
		a.detail.Update(msg)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.suggestions.Update(a.input.Value(), a.list.Events())

	return a, tea.Batch(cmds...)
}

// handleKey processes navigation keys. It reports false for keys that
// belong to the command input.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	typing := a.input.Value() != ""

	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true

	case "esc":
		if typing {
			a.input.SetValue("")
			a.suggestions.Update("", nil)
			return nil, true
		}
		if a.mode == modeDetail {
			a.mode = modeList
			return a.list.Refresh(), true
		}
		return nil, true

	case "up", "down", "pgup", "pgdown":
		if a.suggestions.IsVisible() {
			if msg.String() == "up" {
				a.suggestions.Prev()
			} else {
				a.suggestions.Next()
			}
			return nil, true
		}
		if a.mode == modeDetail {
			return a.detail.Update(msg), true
		}
		return a.list.Update(msg), true

	case "tab":
		if a.suggestions.IsVisible() {
			if text, ok := a.suggestions.Accept(); ok {
				a.input.SetValue(text)
				a.input.CursorEnd()
			}
			return nil, true
		}
		if a.mode == modeList {
			a.list.CycleFilter()
			return a.list.Refresh(), true
		}
		return nil, true

	case "enter":
		if a.suggestions.IsVisible() {
			if text, ok := a.suggestions.Accept(); ok {
				a.input.SetValue(text)
				a.input.CursorEnd()
			}
			return nil, true
		}
		if typing {
			line := strings.TrimSpace(a.input.Value())
			a.input.SetValue("")
			return a.executeCommand(line), true
		}
		if a.mode == modeList {
			if sel := a.list.SelectedEvent(); sel != nil {
				return a.openDetail(sel.ID), true
			}
		}
		return nil, true

	case "r":
		if !typing {
			return a.refresh(), true
		}
	}
	return nil, false
}

func (a *App) openDetail(id string) tea.Cmd {
	a.mode = modeDetail
	a.detail.SetEvent(id)
	return a.detail.Refresh()
}

func (a *App) refresh() tea.Cmd {
	if a.mode == modeDetail {
		return tea.Batch(a.list.Refresh(), a.detail.Refresh())
	}
	return a.list.Refresh()
}

// selectedID is the event a command without an explicit @reference acts on.
func (a *App) selectedID() string {
	if a.mode == modeDetail {
		return a.detail.EventID()
	}
	if sel := a.list.SelectedEvent(); sel != nil {
		return sel.ID
	}
	return ""
}

// parseCommand splits a command line into its verb, an optional @event
// reference and the remaining arguments. A leading "/" is optional.
func parseCommand(line string) (verb, ref string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", nil
	}
	if strings.HasPrefix(fields[0], "@") {
		return "open", strings.TrimPrefix(fields[0], "@"), nil
	}
	verb = strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "@") && ref == "" {
			ref = strings.TrimPrefix(f, "@")
			continue
		}
		args = append(args, f)
	}
	return verb, ref, args
}

func (a *App) executeCommand(line string) tea.Cmd {
	verb, ref, args := parseCommand(line)
	if verb == "" {
		return nil
	}
	target := ref
	if target == "" {
		target = a.selectedID()
	}
	client := a.client

	switch verb {
	case "q", "quit", "exit":
		return tea.Quit

	case "open":
		if target == "" {
			return result("Usage: @<event-id>")
		}
		return a.openDetail(target)

	case "filter":
		status := ""
		if len(args) > 0 {
			status = args[0]
		}
		if !a.list.SetFilter(status) {
			return result(fmt.Sprintf("Unknown status: %s", status))
		}
		a.mode = modeList
		return a.list.Refresh()
	}

	return func() tea.Msg {
		switch verb {
		case "resume":
			if target == "" {
				return commandResultMsg{"No event selected"}
			}
			ev, err := client.ResumeEvent(target)
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Event %s %s", shortID(ev.ID), ev.Status)}

		case "cancel":
			if target == "" {
				return commandResultMsg{"No event selected"}
			}
			ev, err := client.CancelEvent(target)
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Event %s %s", shortID(ev.ID), ev.Status)}

		case "detect":
			res, err := client.Detect()
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Detected %d joiners, %d leavers (%d processed, %d failed)",
				res.JoinersDetected, res.LeaversDetected, res.Processed, res.Failed)}

		case "flush":
			n, err := client.FlushNotifications()
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Delivered %d notifications", n)}

		default:
			return commandResultMsg{fmt.Sprintf("Unknown: %s (try: resume, cancel, detect, flush, filter)", verb)}
		}
	}
}

func result(message string) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{message} }
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	b.WriteString(titleStyle.Render("JML Lifecycle") + "  " + daemonStatus + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	switch a.mode {
	case modeList:
		b.WriteString(a.list.View())
	case modeDetail:
		b.WriteString(a.detail.View())
	}

	b.WriteString("\n")
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(msgStyle.Render(a.message))
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeList:
		status = fmt.Sprintf(" Events: %d | ↑↓:nav | Enter:open | Tab:filter | r:refresh | Ctrl+C:quit", len(a.list.Events()))
	case modeDetail:
		status = " ↑↓:scroll | Esc:back | /resume | /cancel | r:refresh"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) contentHeight() int {
	h := a.height - 9
	if h < 5 {
		h = 5
	}
	return h
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil && ok}
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
