package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/jml/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

// EventDetailModel shows one event with its tasks and audit trail.
type EventDetailModel struct {
	client   *Client
	eventID  string
	event    *models.LifecycleEvent
	audit    []models.PDREntry
	viewport viewport.Model
	loading  bool
}

// NewEventDetailModel creates a new event detail model
func NewEventDetailModel(client *Client) *EventDetailModel {
	return &EventDetailModel{
		client:   client,
		viewport: viewport.New(80, 20),
	}
}

// SetEvent sets the event ID to display
func (m *EventDetailModel) SetEvent(id string) {
	m.eventID = id
	m.event = nil
	m.audit = nil
	m.viewport.GotoTop()
}

// EventID returns the displayed event's ID.
func (m *EventDetailModel) EventID() string {
	return m.eventID
}

// SetSize sets the dimensions
func (m *EventDetailModel) SetSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h
}

// Refresh fetches event details
func (m *EventDetailModel) Refresh() tea.Cmd {
	m.loading = true
	id := m.eventID
	return func() tea.Msg {
		ev, err := m.client.GetEvent(id)
		if err != nil {
			return errMsg{err}
		}
		audit, _ := m.client.GetAuditTrail(id)
		return eventDetailLoadedMsg{ev, audit}
	}
}

// Update handles messages
func (m *EventDetailModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case eventDetailLoadedMsg:
		if msg.event == nil || msg.event.ID != m.eventID {
			return nil
		}
		m.loading = false
		m.event = msg.event
		m.audit = msg.audit
		m.viewport.SetContent(m.render())
		return nil
	case errMsg:
		m.loading = false
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

// View renders the event detail
func (m *EventDetailModel) View() string {
	if m.event == nil {
		return "Loading event details..."
	}
	return m.viewport.View()
}

func (m *EventDetailModel) render() string {
	ev := m.event
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s: %s <%s>", ev.EventType, ev.UserName, ev.UserEmail)))
	b.WriteString("\n\n")

	b.WriteString(renderField("ID", ev.ID))
	b.WriteString(renderField("Status", formatStatus(string(ev.Status))))
	b.WriteString(renderField("Triggered by", ev.TriggeredBy))
	b.WriteString(renderField("Triggered", ev.TriggeredAt.Format("2006-01-02 15:04")))
	b.WriteString(renderField("Effective", ev.EffectiveDate.Format("2006-01-02")))
	if ev.CompletedAt != nil {
		b.WriteString(renderField("Completed", ev.CompletedAt.Format("2006-01-02 15:04")))
	}
	if ev.Error != "" {
		b.WriteString(renderField("Error", statusFailed.Render(ev.Error)))
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Tasks (%d)", len(ev.Tasks))))
	b.WriteString("\n")
	for _, t := range ev.Tasks {
		b.WriteString(fmt.Sprintf("  %s %s\n", taskMarker(t.Status), t.Description))
		if t.Error != "" {
			b.WriteString(fmt.Sprintf("    → %s\n", statusFailed.Render(truncate(t.Error, 100))))
		}
	}

	if len(m.audit) > 0 {
		b.WriteString(sectionStyle.Render("Audit"))
		b.WriteString("\n")
		for _, e := range m.audit {
			b.WriteString(fmt.Sprintf("  %s %s %s %s\n",
				labelStyle.Render(e.Timestamp.Format("01-02 15:04")), e.Action, e.Outcome, truncate(e.Details, 60)))
		}
	}

	return b.String()
}

func taskMarker(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return statusCompleted.Render("✓")
	case models.TaskStatusFailed:
		return statusFailed.Render("✗")
	case models.TaskStatusSkipped:
		return statusCancelled.Render("-")
	case models.TaskStatusInProgress:
		return statusInProgress.Render("…")
	default:
		return statusPending.Render("○")
	}
}

func renderField(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
