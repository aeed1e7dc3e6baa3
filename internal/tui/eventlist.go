package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/jml/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	statusCancelled  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Grey
)

// EventItem implements list.Item for the event list
type EventItem struct {
	ID            string
	EventType     string
	UserName      string
	Status        string
	EffectiveDate string
	TaskCount     int
}

func newEventItem(ev models.LifecycleEvent) EventItem {
	return EventItem{
		ID:            ev.ID,
		EventType:     string(ev.EventType),
		UserName:      ev.UserName,
		Status:        string(ev.Status),
		EffectiveDate: ev.EffectiveDate.Format("2006-01-02"),
		TaskCount:     len(ev.Tasks),
	}
}

func (i EventItem) FilterValue() string { return i.UserName + " " + i.EventType }
func (i EventItem) Title() string       { return fmt.Sprintf("%s: %s", i.EventType, i.UserName) }
func (i EventItem) Description() string {
	return fmt.Sprintf("%s • %d tasks • effective %s", formatStatus(i.Status), i.TaskCount, i.EffectiveDate)
}

func formatStatus(status string) string {
	switch models.EventStatus(status) {
	case models.EventStatusPending:
		return statusPending.Render("● pending")
	case models.EventStatusInProgress:
		return statusInProgress.Render("● in progress")
	case models.EventStatusCompleted:
		return statusCompleted.Render("● completed")
	case models.EventStatusFailed:
		return statusFailed.Render("● failed")
	case models.EventStatusCancelled:
		return statusCancelled.Render("● cancelled")
	default:
		return status
	}
}

var filters = []string{"", "pending", "in_progress", "completed", "failed", "cancelled"}
var filterLabels = []string{"all", "pending", "in progress", "completed", "failed", "cancelled"}

// EventListModel manages the event list screen
type EventListModel struct {
	client      *Client
	list        list.Model
	events      []EventItem
	filterIndex int
	loading     bool
}

// NewEventListModel creates a new event list model
func NewEventListModel(client *Client) *EventListModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Lifecycle events [all]"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.Title = listTitleStyle

	return &EventListModel{
		client: client,
		list:   l,
	}
}

// SetSize sets the list dimensions
func (m *EventListModel) SetSize(w, h int) {
	m.list.SetSize(w, h)
}

// Filter returns the status currently filtered on; empty means all.
func (m *EventListModel) Filter() string {
	return filters[m.filterIndex]
}

// SelectedEvent returns the currently selected event
func (m *EventListModel) SelectedEvent() *EventItem {
	if item := m.list.SelectedItem(); item != nil {
		ev := item.(EventItem)
		return &ev
	}
	return nil
}

// Events returns the loaded events.
func (m *EventListModel) Events() []EventItem {
	return m.events
}

// CycleFilter cycles through status filters
func (m *EventListModel) CycleFilter() {
	m.setFilter((m.filterIndex + 1) % len(filters))
}

// SetFilter selects a status filter by name. It reports false for an
// unknown status.
func (m *EventListModel) SetFilter(status string) bool {
	if status == "all" {
		status = ""
	}
	for i, f := range filters {
		if f == status {
			m.setFilter(i)
			return true
		}
	}
	return false
}

func (m *EventListModel) setFilter(i int) {
	m.filterIndex = i
	m.list.Title = fmt.Sprintf("Lifecycle events [%s]", filterLabels[i])
}

// Refresh fetches events from the API
func (m *EventListModel) Refresh() tea.Cmd {
	m.loading = true
	status := m.Filter()
	return func() tea.Msg {
		events, err := m.client.ListEvents(status)
		if err != nil {
			return errMsg{err}
		}
		items := make([]EventItem, len(events))
		for i, ev := range events {
			items[i] = newEventItem(ev)
		}
		return eventsLoadedMsg{items}
	}
}

// Update handles messages
func (m *EventListModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case eventsLoadedMsg:
		m.loading = false
		m.events = msg.events
		items := make([]list.Item, len(m.events))
		for i, ev := range m.events {
			items[i] = ev
		}
		return m.list.SetItems(items)
	case errMsg:
		m.loading = false
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

// View renders the event list
func (m *EventListModel) View() string {
	if m.loading && len(m.events) == 0 {
		return "Loading events..."
	}
	return m.list.View()
}
