package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command input
type Suggestions struct {
	items       []SuggestionItem
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	prefix      string // "/" for commands, "@" for event references
	query       string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
}

var commandSuggestions = []SuggestionItem{
	{Text: "resume", Description: "Run the selected pending event now"},
	{Text: "cancel", Description: "Cancel the selected pending event"},
	{Text: "detect", Description: "Detect joiners and leavers"},
	{Text: "flush", Description: "Retry undelivered notifications"},
	{Text: "filter", Description: "Filter by status: filter <status>"},
	{Text: "quit", Description: "Exit"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// Update updates suggestions based on current input. events supplies
// candidates for "@" references.
func (s *Suggestions) Update(input string, events []EventItem) {
	s.visible = false
	s.filtered = nil
	s.prefix = ""
	if input == "" || strings.Contains(input, " ") {
		return
	}

	switch input[0] {
	case '/':
		s.prefix = "/"
		s.items = commandSuggestions
	case '@':
		s.prefix = "@"
		s.items = make([]SuggestionItem, len(events))
		for i, ev := range events {
			s.items[i] = SuggestionItem{
				Text:        ev.ID,
				Description: fmt.Sprintf("%s %s (%s)", ev.EventType, ev.UserName, ev.Status),
			}
		}
	default:
		return
	}
	s.visible = true
	s.filter(strings.ToLower(input[1:]))
}

func (s *Suggestions) filter(query string) {
	if query != s.query {
		s.selectedIdx = 0
	}
	s.query = query
	for _, item := range s.items {
		if query == "" ||
			strings.Contains(strings.ToLower(item.Text), query) ||
			strings.Contains(strings.ToLower(item.Description), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	if s.selectedIdx >= len(s.filtered) {
		s.selectedIdx = 0
	}
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.IsVisible() || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// Accept returns the input text that completes the selected suggestion.
func (s *Suggestions) Accept() (string, bool) {
	sel := s.Selected()
	if sel == nil {
		return "", false
	}
	if s.prefix == "@" {
		return "@" + sel.Text, true
	}
	return sel.Text + " ", true
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	descStyle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "Events"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	const maxVisible = 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}
		if i == s.selectedIdx {
			b.WriteString(selectedStyle.Render("▶ " + item.Text + " " + item.Description))
		} else {
			b.WriteString("  " + item.Text + " " + descStyle.Render(item.Description))
		}
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
