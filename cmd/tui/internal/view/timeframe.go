package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Timeframe is a predefined or custom booking-date range.
type Timeframe int

const (
	TimeframeThisWeek Timeframe = iota
	TimeframeLastWeek
	TimeframeThisMonth
	TimeframeLastMonth
	TimeframeLast90Days
	TimeframeAll
	TimeframeCustom
)

func (t Timeframe) String() string {
	switch t {
	case TimeframeThisWeek:
		return "This Week"
	case TimeframeLastWeek:
		return "Last Week"
	case TimeframeThisMonth:
		return "This Month"
	case TimeframeLastMonth:
		return "Last Month"
	case TimeframeLast90Days:
		return "Last 90 Days"
	case TimeframeAll:
		return "All Time"
	case TimeframeCustom:
		return "Custom Range"
	}

	return "Unknown"
}

// Range returns the inclusive day range of a predefined timeframe relative
// to now. Weeks start on Monday. TimeframeAll and TimeframeCustom have no
// fixed range and return zero times.
func (t Timeframe) Range(now time.Time) (time.Time, time.Time) {
	today := day(now)
	weekday := (int(today.Weekday()) + 6) % 7 // Monday = 0

	var start, end time.Time

	switch t {
	case TimeframeThisWeek:
		start, end = today.AddDate(0, 0, -weekday), today
	case TimeframeLastWeek:
		end = today.AddDate(0, 0, -weekday-1)
		start = end.AddDate(0, 0, -6)
	case TimeframeThisMonth:
		start, end = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), today
	case TimeframeLastMonth:
		start = time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
	case TimeframeLast90Days:
		start, end = today.AddDate(0, 0, -89), today
	default:
		return time.Time{}, time.Time{}
	}

	return start, endOfDay(end)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// parseRange parses a custom YYYY-MM-DD range.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(from))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid start date (YYYY-MM-DD)")
	}

	end, err := time.Parse(time.DateOnly, strings.TrimSpace(to))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid end date (YYYY-MM-DD)")
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end date is before start date")
	}

	return start, endOfDay(end), nil
}

// TimeframeSelectedMsg is emitted when the user has selected a valid date range.
// Start and End are zero values when All is true.
type TimeframeSelectedMsg struct {
	Start time.Time
	End   time.Time
	All   bool
}

type timeframeState int

const (
	timeframeStateSelect timeframeState = iota
	timeframeStateCustom
)

// TimeframePicker selects the booking-date range a screen works on.
type TimeframePicker struct {
	state    timeframeState
	selected Timeframe
	now      func() time.Time

	startInput textinput.Model
	endInput   textinput.Model
	focusIndex int

	err error
}

func NewTimeframePicker(initial Timeframe) TimeframePicker {
	si := textinput.New()
	si.Placeholder = "YYYY-MM-DD"
	si.CharLimit = 10
	si.Width = 12
	si.Prompt = "Start Date: "

	ei := textinput.New()
	ei.Placeholder = "YYYY-MM-DD"
	ei.CharLimit = 10
	ei.Width = 12
	ei.Prompt = "End Date:   "

	return TimeframePicker{
		state:      timeframeStateSelect,
		selected:   initial,
		now:        time.Now,
		startInput: si,
		endInput:   ei,
	}
}

func (m TimeframePicker) Update(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch m.state {
		case timeframeStateSelect:
			return m.updateSelect(keyMsg)
		case timeframeStateCustom:
			return m.updateCustom(keyMsg)
		}
	}

	return m, nil
}

func (m TimeframePicker) updateSelect(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if m.selected > TimeframeThisWeek {
			m.selected--
		}
	case tea.KeyDown:
		if m.selected < TimeframeCustom {
			m.selected++
		}
	case tea.KeyEnter:
		switch m.selected {
		case TimeframeCustom:
			m.state = timeframeStateCustom
			m.focusIndex = 0
			m.startInput.Focus()
			m.endInput.Blur()

			return m, textinput.Blink
		case TimeframeAll:
			return m, selected(TimeframeSelectedMsg{All: true})
		}

		start, end := m.selected.Range(m.now())

		return m, selected(TimeframeSelectedMsg{Start: start, End: end})
	}

	return m, nil
}

func (m TimeframePicker) updateCustom(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		m.focusIndex = (m.focusIndex + 1) % 2
		m.startInput.Blur()
		m.endInput.Blur()

		if m.focusIndex == 0 {
			m.startInput.Focus()
		} else {
			m.endInput.Focus()
		}

		return m, textinput.Blink

	case "enter":
		start, end, err := parseRange(m.startInput.Value(), m.endInput.Value())
		if err != nil {
			m.err = err
			return m, nil
		}

		m.err = nil

		return m, selected(TimeframeSelectedMsg{Start: start, End: end})

	case "esc":
		m.state = timeframeStateSelect
		m.err = nil

		return m, nil
	}

	var c1, c2 tea.Cmd

	m.startInput, c1 = m.startInput.Update(msg)
	m.endInput, c2 = m.endInput.Update(msg)

	return m, tea.Batch(c1, c2)
}

func selected(msg TimeframeSelectedMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m TimeframePicker) View() string {
	errStr := ""
	if m.err != nil {
		errStr = errorStyle.Render(fmt.Sprintf("\n\nError: %v", m.err))
	}

	if m.state == timeframeStateCustom {
		return fmt.Sprintf(
			"Enter Custom Range:\n\n%s\n%s\n\n(Enter to confirm, Tab to switch, Esc to back)%s",
			m.startInput.View(),
			m.endInput.View(),
			errStr,
		)
	}

	var b strings.Builder

	b.WriteString("Select Timeframe:\n\n")

	for tf := TimeframeThisWeek; tf <= TimeframeCustom; tf++ {
		cursor := " "
		label := tf.String()

		if m.selected == tf {
			cursor = ">"
			label = activeStyle.Render(label)
		}

		fmt.Fprintf(&b, "%s %s\n", cursor, label)
	}

	b.WriteString("\n(Enter to select, Esc to back)")

	return b.String() + errStr
}

// IsSelecting reports whether the picker shows the predefined list rather
// than the custom range inputs.
func (m TimeframePicker) IsSelecting() bool {
	return m.state == timeframeStateSelect
}

// Reset returns the picker to its initial selection state.
func (m *TimeframePicker) Reset() {
	m.state = timeframeStateSelect
	m.err = nil
	m.startInput.SetValue("")
	m.endInput.SetValue("")
}
